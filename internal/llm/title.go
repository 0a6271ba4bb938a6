package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const (
	TitleSystemPrompt = "You write short, descriptive titles for chat conversations. " +
		"Reply with the title only, at most eight words, no quotes and no trailing punctuation."

	DefaultTitleInputTokens = 100
	maxTitleRunes           = 64
	titleEncoding           = "cl100k_base"
)

// Tokenizer cuts text down to at most maxTokens tokens.
type Tokenizer func(text string, maxTokens int) string

type TitleService struct {
	model          ModelClient
	maxInputTokens int
	tokenize       Tokenizer
	logger         *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

type TitleOption func(*TitleService)

func WithTokenizer(t Tokenizer) TitleOption {
	return func(s *TitleService) { s.tokenize = t }
}

func WithMaxInputTokens(n int) TitleOption {
	return func(s *TitleService) {
		if n > 0 {
			s.maxInputTokens = n
		}
	}
}

// NewTitleService builds a title generator on top of a model client. The
// client should carry TitleSystemPrompt.
func NewTitleService(model ModelClient, logger *zap.Logger, opts ...TitleOption) *TitleService {
	s := &TitleService{
		model:          model,
		maxInputTokens: DefaultTitleInputTokens,
		logger:         logger,
	}
	s.tokenize = s.tiktokenTruncate
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TitleService) GenerateTitle(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf("Write a title for a conversation that contains this reply:\n\n%s",
		s.tokenize(text, s.maxInputTokens))

	completion, err := s.model.Generate(ctx, nil, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	title := cleanTitle(completion)
	if title == "" {
		return "", errors.New("model returned an empty title")
	}
	return title, nil
}

func (s *TitleService) tiktokenTruncate(text string, maxTokens int) string {
	s.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(titleEncoding)
		if err != nil {
			s.logger.Warn("tokenizer unavailable, truncating by runes", zap.Error(err))
			return
		}
		s.enc = enc
	})
	if s.enc == nil {
		// roughly four characters per token
		return TruncateRunes(text, maxTokens*4)
	}

	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return s.enc.Decode(tokens[:maxTokens])
}

func TruncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// cleanTitle keeps the first non-empty line of a completion without quotes,
// a "Title:" prefix or trailing punctuation.
func cleanTitle(completion string) string {
	var line string
	for _, l := range strings.Split(completion, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	if len(line) >= 6 && strings.EqualFold(line[:6], "title:") {
		line = strings.TrimSpace(line[6:])
	}
	line = strings.Trim(line, "\"'`*")
	line = strings.TrimRight(line, ".!?;:, ")
	line = strings.TrimSpace(line)

	return strings.TrimSpace(TruncateRunes(line, maxTitleRunes))
}
