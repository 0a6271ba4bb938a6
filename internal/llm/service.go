package llm

import (
	"context"
	"errors"

	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Service talks to any OpenAI compatible endpoint through langchaingo.
type Service struct {
	llm llms.Model
	settings
}

func New(baseURL, token, model string, opts ...Option) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, opts...), nil
}

func NewWithModel(model llms.Model, opts ...Option) *Service {
	return &Service{llm: model, settings: newSettings(opts)}
}

func (s *Service) Generate(ctx context.Context, history []models.Message, input string) (string, error) {
	content := make([]llms.MessageContent, 0, len(history)+2)
	if s.systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt))
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case models.RoleAssistant:
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		}
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, input))

	callOpts := []llms.CallOption{llms.WithTemperature(s.temperature)}
	if s.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(s.maxTokens))
	}

	resp, err := s.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
