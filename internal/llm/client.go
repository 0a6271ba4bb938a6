package llm

import (
	"context"

	"github.com/RichardoC/pad-chat/internal/models"
)

const DefaultSystemPrompt = "You're an assistant knowledgeable in AI and algorithms. Answer clearly and concisely."

// ModelClient is the text-in, text-out boundary to a hosted model. history is
// replayed oldest first ahead of input.
type ModelClient interface {
	Generate(ctx context.Context, history []models.Message, input string) (string, error)
}

type settings struct {
	systemPrompt string
	temperature  float64
	maxTokens    int
}

type Option func(*settings)

func WithSystemPrompt(prompt string) Option {
	return func(s *settings) { s.systemPrompt = prompt }
}

func WithTemperature(t float64) Option {
	return func(s *settings) { s.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(s *settings) { s.maxTokens = n }
}

func newSettings(opts []Option) settings {
	s := settings{systemPrompt: DefaultSystemPrompt}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
