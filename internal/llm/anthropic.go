package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 1024

// NewAnthropicClient builds an SDK client. An empty apiKey falls back to
// ANTHROPIC_API_KEY from the environment.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) *anthropic.Client {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	c := anthropic.NewClient(opts...)
	return &c
}

type AnthropicClient struct {
	client *anthropic.Client
	model  anthropic.Model
	settings
}

func NewAnthropic(client *anthropic.Client, model string, opts ...Option) *AnthropicClient {
	return &AnthropicClient{
		client:   client,
		model:    anthropic.Model(model),
		settings: newSettings(opts),
	}
}

func (c *AnthropicClient) Generate(ctx context.Context, history []models.Message, input string) (string, error) {
	conv := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			conv = append(conv, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			conv = append(conv, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	conv = append(conv, anthropic.NewUserMessage(anthropic.NewTextBlock(input)))

	maxTokens := c.maxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Messages:    conv,
		Temperature: anthropic.Float(c.temperature),
	}
	if c.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.systemPrompt}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(v.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("model returned no text")
	}
	return sb.String(), nil
}
