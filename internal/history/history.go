// Package history presents a conversation's stored turns as the ordered,
// role-tagged message sequence a model client replays, and records new
// messages back into the turn store.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

var _ schema.ChatMessageHistory = (*History)(nil)

// History is bound to one conversation. Instances hold no state besides the
// id, so a fresh one can be built per request.
type History struct {
	store          db.Store
	conversationID string
}

func New(store db.Store, conversationID string) *History {
	return &History{store: store, conversationID: conversationID}
}

func (h *History) ConversationID() string { return h.conversationID }

// Load returns the conversation's messages oldest first.
func (h *History) Load(ctx context.Context) ([]models.Message, error) {
	if err := h.validate(ctx); err != nil {
		return nil, err
	}

	turns, err := h.store.ListTurns(ctx, h.conversationID)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(turns))
	for _, turn := range turns {
		msgs = append(msgs, turn.Messages()...)
	}
	return msgs, nil
}

func (h *History) Append(ctx context.Context, msg models.Message) (*models.Turn, error) {
	switch msg.Role {
	case models.RoleUser:
		return h.store.AppendTurn(ctx, h.conversationID, models.RoleUser, msg.Content)
	case models.RoleAssistant:
		return h.store.AppendTurn(ctx, h.conversationID, models.RoleAssistant, msg.Content)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedRole, msg.Role)
	}
}

func (h *History) Clear(ctx context.Context) error {
	return h.store.ClearTurns(ctx, h.conversationID)
}

func (h *History) validate(ctx context.Context) error {
	if _, err := uuid.Parse(h.conversationID); err != nil {
		return fmt.Errorf("%w: %q is not a conversation id", models.ErrInvalidSession, h.conversationID)
	}
	if _, err := h.store.GetConversation(ctx, h.conversationID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: conversation %s does not exist", models.ErrInvalidSession, h.conversationID)
		}
		return err
	}
	return nil
}

// Messages implements schema.ChatMessageHistory.
func (h *History) Messages(ctx context.Context) ([]llms.ChatMessage, error) {
	msgs, err := h.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]llms.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			out = append(out, llms.HumanChatMessage{Content: m.Content})
		case models.RoleAssistant:
			out = append(out, llms.AIChatMessage{Content: m.Content})
		}
	}
	return out, nil
}

// AddMessage implements schema.ChatMessageHistory.
func (h *History) AddMessage(ctx context.Context, message llms.ChatMessage) error {
	msg, err := fromChatMessage(message)
	if err != nil {
		return err
	}
	_, err = h.Append(ctx, msg)
	return err
}

func (h *History) AddUserMessage(ctx context.Context, text string) error {
	_, err := h.Append(ctx, models.UserMessage(text))
	return err
}

func (h *History) AddAIMessage(ctx context.Context, text string) error {
	_, err := h.Append(ctx, models.AssistantMessage(text))
	return err
}

// SetMessages replaces the stored history with messages.
func (h *History) SetMessages(ctx context.Context, messages []llms.ChatMessage) error {
	converted := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		msg, err := fromChatMessage(m)
		if err != nil {
			return err
		}
		converted = append(converted, msg)
	}

	if err := h.Clear(ctx); err != nil {
		return err
	}
	for _, msg := range converted {
		if _, err := h.Append(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func fromChatMessage(m llms.ChatMessage) (models.Message, error) {
	switch m.GetType() {
	case llms.ChatMessageTypeHuman:
		return models.UserMessage(m.GetContent()), nil
	case llms.ChatMessageTypeAI:
		return models.AssistantMessage(m.GetContent()), nil
	default:
		return models.Message{}, fmt.Errorf("%w: %q", models.ErrUnsupportedRole, m.GetType())
	}
}
