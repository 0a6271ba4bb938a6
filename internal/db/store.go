package db

import (
	"context"
	"fmt"

	"github.com/RichardoC/pad-chat/internal/models"
)

// TurnStore is the append-only log of conversation turns.
type TurnStore interface {
	AppendTurn(ctx context.Context, conversationID string, role models.Role, content string) (*models.Turn, error)
	ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error)
	ClearTurns(ctx context.Context, conversationID string) error
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, owner string) ([]models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	TitleExists(ctx context.Context, title string) (bool, error)
}

// Store is implemented by every backend. It is the only writer of both
// conversations and turns.
type Store interface {
	TurnStore
	ConversationStore
	Close() error
}

// turnColumns maps a role onto the two optional text columns of a turn row.
func turnColumns(role models.Role, content string) (user, ai *string, err error) {
	switch role {
	case models.RoleUser:
		return &content, nil, nil
	case models.RoleAssistant:
		return nil, &content, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", models.ErrUnsupportedRole, role)
	}
}
