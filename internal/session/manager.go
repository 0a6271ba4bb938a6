package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceholderMarker prefixes every title that has not been generated yet.
const PlaceholderMarker = "temporary_title"

// TitleGenerator turns a model reply into a short conversation title.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, text string) (string, error)
}

type Manager struct {
	store  db.ConversationStore
	logger *zap.Logger
	suffix func() string
}

func NewManager(store db.ConversationStore, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger, suffix: randomSuffix}
}

func IsPlaceholder(title string) bool {
	return strings.Contains(title, PlaceholderMarker)
}

func (m *Manager) placeholder() string {
	return fmt.Sprintf("%s_%s", PlaceholderMarker, m.suffix())
}

// ResolveOrCreate returns the caller's conversation for sessionID, or a new
// one when sessionID is empty. A malformed, unknown or foreign id is
// models.ErrNotFound; it never creates a conversation in that case.
func (m *Manager) ResolveOrCreate(ctx context.Context, sessionID, owner string) (*models.Conversation, bool, error) {
	if sessionID == "" {
		conv, err := m.Create(ctx, owner)
		return conv, err == nil, err
	}

	conv, err := m.Get(ctx, sessionID, owner)
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// Get fetches a conversation scoped to owner.
func (m *Manager) Get(ctx context.Context, id, owner string) (*models.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	conv, err := m.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Owner != owner {
		m.logger.Warn("conversation requested by non-owner",
			zap.String("conversation_id", id),
			zap.String("owner", owner))
		return nil, models.ErrNotFound
	}
	return conv, nil
}

func (m *Manager) Create(ctx context.Context, owner string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:    uuid.NewString(),
		Owner: owner,
		Title: m.placeholder(),
	}
	if err := m.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	m.logger.Info("created conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("title", conv.Title))
	return conv, nil
}

func (m *Manager) List(ctx context.Context, owner string) ([]models.Conversation, error) {
	return m.store.ListConversations(ctx, owner)
}

// MaybeRename replaces a placeholder title with one generated from candidate.
// It reports whether the title changed. Titles that are already final are
// left alone.
func (m *Manager) MaybeRename(ctx context.Context, conv *models.Conversation, candidate string, gen TitleGenerator) (bool, error) {
	if !IsPlaceholder(conv.Title) {
		return false, nil
	}

	title, err := gen.GenerateTitle(ctx, candidate)
	if err != nil {
		return false, &models.UpstreamError{Op: "generate title", Err: err}
	}
	title = strings.TrimSpace(strings.ReplaceAll(title, PlaceholderMarker, ""))
	if title == "" {
		return false, &models.UpstreamError{Op: "generate title", Err: errors.New("empty title")}
	}

	exists, err := m.store.TitleExists(ctx, title)
	if err != nil {
		return false, &models.PersistenceError{Op: "check title", Err: err}
	}
	if exists {
		title = fmt.Sprintf("%s_%s", title, m.suffix())
	}

	if err := m.store.UpdateConversationTitle(ctx, conv.ID, title); err != nil {
		return false, &models.PersistenceError{Op: "update title", Err: err}
	}
	conv.Title = title

	m.logger.Info("updated conversation title",
		zap.String("conversation_id", conv.ID),
		zap.String("title", title))
	return true, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
