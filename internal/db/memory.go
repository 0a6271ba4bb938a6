package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RichardoC/pad-chat/internal/models"
)

// MemoryStore keeps everything in process memory. It is not persistent and is
// only meant for local runs and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	turns         map[string][]models.Turn
	order         []string
	nextTurnID    int64
	now           func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		turns:         make(map[string][]models.Turn),
		now:           time.Now,
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return errDuplicate("conversation id", conv.ID)
	}
	for _, c := range s.conversations {
		if c.Title == conv.Title {
			return errDuplicate("conversation title", conv.Title)
		}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now().UTC()
	}

	stored := *conv
	s.conversations[conv.ID] = &stored
	s.order = append(s.order, conv.ID)
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *conv
	return &out, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, owner string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0)
	for _, id := range s.order {
		if c := s.conversations[id]; c.Owner == owner {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateConversationTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.ErrNotFound
	}
	for otherID, c := range s.conversations {
		if otherID != id && c.Title == title {
			return errDuplicate("conversation title", title)
		}
	}
	conv.Title = title
	return nil
}

func (s *MemoryStore) TitleExists(_ context.Context, title string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.conversations {
		if c.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, conversationID string, role models.Role, content string) (*models.Turn, error) {
	user, ai, err := turnColumns(role, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, models.ErrNotFound
	}

	s.nextTurnID++
	turn := models.Turn{
		ID:             s.nextTurnID,
		ConversationID: conversationID,
		UserResponse:   user,
		AIResponse:     ai,
		Timestamp:      s.now().UTC(),
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return &turn, nil
}

func (s *MemoryStore) ListTurns(_ context.Context, conversationID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]models.Turn, len(s.turns[conversationID]))
	copy(turns, s.turns[conversationID])
	sort.SliceStable(turns, func(i, j int) bool {
		if turns[i].Timestamp.Equal(turns[j].Timestamp) {
			return turns[i].ID < turns[j].ID
		}
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	return turns, nil
}

func (s *MemoryStore) ClearTurns(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.turns, conversationID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func errDuplicate(what, value string) error {
	return fmt.Errorf("duplicate %s %q", what, value)
}
