package db_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

type backend struct {
	name string
	open func(t *testing.T) db.Store
}

func backends() []backend {
	return []backend{
		{"sqlite", func(t *testing.T) db.Store {
			s, err := db.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		}},
		{"memory", func(t *testing.T) db.Store {
			return db.NewMemory()
		}},
		{"gorm", func(t *testing.T) db.Store {
			s, err := db.NewGorm(sqlite.Open(filepath.Join(t.TempDir(), "gorm.db")))
			if err != nil {
				t.Fatalf("open gorm: %v", err)
			}
			return s
		}},
		{"cached", func(t *testing.T) db.Store {
			return newCachedStore(t, db.NewMemory())
		}},
	}
}

func newCachedStore(t *testing.T, next db.Store) *db.CachedStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := db.NewCachedStore(context.Background(), next, client, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	return s
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s db.Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func mustConversation(t *testing.T, s db.Store, owner, title string) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{ID: uuid.NewString(), Owner: owner, Title: title}
	if err := s.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func TestAppendTurn_UnknownConversation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		_, err := s.AppendTurn(context.Background(), uuid.NewString(), models.RoleUser, "hi")
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAppendTurn_UnsupportedRole(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		conv := mustConversation(t, s, "alice", "t1")
		_, err := s.AppendTurn(context.Background(), conv.ID, models.Role("system"), "be nice")
		if !errors.Is(err, models.ErrUnsupportedRole) {
			t.Fatalf("expected ErrUnsupportedRole, got %v", err)
		}
	})
}

func TestAppendAndList_PreservesOrderAndContent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		ctx := context.Background()
		conv := mustConversation(t, s, "alice", "t1")

		userText := "  Tell me about AI.\nÜnïcødé ✓ "
		aiText := "AI is a field of computer science."
		if _, err := s.AppendTurn(ctx, conv.ID, models.RoleUser, userText); err != nil {
			t.Fatalf("append user: %v", err)
		}
		if _, err := s.AppendTurn(ctx, conv.ID, models.RoleAssistant, aiText); err != nil {
			t.Fatalf("append assistant: %v", err)
		}

		turns, err := s.ListTurns(ctx, conv.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(turns))
		}
		if turns[0].UserResponse == nil || *turns[0].UserResponse != userText || turns[0].AIResponse != nil {
			t.Fatalf("first turn mismatch: %+v", turns[0])
		}
		if turns[1].AIResponse == nil || *turns[1].AIResponse != aiText || turns[1].UserResponse != nil {
			t.Fatalf("second turn mismatch: %+v", turns[1])
		}
		if turns[0].ConversationID != conv.ID {
			t.Fatalf("conversation ref mismatch: %q", turns[0].ConversationID)
		}
	})
}

func TestListTurns_OrderedByTimestamp(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		ctx := context.Background()
		conv := mustConversation(t, s, "alice", "t1")

		for i := 0; i < 10; i++ {
			role := models.RoleUser
			if i%2 == 1 {
				role = models.RoleAssistant
			}
			if _, err := s.AppendTurn(ctx, conv.ID, role, fmt.Sprintf("msg-%d", i)); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}

		turns, err := s.ListTurns(ctx, conv.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(turns) != 10 {
			t.Fatalf("expected 10 turns, got %d", len(turns))
		}
		for i := range turns {
			want := fmt.Sprintf("msg-%d", i)
			got := turns[i].Messages()
			if len(got) != 1 || got[0].Content != want {
				t.Fatalf("turn %d: got %+v want %q", i, got, want)
			}
			if i > 0 && turns[i].Timestamp.Before(turns[i-1].Timestamp) {
				t.Fatalf("turn %d timestamp goes backwards", i)
			}
		}
	})
}

func TestClearTurns_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		ctx := context.Background()
		conv := mustConversation(t, s, "alice", "t1")
		other := mustConversation(t, s, "alice", "t2")

		if err := s.ClearTurns(ctx, conv.ID); err != nil {
			t.Fatalf("clear empty: %v", err)
		}
		turns, err := s.ListTurns(ctx, conv.ID)
		if err != nil || len(turns) != 0 {
			t.Fatalf("expected empty list, got %d (%v)", len(turns), err)
		}

		_, _ = s.AppendTurn(ctx, conv.ID, models.RoleUser, "a")
		_, _ = s.AppendTurn(ctx, other.ID, models.RoleUser, "b")

		if err := s.ClearTurns(ctx, conv.ID); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if err := s.ClearTurns(ctx, conv.ID); err != nil {
			t.Fatalf("clear twice: %v", err)
		}
		if turns, _ := s.ListTurns(ctx, conv.ID); len(turns) != 0 {
			t.Fatalf("expected cleared history, got %d", len(turns))
		}
		if turns, _ := s.ListTurns(ctx, other.ID); len(turns) != 1 {
			t.Fatalf("other conversation should keep its turn, got %d", len(turns))
		}
	})
}

func TestConversations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		ctx := context.Background()

		if _, err := s.GetConversation(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		first := mustConversation(t, s, "alice", "first")
		mustConversation(t, s, "bob", "bobs")
		second := mustConversation(t, s, "alice", "second")

		got, err := s.GetConversation(ctx, first.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Owner != "alice" || got.Title != "first" {
			t.Fatalf("unexpected conversation %+v", got)
		}

		list, err := s.ListConversations(ctx, "alice")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
			t.Fatalf("unexpected list %+v", list)
		}

		exists, err := s.TitleExists(ctx, "second")
		if err != nil || !exists {
			t.Fatalf("expected title to exist (%v)", err)
		}
		if exists, _ := s.TitleExists(ctx, "nope"); exists {
			t.Fatal("unexpected title match")
		}

		if err := s.UpdateConversationTitle(ctx, first.ID, "renamed"); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got, _ := s.GetConversation(ctx, first.ID); got.Title != "renamed" {
			t.Fatalf("title not updated: %q", got.Title)
		}
		if err := s.UpdateConversationTitle(ctx, uuid.NewString(), "x"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListConversations_EqualTimestampsKeepCreationOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		ctx := context.Background()
		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		// ids sort in reverse of creation order
		ids := []string{
			"ffffffff-0000-4000-8000-000000000001",
			"88888888-0000-4000-8000-000000000002",
			"11111111-0000-4000-8000-000000000003",
		}
		for i, id := range ids {
			conv := &models.Conversation{ID: id, Owner: "alice", Title: fmt.Sprintf("same-clock-%d", i), CreatedAt: at}
			if err := s.CreateConversation(ctx, conv); err != nil {
				t.Fatalf("create %s: %v", id, err)
			}
		}

		list, err := s.ListConversations(ctx, "alice")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != len(ids) {
			t.Fatalf("expected %d conversations, got %d", len(ids), len(list))
		}
		for i, id := range ids {
			if list[i].ID != id {
				t.Fatalf("position %d: got %s, want %s", i, list[i].ID, id)
			}
		}
	})
}

func TestCreateConversation_DuplicateTitleRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s db.Store) {
		mustConversation(t, s, "alice", "same")
		err := s.CreateConversation(context.Background(), &models.Conversation{
			ID: uuid.NewString(), Owner: "bob", Title: "same",
		})
		if err == nil {
			t.Fatal("expected duplicate title to be rejected")
		}
	})
}
