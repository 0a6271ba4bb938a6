package db_test

import (
	"context"
	"testing"

	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func TestCachedStore_InvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	backing := db.NewMemory()
	s := newCachedStore(t, backing)
	conv := mustConversation(t, s, "alice", "t1")

	if _, err := s.AppendTurn(ctx, conv.ID, models.RoleUser, "one"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if turns, _ := s.ListTurns(ctx, conv.ID); len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}

	// warm cache must be dropped by the next append
	if _, err := s.AppendTurn(ctx, conv.ID, models.RoleAssistant, "two"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if turns, _ := s.ListTurns(ctx, conv.ID); len(turns) != 2 {
		t.Fatalf("expected 2 turns after invalidation, got %d", len(turns))
	}

	if _, err := s.GetConversation(ctx, conv.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := s.UpdateConversationTitle(ctx, conv.ID, "renamed"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil || got.Title != "renamed" {
		t.Fatalf("expected fresh title, got %+v (%v)", got, err)
	}

	if err := s.ClearTurns(ctx, conv.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if turns, _ := s.ListTurns(ctx, conv.ID); len(turns) != 0 {
		t.Fatalf("expected cleared history, got %d", len(turns))
	}
}

func TestCachedStore_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	backing := db.NewMemory()
	s := newCachedStore(t, backing)
	conv := mustConversation(t, s, "alice", "t1")
	_, _ = s.AppendTurn(ctx, conv.ID, models.RoleUser, "one")

	if turns, _ := s.ListTurns(ctx, conv.ID); len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	// write behind the cache's back; the cached list stays until invalidated
	_, _ = backing.AppendTurn(ctx, conv.ID, models.RoleAssistant, "two")
	if turns, _ := s.ListTurns(ctx, conv.ID); len(turns) != 1 {
		t.Fatalf("expected cached list of 1, got %d", len(turns))
	}
}

func TestCachedStore_RedisDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	backing := db.NewMemory()
	s, err := db.NewCachedStore(ctx, backing, client, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conv := mustConversation(t, s, "alice", "t1")
	if _, err := backing.AppendTurn(ctx, conv.ID, models.RoleUser, "stored"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	mr.Close()

	turns, err := s.ListTurns(ctx, conv.ID)
	if err != nil || len(turns) != 1 {
		t.Fatalf("reads should fall through to the backend: %d (%v)", len(turns), err)
	}
	if _, err := s.AppendTurn(ctx, conv.ID, models.RoleAssistant, "refused"); err == nil {
		t.Fatal("writes must be refused when the cache cannot be invalidated")
	}
	if turns, _ := backing.ListTurns(ctx, conv.ID); len(turns) != 1 {
		t.Fatalf("refused write reached the backend: %d turns", len(turns))
	}
}

func TestCachedStore_FailedInvalidationLeavesNoStaleList(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	backing := db.NewMemory()
	s, err := db.NewCachedStore(ctx, backing, client, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conv := mustConversation(t, s, "alice", "t1")

	if _, err := s.AppendTurn(ctx, conv.ID, models.RoleUser, "one"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if turns, _ := s.ListTurns(ctx, conv.ID); len(turns) != 1 {
		t.Fatalf("expected warm list of 1, got %d", len(turns))
	}

	mr.SetError("ERR cache unavailable")
	_, appendErr := s.AppendTurn(ctx, conv.ID, models.RoleAssistant, "two")
	clearErr := s.ClearTurns(ctx, conv.ID)
	titleErr := s.UpdateConversationTitle(ctx, conv.ID, "renamed")
	mr.SetError("")

	if appendErr == nil || clearErr == nil || titleErr == nil {
		t.Fatalf("expected refused writes, got append=%v clear=%v title=%v", appendErr, clearErr, titleErr)
	}

	cached, err := s.ListTurns(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	stored, _ := backing.ListTurns(ctx, conv.ID)
	if len(cached) != len(stored) {
		t.Fatalf("stale cache: got %d turns, backend has %d", len(cached), len(stored))
	}
	if got, _ := s.GetConversation(ctx, conv.ID); got.Title != "t1" {
		t.Fatalf("title changed despite refused write: %q", got.Title)
	}

	// once redis recovers, writes go through and the list follows the backend
	if _, err := s.AppendTurn(ctx, conv.ID, models.RoleAssistant, "two"); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	cached, _ = s.ListTurns(ctx, conv.ID)
	stored, _ = backing.ListTurns(ctx, conv.ID)
	if len(cached) != 2 || len(stored) != 2 {
		t.Fatalf("expected 2 turns everywhere, cache=%d backend=%d", len(cached), len(stored))
	}
}

func TestNewCachedStore_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	if _, err := db.NewCachedStore(context.Background(), db.NewMemory(), client, 0, zap.NewNop()); err == nil {
		t.Fatal("expected ping failure")
	}
}
