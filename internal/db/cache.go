package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultCacheTTL = 24 * time.Hour

// CachedStore is a read-through redis cache in front of another Store.
// Turn lists and conversation rows are cached. Writes drop the key before
// and after reaching the backend; a write whose first drop fails is refused,
// so a stale entry never outlives a committed write. Read failures are logged
// and fall through to the backend.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStore(ctx context.Context, next Store, client *redis.Client, ttl time.Duration, logger *zap.Logger) (*CachedStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{Store: next, client: client, ttl: ttl, logger: logger}, nil
}

func (c *CachedStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	key := conversationKey(id)

	var conv models.Conversation
	if c.get(ctx, key, &conv) {
		return &conv, nil
	}

	out, err := c.Store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, out)
	return out, nil
}

func (c *CachedStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	key := conversationKey(id)
	if err := c.invalidate(ctx, key); err != nil {
		return err
	}
	if err := c.Store.UpdateConversationTitle(ctx, id, title); err != nil {
		return err
	}
	c.reinvalidate(ctx, key)
	return nil
}

func (c *CachedStore) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	key := turnsKey(conversationID)

	var turns []models.Turn
	if c.get(ctx, key, &turns) {
		return turns, nil
	}

	out, err := c.Store.ListTurns(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, out)
	return out, nil
}

func (c *CachedStore) AppendTurn(ctx context.Context, conversationID string, role models.Role, content string) (*models.Turn, error) {
	key := turnsKey(conversationID)
	if err := c.invalidate(ctx, key); err != nil {
		return nil, err
	}
	turn, err := c.Store.AppendTurn(ctx, conversationID, role, content)
	if err != nil {
		return nil, err
	}
	c.reinvalidate(ctx, key)
	return turn, nil
}

func (c *CachedStore) ClearTurns(ctx context.Context, conversationID string) error {
	key := turnsKey(conversationID)
	if err := c.invalidate(ctx, key); err != nil {
		return err
	}
	if err := c.Store.ClearTurns(ctx, conversationID); err != nil {
		return err
	}
	c.reinvalidate(ctx, key)
	return nil
}

func (c *CachedStore) Close() error {
	return multierr.Append(c.Store.Close(), c.client.Close())
}

func (c *CachedStore) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedStore) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedStore) invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to invalidate cache key %s: %w", key, err)
	}
	return nil
}

// reinvalidate drops an entry a concurrent read may have refilled while the
// backend write was in flight.
func (c *CachedStore) reinvalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("cache invalidation after write failed", zap.String("key", key), zap.Error(err))
	}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

func turnsKey(conversationID string) string {
	return fmt.Sprintf("conversation_turns:%s", conversationID)
}
