package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RichardoC/pad-chat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type conversationModel struct {
	ID        string      `gorm:"primaryKey;size:36;column:id"`
	Owner     string      `gorm:"index:idx_conversations_owner;size:128;not null;column:owner"`
	Title     string      `gorm:"uniqueIndex:idx_conversations_title;size:255;not null;column:title"`
	CreatedAt time.Time   `gorm:"not null;column:created_at"`
	Turns     []turnModel `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (conversationModel) TableName() string { return "conversations" }

func (m *conversationModel) toDomain() *models.Conversation {
	return &models.Conversation{
		ID:        m.ID,
		Owner:     m.Owner,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
	}
}

type turnModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ConversationID string    `gorm:"index:idx_turns_conversation;size:36;not null;column:conversation_id"`
	UserResponse   *string   `gorm:"type:text;column:user_response"`
	AIResponse     *string   `gorm:"type:text;column:ai_response"`
	Timestamp      time.Time `gorm:"index:idx_turns_conversation;not null;column:timestamp"`
}

func (turnModel) TableName() string { return "turns" }

func (m *turnModel) toDomain() models.Turn {
	return models.Turn{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserResponse:   m.UserResponse,
		AIResponse:     m.AIResponse,
		Timestamp:      m.Timestamp,
	}
}

// GormStore backs the conversation tables with gorm, normally on postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time

	mu          sync.Mutex
	lastCreated time.Time
}

func NewPostgres(dsn string) (*GormStore, error) {
	return NewGorm(postgres.Open(dsn))
}

func NewGorm(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&conversationModel{}, &turnModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

func (s *GormStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now()
	}
	conv.CreatedAt = s.nextCreatedAt(conv.CreatedAt)
	m := &conversationModel{
		ID:        conv.ID,
		Owner:     conv.Owner,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// nextCreatedAt keeps creation timestamps strictly increasing at postgres
// precision, so created_at alone orders conversations made by this store.
func (s *GormStore) nextCreatedAt(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.UTC().Truncate(time.Microsecond)
	if !t.After(s.lastCreated) {
		t = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = t
	return t
}

func (s *GormStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var m conversationModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return m.toDomain(), nil
}

func (s *GormStore) ListConversations(ctx context.Context, owner string) ([]models.Conversation, error) {
	var rows []conversationModel
	if err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at asc").
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	conversations := make([]models.Conversation, len(rows))
	for i := range rows {
		conversations[i] = *rows[i].toDomain()
	}
	return conversations, nil
}

func (s *GormStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res := s.db.WithContext(ctx).
		Model(&conversationModel{}).
		Where("id = ?", id).
		Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *GormStore) TitleExists(ctx context.Context, title string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&conversationModel{}).
		Where("title = ?", title).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check title: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) AppendTurn(ctx context.Context, conversationID string, role models.Role, content string) (*models.Turn, error) {
	user, ai, err := turnColumns(role, content)
	if err != nil {
		return nil, err
	}

	m := &turnModel{
		ConversationID: conversationID,
		UserResponse:   user,
		AIResponse:     ai,
		Timestamp:      s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&conversationModel{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up conversation: %w", err)
		}
		if count == 0 {
			return models.ErrNotFound
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to save turn: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	turn := m.toDomain()
	return &turn, nil
}

func (s *GormStore) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	var rows []turnModel
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp asc").
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	turns := make([]models.Turn, len(rows))
	for i := range rows {
		turns[i] = rows[i].toDomain()
	}
	return turns, nil
}

func (s *GormStore) ClearTurns(ctx context.Context, conversationID string) error {
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&turnModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
