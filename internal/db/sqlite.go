package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/pad-chat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    title TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner);

CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    user_response TEXT,
    ai_response TEXT,
    timestamp TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, timestamp);`

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway; one connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO conversations (id, owner, title, created_at)
        VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Owner, conv.Title, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
        SELECT id, owner, title, created_at
        FROM conversations
        WHERE id = ?`, id).Scan(&conv.ID, &conv.Owner, &conv.Title, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, owner string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, owner, title, created_at
        FROM conversations
        WHERE owner = ?
        ORDER BY created_at ASC, rowid ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Owner, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) TitleExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM conversations WHERE title = ?)", title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check title: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, conversationID string, role models.Role, content string) (*models.Turn, error) {
	user, ai, err := turnColumns(role, content)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM conversations WHERE id = ?)", conversationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if !exists {
		return nil, models.ErrNotFound
	}

	turn := &models.Turn{
		ConversationID: conversationID,
		UserResponse:   user,
		AIResponse:     ai,
		Timestamp:      s.now().UTC(),
	}
	res, err := tx.ExecContext(ctx, `
        INSERT INTO turns (conversation_id, user_response, ai_response, timestamp)
        VALUES (?, ?, ?, ?)`,
		conversationID, user, ai, turn.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to save turn: %w", err)
	}
	if turn.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}

	return turn, tx.Commit()
}

func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, conversation_id, user_response, ai_response, timestamp
        FROM turns
        WHERE conversation_id = ?
        ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var (
			turn     models.Turn
			user, ai sql.NullString
		)
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &user, &ai, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if user.Valid {
			turn.UserResponse = &user.String
		}
		if ai.Valid {
			turn.AIResponse = &ai.String
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) ClearTurns(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
