package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry of a conversation as replayed to a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Turn is one persisted row of a conversation. Only one of UserResponse and
// AIResponse is set in normal operation.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation"`
	UserResponse   *string   `json:"user_response"`
	AIResponse     *string   `json:"ai_response"`
	Timestamp      time.Time `json:"timestamp"`
}

// Messages expands the turn into its messages, user half first.
func (t Turn) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if t.UserResponse != nil && *t.UserResponse != "" {
		msgs = append(msgs, UserMessage(*t.UserResponse))
	}
	if t.AIResponse != nil && *t.AIResponse != "" {
		msgs = append(msgs, AssistantMessage(*t.AIResponse))
	}
	return msgs
}

type Conversation struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
