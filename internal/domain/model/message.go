package model

import "time"

// Роли сообщений.
const (
	RoleUser      = "user"
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
	RoleTool      = "tool"
)

// Message — сообщение в сессии. TopicID задан, если сообщение
// относится к топику, ParentID — для ответов в ветке.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	TopicID   *string   `json:"topicId,omitempty"`
	ParentID  *string   `json:"parentId,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessagePatch — частичное обновление сообщения.
type MessagePatch struct {
	TopicID  *string `json:"topicId,omitempty"`
	Content  *string `json:"content,omitempty"`
	Model    *string `json:"model,omitempty"`
	Provider *string `json:"provider,omitempty"`
}

// Topic — топик (ветка обсуждения) внутри сессии.
type Topic struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TopicPatch — частичное обновление топика.
type TopicPatch struct {
	Title    *string `json:"title,omitempty"`
	Favorite *bool   `json:"favorite,omitempty"`
}
