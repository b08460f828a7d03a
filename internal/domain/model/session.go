package model

import (
	"encoding/json"
	"time"
)

// Типы сессий.
const (
	SessionTypeAgent = "agent"
	SessionTypeGroup = "group"
)

// Session — сессия чата с агентом или группой агентов.
type Session struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	GroupID         *string         `json:"groupId,omitempty"`
	Type            string          `json:"type"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Avatar          string          `json:"avatar"`
	BackgroundColor string          `json:"backgroundColor"`
	Pinned          bool            `json:"pinned"`
	Config          json.RawMessage `json:"config,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// SessionPatch — частичное обновление сессии.
type SessionPatch struct {
	GroupID         *string         `json:"groupId,omitempty"`
	Title           *string         `json:"title,omitempty"`
	Description     *string         `json:"description,omitempty"`
	Avatar          *string         `json:"avatar,omitempty"`
	BackgroundColor *string         `json:"backgroundColor,omitempty"`
	Pinned          *bool           `json:"pinned,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
}

// SessionGroup — пользовательская группа сессий в списке.
type SessionGroup struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Sort      *int      `json:"sort,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionGroupPatch — частичное обновление группы сессий.
type SessionGroupPatch struct {
	Name *string `json:"name,omitempty"`
	Sort *int    `json:"sort,omitempty"`
}
