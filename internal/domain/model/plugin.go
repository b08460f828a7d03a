package model

import (
	"encoding/json"
	"time"
)

// Типы плагинов.
const (
	PluginTypePlugin       = "plugin"
	PluginTypeCustomPlugin = "customPlugin"
)

// Plugin — установленный плагин. Естественный ключ — Identifier.
type Plugin struct {
	Identifier string          `json:"identifier"`
	UserID     string          `json:"userId"`
	Type       string          `json:"type"`
	Manifest   json.RawMessage `json:"manifest,omitempty"`
	Settings   json.RawMessage `json:"settings,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// PluginPatch — частичное обновление плагина.
type PluginPatch struct {
	Type     *string         `json:"type,omitempty"`
	Manifest json.RawMessage `json:"manifest,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// File — метаданные загруженного файла.
type File struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	FileType  string    `json:"fileType"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FilePatch — частичное обновление метаданных файла.
type FilePatch struct {
	Name     *string `json:"name,omitempty"`
	FileType *string `json:"fileType,omitempty"`
	URL      *string `json:"url,omitempty"`
}
