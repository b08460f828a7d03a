// Пакет model — доменные модели chatsync.
// Одни и те же структуры используются durable store (PostgreSQL),
// локальным хранилищем (JSON в SQLite) и HTTP API.
package model

import (
	"encoding/json"
	"time"
)

// User — пользователь. В системе предполагается один пользователь
// на экземпляр (single-tenant), см. UserRepository.GetFirst.
type User struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar,omitempty"`
	// Settings — nil, если настройки ещё не сохранялись или были сброшены
	Settings  *Settings `json:"settings,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Settings — пользовательские настройки (таблица user_settings).
// DefaultAgent, LanguageModel и TTS хранятся как произвольный JSON.
type Settings struct {
	ThemeMode     string          `json:"themeMode,omitempty"`
	PrimaryColor  string          `json:"primaryColor,omitempty"`
	NeutralColor  string          `json:"neutralColor,omitempty"`
	FontSize      int             `json:"fontSize,omitempty"`
	Language      string          `json:"language,omitempty"`
	Password      string          `json:"password,omitempty"`
	DefaultAgent  json.RawMessage `json:"defaultAgent,omitempty"`
	LanguageModel json.RawMessage `json:"languageModel,omitempty"`
	TTS           json.RawMessage `json:"tts,omitempty"`
}

// SettingsPatch — частичное обновление настроек.
// Изменяются только поля с non-nil значениями.
type SettingsPatch struct {
	ThemeMode     *string         `json:"themeMode,omitempty"`
	PrimaryColor  *string         `json:"primaryColor,omitempty"`
	NeutralColor  *string         `json:"neutralColor,omitempty"`
	FontSize      *int            `json:"fontSize,omitempty"`
	Language      *string         `json:"language,omitempty"`
	Password      *string         `json:"password,omitempty"`
	DefaultAgent  json.RawMessage `json:"defaultAgent,omitempty"`
	LanguageModel json.RawMessage `json:"languageModel,omitempty"`
	TTS           json.RawMessage `json:"tts,omitempty"`
}

// IsEmpty возвращает true, если патч не содержит ни одного поля.
func (p SettingsPatch) IsEmpty() bool {
	return p.ThemeMode == nil && p.PrimaryColor == nil && p.NeutralColor == nil &&
		p.FontSize == nil && p.Language == nil && p.Password == nil &&
		len(p.DefaultAgent) == 0 && len(p.LanguageModel) == 0 && len(p.TTS) == 0
}

// UserPatch — частичное обновление пользователя.
type UserPatch struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}
