package model

import "time"

// UserGraph — полный граф пользователя из durable store:
// пользователь с настройками и сессии с сообщениями и топиками.
type UserGraph struct {
	User     User
	Sessions []SessionGraph
}

// SessionGraph — сессия вместе с вложенными сообщениями и топиками.
type SessionGraph struct {
	Session  Session
	Messages []Message
	Topics   []Topic
}

// Counts возвращает количество записей графа по локальным таблицам.
func (g *UserGraph) Counts() map[string]int {
	counts := map[string]int{
		"users":    1,
		"sessions": len(g.Sessions),
		"messages": 0,
		"topics":   0,
	}
	for _, s := range g.Sessions {
		counts["messages"] += len(s.Messages)
		counts["topics"] += len(s.Topics)
	}
	return counts
}

// SyncState — состояние последней синхронизации, хранится в локальном
// хранилище (таблица sync_state, одна строка).
type SyncState struct {
	// RunID — UUID последнего цикла
	RunID string `json:"runId"`
	// ActorID — пользователь, чей граф был загружен
	ActorID string `json:"actorId"`
	// Status — итоговый статус (synced, failed)
	Status string `json:"status"`
	// Reason — причина ошибки для failed
	Reason string `json:"reason,omitempty"`
	// Records — количество записей по таблицам
	Records map[string]int `json:"records,omitempty"`
	// SyncedAt — время завершения цикла
	SyncedAt time.Time `json:"syncedAt"`
}
