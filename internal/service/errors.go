// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrSyncInProgress — цикл синхронизации уже выполняется.
	ErrSyncInProgress = errors.New("синхронизация уже выполняется")
)

// Reason — причина неуспешного цикла синхронизации.
type Reason string

const (
	// ReasonUnauthenticated — нет текущей сессии пользователя.
	ReasonUnauthenticated Reason = "unauthenticated"
	// ReasonConnectionError — durable store недоступен или соединение потеряно.
	ReasonConnectionError Reason = "connection_error"
	// ReasonUserNotFound — пользователь сессии отсутствует в durable store.
	ReasonUserNotFound Reason = "user_not_found"
	// ReasonLocalWriteError — не удалось записать граф в локальное хранилище.
	ReasonLocalWriteError Reason = "local_write_error"
)

// SyncError — ошибка цикла синхронизации.
type SyncError struct {
	Reason Reason
	RunID  string
	Err    error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("синхронизация %s: %s: %v", e.RunID, e.Reason, e.Err)
	}
	return fmt.Sprintf("синхронизация %s: %s", e.RunID, e.Reason)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// AsSyncError извлекает *SyncError из цепочки ошибок.
func AsSyncError(err error) (*SyncError, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
