// sync.go — обработчики запуска и статуса синхронизации.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/chatsync/internal/api/errors"
	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/service"
)

// syncResultResponse — итог цикла синхронизации в ответе API.
type syncResultResponse struct {
	RunID       types.UUID     `json:"runId"`
	ActorID     string         `json:"actorId,omitempty"`
	State       string         `json:"state"`
	Reason      string         `json:"reason,omitempty"`
	Records     map[string]int `json:"records,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
}

// syncStatusResponse — ответ GET /api/v1/sync/status.
type syncStatusResponse struct {
	State      string              `json:"state"`
	ChangedAt  time.Time           `json:"changedAt"`
	LastResult *syncResultResponse `json:"lastResult"`
	Persisted  *model.SyncState    `json:"persisted,omitempty"`
}

func syncResultToResponse(r *service.SyncResult) *syncResultResponse {
	if r == nil {
		return nil
	}
	runID, _ := uuid.Parse(r.RunID)
	return &syncResultResponse{
		RunID:       runID,
		ActorID:     r.ActorID,
		State:       string(r.State),
		Reason:      string(r.Reason),
		Records:     r.Records,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// StartSync — POST /api/v1/sync. Выполняет один цикл для текущего пользователя.
func (h *APIHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Start(r.Context(), service.StartParams{})
	if err != nil {
		h.writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResultToResponse(result))
}

// GetSyncStatus — GET /api/v1/sync/status.
func (h *APIHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения статуса синхронизации", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статуса синхронизации")
		return
	}

	writeJSON(w, http.StatusOK, syncStatusResponse{
		State:      string(status.State),
		ChangedAt:  status.ChangedAt,
		LastResult: syncResultToResponse(status.LastResult),
		Persisted:  status.Persisted,
	})
}

func (h *APIHandler) writeSyncError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrSyncInProgress) {
		apierrors.SyncInProgress(w, "Синхронизация уже выполняется")
		return
	}

	syncErr, ok := service.AsSyncError(err)
	if !ok {
		h.logger.Error("Ошибка синхронизации", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка синхронизации")
		return
	}

	switch syncErr.Reason {
	case service.ReasonUnauthenticated:
		apierrors.Unauthorized(w, "Нет активной сессии пользователя")
	case service.ReasonConnectionError:
		apierrors.ConnectionError(w, "Durable store недоступен")
	case service.ReasonUserNotFound:
		apierrors.NotFound(w, "Пользователь сессии отсутствует в durable store")
	default:
		apierrors.InternalError(w, "Ошибка записи в локальное хранилище")
	}
}
