// handler.go — основной обработчик API chatsync.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/localstore"
	"github.com/bigkaa/chatsync/internal/service"
)

// SyncService — оркестратор синхронизации (реализуется service.DataSyncService).
type SyncService interface {
	Start(ctx context.Context, p service.StartParams) (*service.SyncResult, error)
	Status(ctx context.Context) (*service.SyncStatus, error)
}

// SettingsService — настройки пользователя (реализуется service.SettingsService).
type SettingsService interface {
	UpdateSettings(ctx context.Context, patch model.SettingsPatch) (*model.User, error)
	ResetSettings(ctx context.Context) (*model.User, error)
	UpdateAvatar(ctx context.Context, avatar string) (*model.User, error)
}

// APIHandler — основной обработчик API chatsync.
type APIHandler struct {
	health   *HealthHandler
	sync     SyncService
	settings SettingsService
	catalog  *localstore.Catalog
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	sync SyncService,
	settings SettingsService,
	catalog *localstore.Catalog,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		sync:     sync,
		settings: settings,
		catalog:  catalog,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует все маршруты API в router.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync", h.StartSync)
		r.Get("/sync/status", h.GetSyncStatus)

		r.Route("/local/{table}", func(r chi.Router) {
			r.Get("/", h.ListLocalRecords)
			r.Post("/", h.AddLocalRecord)
			r.Delete("/", h.ClearLocalTable)
			r.Post("/bulk", h.BulkAddLocalRecords)
			r.Post("/bulk-delete", h.BulkDeleteLocalRecords)
			r.Get("/{id}", h.GetLocalRecord)
			r.Patch("/{id}", h.UpdateLocalRecord)
			r.Delete("/{id}", h.DeleteLocalRecord)
		})

		r.Patch("/user/settings", h.UpdateUserSettings)
		r.Delete("/user/settings", h.ResetUserSettings)
		r.Put("/user/avatar", h.UpdateUserAvatar)
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// pathParam извлекает обязательный строковый параметр пути.
func pathParam(r *http.Request, name string) (string, error) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	return v, err
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
