// settings.go — обработчики настроек и аватара пользователя.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/chatsync/internal/api/errors"
	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/service"
)

// updateAvatarRequest — тело PUT /api/v1/user/avatar.
type updateAvatarRequest struct {
	Avatar string `json:"avatar"`
}

// UpdateUserSettings — PATCH /api/v1/user/settings.
func (h *APIHandler) UpdateUserSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	user, err := h.settings.UpdateSettings(r.Context(), patch)
	if err != nil {
		h.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ResetUserSettings — DELETE /api/v1/user/settings.
func (h *APIHandler) ResetUserSettings(w http.ResponseWriter, r *http.Request) {
	user, err := h.settings.ResetSettings(r.Context())
	if err != nil {
		h.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUserAvatar — PUT /api/v1/user/avatar.
func (h *APIHandler) UpdateUserAvatar(w http.ResponseWriter, r *http.Request) {
	var req updateAvatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	user, err := h.settings.UpdateAvatar(r.Context(), req.Avatar)
	if err != nil {
		h.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Пользователь не найден")
	default:
		h.logger.Error("Ошибка изменения настроек", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
