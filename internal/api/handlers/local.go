// local.go — обработчики записей локального хранилища.
// Таблица задаётся параметром пути {table}, запись — {id}.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/chatsync/internal/api/errors"
	"github.com/bigkaa/chatsync/internal/localstore"
	"github.com/bigkaa/chatsync/internal/validate"
)

// localListResponse — ответ GET /api/v1/local/{table}.
type localListResponse struct {
	Items  []localstore.Record `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// bulkAddRequest — тело POST /api/v1/local/{table}/bulk.
type bulkAddRequest struct {
	Items           []localstore.Record `json:"items"`
	CreateWithNewID bool                `json:"createWithNewId"`
}

// bulkDeleteRequest — тело POST /api/v1/local/{table}/bulk-delete.
type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// localTable определяет Model по параметру пути {table}.
// При ошибке ответ уже записан.
func (h *APIHandler) localTable(w http.ResponseWriter, r *http.Request) (*localstore.Model[localstore.Record], bool) {
	name, err := pathParam(r, "table")
	if err != nil {
		apierrors.ValidationError(w, "Невалидный параметр table: "+err.Error())
		return nil, false
	}
	m, err := h.catalog.Table(name)
	if err != nil {
		apierrors.NotFound(w, "Неизвестная таблица: "+name)
		return nil, false
	}
	return m, true
}

// ListLocalRecords — GET /api/v1/local/{table}?limit=&offset=.
func (h *APIHandler) ListLocalRecords(w http.ResponseWriter, r *http.Request) {
	m, ok := h.localTable(w, r)
	if !ok {
		return
	}

	var limit, offset *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		apierrors.ValidationError(w, "Невалидный параметр limit: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", r.URL.Query(), &offset); err != nil {
		apierrors.ValidationError(w, "Невалидный параметр offset: "+err.Error())
		return
	}
	l, o := paginationDefaults(limit, offset)

	records, err := m.List(r.Context())
	if err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}

	total := len(records)
	start := min(o, total)
	end := min(start+l, total)
	writeJSON(w, http.StatusOK, localListResponse{
		Items:  records[start:end],
		Total:  total,
		Limit:  l,
		Offset: o,
	})
}

// AddLocalRecord — POST /api/v1/local/{table}.
// Поле id в теле, если задано, становится ключом записи.
func (h *APIHandler) AddLocalRecord(w http.ResponseWriter, r *http.Request) {
	m, ok := h.localTable(w, r)
	if !ok {
		return
	}

	var body localstore.Record
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	var opts []localstore.AddOption
	if id, ok := body[validate.FieldID].(string); ok && id != "" {
		opts = append(opts, localstore.WithID(id))
	}

	id, err := m.Add(r.Context(), body, opts...)
	if err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}

	rec, err := m.Get(r.Context(), id)
	if err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// BulkAddLocalRecords — POST /api/v1/local/{table}/bulk.
func (h *APIHandler) BulkAddLocalRecords(w http.ResponseWriter, r *http.Request) {
	m, ok := h.localTable(w, r)
	if !ok {
		return
	}

	var req bulkAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	result, err := m.BulkAdd(r.Context(), req.Items, localstore.BulkAddOptions{CreateWithNewID: req.CreateWithNewID})
	if err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// BulkDeleteLocalRecords — POST /api/v1/local/{table}/bulk-delete.
func (h *APIHandler) BulkDeleteLocalRecords(w http.ResponseWriter, r *http.Request) {
	m, ok := h.localTable(w, r)
	if !ok {
		return
	}

	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	if err := m.BulkDelete(r.Context(), req.IDs); err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearLocalTable — DELETE /api/v1/local/{table}.
func (h *APIHandler) ClearLocalTable(w http.ResponseWriter, r *http.Request) {
	m, ok := h.localTable(w, r)
	if !ok {
		return
	}

	if err := m.Clear(r.Context()); err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	h.logger.Info("Локальная таблица очищена", slog.String("table", m.Table()))
	w.WriteHeader(http.StatusNoContent)
}

// GetLocalRecord — GET /api/v1/local/{table}/{id}.
func (h *APIHandler) GetLocalRecord(w http.ResponseWriter, r *http.Request) {
	m, id, ok := h.localRecord(w, r)
	if !ok {
		return
	}

	rec, err := m.Get(r.Context(), id)
	if err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateLocalRecord — PATCH /api/v1/local/{table}/{id}.
// Отсутствующая запись — 404.
func (h *APIHandler) UpdateLocalRecord(w http.ResponseWriter, r *http.Request) {
	m, id, ok := h.localRecord(w, r)
	if !ok {
		return
	}

	var patch localstore.Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}

	n, err := m.Update(r.Context(), id, patch)
	if err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	if n == 0 {
		apierrors.NotFound(w, "Запись не найдена: "+id)
		return
	}

	rec, err := m.Get(r.Context(), id)
	if err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteLocalRecord — DELETE /api/v1/local/{table}/{id}. Идемпотентен.
func (h *APIHandler) DeleteLocalRecord(w http.ResponseWriter, r *http.Request) {
	m, id, ok := h.localRecord(w, r)
	if !ok {
		return
	}

	if err := m.Delete(r.Context(), id); err != nil {
		h.writeLocalError(w, m.Table(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) localRecord(w http.ResponseWriter, r *http.Request) (*localstore.Model[localstore.Record], string, bool) {
	m, ok := h.localTable(w, r)
	if !ok {
		return nil, "", false
	}
	id, err := pathParam(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Невалидный параметр id: "+err.Error())
		return nil, "", false
	}
	return m, id, true
}

// writeLocalError преобразует ошибки локального хранилища в HTTP-ответ.
func (h *APIHandler) writeLocalError(w http.ResponseWriter, table string, err error) {
	if ve, ok := validate.AsValidationError(err); ok {
		apierrors.ValidationFields(w, ve.Error(), ve.Fields)
		return
	}

	switch {
	case errors.Is(err, localstore.ErrNotFound):
		apierrors.NotFound(w, "Запись не найдена")
	case errors.Is(err, localstore.ErrUnknownTable):
		apierrors.NotFound(w, "Неизвестная таблица: "+table)
	case errors.Is(err, localstore.ErrConflict):
		apierrors.Conflict(w, "Запись с таким ключом уже существует")
	default:
		h.logger.Error("Ошибка локального хранилища",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка локального хранилища")
	}
}
