package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/sync", "/api/v1/sync"},
		{"/api/v1/user/settings", "/api/v1/user/settings"},
		{"/api/v1/local/messages", "/api/v1/local/messages"},
		{"/api/v1/local/messages/", "/api/v1/local/messages"},
		{"/api/v1/local/messages/V1StGXR8_Z5jdHi6B-myT", "/api/v1/local/messages/{id}"},
		{"/api/v1/local/plugins/bulk", "/api/v1/local/plugins/bulk"},
		{"/api/v1/local/plugins/bulk-delete", "/api/v1/local/plugins/bulk-delete"},
		{"/api/v1/local/unknown/abc", "/api/v1/local/{table}/{id}"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetricsMiddleware_PassesStatus(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/local/users/u1", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("ожидался статус 418, получен %d", rec.Code)
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"успех", "/api/v1/sync", http.StatusOK, "level=INFO"},
		{"ошибка клиента", "/api/v1/sync", http.StatusUnauthorized, "level=WARN"},
		{"ошибка сервера", "/api/v1/sync", http.StatusBadGateway, "level=ERROR"},
		{"probe", "/health/live", http.StatusOK, "level=DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("ожидался %s в логе: %s", tt.want, out)
			}
			if !strings.Contains(out, "bytes=2") {
				t.Errorf("ожидался размер ответа в логе: %s", out)
			}
		})
	}
}
