// metrics.go — Prometheus HTTP метрики chatsync.
// Регистрирует метрики: chatsync_http_requests_total, chatsync_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/chatsync/internal/localstore"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "Общее количество HTTP-запросов к chatsync",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к chatsync в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем ключи записей на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет ключи записей на {id} для предотвращения
// взрывного роста кардинальности метрик. Имя таблицы сохраняется,
// неизвестные таблицы сводятся к {table}.
// /api/v1/local/messages/V1StGXR8_Z5jdHi6B-myT → /api/v1/local/messages/{id}
func normalizePath(path string) string {
	const localPrefix = "/api/v1/local/"

	if !strings.HasPrefix(path, localPrefix) {
		return path
	}

	parts := strings.SplitN(strings.TrimPrefix(path, localPrefix), "/", 2)
	table := parts[0]
	if _, ok := localstore.LookupTable(table); !ok {
		table = "{table}"
	}
	result := localPrefix + table
	if len(parts) == 1 || parts[1] == "" {
		return result
	}

	switch parts[1] {
	case "bulk", "bulk-delete":
		return result + "/" + parts[1]
	default:
		return result + "/{id}"
	}
}
