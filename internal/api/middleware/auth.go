// auth.go — JWT middleware аутентификации HTTP API chatsync.
// Проверяет Bearer token через auth.Verifier (JWKS) и помещает
// auth.Actor в контекст запроса. Оттуда его берёт auth.Resolver
// при запуске синхронизации из HTTP-запроса.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/chatsync/internal/api/errors"
	"github.com/bigkaa/chatsync/internal/auth"
)

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	verifier *auth.Verifier
	logger   *slog.Logger
}

// NewJWTAuth создаёт JWT middleware поверх verifier.
func NewJWTAuth(verifier *auth.Verifier, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, проверяет подпись и claims, помещает Actor в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			actor, err := j.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// WithExclusions оборачивает Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func (j *JWTAuth) WithExclusions(excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := j.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}
