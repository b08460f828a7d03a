package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Resolver определяет текущую сессию для оркестратора синхронизации.
// Источники по порядку: actor в context (HTTP middleware), затем
// bearer-токен из файла сессии.
type Resolver struct {
	verifier  *Verifier
	tokenFile string
	logger    *slog.Logger
}

// NewResolver создаёт Resolver. tokenFile может быть пустым —
// тогда сессия берётся только из context.
func NewResolver(verifier *Verifier, tokenFile string, logger *slog.Logger) *Resolver {
	return &Resolver{
		verifier:  verifier,
		tokenFile: tokenFile,
		logger:    logger.With(slog.String("component", "session_resolver")),
	}
}

// CurrentSession возвращает actor текущей сессии.
// nil, nil — сессии нет (нет токена, токен невалиден или просрочен).
// Ошибка возвращается только при сбое чтения файла токена.
func (r *Resolver) CurrentSession(ctx context.Context) (*Actor, error) {
	if actor := ActorFromContext(ctx); actor != nil {
		return actor, nil
	}

	if r.tokenFile == "" || r.verifier == nil {
		return nil, nil
	}

	data, err := os.ReadFile(r.tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("Файл токена сессии отсутствует", slog.String("path", r.tokenFile))
			return nil, nil
		}
		return nil, fmt.Errorf("чтение файла токена %s: %w", r.tokenFile, err)
	}

	token := strings.TrimSpace(string(data))
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, nil
	}

	actor, err := r.verifier.Verify(ctx, token)
	if err != nil {
		r.logger.Debug("Токен сессии отклонён", slog.String("error", err.Error()))
		return nil, nil
	}
	return actor, nil
}
