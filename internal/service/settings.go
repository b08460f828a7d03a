// settings.go — настройки и аватар пользователя (single-tenant).
// Изменения пишутся в durable store, затем отражаются в локальном зеркале users.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/localstore"
	"github.com/bigkaa/chatsync/internal/repository"
)

// maxAvatarLength — максимальная длина аватара (URL или data URI).
const maxAvatarLength = 1 << 20

// SettingsService — сервис пользовательских настроек.
type SettingsService struct {
	users  repository.UserRepository
	mirror *localstore.Model[model.User]
	logger *slog.Logger
}

// NewSettingsService создаёт сервис настроек. mirror может быть nil —
// тогда локальное зеркало не обновляется.
func NewSettingsService(
	users repository.UserRepository,
	mirror *localstore.Model[model.User],
	logger *slog.Logger,
) *SettingsService {
	return &SettingsService{
		users:  users,
		mirror: mirror,
		logger: logger.With(slog.String("component", "settings")),
	}
}

// UpdateSettings сохраняет переданные поля настроек первого пользователя.
func (s *SettingsService) UpdateSettings(ctx context.Context, patch model.SettingsPatch) (*model.User, error) {
	if patch.FontSize != nil && (*patch.FontSize < 8 || *patch.FontSize > 72) {
		return nil, fmt.Errorf("%w: fontSize должен быть в диапазоне 8–72", ErrValidation)
	}

	user, err := s.users.UpdateSettings(ctx, patch)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("Настройки пользователя обновлены", slog.String("user_id", user.ID))
	s.reflect(ctx, user)
	return user, nil
}

// ResetSettings сбрасывает настройки и аватар первого пользователя.
func (s *SettingsService) ResetSettings(ctx context.Context) (*model.User, error) {
	if err := s.users.ResetSettings(ctx); err != nil {
		return nil, mapRepoError(err)
	}
	user, err := s.users.GetFirst(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	s.logger.Info("Настройки пользователя сброшены", slog.String("user_id", user.ID))
	s.reflect(ctx, user)
	return user, nil
}

// UpdateAvatar меняет аватар первого пользователя.
func (s *SettingsService) UpdateAvatar(ctx context.Context, avatar string) (*model.User, error) {
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		return nil, fmt.Errorf("%w: avatar не может быть пустым", ErrValidation)
	}
	if len(avatar) > maxAvatarLength {
		return nil, fmt.Errorf("%w: avatar длиннее %d байт", ErrValidation, maxAvatarLength)
	}

	user, err := s.users.UpdateAvatar(ctx, avatar)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.reflect(ctx, user)
	return user, nil
}

// reflect переносит настройки и аватар в локальное зеркало.
// Отсутствие пользователя в зеркале (ещё не синхронизирован) не ошибка.
func (s *SettingsService) reflect(ctx context.Context, user *model.User) {
	if s.mirror == nil {
		return
	}
	n, err := s.mirror.Update(ctx, user.ID, map[string]any{
		"avatar":   user.Avatar,
		"settings": user.Settings,
	})
	if err != nil {
		s.logger.Warn("Ошибка обновления локального зеркала пользователя",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if n == 0 {
		s.logger.Debug("Пользователь отсутствует в локальном зеркале", slog.String("user_id", user.ID))
	}
}

// mapRepoError преобразует ошибки репозитория в ошибки сервиса.
func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrEmptySettings):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
