package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/localstore"
	"github.com/bigkaa/chatsync/internal/repository"
)

// mockUserRepo — мок UserRepository с функциональными полями.
type mockUserRepo struct {
	repository.UserRepository
	getFirstFn       func(ctx context.Context) (*model.User, error)
	updateSettingsFn func(ctx context.Context, patch model.SettingsPatch) (*model.User, error)
	resetSettingsFn  func(ctx context.Context) error
	updateAvatarFn   func(ctx context.Context, avatar string) (*model.User, error)
}

func (m *mockUserRepo) GetFirst(ctx context.Context) (*model.User, error) {
	return m.getFirstFn(ctx)
}

func (m *mockUserRepo) UpdateSettings(ctx context.Context, patch model.SettingsPatch) (*model.User, error) {
	return m.updateSettingsFn(ctx, patch)
}

func (m *mockUserRepo) ResetSettings(ctx context.Context) error {
	return m.resetSettingsFn(ctx)
}

func (m *mockUserRepo) UpdateAvatar(ctx context.Context, avatar string) (*model.User, error) {
	return m.updateAvatarFn(ctx, avatar)
}

func strPtr(s string) *string { return &s }

func mirrorWithUser(t *testing.T, id string) *localstore.Model[model.User] {
	t.Helper()
	users, err := localstore.For[model.User](openLocal(t), localstore.TableUsers)
	if err != nil {
		t.Fatalf("For(users) ошибка: %v", err)
	}
	if _, err := users.Add(context.Background(), map[string]any{"email": "a@b.c"}, localstore.WithID(id)); err != nil {
		t.Fatalf("Add() ошибка: %v", err)
	}
	return users
}

func TestUpdateSettings_ReflectsToMirror(t *testing.T) {
	mirror := mirrorWithUser(t, "u1")
	repo := &mockUserRepo{
		updateSettingsFn: func(_ context.Context, patch model.SettingsPatch) (*model.User, error) {
			return &model.User{ID: "u1", Settings: &model.Settings{ThemeMode: *patch.ThemeMode}}, nil
		},
	}
	svc := NewSettingsService(repo, mirror, testLogger())

	user, err := svc.UpdateSettings(context.Background(), model.SettingsPatch{ThemeMode: strPtr("dark")})
	if err != nil {
		t.Fatalf("UpdateSettings() ошибка: %v", err)
	}
	if user.Settings.ThemeMode != "dark" {
		t.Errorf("ThemeMode = %q", user.Settings.ThemeMode)
	}

	local, err := mirror.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if local.Settings == nil || local.Settings.ThemeMode != "dark" {
		t.Errorf("зеркало не обновлено: %+v", local.Settings)
	}
}

func TestUpdateSettings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		patch   model.SettingsPatch
		repoErr error
		want    error
	}{
		{"нет пользователя", model.SettingsPatch{ThemeMode: strPtr("dark")}, repository.ErrNotFound, ErrNotFound},
		{"пустой патч", model.SettingsPatch{}, repository.ErrEmptySettings, ErrValidation},
		{"fontSize вне диапазона", model.SettingsPatch{FontSize: func() *int { v := 200; return &v }()}, nil, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockUserRepo{
				updateSettingsFn: func(context.Context, model.SettingsPatch) (*model.User, error) {
					if tt.repoErr == nil {
						t.Fatal("репозиторий не должен вызываться")
					}
					return nil, tt.repoErr
				},
			}
			svc := NewSettingsService(repo, nil, testLogger())

			_, err := svc.UpdateSettings(context.Background(), tt.patch)
			if !errors.Is(err, tt.want) {
				t.Errorf("ожидалась %v, получено %v", tt.want, err)
			}
		})
	}
}

func TestResetSettings(t *testing.T) {
	mirror := mirrorWithUser(t, "u1")
	if _, err := mirror.Update(context.Background(), "u1", map[string]any{
		"avatar":   "x.png",
		"settings": map[string]any{"themeMode": "dark"},
	}); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}

	repo := &mockUserRepo{
		resetSettingsFn: func(context.Context) error { return nil },
		getFirstFn: func(context.Context) (*model.User, error) {
			return &model.User{ID: "u1"}, nil
		},
	}
	svc := NewSettingsService(repo, mirror, testLogger())

	if _, err := svc.ResetSettings(context.Background()); err != nil {
		t.Fatalf("ResetSettings() ошибка: %v", err)
	}

	local, _ := mirror.Get(context.Background(), "u1")
	if local.Avatar != nil || local.Settings != nil {
		t.Errorf("зеркало не сброшено: avatar=%v settings=%+v", local.Avatar, local.Settings)
	}

	repo.resetSettingsFn = func(context.Context) error { return repository.ErrNotFound }
	if _, err := svc.ResetSettings(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestUpdateAvatar(t *testing.T) {
	repo := &mockUserRepo{
		updateAvatarFn: func(_ context.Context, avatar string) (*model.User, error) {
			return &model.User{ID: "u1", Avatar: &avatar}, nil
		},
	}
	svc := NewSettingsService(repo, nil, testLogger())

	user, err := svc.UpdateAvatar(context.Background(), "  https://cdn.example.com/a.png ")
	if err != nil {
		t.Fatalf("UpdateAvatar() ошибка: %v", err)
	}
	if *user.Avatar != "https://cdn.example.com/a.png" {
		t.Errorf("Avatar = %q", *user.Avatar)
	}

	if _, err := svc.UpdateAvatar(context.Background(), "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("пустой avatar: ожидалась ErrValidation, получено %v", err)
	}
}
