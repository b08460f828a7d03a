package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chatsync/internal/domain/model"
)

// UserRepository — интерфейс для таблиц users и user_settings.
type UserRepository interface {
	// Create создаёт пользователя (id задаёт вызывающий).
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя с настройками или nil, nil.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetFirst возвращает первого пользователя (single-tenant) или nil, nil.
	GetFirst(ctx context.Context) (*model.User, error)
	// Update применяет частичное обновление и возвращает полную запись.
	Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	// Delete удаляет пользователя и возвращает снимок до удаления.
	Delete(ctx context.Context, id string) (*model.User, error)
	// UpdateSettings сохраняет переданные поля настроек первого пользователя.
	UpdateSettings(ctx context.Context, patch model.SettingsPatch) (*model.User, error)
	// ResetSettings сбрасывает аватар и настройки первого пользователя.
	ResetSettings(ctx context.Context) error
	// UpdateAvatar меняет аватар первого пользователя.
	UpdateAvatar(ctx context.Context, avatar string) (*model.User, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

// userColumns — колонки пользователя вместе с настройками (LEFT JOIN user_settings s).
const userColumns = `
	u.id, u.name, u.email, u.avatar, u.created_at, u.updated_at,
	s.user_id IS NOT NULL, s.theme_mode, s.primary_color, s.neutral_color, s.font_size,
	s.language, s.password, s.default_agent, s.language_model, s.tts`

// firstUserID — подзапрос «первый пользователь».
const firstUserID = `(SELECT id FROM users ORDER BY created_at, id LIMIT 1)`

func scanUser(row scanner) (*model.User, error) {
	u := &model.User{}
	var hasSettings bool
	var themeMode, primary, neutral, language, password *string
	var fontSize *int
	var defaultAgent, languageModel, tts []byte
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Avatar, &u.CreatedAt, &u.UpdatedAt,
		&hasSettings, &themeMode, &primary, &neutral, &fontSize,
		&language, &password, &defaultAgent, &languageModel, &tts,
	)
	if err != nil {
		return nil, err
	}

	if hasSettings {
		u.Settings = &model.Settings{
			ThemeMode:     deref(themeMode),
			PrimaryColor:  deref(primary),
			NeutralColor:  deref(neutral),
			Language:      deref(language),
			Password:      deref(password),
			DefaultAgent:  rawJSON(defaultAgent),
			LanguageModel: rawJSON(languageModel),
			TTS:           rawJSON(tts),
		}
		if fontSize != nil {
			u.Settings.FontSize = *fontSize
		}
	}
	return u, nil
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, name, email, avatar)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, u.ID, u.Name, u.Email, u.Avatar).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь %s", ErrConflict, u.ID)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN user_settings s ON s.user_id = u.id
		WHERE u.id = $1`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetFirst(ctx context.Context) (*model.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN user_settings s ON s.user_id = u.id
		ORDER BY u.created_at, u.id
		LIMIT 1`

	u, err := scanUser(r.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения первого пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	query := `
		UPDATE users
		SET name = COALESCE($2, name),
			email = COALESCE($3, email),
			avatar = COALESCE($4, avatar)
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, patch.Name, patch.Email, patch.Avatar)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.mustGet(ctx, id)
}

func (r *userRepo) Delete(ctx context.Context, id string) (*model.User, error) {
	// CTE видят состояние до удаления: настройки попадают в снимок,
	// хотя удаляются каскадом.
	query := `
		WITH s AS (
			SELECT * FROM user_settings WHERE user_id = $1
		), u AS (
			DELETE FROM users WHERE id = $1 RETURNING *
		)
		SELECT ` + userColumns + `
		FROM u
		LEFT JOIN s ON s.user_id = u.id`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) UpdateSettings(ctx context.Context, patch model.SettingsPatch) (*model.User, error) {
	user, err := r.GetFirst(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: пользователь не найден", ErrNotFound)
	}
	if patch.IsEmpty() {
		return nil, ErrEmptySettings
	}

	query := `
		INSERT INTO user_settings (user_id, theme_mode, primary_color, neutral_color, font_size,
			language, password, default_agent, language_model, tts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			theme_mode = COALESCE(EXCLUDED.theme_mode, user_settings.theme_mode),
			primary_color = COALESCE(EXCLUDED.primary_color, user_settings.primary_color),
			neutral_color = COALESCE(EXCLUDED.neutral_color, user_settings.neutral_color),
			font_size = COALESCE(EXCLUDED.font_size, user_settings.font_size),
			language = COALESCE(EXCLUDED.language, user_settings.language),
			password = COALESCE(EXCLUDED.password, user_settings.password),
			default_agent = COALESCE(EXCLUDED.default_agent, user_settings.default_agent),
			language_model = COALESCE(EXCLUDED.language_model, user_settings.language_model),
			tts = COALESCE(EXCLUDED.tts, user_settings.tts)`

	_, err = r.db.Exec(ctx, query,
		user.ID, patch.ThemeMode, patch.PrimaryColor, patch.NeutralColor, patch.FontSize,
		patch.Language, patch.Password,
		jsonArg(patch.DefaultAgent), jsonArg(patch.LanguageModel), jsonArg(patch.TTS),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения настроек: %w", err)
	}
	return r.mustGet(ctx, user.ID)
}

func (r *userRepo) ResetSettings(ctx context.Context) error {
	// Один оператор: удаление настроек и сброс аватара первого пользователя.
	query := `
		WITH target AS (
			SELECT id FROM users ORDER BY created_at, id LIMIT 1
		), cleared AS (
			DELETE FROM user_settings WHERE user_id IN (SELECT id FROM target)
		)
		UPDATE users SET avatar = NULL
		WHERE id IN (SELECT id FROM target)`

	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("ошибка сброса настроек: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: пользователь не найден", ErrNotFound)
	}
	return nil
}

func (r *userRepo) UpdateAvatar(ctx context.Context, avatar string) (*model.User, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`UPDATE users SET avatar = $1 WHERE id = `+firstUserID+` RETURNING id`, avatar,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: пользователь не найден", ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка обновления аватара: %w", err)
	}
	return r.mustGet(ctx, id)
}

// mustGet перечитывает запись после изменения; отсутствие — ErrNotFound.
func (r *userRepo) mustGet(ctx context.Context, id string) (*model.User, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
