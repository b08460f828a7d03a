package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chatsync/internal/domain/model"
)

// SessionRepository — интерфейс для работы с таблицей sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// ListByUser возвращает сессии пользователя в порядке создания.
	ListByUser(ctx context.Context, userID string) ([]*model.Session, error)
	Update(ctx context.Context, id string, patch model.SessionPatch) (*model.Session, error)
	Delete(ctx context.Context, id string) (*model.Session, error)
}

type sessionRepo struct {
	db DBTX
}

// NewSessionRepository создаёт репозиторий сессий.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepo{db: db}
}

const sessionColumns = `id, user_id, group_id, type, title, description, avatar,
	background_color, pinned, config, created_at, updated_at`

func scanSession(row scanner) (*model.Session, error) {
	s := &model.Session{}
	var config []byte
	err := row.Scan(
		&s.ID, &s.UserID, &s.GroupID, &s.Type, &s.Title, &s.Description, &s.Avatar,
		&s.BackgroundColor, &s.Pinned, &config, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Config = rawJSON(config)
	return s, nil
}

func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	if s.Type == "" {
		s.Type = model.SessionTypeAgent
	}
	query := `
		INSERT INTO sessions (id, user_id, group_id, type, title, description, avatar,
			background_color, pinned, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.UserID, s.GroupID, s.Type, s.Title, s.Description, s.Avatar,
		s.BackgroundColor, s.Pinned, jsonArg(s.Config),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сессия %s", ErrConflict, s.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец сессии %s", ErrNotFound, s.UserID)
		}
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения сессии: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сессий: %w", err)
	}
	defer rows.Close()

	var result []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сессии: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *sessionRepo) Update(ctx context.Context, id string, patch model.SessionPatch) (*model.Session, error) {
	query := `
		UPDATE sessions
		SET group_id = COALESCE($2, group_id),
			title = COALESCE($3, title),
			description = COALESCE($4, description),
			avatar = COALESCE($5, avatar),
			background_color = COALESCE($6, background_color),
			pinned = COALESCE($7, pinned),
			config = COALESCE($8, config)
		WHERE id = $1
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query,
		id, patch.GroupID, patch.Title, patch.Description, patch.Avatar,
		patch.BackgroundColor, patch.Pinned, jsonArg(patch.Config),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления сессии: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) (*model.Session, error) {
	query := `DELETE FROM sessions WHERE id = $1 RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления сессии: %w", err)
	}
	return s, nil
}

// SessionGroupRepository — интерфейс для работы с таблицей session_groups.
type SessionGroupRepository interface {
	Create(ctx context.Context, g *model.SessionGroup) error
	GetByID(ctx context.Context, id string) (*model.SessionGroup, error)
	Update(ctx context.Context, id string, patch model.SessionGroupPatch) (*model.SessionGroup, error)
	Delete(ctx context.Context, id string) (*model.SessionGroup, error)
}

type sessionGroupRepo struct {
	db DBTX
}

// NewSessionGroupRepository создаёт репозиторий групп сессий.
func NewSessionGroupRepository(db DBTX) SessionGroupRepository {
	return &sessionGroupRepo{db: db}
}

const sessionGroupColumns = `id, user_id, name, sort, created_at, updated_at`

func scanSessionGroup(row scanner) (*model.SessionGroup, error) {
	g := &model.SessionGroup{}
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Sort, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *sessionGroupRepo) Create(ctx context.Context, g *model.SessionGroup) error {
	query := `
		INSERT INTO session_groups (id, user_id, name, sort)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, g.ID, g.UserID, g.Name, g.Sort).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: группа сессий %s", ErrConflict, g.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец группы %s", ErrNotFound, g.UserID)
		}
		return fmt.Errorf("ошибка создания группы сессий: %w", err)
	}
	return nil
}

func (r *sessionGroupRepo) GetByID(ctx context.Context, id string) (*model.SessionGroup, error) {
	query := `SELECT ` + sessionGroupColumns + ` FROM session_groups WHERE id = $1`

	g, err := scanSessionGroup(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения группы сессий: %w", err)
	}
	return g, nil
}

func (r *sessionGroupRepo) Update(ctx context.Context, id string, patch model.SessionGroupPatch) (*model.SessionGroup, error) {
	query := `
		UPDATE session_groups
		SET name = COALESCE($2, name),
			sort = COALESCE($3, sort)
		WHERE id = $1
		RETURNING ` + sessionGroupColumns

	g, err := scanSessionGroup(r.db.QueryRow(ctx, query, id, patch.Name, patch.Sort))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления группы сессий: %w", err)
	}
	return g, nil
}

func (r *sessionGroupRepo) Delete(ctx context.Context, id string) (*model.SessionGroup, error) {
	query := `DELETE FROM session_groups WHERE id = $1 RETURNING ` + sessionGroupColumns

	g, err := scanSessionGroup(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления группы сессий: %w", err)
	}
	return g, nil
}
