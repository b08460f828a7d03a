package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chatsync/internal/domain/model"
)

// PluginRepository — интерфейс для работы с таблицей plugins.
// Ключ записи — identifier.
type PluginRepository interface {
	Create(ctx context.Context, p *model.Plugin) error
	GetByID(ctx context.Context, identifier string) (*model.Plugin, error)
	Update(ctx context.Context, identifier string, patch model.PluginPatch) (*model.Plugin, error)
	Delete(ctx context.Context, identifier string) (*model.Plugin, error)
}

type pluginRepo struct {
	db DBTX
}

// NewPluginRepository создаёт репозиторий плагинов.
func NewPluginRepository(db DBTX) PluginRepository {
	return &pluginRepo{db: db}
}

const pluginColumns = `identifier, user_id, type, manifest, settings, created_at, updated_at`

func scanPlugin(row scanner) (*model.Plugin, error) {
	p := &model.Plugin{}
	var manifest, settings []byte
	err := row.Scan(&p.Identifier, &p.UserID, &p.Type, &manifest, &settings, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Manifest = rawJSON(manifest)
	p.Settings = rawJSON(settings)
	return p, nil
}

func (r *pluginRepo) Create(ctx context.Context, p *model.Plugin) error {
	if p.Type == "" {
		p.Type = model.PluginTypePlugin
	}
	query := `
		INSERT INTO plugins (identifier, user_id, type, manifest, settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.Identifier, p.UserID, p.Type, jsonArg(p.Manifest), jsonArg(p.Settings),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: плагин %s", ErrConflict, p.Identifier)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец плагина %s", ErrNotFound, p.UserID)
		}
		return fmt.Errorf("ошибка создания плагина: %w", err)
	}
	return nil
}

func (r *pluginRepo) GetByID(ctx context.Context, identifier string) (*model.Plugin, error) {
	query := `SELECT ` + pluginColumns + ` FROM plugins WHERE identifier = $1`

	p, err := scanPlugin(r.db.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения плагина: %w", err)
	}
	return p, nil
}

func (r *pluginRepo) Update(ctx context.Context, identifier string, patch model.PluginPatch) (*model.Plugin, error) {
	query := `
		UPDATE plugins
		SET type = COALESCE($2, type),
			manifest = COALESCE($3, manifest),
			settings = COALESCE($4, settings)
		WHERE identifier = $1
		RETURNING ` + pluginColumns

	p, err := scanPlugin(r.db.QueryRow(ctx, query,
		identifier, patch.Type, jsonArg(patch.Manifest), jsonArg(patch.Settings),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления плагина: %w", err)
	}
	return p, nil
}

func (r *pluginRepo) Delete(ctx context.Context, identifier string) (*model.Plugin, error) {
	query := `DELETE FROM plugins WHERE identifier = $1 RETURNING ` + pluginColumns

	p, err := scanPlugin(r.db.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления плагина: %w", err)
	}
	return p, nil
}
