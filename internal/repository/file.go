package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chatsync/internal/domain/model"
)

// FileRepository — интерфейс для работы с метаданными файлов.
type FileRepository interface {
	Create(ctx context.Context, f *model.File) error
	GetByID(ctx context.Context, id string) (*model.File, error)
	Update(ctx context.Context, id string, patch model.FilePatch) (*model.File, error)
	Delete(ctx context.Context, id string) (*model.File, error)
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

const fileColumns = `id, user_id, name, file_type, size, url, created_at, updated_at`

func scanFile(row scanner) (*model.File, error) {
	f := &model.File{}
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.FileType, &f.Size, &f.URL, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (id, user_id, name, file_type, size, url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.UserID, f.Name, f.FileType, f.Size, f.URL,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s", ErrConflict, f.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец файла %s", ErrNotFound, f.UserID)
		}
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) Update(ctx context.Context, id string, patch model.FilePatch) (*model.File, error) {
	query := `
		UPDATE files
		SET name = COALESCE($2, name),
			file_type = COALESCE($3, file_type),
			url = COALESCE($4, url)
		WHERE id = $1
		RETURNING ` + fileColumns

	f, err := scanFile(r.db.QueryRow(ctx, query, id, patch.Name, patch.FileType, patch.URL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) Delete(ctx context.Context, id string) (*model.File, error) {
	query := `DELETE FROM files WHERE id = $1 RETURNING ` + fileColumns

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления файла: %w", err)
	}
	return f, nil
}
