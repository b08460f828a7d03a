package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chatsync/internal/domain/model"
)

// MessageRepository — интерфейс для работы с таблицей messages.
type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// ListBySession возвращает сообщения сессии в хронологическом порядке.
	ListBySession(ctx context.Context, sessionID string) ([]*model.Message, error)
	Update(ctx context.Context, id string, patch model.MessagePatch) (*model.Message, error)
	Delete(ctx context.Context, id string) (*model.Message, error)
}

type messageRepo struct {
	db DBTX
}

// NewMessageRepository создаёт репозиторий сообщений.
func NewMessageRepository(db DBTX) MessageRepository {
	return &messageRepo{db: db}
}

const messageColumns = `id, session_id, topic_id, parent_id, role, content, model, provider,
	created_at, updated_at`

func scanMessage(row scanner) (*model.Message, error) {
	m := &model.Message{}
	err := row.Scan(
		&m.ID, &m.SessionID, &m.TopicID, &m.ParentID, &m.Role, &m.Content, &m.Model, &m.Provider,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *messageRepo) Create(ctx context.Context, m *model.Message) error {
	query := `
		INSERT INTO messages (id, session_id, topic_id, parent_id, role, content, model, provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.ID, m.SessionID, m.TopicID, m.ParentID, m.Role, m.Content, m.Model, m.Provider,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сообщение %s", ErrConflict, m.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: сессия или топик сообщения %s", ErrNotFound, m.ID)
		}
		return fmt.Errorf("ошибка создания сообщения: %w", err)
	}
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения сообщения: %w", err)
	}
	return m, nil
}

func (r *messageRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE session_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сообщений: %w", err)
	}
	defer rows.Close()

	var result []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сообщения: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *messageRepo) Update(ctx context.Context, id string, patch model.MessagePatch) (*model.Message, error) {
	query := `
		UPDATE messages
		SET topic_id = COALESCE($2, topic_id),
			content = COALESCE($3, content),
			model = COALESCE($4, model),
			provider = COALESCE($5, provider)
		WHERE id = $1
		RETURNING ` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query,
		id, patch.TopicID, patch.Content, patch.Model, patch.Provider,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: топик сообщения %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ошибка обновления сообщения: %w", err)
	}
	return m, nil
}

func (r *messageRepo) Delete(ctx context.Context, id string) (*model.Message, error) {
	query := `DELETE FROM messages WHERE id = $1 RETURNING ` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления сообщения: %w", err)
	}
	return m, nil
}

// TopicRepository — интерфейс для работы с таблицей topics.
type TopicRepository interface {
	Create(ctx context.Context, t *model.Topic) error
	GetByID(ctx context.Context, id string) (*model.Topic, error)
	Update(ctx context.Context, id string, patch model.TopicPatch) (*model.Topic, error)
	Delete(ctx context.Context, id string) (*model.Topic, error)
}

type topicRepo struct {
	db DBTX
}

// NewTopicRepository создаёт репозиторий топиков.
func NewTopicRepository(db DBTX) TopicRepository {
	return &topicRepo{db: db}
}

const topicColumns = `id, session_id, title, favorite, created_at, updated_at`

func scanTopic(row scanner) (*model.Topic, error) {
	t := &model.Topic{}
	err := row.Scan(&t.ID, &t.SessionID, &t.Title, &t.Favorite, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *topicRepo) Create(ctx context.Context, t *model.Topic) error {
	query := `
		INSERT INTO topics (id, session_id, title, favorite)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, t.ID, t.SessionID, t.Title, t.Favorite).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: топик %s", ErrConflict, t.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: сессия топика %s", ErrNotFound, t.SessionID)
		}
		return fmt.Errorf("ошибка создания топика: %w", err)
	}
	return nil
}

func (r *topicRepo) GetByID(ctx context.Context, id string) (*model.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE id = $1`

	t, err := scanTopic(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения топика: %w", err)
	}
	return t, nil
}

func (r *topicRepo) Update(ctx context.Context, id string, patch model.TopicPatch) (*model.Topic, error) {
	query := `
		UPDATE topics
		SET title = COALESCE($2, title),
			favorite = COALESCE($3, favorite)
		WHERE id = $1
		RETURNING ` + topicColumns

	t, err := scanTopic(r.db.QueryRow(ctx, query, id, patch.Title, patch.Favorite))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления топика: %w", err)
	}
	return t, nil
}

func (r *topicRepo) Delete(ctx context.Context, id string) (*model.Topic, error) {
	query := `DELETE FROM topics WHERE id = $1 RETURNING ` + topicColumns

	t, err := scanTopic(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления топика: %w", err)
	}
	return t, nil
}
