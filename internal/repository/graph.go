package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/chatsync/internal/domain/model"
)

// TxBeginner — источник транзакций с опциями (реализуется *pgxpool.Pool и *pgx.Conn).
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// GraphRepository — чтение полного графа пользователя для синхронизации.
type GraphRepository interface {
	// FetchUserGraph возвращает пользователя с настройками и все его сессии
	// с сообщениями и топиками. Отсутствующий пользователь — nil, nil.
	FetchUserGraph(ctx context.Context, userID string) (*model.UserGraph, error)
}

type graphRepo struct {
	db TxBeginner
}

// NewGraphRepository создаёт репозиторий графа.
func NewGraphRepository(db TxBeginner) GraphRepository {
	return &graphRepo{db: db}
}

// FetchUserGraph читает граф одним round trip (pgx.Batch) в read-only
// транзакции уровня REPEATABLE READ: все четыре запроса видят один снимок.
func (r *graphRepo) FetchUserGraph(ctx context.Context, userID string) (*model.UserGraph, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции чтения графа: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only транзакция

	batch := &pgx.Batch{}
	batch.Queue(`SELECT `+userColumns+`
		FROM users u
		LEFT JOIN user_settings s ON s.user_id = u.id
		WHERE u.id = $1`, userID)
	batch.Queue(`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1
		ORDER BY created_at, id`, userID)
	batch.Queue(`SELECT `+messageColumns+` FROM messages
		WHERE session_id IN (SELECT id FROM sessions WHERE user_id = $1)
		ORDER BY created_at, id`, userID)
	batch.Queue(`SELECT `+topicColumns+` FROM topics
		WHERE session_id IN (SELECT id FROM sessions WHERE user_id = $1)
		ORDER BY created_at, id`, userID)

	graph, err := readGraph(tx.SendBatch(ctx, batch))
	if err != nil || graph == nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка завершения транзакции чтения графа: %w", err)
	}
	return graph, nil
}

// readGraph разбирает результаты батча в порядке постановки запросов.
func readGraph(br pgx.BatchResults) (*model.UserGraph, error) {
	defer br.Close()

	user, err := scanUser(br.QueryRow())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения пользователя графа: %w", err)
	}

	sessions, err := collect(br, scanSession)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессий графа: %w", err)
	}
	messages, err := collect(br, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сообщений графа: %w", err)
	}
	topics, err := collect(br, scanTopic)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения топиков графа: %w", err)
	}

	graph := &model.UserGraph{
		User:     *user,
		Sessions: make([]model.SessionGraph, 0, len(sessions)),
	}
	index := make(map[string]int, len(sessions))
	for i, s := range sessions {
		index[s.ID] = i
		graph.Sessions = append(graph.Sessions, model.SessionGraph{Session: *s})
	}
	for _, m := range messages {
		if i, ok := index[m.SessionID]; ok {
			graph.Sessions[i].Messages = append(graph.Sessions[i].Messages, *m)
		}
	}
	for _, t := range topics {
		if i, ok := index[t.SessionID]; ok {
			graph.Sessions[i].Topics = append(graph.Sessions[i].Topics, *t)
		}
	}

	if err := br.Close(); err != nil {
		return nil, err
	}
	return graph, nil
}

// collect читает очередной результат батча.
func collect[T any](br pgx.BatchResults, scan func(scanner) (*T, error)) ([]*T, error) {
	rows, err := br.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
