package service

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/repository"
)

// RemoteSession — открытое соединение с durable store на время одного цикла.
type RemoteSession interface {
	FetchUserGraph(ctx context.Context, userID string) (*model.UserGraph, error)
	Close()
}

// RemoteConnector открывает соединение с durable store.
type RemoteConnector interface {
	Connect(ctx context.Context) (RemoteSession, error)
}

// PoolConnector открывает отдельный pgxpool на каждый цикл синхронизации.
type PoolConnector struct {
	open func(ctx context.Context) (*pgxpool.Pool, error)
}

// NewPoolConnector создаёт коннектор; open обычно замыкает database.Connect.
func NewPoolConnector(open func(ctx context.Context) (*pgxpool.Pool, error)) *PoolConnector {
	return &PoolConnector{open: open}
}

// Connect открывает пул и возвращает сессию чтения графа.
func (c *PoolConnector) Connect(ctx context.Context) (RemoteSession, error) {
	pool, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	return &poolSession{pool: pool, graph: repository.NewGraphRepository(pool)}, nil
}

type poolSession struct {
	pool  *pgxpool.Pool
	graph repository.GraphRepository
}

func (s *poolSession) FetchUserGraph(ctx context.Context, userID string) (*model.UserGraph, error) {
	return s.graph.FetchUserGraph(ctx, userID)
}

func (s *poolSession) Close() {
	s.pool.Close()
}
