// datasync.go — оркестратор полной синхронизации графа пользователя
// из durable store (PostgreSQL) в локальное хранилище.
//
// Цикл: idle → authenticating → connecting → syncing → synced.
//  1. Определение текущей сессии (auth.Resolver)
//  2. Открытие соединения с durable store (RemoteConnector)
//  3. Чтение графа пользователя: пользователь, сессии, сообщения, топики
//  4. Замена зеркальных таблиц в одной транзакции SQLite
//
// Соединение закрывается на любом пути выхода.
//
// Prometheus-метрики:
//   - chatsync_sync_duration_seconds — длительность цикла
//   - chatsync_sync_runs_total — количество циклов по результату
//   - chatsync_sync_records_total — количество записанных записей по таблицам
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/chatsync/internal/auth"
	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/domain/syncstate"
	"github.com/bigkaa/chatsync/internal/localstore"
)

var (
	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsync_sync_duration_seconds",
		Help:    "Длительность цикла синхронизации",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s … ~102s
	}, []string{"result"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_sync_runs_total",
		Help: "Количество циклов синхронизации",
	}, []string{"result"}) // result: synced или причина ошибки

	syncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_sync_records_total",
		Help: "Количество записей, записанных в локальное хранилище",
	}, []string{"table"})
)

// mirroredTables — локальные таблицы, заменяемые при синхронизации.
var mirroredTables = []string{
	localstore.TableUsers,
	localstore.TableSessions,
	localstore.TableMessages,
	localstore.TableTopics,
}

// Status — уведомление слушателю о ходе цикла.
type Status string

const (
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
)

// StartParams — параметры запуска цикла. Оба слушателя необязательны.
type StartParams struct {
	OnSyncStatusChange func(Status)
	OnSyncError        func(*SyncError)
}

// SessionResolver — источник текущей сессии (реализуется auth.Resolver).
type SessionResolver interface {
	CurrentSession(ctx context.Context) (*auth.Actor, error)
}

// LocalMirror — локальное хранилище зеркала (реализуется localstore.DB).
type LocalMirror interface {
	Replace(ctx context.Context, set *localstore.ReplaceSet, state *model.SyncState) error
	SaveSyncState(ctx context.Context, state *model.SyncState) error
	SyncState(ctx context.Context) (*model.SyncState, error)
}

// SyncResult — итог цикла синхронизации.
type SyncResult struct {
	RunID       string          `json:"runId"`
	ActorID     string          `json:"actorId,omitempty"`
	State       syncstate.State `json:"state"`
	Reason      Reason          `json:"reason,omitempty"`
	Records     map[string]int  `json:"records,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
}

// SyncStatus — текущее состояние оркестратора для API.
type SyncStatus struct {
	State      syncstate.State  `json:"state"`
	ChangedAt  time.Time        `json:"changedAt"`
	LastResult *SyncResult      `json:"lastResult,omitempty"`
	Persisted  *model.SyncState `json:"persisted,omitempty"`
}

// DataSyncService — оркестратор синхронизации.
type DataSyncService struct {
	sessions  SessionResolver
	connector RemoteConnector
	local     LocalMirror
	machine   *syncstate.Machine
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.RWMutex
	last *SyncResult

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDataSyncService создаёт оркестратор синхронизации.
func NewDataSyncService(
	sessions SessionResolver,
	connector RemoteConnector,
	local LocalMirror,
	logger *slog.Logger,
) *DataSyncService {
	return &DataSyncService{
		sessions:  sessions,
		connector: connector,
		local:     local,
		machine:   syncstate.NewMachine(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "data_sync")),
	}
}

// State возвращает текущее состояние автомата.
func (s *DataSyncService) State() syncstate.State {
	return s.machine.Current()
}

// LastResult возвращает итог последнего завершённого цикла или nil.
func (s *DataSyncService) LastResult() *SyncResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Status возвращает состояние оркестратора и сохранённое состояние
// последней синхронизации из локального хранилища.
func (s *DataSyncService) Status(ctx context.Context) (*SyncStatus, error) {
	persisted, err := s.local.SyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение состояния синхронизации: %w", err)
	}
	return &SyncStatus{
		State:      s.machine.Current(),
		ChangedAt:  s.machine.ChangedAt(),
		LastResult: s.LastResult(),
		Persisted:  persisted,
	}, nil
}

// Start выполняет один цикл синхронизации.
// Ошибка цикла — *SyncError (та же передаётся в OnSyncError);
// параллельный вызов во время цикла — ErrSyncInProgress.
func (s *DataSyncService) Start(ctx context.Context, p StartParams) (*SyncResult, error) {
	runID := uuid.NewString()
	if err := s.machine.Begin(runID); err != nil {
		var te *syncstate.TransitionError
		if errors.As(err, &te) && te.Code == "IN_PROGRESS" {
			return nil, ErrSyncInProgress
		}
		return nil, err
	}

	run := &SyncResult{RunID: runID, StartedAt: s.now()}
	logger := s.logger.With(slog.String("run_id", runID))
	logger.Info("Цикл синхронизации запущен")

	// 1. Текущая сессия
	actor, err := s.sessions.CurrentSession(ctx)
	if err != nil || actor == nil {
		return nil, s.fail(ctx, logger, run, p, ReasonUnauthenticated, err)
	}
	run.ActorID = actor.ID
	logger = logger.With(slog.String("actor_id", actor.ID))

	// 2. Соединение с durable store
	if err := s.machine.TransitionTo(syncstate.StateConnecting, runID); err != nil {
		return nil, err
	}
	remote, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, s.fail(ctx, logger, run, p, ReasonConnectionError, err)
	}
	defer remote.Close()

	// 3. Чтение графа
	if err := s.machine.TransitionTo(syncstate.StateSyncing, runID); err != nil {
		return nil, err
	}
	notify(logger, p.OnSyncStatusChange, StatusSyncing)

	graph, err := remote.FetchUserGraph(ctx, actor.ID)
	if err != nil {
		return nil, s.fail(ctx, logger, run, p, ReasonConnectionError, err)
	}
	if graph == nil {
		return nil, s.fail(ctx, logger, run, p, ReasonUserNotFound,
			fmt.Errorf("пользователь %s отсутствует в durable store", actor.ID))
	}

	// 4. Замена локального зеркала
	set, err := buildReplaceSet(graph)
	if err != nil {
		return nil, s.fail(ctx, logger, run, p, ReasonLocalWriteError, err)
	}
	completed := s.now()
	state := &model.SyncState{
		RunID:    runID,
		ActorID:  actor.ID,
		Status:   string(syncstate.StateSynced),
		Records:  set.Counts(),
		SyncedAt: completed,
	}
	if err := s.local.Replace(ctx, set, state); err != nil {
		return nil, s.fail(ctx, logger, run, p, ReasonLocalWriteError, err)
	}

	if err := s.machine.TransitionTo(syncstate.StateSynced, runID); err != nil {
		return nil, err
	}
	run.State = syncstate.StateSynced
	run.Records = state.Records
	run.CompletedAt = completed
	s.record(run)

	for table, n := range run.Records {
		syncRecordsTotal.WithLabelValues(table).Add(float64(n))
	}

	logger.Info("Цикл синхронизации завершён",
		slog.Any("records", run.Records),
		slog.String("duration", completed.Sub(run.StartedAt).String()),
	)
	notify(logger, p.OnSyncStatusChange, StatusSynced)

	return run, nil
}

// fail переводит автомат в failed, сохраняет итог и уведомляет слушателя.
// Для unauthenticated локальное хранилище не изменяется.
func (s *DataSyncService) fail(
	ctx context.Context,
	logger *slog.Logger,
	run *SyncResult,
	p StartParams,
	reason Reason,
	cause error,
) error {
	if err := s.machine.TransitionTo(syncstate.StateFailed, run.RunID); err != nil {
		logger.Error("Недопустимый переход в failed", slog.String("error", err.Error()))
	}

	run.State = syncstate.StateFailed
	run.Reason = reason
	run.CompletedAt = s.now()
	s.record(run)

	syncErr := &SyncError{Reason: reason, RunID: run.RunID, Err: cause}
	attrs := []any{slog.String("reason", string(reason))}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	logger.Warn("Цикл синхронизации завершился ошибкой", attrs...)

	if reason != ReasonUnauthenticated {
		state := &model.SyncState{
			RunID:    run.RunID,
			ActorID:  run.ActorID,
			Status:   string(syncstate.StateFailed),
			Reason:   string(reason),
			SyncedAt: run.CompletedAt,
		}
		// Контекст мог быть отменён, а состояние всё равно нужно записать
		if err := s.local.SaveSyncState(context.WithoutCancel(ctx), state); err != nil {
			logger.Warn("Ошибка сохранения состояния синхронизации", slog.String("error", err.Error()))
		}
	}

	if p.OnSyncError != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Паника в OnSyncError", slog.Any("panic", r))
				}
			}()
			p.OnSyncError(syncErr)
		}()
	}
	return syncErr
}

// record сохраняет итог цикла и обновляет метрики.
func (s *DataSyncService) record(run *SyncResult) {
	result := string(run.State)
	if run.Reason != "" {
		result = string(run.Reason)
	}
	syncRunsTotal.WithLabelValues(result).Inc()
	syncDuration.WithLabelValues(result).Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())

	r := *run
	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()
}

// notify вызывает слушателя статуса; паника слушателя не прерывает цикл.
func notify(logger *slog.Logger, fn func(Status), status Status) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника в OnSyncStatusChange", slog.Any("panic", r))
		}
	}()
	fn(status)
}

// buildReplaceSet проверяет записи графа и раскладывает их по таблицам.
func buildReplaceSet(graph *model.UserGraph) (*localstore.ReplaceSet, error) {
	set, err := localstore.NewReplaceSet(mirroredTables...)
	if err != nil {
		return nil, err
	}

	if err := set.Add(localstore.TableUsers, graph.User); err != nil {
		return nil, fmt.Errorf("пользователь %s: %w", graph.User.ID, err)
	}
	for _, sg := range graph.Sessions {
		if err := set.Add(localstore.TableSessions, sg.Session); err != nil {
			return nil, fmt.Errorf("сессия %s: %w", sg.Session.ID, err)
		}
		for _, m := range sg.Messages {
			if err := set.Add(localstore.TableMessages, m); err != nil {
				return nil, fmt.Errorf("сообщение %s: %w", m.ID, err)
			}
		}
		for _, t := range sg.Topics {
			if err := set.Add(localstore.TableTopics, t); err != nil {
				return nil, fmt.Errorf("топик %s: %w", t.ID, err)
			}
		}
	}
	return set, nil
}

// StartPeriodic запускает фоновую горутину с периодическими циклами.
// interval <= 0 — периодическая синхронизация отключена.
func (s *DataSyncService) StartPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("Периодическая синхронизация отключена")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая синхронизация запущена",
			slog.String("interval", interval.String()),
		)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая синхронизация остановлена")
				return
			case <-ticker.C:
				_, err := s.Start(ctx, StartParams{})
				if errors.Is(err, ErrSyncInProgress) {
					s.logger.Debug("Пропуск тика: цикл уже выполняется")
				}
			}
		}
	}()
}

// Stop останавливает периодическую синхронизацию и ждёт завершения.
func (s *DataSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
