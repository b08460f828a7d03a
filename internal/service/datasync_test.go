package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/chatsync/internal/auth"
	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/domain/syncstate"
	"github.com/bigkaa/chatsync/internal/localstore"
)

// --- Моки ---

type mockResolver struct {
	fn func(ctx context.Context) (*auth.Actor, error)
}

func (m *mockResolver) CurrentSession(ctx context.Context) (*auth.Actor, error) {
	return m.fn(ctx)
}

func actorResolver(id string) *mockResolver {
	return &mockResolver{fn: func(context.Context) (*auth.Actor, error) {
		return &auth.Actor{ID: id}, nil
	}}
}

type mockSession struct {
	fetchFn func(ctx context.Context, userID string) (*model.UserGraph, error)
	closed  atomic.Bool
}

func (m *mockSession) FetchUserGraph(ctx context.Context, userID string) (*model.UserGraph, error) {
	return m.fetchFn(ctx, userID)
}

func (m *mockSession) Close() { m.closed.Store(true) }

type mockConnector struct {
	connectFn func(ctx context.Context) (RemoteSession, error)
	calls     atomic.Int32
}

func (m *mockConnector) Connect(ctx context.Context) (RemoteSession, error) {
	m.calls.Add(1)
	return m.connectFn(ctx)
}

func sessionConnector(s *mockSession) *mockConnector {
	return &mockConnector{connectFn: func(context.Context) (RemoteSession, error) { return s, nil }}
}

// failingMirror — локальное хранилище, отклоняющее замену.
type failingMirror struct {
	LocalMirror
	err error
}

func (m *failingMirror) Replace(context.Context, *localstore.ReplaceSet, *model.SyncState) error {
	return m.err
}

// statusRecorder собирает уведомления слушателей.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
	errs     []*SyncError
}

func (r *statusRecorder) params() StartParams {
	return StartParams{
		OnSyncStatusChange: func(s Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, s)
		},
		OnSyncError: func(e *SyncError) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, e)
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openLocal(t *testing.T) *localstore.DB {
	t.Helper()
	db, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"), testLogger())
	if err != nil {
		t.Fatalf("localstore.Open() ошибка: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testGraph(userID string) *model.UserGraph {
	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	topicID := "t1"
	return &model.UserGraph{
		User: model.User{ID: userID, Name: "Test", Email: "test@example.com", CreatedAt: created, UpdatedAt: created},
		Sessions: []model.SessionGraph{
			{
				Session: model.Session{ID: "s1", UserID: userID, Type: model.SessionTypeAgent, Title: "One", CreatedAt: created, UpdatedAt: created},
				Messages: []model.Message{
					{ID: "m1", SessionID: "s1", TopicID: &topicID, Role: model.RoleUser, Content: "q", CreatedAt: created, UpdatedAt: created},
					{ID: "m2", SessionID: "s1", Role: model.RoleAssistant, Content: "a", CreatedAt: created, UpdatedAt: created},
				},
				Topics: []model.Topic{
					{ID: "t1", SessionID: "s1", Title: "Topic", CreatedAt: created, UpdatedAt: created},
				},
			},
			{
				Session: model.Session{ID: "s2", UserID: userID, Type: model.SessionTypeGroup, CreatedAt: created, UpdatedAt: created},
			},
		},
	}
}

// --- Тесты ---

func TestStart_Success(t *testing.T) {
	local := openLocal(t)
	ctx := context.Background()

	// Устаревшая локальная запись должна исчезнуть после замены
	sessions, _ := localstore.For[model.Session](local, localstore.TableSessions)
	if _, err := sessions.Add(ctx, map[string]any{"userId": "u1", "type": "agent"}, localstore.WithID("stale")); err != nil {
		t.Fatalf("Add() ошибка: %v", err)
	}

	remote := &mockSession{fetchFn: func(_ context.Context, userID string) (*model.UserGraph, error) {
		return testGraph(userID), nil
	}}
	svc := NewDataSyncService(actorResolver("u1"), sessionConnector(remote), local, testLogger())
	rec := &statusRecorder{}

	result, err := svc.Start(ctx, rec.params())
	if err != nil {
		t.Fatalf("Start() ошибка: %v", err)
	}

	if result.State != syncstate.StateSynced || result.ActorID != "u1" || result.RunID == "" {
		t.Errorf("Start() = %+v", result)
	}
	want := map[string]int{"users": 1, "sessions": 2, "messages": 2, "topics": 1}
	for table, n := range want {
		if result.Records[table] != n {
			t.Errorf("Records[%s] = %d, ожидалось %d", table, result.Records[table], n)
		}
	}
	if len(rec.statuses) != 2 || rec.statuses[0] != StatusSyncing || rec.statuses[1] != StatusSynced {
		t.Errorf("уведомления = %v, ожидалось [syncing synced]", rec.statuses)
	}
	if len(rec.errs) != 0 {
		t.Errorf("OnSyncError вызван: %v", rec.errs)
	}
	if !remote.closed.Load() {
		t.Error("соединение не закрыто")
	}
	if svc.State() != syncstate.StateSynced {
		t.Errorf("State() = %s", svc.State())
	}

	list, _ := sessions.List(ctx)
	if len(list) != 2 {
		t.Fatalf("локальных сессий = %d, ожидалось 2", len(list))
	}
	if _, err := sessions.Get(ctx, "stale"); !errors.Is(err, localstore.ErrNotFound) {
		t.Errorf("устаревшая сессия не удалена: %v", err)
	}

	messages, _ := localstore.For[model.Message](local, localstore.TableMessages)
	m1, err := messages.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get(m1) ошибка: %v", err)
	}
	if m1.TopicID == nil || *m1.TopicID != "t1" {
		t.Errorf("m1.TopicID = %v", m1.TopicID)
	}

	state, _ := local.SyncState(ctx)
	if state == nil || state.RunID != result.RunID || state.Status != "synced" {
		t.Errorf("SyncState() = %+v", state)
	}

	status, err := svc.Status(ctx)
	if err != nil || status.LastResult == nil || status.Persisted == nil {
		t.Errorf("Status() = %+v, %v", status, err)
	}
}

func TestStart_Unauthenticated(t *testing.T) {
	local := openLocal(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		resolver *mockResolver
	}{
		{"нет сессии", &mockResolver{fn: func(context.Context) (*auth.Actor, error) { return nil, nil }}},
		{"ошибка сессии", &mockResolver{fn: func(context.Context) (*auth.Actor, error) {
			return nil, errors.New("сбой чтения токена")
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connector := &mockConnector{connectFn: func(context.Context) (RemoteSession, error) {
				t.Fatal("Connect не должен вызываться")
				return nil, nil
			}}
			svc := NewDataSyncService(tt.resolver, connector, local, testLogger())
			rec := &statusRecorder{}

			_, err := svc.Start(ctx, rec.params())
			se, ok := AsSyncError(err)
			if !ok || se.Reason != ReasonUnauthenticated {
				t.Fatalf("Start(): ожидалась SyncError{unauthenticated}, получено %v", err)
			}
			if len(rec.statuses) != 0 {
				t.Errorf("уведомления статуса не ожидались: %v", rec.statuses)
			}
			if len(rec.errs) != 1 || rec.errs[0] != se {
				t.Errorf("OnSyncError получил %v", rec.errs)
			}
			if svc.State() != syncstate.StateFailed {
				t.Errorf("State() = %s, ожидалось failed", svc.State())
			}
			if state, _ := local.SyncState(ctx); state != nil {
				t.Errorf("локальное хранилище изменено: %+v", state)
			}
		})
	}
}

func TestStart_ConnectionError(t *testing.T) {
	local := openLocal(t)
	ctx := context.Background()

	connector := &mockConnector{connectFn: func(context.Context) (RemoteSession, error) {
		return nil, errors.New("connection refused")
	}}
	svc := NewDataSyncService(actorResolver("u1"), connector, local, testLogger())
	rec := &statusRecorder{}

	_, err := svc.Start(ctx, rec.params())
	se, ok := AsSyncError(err)
	if !ok || se.Reason != ReasonConnectionError {
		t.Fatalf("Start(): ожидалась SyncError{connection_error}, получено %v", err)
	}
	if len(rec.statuses) != 0 {
		t.Errorf("уведомления статуса не ожидались: %v", rec.statuses)
	}
	if last := svc.LastResult(); last == nil || last.Reason != ReasonConnectionError {
		t.Errorf("LastResult() = %+v", last)
	}
	state, _ := local.SyncState(ctx)
	if state == nil || state.Status != "failed" || state.Reason != "connection_error" {
		t.Errorf("SyncState() = %+v", state)
	}
}

func TestStart_FetchFailureKeepsMirror(t *testing.T) {
	local := openLocal(t)
	ctx := context.Background()

	topics, _ := localstore.For[model.Topic](local, localstore.TableTopics)
	if _, err := topics.Add(ctx, map[string]any{"sessionId": "s0", "title": "old"}, localstore.WithID("t0")); err != nil {
		t.Fatalf("Add() ошибка: %v", err)
	}

	tests := []struct {
		name   string
		fetch  func(context.Context, string) (*model.UserGraph, error)
		reason Reason
	}{
		{
			name:   "соединение потеряно",
			fetch:  func(context.Context, string) (*model.UserGraph, error) { return nil, errors.New("conn reset") },
			reason: ReasonConnectionError,
		},
		{
			name:   "пользователь отсутствует",
			fetch:  func(context.Context, string) (*model.UserGraph, error) { return nil, nil },
			reason: ReasonUserNotFound,
		},
		{
			name: "невалидная запись графа",
			fetch: func(_ context.Context, id string) (*model.UserGraph, error) {
				g := testGraph(id)
				g.Sessions[0].Messages[0].Role = "robot"
				return g, nil
			},
			reason: ReasonLocalWriteError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &mockSession{fetchFn: tt.fetch}
			svc := NewDataSyncService(actorResolver("u1"), sessionConnector(remote), local, testLogger())
			rec := &statusRecorder{}

			_, err := svc.Start(ctx, rec.params())
			se, ok := AsSyncError(err)
			if !ok || se.Reason != tt.reason {
				t.Fatalf("Start(): ожидалась SyncError{%s}, получено %v", tt.reason, err)
			}
			if !remote.closed.Load() {
				t.Error("соединение не закрыто")
			}
			if len(rec.statuses) != 1 || rec.statuses[0] != StatusSyncing {
				t.Errorf("уведомления = %v, ожидалось [syncing]", rec.statuses)
			}
			if _, err := topics.Get(ctx, "t0"); err != nil {
				t.Errorf("прежнее зеркало потеряно: %v", err)
			}
		})
	}
}

func TestStart_LocalWriteError(t *testing.T) {
	local := openLocal(t)
	remote := &mockSession{fetchFn: func(_ context.Context, id string) (*model.UserGraph, error) {
		return testGraph(id), nil
	}}
	mirror := &failingMirror{LocalMirror: local, err: errors.New("disk full")}
	svc := NewDataSyncService(actorResolver("u1"), sessionConnector(remote), mirror, testLogger())

	_, err := svc.Start(context.Background(), StartParams{})
	se, ok := AsSyncError(err)
	if !ok || se.Reason != ReasonLocalWriteError {
		t.Fatalf("Start(): ожидалась SyncError{local_write_error}, получено %v", err)
	}
	if !remote.closed.Load() {
		t.Error("соединение не закрыто")
	}
}

func TestStart_InProgress(t *testing.T) {
	local := openLocal(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	remote := &mockSession{fetchFn: func(_ context.Context, id string) (*model.UserGraph, error) {
		close(entered)
		<-release
		return testGraph(id), nil
	}}
	svc := NewDataSyncService(actorResolver("u1"), sessionConnector(remote), local, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Start(context.Background(), StartParams{})
		done <- err
	}()

	<-entered
	if _, err := svc.Start(context.Background(), StartParams{}); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("параллельный Start(): ожидалась ErrSyncInProgress, получено %v", err)
	}
	if svc.State() != syncstate.StateSyncing {
		t.Errorf("State() = %s, ожидалось syncing", svc.State())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("первый Start() ошибка: %v", err)
	}

	// После завершения новый цикл разрешён
	remote2 := &mockSession{fetchFn: func(_ context.Context, id string) (*model.UserGraph, error) {
		return testGraph(id), nil
	}}
	svc.connector = sessionConnector(remote2)
	if _, err := svc.Start(context.Background(), StartParams{}); err != nil {
		t.Errorf("повторный Start() ошибка: %v", err)
	}
}

func TestStart_ListenerPanicDoesNotBreakCycle(t *testing.T) {
	local := openLocal(t)
	remote := &mockSession{fetchFn: func(_ context.Context, id string) (*model.UserGraph, error) {
		return testGraph(id), nil
	}}
	svc := NewDataSyncService(actorResolver("u1"), sessionConnector(remote), local, testLogger())

	_, err := svc.Start(context.Background(), StartParams{
		OnSyncStatusChange: func(Status) { panic("listener") },
	})
	if err != nil {
		t.Fatalf("Start() ошибка: %v", err)
	}
	if svc.State() != syncstate.StateSynced {
		t.Errorf("State() = %s", svc.State())
	}
}

func TestStartPeriodic(t *testing.T) {
	local := openLocal(t)
	var fetches atomic.Int32
	remote := &mockSession{fetchFn: func(_ context.Context, id string) (*model.UserGraph, error) {
		fetches.Add(1)
		return testGraph(id), nil
	}}
	svc := NewDataSyncService(actorResolver("u1"), sessionConnector(remote), local, testLogger())

	// Нулевой интервал — фоновая горутина не запускается
	svc.StartPeriodic(context.Background(), 0)
	svc.Stop()

	svc.StartPeriodic(context.Background(), 20*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for fetches.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	svc.Stop()

	if fetches.Load() == 0 {
		t.Error("периодическая синхронизация не выполнилась")
	}
}
