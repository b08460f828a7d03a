// Пакет localstore — локальное хранилище записей (встроенный SQLite).
//
// Каждая таблица хранит записи одного вида:
//
//	id TEXT PRIMARY KEY, created_at INTEGER, updated_at INTEGER, data TEXT
//
// data — нормализованная JSON-запись вместе со служебными полями,
// created_at/updated_at — те же отметки в миллисекундах Unix.
// Соединение открывается один раз на процесс и разделяется всеми Model.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Ошибки локального хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("локальная запись не найдена")
	// ErrConflict — запись с таким ключом уже существует.
	ErrConflict = errors.New("локальная запись с таким ключом уже существует")
	// ErrUnknownTable — таблица не зарегистрирована.
	ErrUnknownTable = errors.New("неизвестная локальная таблица")
)

// DB — дескриптор локального хранилища.
type DB struct {
	sql    *sql.DB
	path   string
	logger *slog.Logger
}

// querier реализуется как *sql.DB, так и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open открывает (или создаёт) файл SQLite и создаёт таблицы.
// WAL и busy_timeout задаются через параметры DSN драйвера.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия локального хранилища: %w", err)
	}
	// Одно соединение на процесс: записи сериализуются драйвером.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ошибка подключения к локальному хранилищу: %w", err)
	}

	db := &DB{
		sql:    sqlDB,
		path:   path,
		logger: logger.With(slog.String("component", "localstore")),
	}
	if err := db.createTables(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db.logger.Info("Локальное хранилище открыто",
		slog.String("path", path),
		slog.Int("tables", len(tableDefs)),
	)
	return db, nil
}

// Close закрывает соединение.
func (db *DB) Close() error {
	return db.sql.Close()
}

func (db *DB) createTables(ctx context.Context) error {
	for _, name := range TableNames() {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			data       TEXT NOT NULL
		)`, name)
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка создания таблицы %s: %w", name, err)
		}
	}

	_, err := db.sql.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sync_state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		updated_at INTEGER NOT NULL,
		data       TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы sync_state: %w", err)
	}
	return nil
}

// runInTx выполняет fn внутри транзакции SQLite.
// При ошибке fn транзакция откатывается, при успехе коммитится.
func (db *DB) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала локальной транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации локальной транзакции: %w", err)
	}
	return nil
}

// CheckReady проверяет доступность локального хранилища для health endpoint.
// Возвращает статус ("ok", "fail") и сообщение.
func (db *DB) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.sql.PingContext(ctx); err != nil {
		return "fail", fmt.Sprintf("локальное хранилище недоступно: %v", err)
	}
	return "ok", "локальное хранилище доступно"
}

// isConstraintViolation проверяет нарушение первичного ключа или уникальности.
func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// toMillis переводит время в миллисекунды Unix (формат колонок created_at/updated_at).
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}
