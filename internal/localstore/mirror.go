package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/validate"
)

// ReplaceSet — набор проверенных записей для полной замены таблиц.
// Отметки createdAt/updatedAt берутся из самих записей (зеркало durable store),
// при их отсутствии используется время добавления в набор.
type ReplaceSet struct {
	tables []string
	rows   map[string][]row
	now    func() time.Time
}

// NewReplaceSet создаёт набор, заменяющий перечисленные таблицы целиком.
// Таблица из списка без записей будет очищена.
func NewReplaceSet(tables ...string) (*ReplaceSet, error) {
	s := &ReplaceSet{
		rows: make(map[string][]row, len(tables)),
		now:  time.Now,
	}
	for _, t := range tables {
		if _, ok := LookupTable(t); !ok {
			return nil, fmt.Errorf("%s: %w", t, ErrUnknownTable)
		}
		s.tables = append(s.tables, t)
		s.rows[t] = nil
	}
	return s, nil
}

// Add проверяет запись по форме таблицы (full) и добавляет её в набор.
func (s *ReplaceSet) Add(table string, rec any) error {
	def, ok := LookupTable(table)
	if !ok {
		return fmt.Errorf("%s: %w", table, ErrUnknownTable)
	}
	if _, ok := s.rows[table]; !ok {
		return fmt.Errorf("таблица %s не входит в набор замены", table)
	}

	raw, err := validate.Normalize(rec)
	if err != nil {
		return &validate.ValidationError{
			Shape:  def.Shape.Name(),
			Mode:   validate.Full,
			Fields: []validate.FieldError{{Reason: err.Error()}},
		}
	}
	validated, err := validate.Validate(raw, def.Shape, validate.Full)
	if err != nil {
		return err
	}

	key, _ := raw[def.KeyField].(string)
	if key == "" {
		return &validate.ValidationError{
			Shape:  def.Shape.Name(),
			Mode:   validate.Full,
			Fields: []validate.FieldError{{Path: "/" + def.KeyField, Reason: "ключ записи не задан"}},
		}
	}

	created := parseStamp(raw[validate.FieldCreatedAt], s.now())
	updated := parseStamp(raw[validate.FieldUpdatedAt], created)

	r, err := stampRecord(table, validated, def.KeyField, key, created, updated)
	if err != nil {
		return err
	}
	s.rows[table] = append(s.rows[table], r)
	return nil
}

// Counts возвращает количество записей по таблицам набора.
func (s *ReplaceSet) Counts() map[string]int {
	out := make(map[string]int, len(s.tables))
	for _, t := range s.tables {
		out[t] = len(s.rows[t])
	}
	return out
}

// Replace в одной транзакции очищает таблицы набора, записывает новые строки
// и сохраняет state (если не nil). При любой ошибке прежнее содержимое
// таблиц остаётся без изменений.
func (db *DB) Replace(ctx context.Context, set *ReplaceSet, state *model.SyncState) error {
	err := db.runInTx(ctx, func(tx *sql.Tx) error {
		for _, table := range set.tables {
			if err := clearTable(ctx, tx, table); err != nil {
				return err
			}
			for _, r := range set.rows[table] {
				if err := insertRow(ctx, tx, table, r); err != nil {
					return err
				}
			}
		}
		if state != nil {
			return saveSyncState(ctx, tx, state)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Info("Локальные таблицы заменены",
		slog.Any("records", set.Counts()),
	)
	return nil
}

// SyncState возвращает состояние последней синхронизации или nil, nil,
// если синхронизация ещё не выполнялась.
func (db *DB) SyncState(ctx context.Context) (*model.SyncState, error) {
	var data string
	err := db.sql.QueryRowContext(ctx, `SELECT data FROM sync_state WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения sync_state: %w", err)
	}

	state := &model.SyncState{}
	if err := json.Unmarshal([]byte(data), state); err != nil {
		return nil, fmt.Errorf("повреждённая запись sync_state: %w", err)
	}
	return state, nil
}

// SaveSyncState сохраняет состояние синхронизации без изменения таблиц записей.
func (db *DB) SaveSyncState(ctx context.Context, state *model.SyncState) error {
	return saveSyncState(ctx, db.sql, state)
}

func saveSyncState(ctx context.Context, q querier, state *model.SyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ошибка сериализации sync_state: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO sync_state (id, updated_at, data) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET updated_at = excluded.updated_at, data = excluded.data`,
		toMillis(state.SyncedAt), string(data),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи sync_state: %w", err)
	}
	return nil
}

// parseStamp разбирает отметку времени записи: RFC 3339 строка
// или миллисекунды Unix. Иначе возвращает fallback.
func parseStamp(v any, fallback time.Time) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil && !parsed.IsZero() {
			return parsed
		}
	case float64:
		if t > 0 {
			return time.UnixMilli(int64(t))
		}
	}
	return fallback
}
