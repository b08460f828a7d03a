package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/bigkaa/chatsync/internal/validate"
)

// Record — нетипизированная локальная запись.
type Record = validate.Record

// NewID возвращает новый 21-символьный nanoid.
func NewID() string {
	return gonanoid.Must()
}

// Model — доступ к одной локальной таблице с проверкой формы записей.
// T — тип, в который декодируются записи при чтении (структура или Record).
type Model[T any] struct {
	db       *DB
	table    string
	keyField string
	shape    *validate.Shape
	now      func() time.Time
	logger   *slog.Logger
}

// ModelOption — опция конструктора Model.
type ModelOption func(*modelOptions)

type modelOptions struct {
	keyField string
	now      func() time.Time
}

// WithKeyField задаёт поле-ключ таблицы (по умолчанию "id").
func WithKeyField(field string) ModelOption {
	return func(o *modelOptions) { o.keyField = field }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) ModelOption {
	return func(o *modelOptions) { o.now = now }
}

// NewModel создаёт Model для явно указанной таблицы и формы.
func NewModel[T any](db *DB, table string, shape *validate.Shape, opts ...ModelOption) *Model[T] {
	o := modelOptions{
		keyField: validate.FieldID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Model[T]{
		db:       db,
		table:    table,
		keyField: o.keyField,
		shape:    shape,
		now:      o.now,
		logger:   db.logger.With(slog.String("table", table)),
	}
}

// For создаёт Model для зарегистрированной таблицы (форма и ключ из реестра).
func For[T any](db *DB, table string, opts ...ModelOption) (*Model[T], error) {
	def, ok := LookupTable(table)
	if !ok {
		return nil, fmt.Errorf("%s: %w", table, ErrUnknownTable)
	}
	opts = append([]ModelOption{WithKeyField(def.KeyField)}, opts...)
	return NewModel[T](db, def.Name, def.Shape, opts...), nil
}

// Table возвращает имя таблицы.
func (m *Model[T]) Table() string { return m.table }

// --- Добавление ---

// AddOption — опция Add.
type AddOption func(*addOptions)

type addOptions struct {
	id       string
	keyField string
}

// WithID задаёт ключ новой записи вместо сгенерированного.
func WithID(id string) AddOption {
	return func(o *addOptions) { o.id = id }
}

// WithPrimaryKey задаёт поле-ключ для этой записи (например, "identifier").
// Без WithID ключ берётся из значения этого поля.
func WithPrimaryKey(field string) AddOption {
	return func(o *addOptions) { o.keyField = field }
}

// Add проверяет data по форме (full), проставляет id, createdAt и updatedAt
// и записывает одну строку. Возвращает ключ записи.
// Собственный id в data игнорируется: ключ задаётся через WithID.
func (m *Model[T]) Add(ctx context.Context, data any, opts ...AddOption) (string, error) {
	o := addOptions{keyField: m.keyField}
	for _, opt := range opts {
		opt(&o)
	}

	rec, err := validate.Validate(data, m.shape, validate.Full)
	if err != nil {
		return "", err
	}

	key := o.id
	if key == "" && o.keyField != validate.FieldID {
		key, _ = rec[o.keyField].(string)
		if key == "" {
			return "", m.missingKey(o.keyField)
		}
	}
	if key == "" {
		key = NewID()
	}

	r, err := m.stamp(rec, o.keyField, key, m.now(), time.Time{})
	if err != nil {
		return "", err
	}
	if err := insertRow(ctx, m.db.sql, m.table, r); err != nil {
		return "", err
	}

	m.logger.Debug("Запись добавлена", slog.String("id", key))
	return key, nil
}

// BulkAddOptions — параметры BulkAdd.
type BulkAddOptions struct {
	// CreateWithNewID — всегда генерировать новый ключ, игнорируя ключ элемента
	CreateWithNewID bool
	// IDGenerator — генератор ключей (по умолчанию NewID)
	IDGenerator func() string
}

// BulkAddResult — результат BulkAdd.
type BulkAddResult struct {
	Added int      `json:"added"`
	IDs   []string `json:"ids"`
}

// BulkAdd проверяет все элементы по порядку и останавливается на первом
// невалидном до какой-либо записи. Ключ элемента: новый при CreateWithNewID,
// иначе собственный ключ элемента, иначе новый. Все строки пишутся в одной
// транзакции. IDs возвращаются в порядке входа.
func (m *Model[T]) BulkAdd(ctx context.Context, items []T, opts BulkAddOptions) (*BulkAddResult, error) {
	gen := opts.IDGenerator
	if gen == nil {
		gen = NewID
	}

	now := m.now()
	rows := make([]row, 0, len(items))
	ids := make([]string, 0, len(items))

	for i, item := range items {
		raw, err := validate.Normalize(item)
		if err != nil {
			return nil, &validate.ValidationError{
				Shape:  m.shape.Name(),
				Mode:   validate.Full,
				Fields: []validate.FieldError{{Path: fmt.Sprintf("/%d", i), Reason: err.Error()}},
			}
		}

		rec, err := validate.Validate(raw, m.shape, validate.Full)
		if err != nil {
			return nil, fmt.Errorf("элемент %d: %w", i, err)
		}

		key := ""
		if !opts.CreateWithNewID {
			key, _ = raw[m.keyField].(string)
		}
		if key == "" {
			key = gen()
		}

		r, err := m.stamp(rec, m.keyField, key, now, time.Time{})
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
		ids = append(ids, key)
	}

	err := m.db.runInTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			if err := insertRow(ctx, tx, m.table, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Пакет записей добавлен", slog.Int("count", len(ids)))
	return &BulkAddResult{Added: len(ids), IDs: ids}, nil
}

// --- Изменение и удаление ---

// Update проверяет patch (partial), сливает его с существующей записью
// и обновляет updatedAt. Возвращает число изменённых строк:
// 0, если записи нет (это не ошибка).
func (m *Model[T]) Update(ctx context.Context, id string, patch any) (int64, error) {
	rec, err := validate.Validate(patch, m.shape, validate.Partial)
	if err != nil {
		return 0, err
	}
	if _, ok := rec[m.keyField]; ok {
		return 0, &validate.ValidationError{
			Shape:  m.shape.Name(),
			Mode:   validate.Partial,
			Fields: []validate.FieldError{{Path: "/" + m.keyField, Reason: "ключ записи не может изменяться"}},
		}
	}

	var affected int64
	err = m.db.runInTx(ctx, func(tx *sql.Tx) error {
		existing, err := selectRow(ctx, tx, m.table, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		var current Record
		if err := json.Unmarshal(existing.Data, &current); err != nil {
			return fmt.Errorf("повреждённая запись %s/%s: %w", m.table, id, err)
		}
		for k, v := range rec {
			current[k] = v
		}

		updated := m.now().UTC().Truncate(time.Millisecond)
		// updatedAt строго растёт даже при обновлении в ту же миллисекунду
		if toMillis(updated) <= existing.UpdatedAt {
			updated = time.UnixMilli(existing.UpdatedAt + 1).UTC()
		}
		current[validate.FieldUpdatedAt] = updated

		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("ошибка сериализации %s/%s: %w", m.table, id, err)
		}
		affected, err = updateRow(ctx, tx, m.table, row{ID: id, UpdatedAt: toMillis(updated), Data: data})
		return err
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Delete удаляет запись. Отсутствие записи не ошибка.
func (m *Model[T]) Delete(ctx context.Context, id string) error {
	_, err := deleteRows(ctx, m.db.sql, m.table, []string{id})
	return err
}

// BulkDelete удаляет записи по списку ключей. Отсутствующие ключи пропускаются.
func (m *Model[T]) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return m.db.runInTx(ctx, func(tx *sql.Tx) error {
		_, err := deleteRows(ctx, tx, m.table, ids)
		return err
	})
}

// Clear удаляет все записи таблицы.
func (m *Model[T]) Clear(ctx context.Context) error {
	return clearTable(ctx, m.db.sql, m.table)
}

// --- Чтение ---

// Get возвращает запись по ключу или ErrNotFound.
func (m *Model[T]) Get(ctx context.Context, id string) (*T, error) {
	r, err := selectRow(ctx, m.db.sql, m.table, id)
	if err != nil {
		return nil, err
	}
	return m.decode(r)
}

// List возвращает все записи в порядке создания.
func (m *Model[T]) List(ctx context.Context) ([]T, error) {
	rows, err := selectAll(ctx, m.db.sql, m.table)
	if err != nil {
		return nil, err
	}
	result := make([]T, 0, len(rows))
	for i := range rows {
		v, err := m.decode(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, nil
}

// Count возвращает количество записей.
func (m *Model[T]) Count(ctx context.Context) (int, error) {
	return countRows(ctx, m.db.sql, m.table)
}

// --- Вспомогательные функции ---

// stamp дополняет проверенную запись ключом и отметками времени.
// Нулевой updated означает updated = created.
func (m *Model[T]) stamp(rec Record, keyField, key string, created, updated time.Time) (row, error) {
	return stampRecord(m.table, rec, keyField, key, created, updated)
}

func stampRecord(table string, rec Record, keyField, key string, created, updated time.Time) (row, error) {
	if key == "" {
		return row{}, fmt.Errorf("%s: запись без ключа не может быть записана", table)
	}
	created = created.UTC().Truncate(time.Millisecond)
	if updated.IsZero() {
		updated = created
	}
	updated = updated.UTC().Truncate(time.Millisecond)

	rec[keyField] = key
	rec[validate.FieldCreatedAt] = created
	rec[validate.FieldUpdatedAt] = updated

	data, err := json.Marshal(rec)
	if err != nil {
		return row{}, fmt.Errorf("ошибка сериализации %s/%s: %w", table, key, err)
	}
	return row{ID: key, CreatedAt: toMillis(created), UpdatedAt: toMillis(updated), Data: data}, nil
}

func (m *Model[T]) decode(r *row) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(r.Data, v); err != nil {
		return nil, fmt.Errorf("ошибка декодирования %s/%s: %w", m.table, r.ID, err)
	}
	return v, nil
}

func (m *Model[T]) missingKey(field string) error {
	return &validate.ValidationError{
		Shape:  m.shape.Name(),
		Mode:   validate.Full,
		Fields: []validate.FieldError{{Path: "/" + field, Reason: "ключ записи не задан"}},
	}
}
