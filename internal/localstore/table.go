package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// row — строка локальной таблицы.
type row struct {
	ID        string
	CreatedAt int64
	UpdatedAt int64
	Data      []byte
}

// bulkDeleteChunk — сколько id удаляется одним запросом (лимит параметров SQLite).
const bulkDeleteChunk = 500

func insertRow(ctx context.Context, q querier, table string, r row) error {
	_, err := q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, created_at, updated_at, data) VALUES (?, ?, ?, ?)`, table),
		r.ID, r.CreatedAt, r.UpdatedAt, string(r.Data),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%s/%s: %w", table, r.ID, ErrConflict)
		}
		return fmt.Errorf("ошибка вставки в %s: %w", table, err)
	}
	return nil
}

func selectRow(ctx context.Context, q querier, table, id string) (*row, error) {
	r := &row{}
	var data string
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, created_at, updated_at, data FROM %s WHERE id = ?`, table), id,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения %s/%s: %w", table, id, err)
	}
	r.Data = []byte(data)
	return r, nil
}

func updateRow(ctx context.Context, q querier, table string, r row) (int64, error) {
	res, err := q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET updated_at = ?, data = ? WHERE id = ?`, table),
		r.UpdatedAt, string(r.Data), r.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления %s/%s: %w", table, r.ID, err)
	}
	return res.RowsAffected()
}

func deleteRows(ctx context.Context, q querier, table string, ids []string) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += bulkDeleteChunk {
		end := min(start+bulkDeleteChunk, len(ids))
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		res, err := q.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, table, placeholders), args...,
		)
		if err != nil {
			return total, fmt.Errorf("ошибка удаления из %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func clearTable(ctx context.Context, q querier, table string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("ошибка очистки %s: %w", table, err)
	}
	return nil
}

func selectAll(ctx context.Context, q querier, table string) ([]row, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, created_at, updated_at, data FROM %s ORDER BY created_at, id`, table),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", table, err)
	}
	defer rows.Close()

	var result []row
	for rows.Next() {
		var r row
		var data string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt, &data); err != nil {
			return nil, fmt.Errorf("ошибка сканирования %s: %w", table, err)
		}
		r.Data = []byte(data)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации %s: %w", table, err)
	}
	return result, nil
}

func countRows(ctx context.Context, q querier, table string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта %s: %w", table, err)
	}
	return n, nil
}
