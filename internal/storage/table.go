package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// sizeTable implements Store over a database/sql handle. The SQL is written
// with "?" placeholders; dialects that number their parameters supply a
// rebind function.
type sizeTable struct {
	mu     sync.RWMutex
	db     *sql.DB
	rebind func(string) string
}

const createSizesTable = `
	CREATE TABLE IF NOT EXISTS sizes (
		code        TEXT PRIMARY KEY,
		size        TEXT,
		description TEXT
	)`

func newSizeTable(ctx context.Context, db *sql.DB, rebind func(string) string) (*sizeTable, error) {
	if rebind == nil {
		rebind = func(q string) string { return q }
	}
	if _, err := db.ExecContext(ctx, createSizesTable); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &sizeTable{db: db, rebind: rebind}, nil
}

// numberedPlaceholders rewrites "?" placeholders as $1, $2, ...
func numberedPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// All returns every record in table order.
func (t *sizeTable) All(ctx context.Context) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows, err := t.db.QueryContext(ctx, "SELECT code, size, description FROM sizes")
	if err != nil {
		return nil, fmt.Errorf("select sizes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var code, size, desc sql.NullString
		if err := rows.Scan(&code, &size, &desc); err != nil {
			return nil, fmt.Errorf("scan size row: %w", err)
		}
		records = append(records, Record{
			Code:        code.String,
			Size:        size.String,
			Description: desc.String,
		})
	}
	return records, rows.Err()
}

// Upsert stores a record, replacing an existing one with the same code.
func (t *sizeTable) Upsert(ctx context.Context, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.ExecContext(ctx, t.rebind(`
		INSERT INTO sizes (code, size, description)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			size = excluded.size,
			description = excluded.description`),
		rec.Code, rec.Size, rec.Description,
	)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", rec.Code, err)
	}
	return nil
}

// Update changes size and description of an existing record.
func (t *sizeTable) Update(ctx context.Context, rec Record) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	res, err := t.db.ExecContext(ctx,
		t.rebind("UPDATE sizes SET size = ?, description = ? WHERE code = ?"),
		rec.Size, rec.Description, rec.Code,
	)
	if err != nil {
		return false, fmt.Errorf("update %q: %w", rec.Code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %q: rows affected: %w", rec.Code, err)
	}
	return n > 0, nil
}

// Rekey renames a record. See Store.Rekey.
func (t *sizeTable) Rekey(ctx context.Context, oldCode, newCode string) (RekeyResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var taken int
	err := t.db.QueryRowContext(ctx,
		t.rebind("SELECT COUNT(*) FROM sizes WHERE code = ?"), newCode,
	).Scan(&taken)
	if err != nil {
		return 0, fmt.Errorf("rekey: check %q: %w", newCode, err)
	}
	if taken > 0 {
		return RekeyTargetExists, nil
	}

	var found int
	err = t.db.QueryRowContext(ctx,
		t.rebind("SELECT COUNT(*) FROM sizes WHERE UPPER(code) = UPPER(CAST(? AS TEXT))"), oldCode,
	).Scan(&found)
	if err != nil {
		return 0, fmt.Errorf("rekey: check %q: %w", oldCode, err)
	}
	if found == 0 {
		return RekeyNotFound, nil
	}

	_, err = t.db.ExecContext(ctx,
		t.rebind("UPDATE sizes SET code = ? WHERE UPPER(code) = UPPER(CAST(? AS TEXT))"),
		newCode, oldCode,
	)
	if err != nil {
		return 0, fmt.Errorf("rekey %q to %q: %w", oldCode, newCode, err)
	}
	return RekeyDone, nil
}

// Delete removes records by code, ignoring case.
func (t *sizeTable) Delete(ctx context.Context, code string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.ExecContext(ctx,
		t.rebind("DELETE FROM sizes WHERE UPPER(code) = UPPER(CAST(? AS TEXT))"), code)
	if err != nil {
		return fmt.Errorf("delete %q: %w", code, err)
	}
	return nil
}

// CountMatching counts records by code, ignoring case.
func (t *sizeTable) CountMatching(ctx context.Context, code string) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var n int
	err := t.db.QueryRowContext(ctx,
		t.rebind("SELECT COUNT(*) FROM sizes WHERE UPPER(code) = UPPER(CAST(? AS TEXT))"), code,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", code, err)
	}
	return n, nil
}

// Count returns the total number of records.
func (t *sizeTable) Count(ctx context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var n int
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sizes").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sizes: %w", err)
	}
	return n, nil
}

// Close shuts down the database.
func (t *sizeTable) Close() error {
	return t.db.Close()
}
