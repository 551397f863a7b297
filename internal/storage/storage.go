// Package storage provides the persistent part-size table.
//
// The Store interface is the primary abstraction. SQLiteStore is the default
// implementation using pure-Go SQLite (modernc.org/sqlite); PostgresStore
// serves the same table from Postgres through the pgx database/sql driver.
//
// Every write is a single statement and is durable when the call returns.
package storage

import (
	"context"
)

// Record is one row of the size table.
type Record struct {
	Code        string `json:"code"`
	Size        string `json:"size"`
	Description string `json:"description"`
}

// RekeyResult reports what Rekey did.
type RekeyResult int

const (
	// RekeyDone means the record was renamed.
	RekeyDone RekeyResult = iota
	// RekeyTargetExists means a record with the new code already exists.
	RekeyTargetExists
	// RekeyNotFound means no record matched the old code.
	RekeyNotFound
)

// String returns the label for a rekey result.
func (r RekeyResult) String() string {
	switch r {
	case RekeyDone:
		return "done"
	case RekeyTargetExists:
		return "target_exists"
	case RekeyNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Store is the persistent size table.
type Store interface {
	// All returns every record in enumeration order.
	All(ctx context.Context) ([]Record, error)

	// Upsert inserts a record, replacing any record with the same code.
	Upsert(ctx context.Context, rec Record) error

	// Update sets size and description of the record whose code equals
	// rec.Code exactly. Returns false if there is no such record.
	Update(ctx context.Context, rec Record) (bool, error)

	// Rekey renames oldCode (case-insensitive) to newCode. The rename is
	// rejected when newCode already exists (case-sensitive).
	Rekey(ctx context.Context, oldCode, newCode string) (RekeyResult, error)

	// Delete removes records whose code equals code, ignoring case.
	Delete(ctx context.Context, code string) error

	// CountMatching counts records whose code equals code, ignoring case.
	CountMatching(ctx context.Context, code string) (int, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)

	// Close shuts down the store.
	Close() error
}
