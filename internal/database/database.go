// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store wraps the write primary and the read replica. Anything that needs to
// observe its own writes goes through WDB.
type Store struct {
	WDB *sql.DB
	RDB *sql.DB
	Log *zap.SugaredLogger

	now func() time.Time
}

func NewStore(wdb *sql.DB, rdb *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{WDB: wdb, RDB: rdb, Log: log, now: func() time.Time { return time.Now().UTC() }}
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Execute all functions in the transaction
	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	// Commit the transaction if all functions succeeded
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
