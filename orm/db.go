// Package orm maps schema descriptors to SQL row persistence. Models are
// declared once in a Registry at startup; records are dynamically typed
// column→value maps hydrated from query results. The database handle is
// owned by the caller and passed in at construction.
package orm

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Querier is the common interface for DB and Tx.
// Record and Query operations accept this so that they work with both.
type Querier interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	dialect() Dialect
}

// DB wraps *sqlx.DB with a Dialect and satisfies Querier.
type DB struct {
	raw    *sqlx.DB
	d      Dialect
	logger Logger
}

// New wraps a *sqlx.DB with the given Dialect.
// A nil handle is a configuration error.
func New(db *sqlx.DB, d Dialect) (*DB, error) {
	if db == nil {
		return nil, ErrMissingDB
	}
	return &DB{raw: db, d: d}, nil
}

// Open connects to a database URL and wraps the handle with the given
// Dialect. It is a convenience around sqlx.Open followed by New.
func Open(driverName, dataSourceName string, d Dialect) (*DB, error) {
	db, err := sqlx.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err //nolint:wrapcheck // thin wrapper
	}
	return New(db, d)
}

// Debug returns a new *DB that logs every query using the given Logger.
// The original DB is not modified.
func (db *DB) Debug(l Logger) *DB {
	return &DB{raw: db.raw, d: db.d, logger: l}
}

func (db *DB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := db.raw.QueryxContext(ctx, query, args...)
	logQuery(db.logger, ctx, query, args, start, err)
	return rows, err //nolint:wrapcheck // thin wrapper
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := db.raw.ExecContext(ctx, query, args...)
	logQuery(db.logger, ctx, query, args, start, err)
	return res, err //nolint:wrapcheck // thin wrapper
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.raw.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err //nolint:wrapcheck // thin wrapper
	}
	return &Tx{raw: tx, d: db.d, logger: db.logger}, nil
}

// Transaction executes fn within a transaction.
// If fn returns nil the transaction is committed.
// If fn returns an error or panics the transaction is rolled back.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	err = fn(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying *sqlx.DB.
func (db *DB) Close() error { return db.raw.Close() } //nolint:wrapcheck // thin wrapper

func (db *DB) dialect() Dialect { return db.d }

// Tx wraps *sqlx.Tx with a Dialect and satisfies Querier.
type Tx struct {
	raw    *sqlx.Tx
	d      Dialect
	logger Logger
}

func (tx *Tx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := tx.raw.QueryxContext(ctx, query, args...)
	logQuery(tx.logger, ctx, query, args, start, err)
	return rows, err //nolint:wrapcheck // thin wrapper
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := tx.raw.ExecContext(ctx, query, args...)
	logQuery(tx.logger, ctx, query, args, start, err)
	return res, err //nolint:wrapcheck // thin wrapper
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.raw.Commit() } //nolint:wrapcheck // thin wrapper

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error { return tx.raw.Rollback() } //nolint:wrapcheck // thin wrapper

func (tx *Tx) dialect() Dialect { return tx.d }
