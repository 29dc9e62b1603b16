package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Transaction runs fn inside a transaction stored in the context it receives.
// Repository calls made with that context go through the transaction. A nested
// call joins the outer transaction instead of opening a second one.
//
// fn returning an error, a panic, or ctx being cancelled before commit rolls
// everything back.
//
// Usage in services:
//
//	err := s.db.Transaction(ctx, func(ctx context.Context) error {
//	    if err := s.items.Lock(ctx, itemID); err != nil { return err }
//	    return s.units.Insert(ctx, units)
//	})
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.getTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Savepoint runs fn under a named savepoint of the transaction in ctx. When fn
// fails only its own writes are rolled back and the transaction stays usable,
// which Postgres otherwise refuses after a failed statement.
func (db *DB) Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	tx := db.getTx(ctx)
	if tx == nil {
		return fmt.Errorf("savepoint %s: no transaction in context", name)
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint %s: %v: %w", name, rbErr, err)
		}
		if _, relErr := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("release savepoint %s: %v: %w", name, relErr, err)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

// InTx reports whether ctx carries an open transaction
func (db *DB) InTx(ctx context.Context) bool {
	return db.getTx(ctx) != nil
}

// getTx extracts transaction from context if present
func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

// Querier runs queries against the transaction in the context, or the pool
// when there is none. Queries are written with ? placeholders and rebound
// for the active driver.
type Querier struct {
	ext sqlx.ExtContext
}

// Q returns the Querier for ctx
func (db *DB) Q(ctx context.Context) *Querier {
	if tx := db.getTx(ctx); tx != nil {
		return &Querier{ext: tx}
	}
	return &Querier{ext: db.DB}
}

// Get scans a single row into dest
func (q *Querier) Get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

// Select scans all rows into dest
func (q *Querier) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

// Exec runs a statement
func (q *Querier) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
}

// SelectIn expands slice arguments (IN (?)) before running Select
func (q *Querier) SelectIn(ctx context.Context, dest any, query string, args ...any) error {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return fmt.Errorf("expanding IN query: %w", err)
	}
	return q.Select(ctx, dest, expanded, expandedArgs...)
}

// ExecIn expands slice arguments (IN (?)) before running Exec
func (q *Querier) ExecIn(ctx context.Context, query string, args ...any) (sql.Result, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expanding IN query: %w", err)
	}
	return q.Exec(ctx, expanded, expandedArgs...)
}

// RowsAffected is Exec followed by RowsAffected
func (q *Querier) RowsAffected(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
