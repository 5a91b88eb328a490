// Package repository is the persistence boundary: a thin pgx wrapper the
// rest of the server calls into without knowing anything about SQL,
// connection pooling, or transactions beyond Execute and WithTx
// (SPEC_FULL.md Non-goals treat storage internals as opaque — this
// package is the opaque boundary itself).
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Result is the subset of pgconn.CommandTag the rest of the server needs
// without importing pgx types directly into every caller.
type Result struct {
	RowsAffected int64
}

// Repository wraps a pgx connection pool behind the two operations the
// rest of the server needs: a one-shot Execute and a transactional
// WithTx. Both are implemented directly against pgxpool.Pool rather than
// behind extra indirection — nothing in this server needs a second
// backing store.
type Repository struct {
	pool *pgxpool.Pool
}

// Open creates a Repository backed by a pgx pool connected to dsn.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() { r.pool.Close() }

// Execute runs query outside of any caller-managed transaction.
func (r *Repository) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("repository: execute: %w", err)
	}
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

// Query runs query and hands the resulting rows to fn, which must consume
// them before returning (rows are closed once fn returns).
func (r *Repository) Query(ctx context.Context, fn func(pgx.Rows) error, query string, args ...any) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("repository: query: %w", err)
	}
	defer rows.Close()
	return fn(rows)
}

// WithTx runs fn inside a transaction, committing if fn returns nil and
// rolling back otherwise (including on panic, which is re-raised after
// rollback).
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("repository: tx failed: %w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}
