// Package postgres provides the PostgreSQL-backed implementation of every
// Agora store contract.
//
// All stores share a single [pgxpool.Pool]. [Migrate] creates the schema with
// idempotent DDL, so [NewStore] can run it on every start.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	chatID, _ := st.EnsureConversation(ctx, userID, "", "What is torque?")
//	_ = st.AppendMessage(ctx, chatID, store.RoleUser, "What is torque?")
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/store"
)

// Compile-time interface checks.
var (
	_ store.ConversationStore = (*Store)(nil)
	_ store.MaterialStore     = (*Store)(nil)
	_ store.QuizStore         = (*Store)(nil)
	_ store.Store             = (*Store)(nil)
)

// Store is the PostgreSQL-backed store for Agora. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool to the PostgreSQL database at dsn,
// verifies connectivity and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks database connectivity. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections in the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// storeErr wraps a database failure as an apperr.KindStore error.
func storeErr(op string, err error) error {
	return apperr.Store("store: "+op, err)
}

// notFoundOr maps pgx.ErrNoRows to a not-found error for what and any other
// failure to a store error.
func notFoundOr(op, what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.NotFoundError(what)
	}
	return storeErr(op, err)
}
