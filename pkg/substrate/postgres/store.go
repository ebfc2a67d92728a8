// Package postgres is the PostgreSQL-backed implementation of
// pkg/substrate's storage interfaces (spec.md §4.5/§4.6, §6 "Persisted
// layout"), generalizing a pool-lifecycle convention (NewStore/Close/
// Migrate) and its pgvector registration (AfterConnect hook) from a
// three-layer memory schema down to tables that map 1:1 to spec.md §6's
// atom/composition/relation graph.
//
// This package owns its own pool and transaction lifecycle rather than
// building on internal/hoststore: hoststore's bulk_copy/query/transaction
// trio (spec.md §4.13) is a generic adapter any external tool can drive
// against the host database, while this package's queries are tied to the
// domain schema in schema.go and need pgvector type registration on
// connect that a generic adapter has no reason to carry. Ingestion's own
// bulk-loading path (internal/ingest) goes through this package's
// transactional sub-stores directly, not through hoststore.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// Store is the central PostgreSQL-backed substrate store. It holds a single
// [pgxpool.Pool] and implements every sub-store spec.md §4.6's Store
// interface bundles.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ substrate.Store            = (*Store)(nil)
	_ substrate.AtomStore        = (*AtomStore)(nil)
	_ substrate.CompositionStore = compositionStore{}
	_ substrate.RelationStore    = relationStore{}
	_ substrate.PhysicalityStore = physicalityStore{}
	_ substrate.RatingStore      = ratingStore{}
	_ substrate.ContentStore     = contentStore{}
)

// Open establishes a connection pool to dsn, registers pgvector's types on
// every connection, verifies connectivity with a ping, and runs [Migrate].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "substrate/postgres: parse dsn")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: ping")
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Close releases every connection held by the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// AtomStore returns the sealed AtomStore view over s. Unlike the other
// sub-stores, AtomStore is exposed as a distinct type rather than through
// the Store interface, matching spec.md §4.5's separate seal lifecycle.
func (s *Store) AtomStore() *AtomStore { return &AtomStore{pool: s.pool} }

func (s *Store) Compositions() substrate.CompositionStore { return compositionStore{s.pool} }
func (s *Store) Relations() substrate.RelationStore       { return relationStore{s.pool} }
func (s *Store) Physicality() substrate.PhysicalityStore  { return physicalityStore{s.pool} }
func (s *Store) Ratings() substrate.RatingStore           { return ratingStore{s.pool} }
func (s *Store) Contents() substrate.ContentStore         { return contentStore{s.pool} }

// txStore is a Store bound to a single pgx.Tx rather than the pool, the
// value WithTransaction hands to fn so every write inside the callback
// lands in the same transaction (spec.md §4.8 ingestion all-or-nothing
// semantics).
type txStore struct {
	tx pgx.Tx
}

func (t txStore) Compositions() substrate.CompositionStore { return compositionStore{t.tx} }
func (t txStore) Relations() substrate.RelationStore       { return relationStore{t.tx} }
func (t txStore) Physicality() substrate.PhysicalityStore  { return physicalityStore{t.tx} }
func (t txStore) Ratings() substrate.RatingStore           { return ratingStore{t.tx} }
func (t txStore) Contents() substrate.ContentStore         { return contentStore{t.tx} }

func (t txStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx substrate.Store) error) error {
	return fn(ctx, t)
}

// WithTransaction implements [substrate.Store.WithTransaction]: fn runs
// inside a single pgx transaction; any error rolls the whole transaction
// back, matching internal/hoststore's scope-safety contract (spec.md
// §4.13).
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx substrate.Store) error) (err error) {
	tx, beginErr := s.pool.Begin(ctx)
	if beginErr != nil {
		return errs.Wrap(errs.StorageFailure, beginErr, "substrate/postgres: begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = errs.Wrap(errs.StorageFailure, commitErr, "substrate/postgres: commit transaction")
		}
	}()

	err = fn(ctx, txStore{tx: tx})
	return err
}

// querier is the common subset of *pgxpool.Pool and pgx.Tx every sub-store
// needs, letting compositionStore/relationStore/etc. work identically
// whether bound to the pool directly or to a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func wrapStorageErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.StorageFailure, err, fmt.Sprintf(format, args...))
}
