// Package hoststore implements the Host-Store Adapter (spec.md §4.13,
// component C13): bulk_copy, streaming query, and scope-safe transactions
// over a PostgreSQL connection pool, generalized from a three-layer memory
// store's pool-lifecycle conventions (NewStore/Close/Migrate) down to the
// plain bulk-copy/query/transaction primitives spec.md names — this package
// has no notion of Atoms, Compositions, or Relations. pkg/substrate/postgres
// does not use it: the domain store opens and owns its own pool.
package hoststore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AHartTN/hartonomous/internal/errs"
)

// Adapter wraps a pgxpool.Pool with the three primitives spec.md §4.13
// names. All operations are safe for concurrent use; the pool itself
// manages a fixed-size connection set sized by pgxpool's own defaults
// unless overridden in the DSN.
type Adapter struct {
	pool *pgxpool.Pool
}

// Open establishes a connection pool to dsn and verifies connectivity with
// a ping. Unlike a domain store's Open, hoststore does not run any
// migration itself — schema ownership belongs to pkg/substrate/postgres,
// which knows what tables it needs.
func Open(ctx context.Context, dsn string) (*Adapter, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "hoststore: parse dsn")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "hoststore: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.StorageFailure, err, "hoststore: ping")
	}

	return &Adapter{pool: pool}, nil
}

// Close releases every connection held by the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// Pool exposes the underlying pgxpool.Pool for callers that need pgx-native
// access beyond the three primitives below.
func (a *Adapter) Pool() *pgxpool.Pool { return a.pool }

// Row is the minimal row-scanning surface RowCallback needs, satisfied by
// both pgx.Rows and pgx.Tx query results.
type Row interface {
	Scan(dest ...any) error
}

// RowCallback is invoked once per row streamed back by Query. Returning an
// error stops iteration and is propagated from Query.
type RowCallback func(row Row) error

// BulkCopy implements spec.md §4.13's bulk_copy(table, rows_iterator): a
// single round trip using PostgreSQL's COPY protocol via pgx's native
// CopyFrom, the fastest bulk-load path pgx exposes. rows yields one row of
// values per call in the same column order as columns.
func (a *Adapter) BulkCopy(ctx context.Context, table string, columns []string, rows func(yield func([]any) bool)) (int64, error) {
	var collected [][]any
	rows(func(vals []any) bool {
		collected = append(collected, vals)
		return true
	})

	n, err := a.pool.CopyFrom(
		ctx,
		pgx.Identifier{table},
		columns,
		pgx.CopyFromRows(collected),
	)
	if err != nil {
		return n, errs.Wrap(errs.StorageFailure, err, "hoststore: bulk copy into %s", table)
	}
	return n, nil
}

// Query implements spec.md §4.13's query(sql, params, row_callback):
// streaming reads that never materialise the whole result set in memory.
func (a *Adapter) Query(ctx context.Context, sql string, params []any, onRow RowCallback) error {
	rows, err := a.pool.Query(ctx, sql, params...)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "hoststore: query")
	}
	defer rows.Close()

	for rows.Next() {
		if err := onRow(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "hoststore: row iteration")
	}
	return nil
}

// Tx is the transaction scope spec.md §4.13 names: a handle good for Exec
// and Query calls within one transaction, committed or rolled back by
// WithTransaction.
type Tx struct {
	tx pgx.Tx
}

// Exec runs sql within the transaction.
func (t *Tx) Exec(ctx context.Context, sql string, params ...any) error {
	if _, err := t.tx.Exec(ctx, sql, params...); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "hoststore: exec in transaction")
	}
	return nil
}

// Query streams rows within the transaction, mirroring Adapter.Query.
func (t *Tx) Query(ctx context.Context, sql string, params []any, onRow RowCallback) error {
	rows, err := t.tx.Query(ctx, sql, params...)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "hoststore: query in transaction")
	}
	defer rows.Close()

	for rows.Next() {
		if err := onRow(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "hoststore: row iteration in transaction")
	}
	return nil
}

// WithTransaction runs fn within a single transaction. On any abnormal
// exit — fn returns an error, or fn panics — the transaction is rolled back
// and the connection returned to the pool in a usable state (spec.md §4.13
// scope-safety requirement); fn's panic is re-raised after rollback so the
// caller's own panic handling still runs.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	pgxTx, beginErr := a.pool.Begin(ctx)
	if beginErr != nil {
		return errs.Wrap(errs.StorageFailure, beginErr, "hoststore: begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = pgxTx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = pgxTx.Rollback(ctx)
			return
		}
		if commitErr := pgxTx.Commit(ctx); commitErr != nil {
			err = errs.Wrap(errs.StorageFailure, commitErr, "hoststore: commit transaction")
		}
	}()

	err = fn(ctx, &Tx{tx: pgxTx})
	return err
}
