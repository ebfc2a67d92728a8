package hoststore_test

import (
	"context"
	"os"
	"testing"

	"github.com/AHartTN/hartonomous/internal/hoststore"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if HARTONOMOUS_TEST_POSTGRES_DSN is not set, gating integration
// tests behind an environment variable rather than a build tag.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HARTONOMOUS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARTONOMOUS_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestOpenPingsAndCloses(t *testing.T) {
	ctx := context.Background()
	adapter, err := hoststore.Open(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	adapter, err := hoststore.Open(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })

	setupErr := adapter.WithTransaction(ctx, func(ctx context.Context, tx *hoststore.Tx) error {
		return tx.Exec(ctx, `CREATE TEMP TABLE hoststore_rollback_test (id INT)`)
	})
	if setupErr != nil {
		t.Fatalf("create temp table: %v", setupErr)
	}

	txErr := adapter.WithTransaction(ctx, func(ctx context.Context, tx *hoststore.Tx) error {
		if err := tx.Exec(ctx, `INSERT INTO hoststore_rollback_test (id) VALUES (1)`); err != nil {
			return err
		}
		return errLoud
	})
	if txErr == nil {
		t.Fatal("expected transaction to fail")
	}

	var count int
	queryErr := adapter.Query(ctx, `SELECT count(*) FROM hoststore_rollback_test`, nil, func(row hoststore.Row) error {
		return row.Scan(&count)
	})
	if queryErr != nil {
		t.Fatalf("count: %v", queryErr)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard the insert, got %d rows", count)
	}
}

func TestBulkCopyLoadsRows(t *testing.T) {
	ctx := context.Background()
	adapter, err := hoststore.Open(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Close() })

	setupErr := adapter.WithTransaction(ctx, func(ctx context.Context, tx *hoststore.Tx) error {
		return tx.Exec(ctx, `CREATE TEMP TABLE hoststore_bulk_test (id INT, label TEXT)`)
	})
	if setupErr != nil {
		t.Fatalf("create temp table: %v", setupErr)
	}

	rows := [][]any{{1, "a"}, {2, "b"}, {3, "c"}}
	n, copyErr := adapter.BulkCopy(ctx, "hoststore_bulk_test", []string{"id", "label"}, func(yield func([]any) bool) {
		for _, r := range rows {
			if !yield(r) {
				return
			}
		}
	})
	if copyErr != nil {
		t.Fatalf("bulk copy: %v", copyErr)
	}
	if n != int64(len(rows)) {
		t.Fatalf("copied %d rows, want %d", n, len(rows))
	}
}

type sentinelError struct{ msg string }

func (e sentinelError) Error() string { return e.msg }

var errLoud = sentinelError{"intentional rollback trigger"}
