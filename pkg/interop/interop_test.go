package interop_test

import (
	"context"
	"testing"

	"github.com/AHartTN/hartonomous/internal/ingest"
	"github.com/AHartTN/hartonomous/internal/query"
	"github.com/AHartTN/hartonomous/internal/walk"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/interop"
	"github.com/AHartTN/hartonomous/pkg/substrate/mock"
)

func seededConnection(t *testing.T) (*mock.AtomStore, *mock.Store) {
	t.Helper()
	ctx := context.Background()
	atoms := mock.NewAtomStore()
	store := mock.NewStore()
	codepoints := []uint32{'h', 'i', ' ', 't', 'h', 'e', 'r', 'o'}
	if err := atoms.Seed(ctx, func(yield func(uint32) bool) {
		seen := make(map[uint32]bool)
		for _, cp := range codepoints {
			if seen[cp] {
				continue
			}
			seen[cp] = true
			if !yield(cp) {
				return
			}
		}
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, cp := range codepoints {
		physID, err := store.Physicality().Create(ctx, geom.Vec4{1, 0, 0, 0}, nil)
		if err != nil {
			t.Fatalf("physicality: %v", err)
		}
		atoms.SetPhysicality(cp, physID)
	}
	return atoms, store
}

func TestUnknownHandleFailsCleanly(t *testing.T) {
	table := interop.NewTable()
	if _, ok := table.FindRelated(interop.Handle(999), "x", 1); ok {
		t.Fatal("expected an unregistered handle to fail")
	}
	if err := table.Close(interop.Handle(999)); err == nil {
		t.Fatal("expected closing an unregistered handle to error")
	}
}

func TestIngesterRoundTripsThroughHandleTable(t *testing.T) {
	atoms, store := seededConnection(t)
	table := interop.NewTable()
	db := table.Connect(atoms, store)

	ingester, err := table.NewIngester(db, ingest.DefaultConfig())
	if err != nil {
		t.Fatalf("new ingester: %v", err)
	}

	counters, ok := table.Ingest(ingester, []byte("hi there hi there"), "test", "text/plain")
	if !ok {
		msg, _ := table.LastError(ingester)
		t.Fatalf("ingest failed: %s", msg)
	}
	if counters.AtomsProcessed == 0 {
		t.Fatal("expected atoms processed > 0")
	}
}

func TestIngestFailureRecordsLastError(t *testing.T) {
	atoms, store := seededConnection(t)
	table := interop.NewTable()
	db := table.Connect(atoms, store)
	ingester, err := table.NewIngester(db, ingest.DefaultConfig())
	if err != nil {
		t.Fatalf("new ingester: %v", err)
	}

	if _, ok := table.Ingest(ingester, []byte("hi \xff there"), "test", "text/plain"); ok {
		t.Fatal("expected invalid utf-8 to fail ingest")
	}
	msg, hasErr := table.LastError(ingester)
	if !hasErr || msg == "" {
		t.Fatal("expected a recorded last-error message")
	}
}

func TestQueryHandleWrongKindRejected(t *testing.T) {
	atoms, store := seededConnection(t)
	table := interop.NewTable()
	db := table.Connect(atoms, store)
	ingester, err := table.NewIngester(db, ingest.DefaultConfig())
	if err != nil {
		t.Fatalf("new ingester: %v", err)
	}

	if _, ok := table.FindRelated(ingester, "hi", 10); ok {
		t.Fatal("expected an ingester handle to be rejected by FindRelated")
	}
}

func TestWalkHandleDeadEndOnUnconnectedComposition(t *testing.T) {
	atoms, store := seededConnection(t)
	table := interop.NewTable()
	db := table.Connect(atoms, store)

	walkHandle, err := table.NewWalkEngine(db, walk.DefaultConfig())
	if err != nil {
		t.Fatalf("new walk engine: %v", err)
	}

	ctx := context.Background()
	codepoints := []uint32{'h', 'i'}
	compID, _, err := store.Compositions().GetOrCreate(ctx, hash.Codepoints(codepoints), []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("composition: %v", err)
	}

	result, ok := table.Walk(walkHandle, compID)
	if !ok {
		msg, _ := table.LastError(walkHandle)
		t.Fatalf("walk failed: %s", msg)
	}
	if result.Reason != walk.FinishDeadEnd {
		t.Fatalf("reason = %v, want dead_end", result.Reason)
	}
}

func TestQueryFindRelatedViaHandleTable(t *testing.T) {
	_, store := seededConnection(t)
	table := interop.NewTable()
	atoms := mock.NewAtomStore()
	db := table.Connect(atoms, store)

	queryHandle, err := table.NewQueryEngine(db, query.DefaultConfig())
	if err != nil {
		t.Fatalf("new query engine: %v", err)
	}
	related, ok := table.FindRelated(queryHandle, "nonexistent text", 10)
	if ok {
		t.Fatalf("expected find related to fail for an unresolved composition, got %d relations", len(related))
	}
	if msg, hasErr := table.LastError(queryHandle); !hasErr || msg == "" {
		t.Fatal("expected a last-error message for an unresolved composition")
	}
}
