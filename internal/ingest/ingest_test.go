package ingest_test

import (
	"context"
	"testing"

	"github.com/AHartTN/hartonomous/internal/ingest"
	"github.com/AHartTN/hartonomous/pkg/fibonacci"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/substrate/mock"
)

// seededAtoms builds an AtomStore and a Store seeded with atoms for the
// given codepoints, each given a distinct Fibonacci point on S3 so
// centroid/Hilbert derivation downstream has real geometry to work with.
func seededAtoms(t *testing.T, codepoints []uint32) (*mock.AtomStore, *mock.Store) {
	t.Helper()
	ctx := context.Background()

	atoms := mock.NewAtomStore()
	if err := atoms.Seed(ctx, func(yield func(uint32) bool) {
		for _, cp := range codepoints {
			if !yield(cp) {
				return
			}
		}
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := mock.NewStore()
	for _, cp := range codepoints {
		point := fibonacci.HashToPoint(hash.Codepoint(cp))
		physID, err := store.Physicality().Create(ctx, point, []geom.Vec4{point})
		if err != nil {
			t.Fatalf("create physicality: %v", err)
		}
		atoms.SetPhysicality(cp, physID)
	}
	return atoms, store
}

func TestIngestRejectsUnknownCodepoint(t *testing.T) {
	ctx := context.Background()
	atoms, store := seededAtoms(t, []uint32{'a', 'b', 'c'})
	pipeline := ingest.New(atoms, store, ingest.DefaultConfig())

	_, err := pipeline.Ingest(ctx, []byte("abz"), "test", "text/plain")
	if err == nil {
		t.Fatal("expected ingest of an unseeded codepoint to fail")
	}
}

func TestIngestRejectsInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	atoms, store := seededAtoms(t, []uint32{'a'})
	pipeline := ingest.New(atoms, store, ingest.DefaultConfig())

	_, err := pipeline.Ingest(ctx, []byte{0xff, 0xfe}, "test", "text/plain")
	if err == nil {
		t.Fatal("expected malformed UTF-8 to be rejected")
	}
}

func TestIngestPromotesRepeatedTrigramAndCounts(t *testing.T) {
	ctx := context.Background()
	codepoints := []uint32{'t', 'h', 'e', ' ', 'c', 'a', 't'}
	atoms, store := seededAtoms(t, codepoints)
	pipeline := ingest.New(atoms, store, ingest.DefaultConfig())

	text := "the cat the cat the cat"
	counters, err := pipeline.Ingest(ctx, []byte(text), "doc-1", "text/plain")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if counters.AtomsProcessed != len(text) {
		t.Fatalf("atoms processed = %d, want %d", counters.AtomsProcessed, len(text))
	}
	if counters.CompositionsCreated == 0 {
		t.Fatal("expected at least one significant composition to be created")
	}
	if counters.OriginalBytes != len(text) {
		t.Fatalf("original bytes = %d, want %d", counters.OriginalBytes, len(text))
	}
	if counters.CompressionRatio() <= 0 {
		t.Fatalf("compression ratio should be positive, got %v", counters.CompressionRatio())
	}
}

func TestIngestRollsBackEntirelyOnFailure(t *testing.T) {
	ctx := context.Background()
	atoms, store := seededAtoms(t, []uint32{'a', 'b'})
	pipeline := ingest.New(atoms, store, ingest.DefaultConfig())

	before, err := store.Contents().GetOrCreate(ctx, hash.Bytes([]byte("marker")), 1, "text/plain", "marker")
	if err != nil {
		t.Fatalf("seed marker content: %v", err)
	}

	_, err = pipeline.Ingest(ctx, []byte("abz"), "test", "text/plain")
	if err == nil {
		t.Fatal("expected ingest to fail on unknown codepoint")
	}

	after, err := store.Contents().Get(ctx, before)
	if err != nil {
		t.Fatalf("marker content should survive a rolled-back unrelated ingest: %v", err)
	}
	if after.ID != before {
		t.Fatal("marker content id changed unexpectedly")
	}
}
