package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
	"github.com/AHartTN/hartonomous/pkg/substrate/mock"
)

func TestAtomStoreSealsAfterSeed(t *testing.T) {
	ctx := context.Background()
	store := mock.NewAtomStore()

	codepoints := []uint32{65, 66, 67}
	iter := func(yield func(uint32) bool) {
		for _, cp := range codepoints {
			if !yield(cp) {
				return
			}
		}
	}

	if err := store.Seed(ctx, iter); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sealed, err := store.Sealed(ctx)
	if err != nil || !sealed {
		t.Fatalf("expected sealed=true, err=nil; got sealed=%v err=%v", sealed, err)
	}

	if err := store.Seed(ctx, iter); !errs.Is(err, errs.SealedFoundation) {
		t.Fatalf("expected SealedFoundation on reseed, got %v", err)
	}

	a, err := store.LookupByCodepoint(ctx, 65)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if a.Codepoint != 65 {
		t.Fatalf("codepoint = %d, want 65", a.Codepoint)
	}

	_, err = store.LookupByHash(ctx, a.Hash)
	if err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}
}

func TestCompositionGetOrCreateDedups(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	h := hash.Bytes([]byte("hello"))
	centroids := []geom.Vec4{{1, 0, 0, 0}, {0, 1, 0, 0}}

	id1, created1, err := store.Compositions().GetOrCreate(ctx, h, centroids)
	if err != nil || !created1 {
		t.Fatalf("first GetOrCreate: id=%v created=%v err=%v", id1, created1, err)
	}
	id2, created2, err := store.Compositions().GetOrCreate(ctx, h, centroids)
	if err != nil || created2 {
		t.Fatalf("second GetOrCreate should not create: created=%v err=%v", created2, err)
	}
	if id1 != id2 {
		t.Fatalf("dedup ids differ: %v != %v", id1, id2)
	}
}

func TestAppendSequenceDetectsGap(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	h := hash.Bytes([]byte("ngram"))
	id, _, err := store.Compositions().GetOrCreate(ctx, h, []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = store.Compositions().AppendSequence(ctx, id, []substrate.SequenceChild{
		{ChildID: id, Ordinal: 0, Occurrences: 1},
		{ChildID: id, Ordinal: 2, Occurrences: 1}, // gap at ordinal 1
	})
	if !errs.Is(err, errs.InvalidInput) {
		t.Fatalf("expected InvalidInput for gapped ordinals, got %v", err)
	}
}

func TestAppendSequenceIncrementsDuplicateOrdinal(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	h := hash.Bytes([]byte("ngram2"))
	id, _, _ := store.Compositions().GetOrCreate(ctx, h, []geom.Vec4{{1, 0, 0, 0}})

	if err := store.Compositions().AppendSequence(ctx, id, []substrate.SequenceChild{{ChildID: id, Ordinal: 0, Occurrences: 1}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Compositions().AppendSequence(ctx, id, []substrate.SequenceChild{{ChildID: id, Ordinal: 0, Occurrences: 2}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	seq, err := store.Compositions().Sequence(ctx, id)
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if len(seq) != 1 || seq[0].Occurrences != 3 {
		t.Fatalf("expected single entry with occurrences=3, got %+v", seq)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	h := hash.Bytes([]byte("rollback-me"))

	sentinel := errors.New("boom")
	err := store.WithTransaction(ctx, func(ctx context.Context, tx substrate.Store) error {
		if _, _, err := tx.Compositions().GetOrCreate(ctx, h, []geom.Vec4{{1, 0, 0, 0}}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	id := ident.FromHash(h, false, 0)
	if _, err := store.Compositions().Get(ctx, id); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected rolled-back composition to be absent, got %v", err)
	}
}

func TestPurgeEvidenceReportsAffectedRelations(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()

	compHash := hash.Bytes([]byte("comp"))
	compID, _, _ := store.Compositions().GetOrCreate(ctx, compHash, []geom.Vec4{{1, 0, 0, 0}})
	relHash := hash.Bytes([]byte("rel"))
	relID, _, _ := store.Relations().GetOrCreate(ctx, relHash, []geom.Vec4{{1, 0, 0, 0}})
	if err := store.Relations().AppendSequence(ctx, relID, []substrate.SequenceChild{{ChildID: compID, Ordinal: 0, Occurrences: 1}}); err != nil {
		t.Fatalf("append relation sequence: %v", err)
	}

	contentID, err := store.Contents().GetOrCreate(ctx, hash.Bytes([]byte("content")), 10, "text/plain", "source-a")
	if err != nil {
		t.Fatalf("content create: %v", err)
	}
	if _, err := store.Relations().AttachEvidence(ctx, relID, contentID, substrate.SourceIngestCooccurrence, 0, 1.0); err != nil {
		t.Fatalf("attach evidence: %v", err)
	}

	affected, err := store.Relations().PurgeEvidenceBySource(ctx, "source-a")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(affected) != 1 || affected[0] != relID {
		t.Fatalf("expected relation %v affected, got %v", relID, affected)
	}

	remaining, err := store.Relations().Evidence(ctx, relID)
	if err != nil || len(remaining) != 0 {
		t.Fatalf("expected no remaining evidence, got %v err=%v", remaining, err)
	}
}
