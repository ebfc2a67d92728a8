package rating_test

import (
	"context"
	"math"
	"testing"

	"github.com/AHartTN/hartonomous/internal/rating"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
	"github.com/AHartTN/hartonomous/pkg/substrate/mock"
)

// newTestRelation creates a relation (with a single-composition sequence so
// it passes store validation) and a content row, returning both ids.
func newTestRelation(t *testing.T, store *mock.Store) (relationID, contentID ident.ID) {
	t.Helper()
	ctx := context.Background()

	comp, _, err := store.Compositions().GetOrCreate(ctx, hash.Bytes([]byte("comp")), []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("composition: %v", err)
	}
	rel, _, err := store.Relations().GetOrCreate(ctx, hash.Bytes([]byte("rel")), []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("relation: %v", err)
	}
	if err := store.Relations().AppendSequence(ctx, rel, []substrate.SequenceChild{{ChildID: comp, Ordinal: 0, Occurrences: 1}}); err != nil {
		t.Fatalf("append sequence: %v", err)
	}
	content, err := store.Contents().GetOrCreate(ctx, hash.Bytes([]byte("content")), 1, "text/plain", "src")
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	return rel, content
}

func TestObserveMovesBaseEloTowardConfirmedOutcome(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	relationID, _ := newTestRelation(t, store)
	engine := rating.New(store, rating.DefaultConfig())

	r1, err := engine.Observe(ctx, relationID, rating.OutcomeConfirmed, 1.0)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if r1.BaseElo <= 1500 {
		t.Fatalf("expected base_elo to rise above default 1500 after a confirmed outcome, got %v", r1.BaseElo)
	}
	if r1.Observations != 1 {
		t.Fatalf("observations = %d, want 1", r1.Observations)
	}

	r2, err := engine.Observe(ctx, relationID, rating.OutcomeConfirmed, 1.0)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if r2.ConsensusElo <= r1.ConsensusElo {
		t.Fatalf("expected consensus_elo to grow: %v -> %v", r1.ConsensusElo, r2.ConsensusElo)
	}
	if r2.BaseElo > 4000 || r2.BaseElo < 0 {
		t.Fatalf("base_elo out of clamp range: %v", r2.BaseElo)
	}
}

func TestObserveClampsBaseEloToFourThousand(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	relationID, _ := newTestRelation(t, store)
	engine := rating.New(store, rating.Config{KFactor: 1e7, BaseDefault: 3999})

	r, err := engine.Observe(ctx, relationID, rating.OutcomeConfirmed, 1.0)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if r.BaseElo != 4000 {
		t.Fatalf("base_elo = %v, want clamped to 4000", r.BaseElo)
	}
}

func TestRecomputePrunesRelationWithNoRemainingEvidence(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	relationID, _ := newTestRelation(t, store)
	engine := rating.New(store, rating.DefaultConfig())

	if _, err := engine.Observe(ctx, relationID, rating.OutcomeConfirmed, 1.0); err != nil {
		t.Fatalf("observe: %v", err)
	}

	if err := engine.Recompute(ctx, relationID); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	if _, err := store.Relations().Get(ctx, relationID); err == nil {
		t.Fatal("expected relation with zero evidence to be pruned")
	}
}

func TestRecomputeReplaysRemainingEvidenceInOrder(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	relationID, contentID := newTestRelation(t, store)

	if _, err := store.Relations().AttachEvidence(ctx, relationID, contentID, substrate.SourceIngestCooccurrence, 0, 1.0); err != nil {
		t.Fatalf("attach evidence: %v", err)
	}
	if _, err := store.Relations().AttachEvidence(ctx, relationID, contentID, substrate.SourceIngestCooccurrence, 1, 0.5); err != nil {
		t.Fatalf("attach evidence: %v", err)
	}

	engine := rating.New(store, rating.DefaultConfig())
	if err := engine.Recompute(ctx, relationID); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	r, err := store.Ratings().Get(ctx, relationID)
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	if r.Observations != 2 {
		t.Fatalf("observations = %d, want 2", r.Observations)
	}
	if math.IsNaN(r.BaseElo) || math.IsNaN(r.ConsensusElo) {
		t.Fatal("recomputed rating contains NaN")
	}
}
