package query_test

import (
	"context"
	"testing"

	"github.com/AHartTN/hartonomous/internal/query"
	"github.com/AHartTN/hartonomous/internal/rating"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/substrate"
	"github.com/AHartTN/hartonomous/pkg/substrate/mock"
)

// newComposition creates a composition hashed the same way
// query.Engine.resolveComposition hashes text (codepoints of tag), so tests
// can look relations up by the plain string later.
func newComposition(t *testing.T, store *mock.Store, tag string) substrate.Composition {
	t.Helper()
	ctx := context.Background()
	codepoints := make([]uint32, 0, len(tag))
	for _, r := range tag {
		codepoints = append(codepoints, uint32(r))
	}
	c, _, err := store.Compositions().GetOrCreate(ctx, hash.Codepoints(codepoints), []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("composition %s: %v", tag, err)
	}
	comp, err := store.Compositions().Get(ctx, c)
	if err != nil {
		t.Fatalf("get composition %s: %v", tag, err)
	}
	return comp
}

func TestFindRelatedRanksByConsensus(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	left := newComposition(t, store, "left")
	right1 := newComposition(t, store, "right1")
	right2 := newComposition(t, store, "right2")

	rel1, _, err := store.Relations().GetOrCreate(ctx, hash.Bytes([]byte("rel1")), []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("relation 1: %v", err)
	}
	if err := store.Relations().AppendSequence(ctx, rel1, []substrate.SequenceChild{
		{ChildID: left.ID, Ordinal: 0, Occurrences: 1},
		{ChildID: right1.ID, Ordinal: 1, Occurrences: 1},
	}); err != nil {
		t.Fatalf("append sequence 1: %v", err)
	}

	rel2, _, err := store.Relations().GetOrCreate(ctx, hash.Bytes([]byte("rel2")), []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("relation 2: %v", err)
	}
	if err := store.Relations().AppendSequence(ctx, rel2, []substrate.SequenceChild{
		{ChildID: left.ID, Ordinal: 0, Occurrences: 1},
		{ChildID: right2.ID, Ordinal: 1, Occurrences: 1},
	}); err != nil {
		t.Fatalf("append sequence 2: %v", err)
	}

	engine := rating.New(store, rating.DefaultConfig())
	// rel2 gets more confirmations, so it should rank above rel1.
	for i := 0; i < 5; i++ {
		if _, err := engine.Observe(ctx, rel2, rating.OutcomeConfirmed, 1.0); err != nil {
			t.Fatalf("observe rel2: %v", err)
		}
	}
	if _, err := engine.Observe(ctx, rel1, rating.OutcomeConfirmed, 1.0); err != nil {
		t.Fatalf("observe rel1: %v", err)
	}

	qe := query.New(store, query.DefaultConfig())
	related, err := qe.FindRelated(ctx, "left", 10)
	if err != nil {
		t.Fatalf("find related: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("expected 2 related relations, got %d", len(related))
	}
	if related[0].RelationID != rel2 {
		t.Fatalf("expected rel2 to rank first, got %v", related[0].RelationID)
	}
}

func TestExtractKeywordsStripsStopwordsAndFlagsProperNouns(t *testing.T) {
	kws := query.ExtractKeywords("What is the Capital of France?")
	gotProper := false
	for _, kw := range kws {
		if kw.Text == "stopword" {
			t.Fatal("stopwords should not survive extraction")
		}
		if kw.Text == "capital" && !kw.ProperNoun {
			t.Fatal("capital was capitalized in source and should be flagged a proper noun")
		}
		if kw.Text == "france" {
			gotProper = true
			if !kw.ProperNoun {
				t.Fatal("france should be flagged a proper noun")
			}
		}
	}
	if !gotProper {
		t.Fatal("expected france to survive keyword extraction")
	}
	for _, kw := range kws {
		if kw.Text == "what" || kw.Text == "is" || kw.Text == "the" || kw.Text == "of" {
			t.Fatalf("stopword %q should have been stripped", kw.Text)
		}
	}
}

func TestFindGravitationalTruthFiltersByMinBaseElo(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	left := newComposition(t, store, "anchor")
	right := newComposition(t, store, "neighbor")

	rel, _, err := store.Relations().GetOrCreate(ctx, hash.Bytes([]byte("rel")), []geom.Vec4{{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("relation: %v", err)
	}
	if err := store.Relations().AppendSequence(ctx, rel, []substrate.SequenceChild{
		{ChildID: left.ID, Ordinal: 0, Occurrences: 1},
		{ChildID: right.ID, Ordinal: 1, Occurrences: 1},
	}); err != nil {
		t.Fatalf("append sequence: %v", err)
	}

	engine := rating.New(store, rating.DefaultConfig())
	if _, err := engine.Observe(ctx, rel, rating.OutcomeConfirmed, 1.0); err != nil {
		t.Fatalf("observe: %v", err)
	}

	qe := query.New(store, query.DefaultConfig())
	truths, err := qe.FindGravitationalTruth(ctx, "anchor", 999999, 10)
	if err != nil {
		t.Fatalf("find gravitational truth: %v", err)
	}
	if len(truths) != 0 {
		t.Fatalf("expected no candidates to pass an unreachable min_base_elo, got %d", len(truths))
	}

	truths, err = qe.FindGravitationalTruth(ctx, "anchor", 0, 10)
	if err != nil {
		t.Fatalf("find gravitational truth: %v", err)
	}
	if len(truths) != 1 {
		t.Fatalf("expected 1 candidate above base_elo 0, got %d", len(truths))
	}
}
