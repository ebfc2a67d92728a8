package ngram_test

import (
	"testing"

	"github.com/AHartTN/hartonomous/internal/ngram"
	"github.com/AHartTN/hartonomous/pkg/ident"
)

func atomID(cp uint32) ident.ID {
	return ident.ID{Hi: 0, Lo: uint64(cp)}
}

func codepointOf(ids map[ident.ID]uint32) func(ident.ID) uint32 {
	return func(id ident.ID) uint32 { return ids[id] }
}

func TestExtractPromotesRepeatedTrigram(t *testing.T) {
	// "the cat sat" repeated three times, interspersed with filler, so the
	// trigram repeats (MIN_OCC default 2) without needing an LLR boost.
	seq := []uint32{1, 2, 3, 9, 1, 2, 3, 9, 1, 2, 3}
	ids := make(map[ident.ID]uint32)
	atoms := make([]ident.ID, len(seq))
	for i, cp := range seq {
		id := atomID(cp)
		atoms[i] = id
		ids[id] = cp
	}

	cands := ngram.Extract(atoms, codepointOf(ids), ngram.DefaultConfig())

	found := false
	for _, c := range cands {
		if len(c.AtomIDs) == 3 && c.AtomIDs[0] == atomID(1) && c.AtomIDs[1] == atomID(2) && c.AtomIDs[2] == atomID(3) {
			found = true
			if c.Occurrences != 3 {
				t.Fatalf("occurrences = %d, want 3", c.Occurrences)
			}
		}
	}
	if !found {
		t.Fatal("expected the repeated trigram [1,2,3] to be promoted")
	}
}

func TestExtractRejectsShortSequence(t *testing.T) {
	atoms := []ident.ID{atomID(1), atomID(2)}
	cands := ngram.Extract(atoms, func(ident.ID) uint32 { return 0 }, ngram.DefaultConfig())
	if cands != nil {
		t.Fatalf("expected nil for a sequence shorter than the minimum n-gram length, got %v", cands)
	}
}

func TestExtractDropsRedundantShorterCandidateForFullyCoveringLonger(t *testing.T) {
	// [1,2,3,4] repeats three times; its prefix trigram [1,2,3] also
	// qualifies on repetition alone, but since the 4-gram covers it with
	// equal occurrence count the shorter candidate should be dropped.
	seq := []uint32{1, 2, 3, 4, 9, 1, 2, 3, 4, 9, 1, 2, 3, 4}
	ids := make(map[ident.ID]uint32)
	atoms := make([]ident.ID, len(seq))
	for i, cp := range seq {
		id := atomID(cp)
		atoms[i] = id
		ids[id] = cp
	}

	cands := ngram.Extract(atoms, codepointOf(ids), ngram.DefaultConfig())

	for _, c := range cands {
		if len(c.AtomIDs) == 3 && c.AtomIDs[0] == atomID(1) && c.AtomIDs[1] == atomID(2) && c.AtomIDs[2] == atomID(3) {
			t.Fatal("expected the shorter trigram to be dropped in favor of the covering 4-gram")
		}
	}
}
