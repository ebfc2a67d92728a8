package mock

import (
	"context"
	"sort"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type compositionStore struct{ s *Store }

var _ substrate.CompositionStore = compositionStore{}

func (c compositionStore) GetOrCreate(ctx context.Context, h hash.H16, atomCentroids []geom.Vec4) (ident.ID, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if id, ok := c.s.compByHash[h]; ok {
		return id, false, nil
	}

	centroid := geom.Centroid(atomCentroids)
	physID := c.s.createPhysicalityLocked(centroid, nil)
	id := ident.FromHash(h, false, 0)
	c.s.compositions[id] = substrate.Composition{ID: id, Hash: h, PhysicalityID: physID}
	c.s.compByHash[h] = id
	return id, true, nil
}

func (c compositionStore) Lookup(ctx context.Context, h hash.H16) (ident.ID, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	id, ok := c.s.compByHash[h]
	return id, ok, nil
}

func (c compositionStore) AppendSequence(ctx context.Context, parentID ident.ID, children []substrate.SequenceChild) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	existing := c.s.compSeq[parentID]
	byOrdinal := make(map[uint32]int, len(existing))
	for i, e := range existing {
		byOrdinal[e.Ordinal] = i
	}

	for _, ch := range children {
		if i, ok := byOrdinal[ch.Ordinal]; ok {
			existing[i].Occurrences += ch.Occurrences
			continue
		}
		existing = append(existing, substrate.CompositionSequenceEntry{
			CompositionID: parentID,
			AtomID:        ch.ChildID,
			Ordinal:       ch.Ordinal,
			Occurrences:   ch.Occurrences,
		})
		byOrdinal[ch.Ordinal] = len(existing) - 1
	}

	sort.Slice(existing, func(i, j int) bool { return existing[i].Ordinal < existing[j].Ordinal })
	for i, e := range existing {
		if e.Ordinal != uint32(i) {
			return errs.New(errs.InvalidInput, "composition sequence for %s has a gap at ordinal %d", parentID, i)
		}
	}

	c.s.compSeq[parentID] = existing
	return nil
}

func (c compositionStore) Get(ctx context.Context, id ident.ID) (substrate.Composition, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	comp, ok := c.s.compositions[id]
	if !ok {
		return substrate.Composition{}, errs.New(errs.NotFound, "no composition %s", id)
	}
	return comp, nil
}

func (c compositionStore) Sequence(ctx context.Context, parentID ident.ID) ([]substrate.CompositionSequenceEntry, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := append([]substrate.CompositionSequenceEntry(nil), c.s.compSeq[parentID]...)
	return out, nil
}
