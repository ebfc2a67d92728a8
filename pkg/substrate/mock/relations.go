package mock

import (
	"context"
	"sort"
	"time"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type relationStore struct{ s *Store }

var _ substrate.RelationStore = relationStore{}

func (r relationStore) GetOrCreate(ctx context.Context, h hash.H16, compositionCentroids []geom.Vec4) (ident.ID, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.relByHash[h]; ok {
		return id, false, nil
	}

	centroid := geom.Centroid(compositionCentroids)
	physID := r.s.createPhysicalityLocked(centroid, nil)
	id := ident.FromHash(h, false, 1)
	r.s.relations[id] = substrate.Relation{ID: id, PhysicalityID: physID}
	r.s.relByHash[h] = id
	return id, true, nil
}

func (r relationStore) AppendSequence(ctx context.Context, parentID ident.ID, children []substrate.SequenceChild) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing := r.s.relSeq[parentID]
	byOrdinal := make(map[uint32]int, len(existing))
	for i, e := range existing {
		byOrdinal[e.Ordinal] = i
	}

	for _, ch := range children {
		if i, ok := byOrdinal[ch.Ordinal]; ok {
			existing[i].Occurrences += ch.Occurrences
			continue
		}
		existing = append(existing, substrate.RelationSequenceEntry{
			RelationID:    parentID,
			CompositionID: ch.ChildID,
			Ordinal:       ch.Ordinal,
			Occurrences:   ch.Occurrences,
		})
		byOrdinal[ch.Ordinal] = len(existing) - 1
	}

	sort.Slice(existing, func(i, j int) bool { return existing[i].Ordinal < existing[j].Ordinal })
	for i, e := range existing {
		if e.Ordinal != uint32(i) {
			return errs.New(errs.InvalidInput, "relation sequence for %s has a gap at ordinal %d", parentID, i)
		}
	}

	r.s.relSeq[parentID] = existing

	// The first child composition is the relation's traversal anchor: the
	// query and walk engines fetch "outgoing relations of the current
	// composition" via this index (spec.md §4.10, §4.11).
	if len(existing) > 0 {
		anchor := existing[0].CompositionID
		if !containsID(r.s.outgoingIndex[anchor], parentID) {
			r.s.outgoingIndex[anchor] = append(r.s.outgoingIndex[anchor], parentID)
		}
	}

	return nil
}

func containsID(ids []ident.ID, target ident.ID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func (r relationStore) AttachEvidence(ctx context.Context, relationID, contentID ident.ID, source substrate.SourceType, position uint32, weight float64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.relations[relationID]; !ok {
		return 0, errs.New(errs.NotFound, "no relation %s", relationID)
	}

	r.s.nextEvidenceID++
	id := r.s.nextEvidenceID
	r.s.evidence[id] = substrate.RelationEvidence{
		ID:         id,
		RelationID: relationID,
		ContentID:  contentID,
		Source:     source,
		Position:   position,
		Weight:     weight,
		Created:    time.Now(),
	}
	r.s.evidenceByRelation[relationID] = append(r.s.evidenceByRelation[relationID], id)
	return id, nil
}

func (r relationStore) Get(ctx context.Context, id ident.ID) (substrate.Relation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rel, ok := r.s.relations[id]
	if !ok {
		return substrate.Relation{}, errs.New(errs.NotFound, "no relation %s", id)
	}
	return rel, nil
}

func (r relationStore) Sequence(ctx context.Context, parentID ident.ID) ([]substrate.RelationSequenceEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]substrate.RelationSequenceEntry(nil), r.s.relSeq[parentID]...), nil
}

func (r relationStore) Evidence(ctx context.Context, relationID ident.ID) ([]substrate.RelationEvidence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := r.s.evidenceByRelation[relationID]
	out := make([]substrate.RelationEvidence, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.s.evidence[id])
	}
	return out, nil
}

func (r relationStore) Outgoing(ctx context.Context, compositionID ident.ID) ([]substrate.Relation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := r.s.outgoingIndex[compositionID]
	out := make([]substrate.Relation, 0, len(ids))
	for _, id := range ids {
		if rel, ok := r.s.relations[id]; ok {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (r relationStore) PurgeEvidenceBySource(ctx context.Context, sourceIdentifier string) ([]ident.ID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var affectedContent []ident.ID
	for id, c := range r.s.contents {
		if c.SourceIdentifier == sourceIdentifier {
			affectedContent = append(affectedContent, id)
		}
	}
	if len(affectedContent) == 0 {
		return nil, nil
	}
	affectedSet := make(map[ident.ID]bool, len(affectedContent))
	for _, id := range affectedContent {
		affectedSet[id] = true
	}

	affectedRelations := make(map[ident.ID]bool)
	for evidenceID, e := range r.s.evidence {
		if !affectedSet[e.ContentID] {
			continue
		}
		affectedRelations[e.RelationID] = true
		delete(r.s.evidence, evidenceID)
		remaining := r.s.evidenceByRelation[e.RelationID][:0]
		for _, id := range r.s.evidenceByRelation[e.RelationID] {
			if id != evidenceID {
				remaining = append(remaining, id)
			}
		}
		r.s.evidenceByRelation[e.RelationID] = remaining
	}

	out := make([]ident.ID, 0, len(affectedRelations))
	for id := range affectedRelations {
		out = append(out, id)
	}
	return out, nil
}

func (r relationStore) Delete(ctx context.Context, id ident.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.relations, id)
	for h, relID := range r.s.relByHash {
		if relID == id {
			delete(r.s.relByHash, h)
			break
		}
	}
	delete(r.s.relSeq, id)
	for anchor, ids := range r.s.outgoingIndex {
		filtered := ids[:0]
		for _, rid := range ids {
			if rid != id {
				filtered = append(filtered, rid)
			}
		}
		r.s.outgoingIndex[anchor] = filtered
	}
	delete(r.s.ratings, id)
	for _, evID := range r.s.evidenceByRelation[id] {
		delete(r.s.evidence, evID)
	}
	delete(r.s.evidenceByRelation, id)
	return nil
}
