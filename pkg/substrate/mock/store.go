package mock

import (
	"context"
	"math"
	"sync"

	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/hilbert"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// Store is a thread-safe, in-memory implementation of [substrate.Store],
// following the same transactional bulk-load shape as the Postgres-backed
// store (spec.md §4.6): writers stage changes and WithTransaction commits or
// rolls them all back together. Isolation between concurrent transactions is
// not attempted here (this is a test/dev double, not a production database);
// WithTransaction snapshots state before running fn and restores it whole on
// error, which is sufficient for single-writer use.
type Store struct {
	mu sync.Mutex

	compositions map[ident.ID]substrate.Composition
	compByHash   map[hash.H16]ident.ID
	compSeq      map[ident.ID][]substrate.CompositionSequenceEntry

	relations map[ident.ID]substrate.Relation
	relByHash map[hash.H16]ident.ID
	relSeq    map[ident.ID][]substrate.RelationSequenceEntry
	// outgoingIndex maps a composition id to the relations whose first child
	// is that composition, supporting WalkEngine/Query traversal.
	outgoingIndex map[ident.ID][]ident.ID

	evidence           map[int64]substrate.RelationEvidence
	evidenceByRelation map[ident.ID][]int64
	nextEvidenceID     int64

	physicality map[ident.ID]substrate.Physicality
	physSeq     uint64

	ratings map[ident.ID]substrate.RelationRating

	contents      map[ident.ID]substrate.Content
	contentByHash map[hash.H16]ident.ID
}

var _ substrate.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		compositions:       make(map[ident.ID]substrate.Composition),
		compByHash:         make(map[hash.H16]ident.ID),
		compSeq:            make(map[ident.ID][]substrate.CompositionSequenceEntry),
		relations:          make(map[ident.ID]substrate.Relation),
		relByHash:          make(map[hash.H16]ident.ID),
		relSeq:             make(map[ident.ID][]substrate.RelationSequenceEntry),
		outgoingIndex:      make(map[ident.ID][]ident.ID),
		evidence:           make(map[int64]substrate.RelationEvidence),
		evidenceByRelation: make(map[ident.ID][]int64),
		physicality:        make(map[ident.ID]substrate.Physicality),
		ratings:            make(map[ident.ID]substrate.RelationRating),
		contents:           make(map[ident.ID]substrate.Content),
		contentByHash:      make(map[hash.H16]ident.ID),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Store accessors
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) Compositions() substrate.CompositionStore { return compositionStore{s} }
func (s *Store) Relations() substrate.RelationStore       { return relationStore{s} }
func (s *Store) Physicality() substrate.PhysicalityStore  { return physicalityStore{s} }
func (s *Store) Ratings() substrate.RatingStore           { return ratingStore{s} }
func (s *Store) Contents() substrate.ContentStore         { return contentStore{s} }

// WithTransaction implements [substrate.Store.WithTransaction].
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx substrate.Store) error) error {
	s.mu.Lock()
	snap := s.cloneLocked()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.restoreLocked(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

type storeSnapshot struct {
	compositions       map[ident.ID]substrate.Composition
	compByHash         map[hash.H16]ident.ID
	compSeq            map[ident.ID][]substrate.CompositionSequenceEntry
	relations          map[ident.ID]substrate.Relation
	relByHash          map[hash.H16]ident.ID
	relSeq             map[ident.ID][]substrate.RelationSequenceEntry
	outgoingIndex      map[ident.ID][]ident.ID
	evidence           map[int64]substrate.RelationEvidence
	evidenceByRelation map[ident.ID][]int64
	nextEvidenceID     int64
	physicality        map[ident.ID]substrate.Physicality
	physSeq            uint64
	ratings            map[ident.ID]substrate.RelationRating
	contents           map[ident.ID]substrate.Content
	contentByHash      map[hash.H16]ident.ID
}

func (s *Store) cloneLocked() storeSnapshot {
	clone := storeSnapshot{
		compositions:       make(map[ident.ID]substrate.Composition, len(s.compositions)),
		compByHash:         make(map[hash.H16]ident.ID, len(s.compByHash)),
		compSeq:            make(map[ident.ID][]substrate.CompositionSequenceEntry, len(s.compSeq)),
		relations:          make(map[ident.ID]substrate.Relation, len(s.relations)),
		relByHash:          make(map[hash.H16]ident.ID, len(s.relByHash)),
		relSeq:             make(map[ident.ID][]substrate.RelationSequenceEntry, len(s.relSeq)),
		outgoingIndex:      make(map[ident.ID][]ident.ID, len(s.outgoingIndex)),
		evidence:           make(map[int64]substrate.RelationEvidence, len(s.evidence)),
		evidenceByRelation: make(map[ident.ID][]int64, len(s.evidenceByRelation)),
		nextEvidenceID:     s.nextEvidenceID,
		physicality:        make(map[ident.ID]substrate.Physicality, len(s.physicality)),
		physSeq:            s.physSeq,
		ratings:            make(map[ident.ID]substrate.RelationRating, len(s.ratings)),
		contents:           make(map[ident.ID]substrate.Content, len(s.contents)),
		contentByHash:      make(map[hash.H16]ident.ID, len(s.contentByHash)),
	}
	for k, v := range s.compositions {
		clone.compositions[k] = v
	}
	for k, v := range s.compByHash {
		clone.compByHash[k] = v
	}
	for k, v := range s.compSeq {
		clone.compSeq[k] = append([]substrate.CompositionSequenceEntry(nil), v...)
	}
	for k, v := range s.relations {
		clone.relations[k] = v
	}
	for k, v := range s.relByHash {
		clone.relByHash[k] = v
	}
	for k, v := range s.relSeq {
		clone.relSeq[k] = append([]substrate.RelationSequenceEntry(nil), v...)
	}
	for k, v := range s.outgoingIndex {
		clone.outgoingIndex[k] = append([]ident.ID(nil), v...)
	}
	for k, v := range s.evidence {
		clone.evidence[k] = v
	}
	for k, v := range s.evidenceByRelation {
		clone.evidenceByRelation[k] = append([]int64(nil), v...)
	}
	for k, v := range s.physicality {
		clone.physicality[k] = v
	}
	for k, v := range s.ratings {
		clone.ratings[k] = v
	}
	for k, v := range s.contents {
		clone.contents[k] = v
	}
	for k, v := range s.contentByHash {
		clone.contentByHash[k] = v
	}
	return clone
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.compositions = snap.compositions
	s.compByHash = snap.compByHash
	s.compSeq = snap.compSeq
	s.relations = snap.relations
	s.relByHash = snap.relByHash
	s.relSeq = snap.relSeq
	s.outgoingIndex = snap.outgoingIndex
	s.evidence = snap.evidence
	s.evidenceByRelation = snap.evidenceByRelation
	s.nextEvidenceID = snap.nextEvidenceID
	s.physicality = snap.physicality
	s.physSeq = snap.physSeq
	s.ratings = snap.ratings
	s.contents = snap.contents
	s.contentByHash = snap.contentByHash
}

// newPhysicalityIDLocked derives a deterministic-looking but collision-free
// id for a physicality row: the high word is a content hash of the centroid
// bytes (so two identical centroids created independently still tend to
// land near each other under hash-based sharding), the low word is a
// monotonic counter guaranteeing uniqueness regardless of hash collisions.
func (s *Store) newPhysicalityIDLocked(centroid geom.Vec4) ident.ID {
	s.physSeq++
	var buf [32]byte
	for i, f := range centroid {
		bits := math.Float64bits(f)
		for b := 0; b < 8; b++ {
			buf[i*8+b] = byte(bits >> (8 * uint(7-b)))
		}
	}
	h := hash.Bytes(buf[:])
	return ident.ID{Hi: beUint64(h[:8]), Lo: s.physSeq}
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// createPhysicalityLocked computes and stores a Physicality row from a
// centroid, matching spec.md §4.6's "physicality rows are computed at
// parent creation" rule: the Hilbert code derives from (centroid+1)/2
// mapped into [0,1]⁴.
func (s *Store) createPhysicalityLocked(centroid geom.Vec4, trajectory []geom.Vec4) ident.ID {
	unitCube := [4]float64{
		(centroid[0] + 1) / 2,
		(centroid[1] + 1) / 2,
		(centroid[2] + 1) / 2,
		(centroid[3] + 1) / 2,
	}
	code := hilbert.Encode(unitCube)
	id := s.newPhysicalityIDLocked(centroid)
	s.physicality[id] = substrate.Physicality{
		ID:         id,
		Hilbert:    code.Bytes(),
		Centroid:   centroid,
		Trajectory: trajectory,
	}
	return id
}
