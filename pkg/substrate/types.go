// Package substrate defines the content-addressed semantic graph's domain
// types and storage interfaces: Atom, Composition, Relation, Physicality,
// RelationRating, RelationEvidence, and Content (spec.md §3, components
// C5/C6).
//
// The interfaces are public so that external packages can supply alternative
// storage backends (Postgres/pgvector, an in-memory mock, …) without
// depending on the ingestion, rating, or query engines' internals.
//
// Every implementation must be safe for concurrent use.
package substrate

import (
	"time"

	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
)

// Atom is the immutable foundation row: one per Unicode scalar value
// (spec.md §3, Invariant A1/A2).
type Atom struct {
	ID            ident.ID
	Codepoint     uint32
	Hash          hash.H16
	PhysicalityID ident.ID
}

// Composition is an ordered sequence of atoms (an n-gram) promoted after
// crossing a significance threshold (spec.md §3, Invariants C1/C2).
type Composition struct {
	ID            ident.ID
	Hash          hash.H16
	PhysicalityID ident.ID
}

// CompositionSequenceEntry is one edge of the ordered Composition→Atom edge
// list (spec.md §3, Invariant C3).
type CompositionSequenceEntry struct {
	CompositionID ident.ID
	AtomID        ident.ID
	Ordinal       uint32
	Occurrences   uint32
}

// Relation is an ordered tuple of compositions observed to co-occur within a
// window (spec.md §3). Its identity is the hash of the ordered child
// composition ids, not a content hash of its own.
type Relation struct {
	ID            ident.ID
	PhysicalityID ident.ID
}

// RelationSequenceEntry is one edge of the ordered Relation→Composition edge
// list, sharing the same gap-free ordinal invariant as CompositionSequence.
type RelationSequenceEntry struct {
	RelationID    ident.ID
	CompositionID ident.ID
	Ordinal       uint32
	Occurrences   uint32
}

// Physicality is the geometric facet shared by atoms, compositions, and
// relations (spec.md §3, Invariants P1/P2).
type Physicality struct {
	ID         ident.ID
	Hilbert    [16]byte
	Centroid   geom.Vec4
	Trajectory []geom.Vec4 // optional polyline in ℝ⁴; nil when absent
}

// RelationRating is the dual-ELO quality/frequency score attached to a
// relation (spec.md §3, §4.9, Invariants R1/R2/R3).
type RelationRating struct {
	RelationID   ident.ID
	BaseElo      float64
	ConsensusElo float64
	Observations uint64
	KFactor      float64
}

// SourceType classifies where a piece of RelationEvidence came from.
type SourceType int16

const (
	SourceUnknown SourceType = iota
	SourceIngestCooccurrence
	SourceQueryFeedback
)

// RelationEvidence is a provenance record supporting a relation, used for
// GDPR-style surgical deletion: purging all evidence of a source and
// recomputing ELO must leave the graph consistent (spec.md §3, §4.9).
type RelationEvidence struct {
	ID         int64
	RelationID ident.ID
	ContentID  ident.ID
	Source     SourceType
	Position   uint32
	Weight     float64
	Created    time.Time
}

// Content is a raw provenance record referenced by evidence (spec.md §3).
type Content struct {
	ID               ident.ID
	Hash             hash.H16
	Size             uint64
	Mime             string
	SourceIdentifier string
}
