package substrate

import (
	"context"

	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
)

// ─────────────────────────────────────────────────────────────────────────────
// AtomStore (C5)
// ─────────────────────────────────────────────────────────────────────────────

// CodepointIterator yields the reference set of Unicode scalar values used to
// seed an AtomStore, without committing callers to a literal count (the
// count of valid scalars is a property of the Unicode version in use, not a
// constant this package should hardcode).
type CodepointIterator = func(yield func(uint32) bool)

// AtomStore is the immutable foundation store (spec.md §4.5). It must be
// safe for concurrent use; after Seed commits, the store is sealed and any
// further write is rejected with errs.SealedFoundation.
type AtomStore interface {
	// Seed writes the full reference codepoint set in a single transaction.
	// Idempotent: calling Seed again on an unsealed store upserts by
	// codepoint rather than erroring. Calling Seed on an already-sealed
	// store fails with errs.SealedFoundation.
	Seed(ctx context.Context, reference CodepointIterator) error

	// LookupByCodepoint retrieves the atom for a Unicode scalar value.
	// Returns errs.NotFound when no atom has that codepoint.
	LookupByCodepoint(ctx context.Context, cp uint32) (Atom, error)

	// LookupByHash retrieves the atom whose content hash matches h.
	// Returns errs.NotFound when no atom has that hash.
	LookupByHash(ctx context.Context, h hash.H16) (Atom, error)

	// LookupByID retrieves the atom with the given id, the reverse direction
	// of LookupByCodepoint/LookupByHash. Used by the walk engine to resolve
	// a CompositionSequence's atom ids back to codepoints when rendering
	// output text (spec.md §4.11). Returns errs.NotFound when no atom has
	// that id.
	LookupByID(ctx context.Context, id ident.ID) (Atom, error)

	// Sealed reports whether Seed has committed at least once.
	Sealed(ctx context.Context) (bool, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// CompositionStore / RelationStore (C6) supporting types
// ─────────────────────────────────────────────────────────────────────────────

// SequenceChild is one (child id, ordinal, occurrences) tuple passed to
// AppendSequence. Duplicate ordinals for the same parent increment
// Occurrences rather than replacing the row (spec.md §4.6).
type SequenceChild struct {
	ChildID     ident.ID
	Ordinal     uint32
	Occurrences uint32
}

// CompositionStore handles Composition rows and their CompositionSequence
// edges (spec.md §4.6). GetOrCreate is atomic: on concurrent creation of the
// same hash, the lowest id wins and every other caller reads back the
// winner's row (spec.md §5).
type CompositionStore interface {
	// GetOrCreate returns the existing composition for h, or creates one
	// from the given atom centroids (used to compute the Physicality
	// centroid/Hilbert code at creation time). created is true only for the
	// caller that actually inserted the row.
	GetOrCreate(ctx context.Context, h hash.H16, atomCentroids []geom.Vec4) (id ident.ID, created bool, err error)

	// Lookup returns the existing composition for h without creating one.
	// found is false when no composition has that hash yet — the read-path
	// counterpart to GetOrCreate for callers (the query engine) that must
	// not mutate the graph just by asking a question about it.
	Lookup(ctx context.Context, h hash.H16) (id ident.ID, found bool, err error)

	// AppendSequence enforces ordinal contiguity {0,...,n-1} with no gaps
	// for parentID's CompositionSequence edges.
	AppendSequence(ctx context.Context, parentID ident.ID, children []SequenceChild) error

	// Get retrieves a composition by id.
	Get(ctx context.Context, id ident.ID) (Composition, error)

	// Sequence returns the ordered CompositionSequence edges for parentID.
	Sequence(ctx context.Context, parentID ident.ID) ([]CompositionSequenceEntry, error)
}

// RelationStore handles Relation rows, their RelationSequence edges, and
// attached evidence (spec.md §4.6).
type RelationStore interface {
	// GetOrCreate returns the existing relation identified by the hash of
	// its ordered child composition ids, or creates one from the given
	// composition centroids.
	GetOrCreate(ctx context.Context, h hash.H16, compositionCentroids []geom.Vec4) (id ident.ID, created bool, err error)

	// AppendSequence enforces ordinal contiguity for parentID's
	// RelationSequence edges.
	AppendSequence(ctx context.Context, parentID ident.ID, children []SequenceChild) error

	// AttachEvidence is always additive and returns the new evidence id
	// (spec.md §4.6).
	AttachEvidence(ctx context.Context, relationID, contentID ident.ID, source SourceType, position uint32, weight float64) (evidenceID int64, err error)

	// Get retrieves a relation by id.
	Get(ctx context.Context, id ident.ID) (Relation, error)

	// Sequence returns the ordered RelationSequence edges for parentID.
	Sequence(ctx context.Context, parentID ident.ID) ([]RelationSequenceEntry, error)

	// Evidence returns all evidence rows attached to relationID.
	Evidence(ctx context.Context, relationID ident.ID) ([]RelationEvidence, error)

	// Outgoing returns the relations whose first child composition is
	// compositionID, used by the query and walk engines to traverse the
	// graph (spec.md §4.10, §4.11).
	Outgoing(ctx context.Context, compositionID ident.ID) ([]Relation, error)

	// PurgeEvidenceBySource deletes every evidence row whose Content has the
	// given source identifier, returning the ids of relations that lost
	// evidence so the caller can recompute their ratings (spec.md §4.9).
	PurgeEvidenceBySource(ctx context.Context, sourceIdentifier string) (affectedRelations []ident.ID, err error)

	// Delete removes a relation and its sequence/evidence rows. Used when a
	// relation's evidence reaches zero (spec.md §3 Lifecycle).
	Delete(ctx context.Context, id ident.ID) error
}

// PhysicalityStore manages the geometric facet shared by atoms,
// compositions, and relations (spec.md §3, §4.6).
type PhysicalityStore interface {
	// Create computes and stores a Physicality row from centroid, deriving
	// the Hilbert code from (centroid+1)/2 mapped into [0,1]⁴.
	Create(ctx context.Context, centroid geom.Vec4, trajectory []geom.Vec4) (ident.ID, error)

	// Get retrieves a physicality row by id.
	Get(ctx context.Context, id ident.ID) (Physicality, error)

	// NearestByHilbert returns up to limit physicality ids close to the query
	// point, used as an ANN pre-filter before exact geodesic re-ranking
	// (spec.md §6, SPEC_FULL.md §6). The mock ranks by Hamming distance
	// between Hilbert codes; the Postgres store ranks by cosine distance
	// between centroids.
	NearestByHilbert(ctx context.Context, query geom.Vec4, limit int) ([]ident.ID, error)
}

// RatingStore manages RelationRating rows (spec.md §3, §4.9).
type RatingStore interface {
	// Get retrieves the rating for relationID. Returns errs.NotFound if
	// none exists yet.
	Get(ctx context.Context, relationID ident.ID) (RelationRating, error)

	// Upsert writes r, creating the row if absent.
	Upsert(ctx context.Context, r RelationRating) error

	// TopByConsensus returns relation ids among candidates ranked by
	// consensus_elo DESC, observations DESC (spec.md §4.10 find_related).
	TopByConsensus(ctx context.Context, candidates []ident.ID, limit int) ([]ident.ID, error)
}

// ContentStore manages raw provenance records referenced by evidence
// (spec.md §3).
type ContentStore interface {
	// GetOrCreate returns the existing content row for h or creates one.
	GetOrCreate(ctx context.Context, h hash.H16, size uint64, mime, sourceIdentifier string) (ident.ID, error)

	// Get retrieves a content row by id.
	Get(ctx context.Context, id ident.ID) (Content, error)
}

// Store bundles every C6 sub-store plus a transaction boundary, the shape an
// ingestion or rating-engine caller depends on (spec.md §4.6, §4.8).
type Store interface {
	Compositions() CompositionStore
	Relations() RelationStore
	Physicality() PhysicalityStore
	Ratings() RatingStore
	Contents() ContentStore

	// WithTransaction runs fn within a single transaction; if fn returns an
	// error the transaction rolls back entirely (spec.md §4.8 Ingestion
	// all-or-nothing semantics; §4.13 Host-Store Adapter scope safety).
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
