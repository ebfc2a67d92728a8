// Package ingest implements the ingestion pipeline (spec.md §4.8, component
// C8): decode a byte stream to Unicode codepoints, resolve atoms, extract
// significant n-grams into Compositions, emit co-occurrence Relations, and
// update ratings — all within one all-or-nothing transaction.
//
// The stage shape (decode → extract → store → score) generalizes a
// "decode → correct → index" staging pipeline from STT correction to
// content-addressed graph construction (see DESIGN.md).
package ingest

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/internal/ngram"
	"github.com/AHartTN/hartonomous/internal/observe"
	"github.com/AHartTN/hartonomous/internal/rating"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// Config holds the tunables spec.md §6 lists for ingestion.
type Config struct {
	Ngram              ngram.Config
	CooccurrenceWindow int // cooccurrence_window, default 5
	Rating             rating.Config
	CheckInterval      int // cancellation check granularity, default 1024 items (spec.md §5)
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		Ngram:              ngram.DefaultConfig(),
		CooccurrenceWindow: 5,
		Rating:             rating.DefaultConfig(),
		CheckInterval:      1024,
	}
}

// Counters are the per-ingest counters spec.md §4.8 step 5 requires.
type Counters struct {
	AtomsProcessed      int
	CompositionsCreated int
	RelationsCreated    int
	OriginalBytes       int
	StoredBytes         int
}

// CompressionRatio returns StoredBytes/OriginalBytes, or 1 when
// OriginalBytes is zero.
func (c Counters) CompressionRatio() float64 {
	if c.OriginalBytes == 0 {
		return 1
	}
	return float64(c.StoredBytes) / float64(c.OriginalBytes)
}

// Pipeline runs the ingestion pipeline against an AtomStore and a Store
// (spec.md §4.8).
type Pipeline struct {
	atoms   substrate.AtomStore
	store   substrate.Store
	cfg     Config
	metrics *observe.Metrics
}

// New returns a Pipeline bound to atoms and store.
func New(atoms substrate.AtomStore, store substrate.Store, cfg Config) *Pipeline {
	return &Pipeline{atoms: atoms, store: store, cfg: cfg}
}

// WithMetrics attaches m so ingest duration and per-run counters are
// recorded. Returns p so it can be chained onto New.
func (p *Pipeline) WithMetrics(m *observe.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Ingest runs steps 1-5 of spec.md §4.8 against data as a single
// all-or-nothing transaction: a malformed UTF-8 byte, an unknown codepoint,
// or a constraint violation rolls back the entire ingest.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, sourceIdentifier, mime string) (out Counters, err error) {
	start := time.Now()
	defer func() {
		if p.metrics == nil {
			return
		}
		if err != nil {
			p.metrics.RecordSubstrateError(ctx, "ingest")
		} else {
			p.metrics.RecordIngest(ctx, int64(out.AtomsProcessed), int64(out.CompositionsCreated), int64(out.RelationsCreated))
		}
		p.metrics.IngestDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if !utf8.Valid(data) {
		return Counters{}, errs.New(errs.InvalidInput, "ingest: malformed UTF-8")
	}

	err = p.store.WithTransaction(ctx, func(ctx context.Context, tx substrate.Store) error {
		c, err := p.ingestLocked(ctx, tx, data, sourceIdentifier, mime)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Counters{}, err
	}
	return out, nil
}

func (p *Pipeline) ingestLocked(ctx context.Context, tx substrate.Store, data []byte, sourceIdentifier, mime string) (Counters, error) {
	codepoints := decodeCodepoints(data)

	contentHash := hash.Bytes(data)
	contentID, err := tx.Contents().GetOrCreate(ctx, contentHash, uint64(len(data)), mime, sourceIdentifier)
	if err != nil {
		return Counters{}, err
	}

	// Step 1: resolve every codepoint via AtomStore. Unknown codepoints fail
	// the whole ingest (spec.md §4.8 step 1).
	atomIDs := make([]ident.ID, len(codepoints))
	atomCentroid := make(map[ident.ID]geom.Vec4, len(codepoints))
	codepointOf := make(map[ident.ID]uint32, len(codepoints))
	for i, cp := range codepoints {
		if i%p.checkInterval() == 0 {
			if err := checkCancelled(ctx); err != nil {
				return Counters{}, err
			}
		}
		a, err := p.atoms.LookupByCodepoint(ctx, cp)
		if err != nil {
			return Counters{}, errs.Wrap(errs.InvalidInput, err, "ingest: unknown codepoint %d at position %d", cp, i)
		}
		atomIDs[i] = a.ID
		codepointOf[a.ID] = cp
		if phys, err := tx.Physicality().Get(ctx, a.PhysicalityID); err == nil {
			atomCentroid[a.ID] = phys.Centroid
		}
	}

	counters := Counters{
		AtomsProcessed: len(atomIDs),
		OriginalBytes:  len(data),
	}

	// Step 2: run NgramExtractor; get_or_create each significant composition.
	// candidates is already ordered by first occurrence within the ingest, so
	// its index doubles as the composition's position for the co-occurrence
	// window in step 3.
	candidates := ngram.Extract(atomIDs, func(id ident.ID) uint32 { return codepointOf[id] }, p.cfg.Ngram)
	compositions := make([]ident.ID, len(candidates))
	compositionCentroid := make([]geom.Vec4, len(candidates))
	for i, cand := range candidates {
		centroids := make([]geom.Vec4, len(cand.AtomIDs))
		for j, a := range cand.AtomIDs {
			centroids[j] = atomCentroid[a]
		}
		compID, created, err := tx.Compositions().GetOrCreate(ctx, cand.Hash, centroids)
		if err != nil {
			return Counters{}, err
		}
		if created {
			counters.CompositionsCreated++
		}
		children := make([]substrate.SequenceChild, len(cand.AtomIDs))
		for j, a := range cand.AtomIDs {
			children[j] = substrate.SequenceChild{ChildID: a, Ordinal: uint32(j), Occurrences: cand.Occurrences}
		}
		if err := tx.Compositions().AppendSequence(ctx, compID, children); err != nil {
			return Counters{}, err
		}
		compositions[i] = compID
		comp, err := tx.Compositions().Get(ctx, compID)
		if err != nil {
			return Counters{}, err
		}
		if phys, err := tx.Physicality().Get(ctx, comp.PhysicalityID); err == nil {
			compositionCentroid[i] = phys.Centroid
		}
		counters.StoredBytes += len(cand.AtomIDs) * 16 // one hash-width id per atom, the stored edge shape
	}

	// Step 3: co-occurrence candidates within WINDOW, weight = 1/(j-i).
	// Step 4: attach evidence and call RatingEngine for created/updated
	// relations.
	engine := rating.New(tx, p.cfg.Rating)
	for i := 0; i < len(compositions); i++ {
		for j := i + 1; j < len(compositions) && j-i <= p.cfg.CooccurrenceWindow; j++ {
			weight := 1.0 / float64(j-i)
			left, right := compositions[i].Bytes(), compositions[j].Bytes()
			relHash := hash.Bytes(append(append([]byte{}, left[:]...), right[:]...))
			centroids := []geom.Vec4{compositionCentroid[i], compositionCentroid[j]}
			relID, created, err := tx.Relations().GetOrCreate(ctx, relHash, centroids)
			if err != nil {
				return Counters{}, err
			}
			if created {
				counters.RelationsCreated++
				if err := tx.Relations().AppendSequence(ctx, relID, []substrate.SequenceChild{
					{ChildID: compositions[i], Ordinal: 0, Occurrences: 1},
					{ChildID: compositions[j], Ordinal: 1, Occurrences: 1},
				}); err != nil {
					return Counters{}, err
				}
			}

			if _, err := tx.Relations().AttachEvidence(ctx, relID, contentID, substrate.SourceIngestCooccurrence, uint32(i), weight); err != nil {
				return Counters{}, err
			}
			if _, err := engine.Observe(ctx, relID, rating.OutcomeConfirmed, weight); err != nil {
				return Counters{}, err
			}
		}
	}

	return counters, nil
}

func (p *Pipeline) checkInterval() int {
	if p.cfg.CheckInterval <= 0 {
		return 1024
	}
	return p.cfg.CheckInterval
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errs.Wrap(errs.Cancelled, ctx.Err(), "ingest cancelled")
	default:
		return nil
	}
}

func decodeCodepoints(data []byte) []uint32 {
	out := make([]uint32, 0, len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		out = append(out, uint32(r))
		i += size
	}
	return out
}

