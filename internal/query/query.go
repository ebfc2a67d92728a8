// Package query implements the three read-path operations over the
// substrate graph (spec.md §4.10, component C10): find_related,
// find_gravitational_truth, and answer_question.
//
// The keyword-aggregation shape for answer_question follows
// pkg/memory/postgres's GraphRAGQuerier.QueryWithContext: extract query
// terms, fan out a per-term lookup, aggregate scores across candidates,
// argmax (see DESIGN.md).
package query

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/metric"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/internal/observe"
	"github.com/AHartTN/hartonomous/internal/resilience"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// Config holds the tunables spec.md §6/§4.14 lists for the query engine.
type Config struct {
	GravitationalRadius float64 // default 0.05 rad

	// Secondary, if non-nil, is tried for every read-path call after the
	// primary store fails or its circuit breaker is open — a read replica
	// or, in degraded mode, an empty mock.Store that answers "nothing
	// found" rather than timing out (spec.md §4.17 fallback composition).
	Secondary substrate.Store
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{GravitationalRadius: 0.05}
}

// Related is one ranked relation neighbour returned by find_related.
type Related struct {
	RelationID ident.ID
	Rating     substrate.RelationRating
}

// Truth is one scored candidate returned by find_gravitational_truth.
type Truth struct {
	RelationID     ident.ID
	Rating         substrate.RelationRating
	ClusterDensity int
	Score          float64
}

// Engine answers queries against a substrate.Store (spec.md §4.10).
type Engine struct {
	store    substrate.Store
	cfg      Config
	fallback *resilience.FallbackGroup[substrate.Store]
	metrics  *observe.Metrics
}

// New returns a query Engine bound to store. If cfg.Secondary is set, every
// read-path call falls back to it once the primary's circuit breaker trips
// (spec.md §4.17).
func New(store substrate.Store, cfg Config) *Engine {
	fg := resilience.NewFallbackGroup(store, "substrate-primary", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "query-primary"},
	})
	if cfg.Secondary != nil {
		fg.AddFallback("substrate-secondary", cfg.Secondary)
	}
	return &Engine{store: store, cfg: cfg, fallback: fg}
}

// WithMetrics attaches m so query durations and call counts are recorded.
// Returns e so it can be chained onto New.
func (e *Engine) WithMetrics(m *observe.Metrics) *Engine {
	e.metrics = m
	return e
}

// resolveComposition maps text to the composition id spec.md §3 defines as
// hash(codepoints). It is a read-only lookup: text that was never ingested
// fails with errs.NotFound rather than inserting a placeholder composition
// as a side effect of being asked about.
func (e *Engine) resolveComposition(ctx context.Context, text string) (substrate.Composition, error) {
	codepoints := make([]uint32, 0, len(text))
	for _, r := range text {
		codepoints = append(codepoints, uint32(r))
	}
	h := hash.Codepoints(codepoints)

	id, err := resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) (ident.ID, error) {
		id, found, err := s.Compositions().Lookup(ctx, h)
		if err != nil {
			return ident.ID{}, err
		}
		if !found {
			return ident.ID{}, errs.New(errs.NotFound, "no composition for %q", text)
		}
		return id, nil
	})
	if err != nil {
		return substrate.Composition{}, err
	}
	return resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) (substrate.Composition, error) {
		return s.Compositions().Get(ctx, id)
	})
}

// FindRelated implements spec.md §4.10's find_related: resolve text to a
// composition, rank its outgoing relations by consensus_elo DESC,
// observations DESC, and return the top limit.
func (e *Engine) FindRelated(ctx context.Context, text string, limit int) (out []Related, err error) {
	defer e.recordQuery(ctx, "find_related", time.Now(), &err)

	comp, err := e.resolveComposition(ctx, text)
	if err != nil {
		return nil, err
	}

	relations, err := resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) ([]substrate.Relation, error) {
		return s.Relations().Outgoing(ctx, comp.ID)
	})
	if err != nil {
		return nil, err
	}
	if len(relations) == 0 {
		return nil, nil
	}

	ids := make([]ident.ID, len(relations))
	for i, r := range relations {
		ids[i] = r.ID
	}
	ranked, err := resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) ([]ident.ID, error) {
		return s.Ratings().TopByConsensus(ctx, ids, limit)
	})
	if err != nil {
		return nil, err
	}

	out = make([]Related, 0, len(ranked))
	for _, id := range ranked {
		r, err := resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) (substrate.RelationRating, error) {
			return s.Ratings().Get(ctx, id)
		})
		if err != nil {
			r = substrate.RelationRating{RelationID: id}
		}
		out = append(out, Related{RelationID: id, Rating: r})
	}
	return out, nil
}

// recordQuery records QueryDuration and the QueriesTotal counter for kind,
// deriving status from *errPtr at the time the deferred call runs. A no-op
// when no Metrics has been attached.
func (e *Engine) recordQuery(ctx context.Context, kind string, start time.Time, errPtr *error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if *errPtr != nil {
		status = "error"
		e.metrics.RecordSubstrateError(ctx, kind)
	}
	e.metrics.QueryDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("kind", kind)))
	e.metrics.RecordQuery(ctx, kind, status)
}

// FindGravitationalTruth implements spec.md §4.10's "truths cluster, lies
// scatter" scoring: restrict candidates to base_elo >= minBaseElo, score
// each by base_elo * log2(observations+1) * cluster_density, where
// cluster_density counts other candidates within GravitationalRadius
// geodesic distance in S³, and return the top limit by that score.
func (e *Engine) FindGravitationalTruth(ctx context.Context, text string, minBaseElo float64, limit int) (out []Truth, err error) {
	defer e.recordQuery(ctx, "find_gravitational_truth", time.Now(), &err)

	comp, err := e.resolveComposition(ctx, text)
	if err != nil {
		return nil, err
	}

	relations, err := resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) ([]substrate.Relation, error) {
		return s.Relations().Outgoing(ctx, comp.ID)
	})
	if err != nil {
		return nil, err
	}

	type candidate struct {
		relation substrate.Relation
		rating   substrate.RelationRating
		centroid geom.Vec4
	}
	candidates := make([]candidate, 0, len(relations))
	for _, rel := range relations {
		r, err := resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) (substrate.RelationRating, error) {
			return s.Ratings().Get(ctx, rel.ID)
		})
		if err != nil || r.BaseElo < minBaseElo {
			continue
		}
		phys, err := resilience.ExecuteWithResult(e.fallback, func(s substrate.Store) (substrate.Physicality, error) {
			return s.Physicality().Get(ctx, rel.PhysicalityID)
		})
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{relation: rel, rating: r, centroid: phys.Centroid})
	}

	radius := e.cfg.GravitationalRadius
	if radius <= 0 {
		radius = 0.05
	}

	truths := make([]Truth, 0, len(candidates))
	for i, c := range candidates {
		density := 0
		for j, other := range candidates {
			if i == j {
				continue
			}
			if geom.Geodesic(c.centroid, other.centroid) <= radius {
				density++
			}
		}
		score := c.rating.BaseElo * math.Log2(1+float64(c.rating.Observations)) * float64(density)
		truths = append(truths, Truth{
			RelationID:     c.relation.ID,
			Rating:         c.rating,
			ClusterDensity: density,
			Score:          score,
		})
	}

	sort.Slice(truths, func(i, j int) bool { return truths[i].Score > truths[j].Score })
	if limit > 0 && limit < len(truths) {
		truths = truths[:limit]
	}
	return truths, nil
}

// stopwords is the small function-word list spec.md §4.10 calls for in
// answer_question's keyword extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "of": true, "to": true, "in": true, "on": true, "and": true,
	"or": true, "what": true, "who": true, "where": true, "when": true,
	"why": true, "how": true, "does": true, "do": true, "did": true,
	"it": true, "that": true, "this": true, "with": true, "for": true,
}

// Keyword is one extracted question term, carrying whether it looked like a
// proper noun (capitalized in the source question) for the ×2 boost.
type Keyword struct {
	Text       string
	ProperNoun bool
}

// ExtractKeywords strips stopwords, lowercases, and depunctuates question,
// per spec.md §4.10's answer_question keyword extraction.
func ExtractKeywords(question string) []Keyword {
	fields := strings.FieldsFunc(question, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	out := make([]Keyword, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		if stopwords[lower] {
			continue
		}
		proper := len(f) > 0 && unicode.IsUpper(rune(f[0]))
		out = append(out, Keyword{Text: lower, ProperNoun: proper})
	}
	return out
}

// Answer is the argmax result of answer_question.
type Answer struct {
	RelationID ident.ID
	Score      float64
}

// AnswerQuestion implements spec.md §4.10's answer_question: extract
// keywords, call FindRelated per keyword, aggregate scores across
// candidates (score += per-keyword consensus confidence; proper-noun boost
// ×2), return the argmax.
func (e *Engine) AnswerQuestion(ctx context.Context, question string, limit int) (best Answer, err error) {
	defer e.recordQuery(ctx, "answer_question", time.Now(), &err)

	keywords := ExtractKeywords(question)
	if len(keywords) == 0 {
		return Answer{}, errs.New(errs.InvalidInput, "answer_question: no keywords extracted from %q", question)
	}

	scores := make(map[ident.ID]float64)
	for _, kw := range keywords {
		related, err := e.FindRelated(ctx, kw.Text, limit)
		if err != nil {
			continue
		}
		for _, r := range related {
			confidence := math.Log2(1 + float64(r.Rating.Observations))
			if kw.ProperNoun {
				confidence *= 2
			}
			scores[r.RelationID] += confidence
		}
	}
	if len(scores) == 0 {
		return Answer{}, errs.New(errs.NotFound, "answer_question: no related relations found for %q", question)
	}

	first := true
	for id, score := range scores {
		if first || score > best.Score {
			best = Answer{RelationID: id, Score: score}
			first = false
		}
	}
	return best, nil
}
