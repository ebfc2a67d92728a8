// Package walk implements the energy-bounded stochastic walk generator
// (spec.md §4.11, component C11): starting from a composition, repeatedly
// sample a weighted neighbour via temperature-softmax over outgoing
// relations until energy is exhausted, a length/stop-text/dead-end
// condition is hit.
//
// Randomness uses math/rand/v2 seeded deterministically from the starting
// composition's hash — seeded rather than automatic, since a walk's
// reproducibility from a given start point is a property callers rely on
// (spec.md §4.11, Non-goals: bit-exact RNG reproduction across Go versions
// is not promised, only same-process
// determinism).
package walk

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/internal/observe"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// Config holds the tunables spec.md §6/§4.14 lists for the walk engine.
type Config struct {
	Energy      float64 // walk_energy, default 1.0
	Decay       float64 // walk_decay, default 0.05
	Temperature float64 // walk_temperature, default 0.7
	MaxTokens   int     // walk_max_tokens, default 200
	TopP        float64 // optional nucleus cutoff, 0 disables
	Alpha       float64 // consensus_elo weight in neighbour scoring, default 0.3
	Beta        float64 // distance decay in neighbour scoring, default 1.0
	StopText    string  // optional substring that ends the walk early
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		Energy:      1.0,
		Decay:       0.05,
		Temperature: 0.7,
		MaxTokens:   200,
		Alpha:       0.3,
		Beta:        1.0,
	}
}

// FinishReason names why a walk stopped, per spec.md §4.11.
type FinishReason string

const (
	FinishEnergy    FinishReason = "energy"
	FinishLength    FinishReason = "length"
	FinishStop      FinishReason = "stop"
	FinishDeadEnd   FinishReason = "dead_end"
	FinishCancelled FinishReason = "cancelled"
)

// Result is the outcome of a completed (or cancelled) walk.
type Result struct {
	Text   string
	Reason FinishReason
	Steps  int
}

// Engine generates energy-bounded stochastic walks over a substrate.Store
// (spec.md §4.11).
type Engine struct {
	store   substrate.Store
	atoms   substrate.AtomStore
	cfg     Config
	metrics *observe.Metrics
}

// New returns a walk Engine bound to store and atoms (needed to resolve a
// composition's atom sequence back to codepoints when rendering output
// text).
func New(store substrate.Store, atoms substrate.AtomStore, cfg Config) *Engine {
	return &Engine{store: store, atoms: atoms, cfg: cfg}
}

// WithMetrics attaches m so walk duration and termination counts are
// recorded. Returns e so it can be chained onto New.
func (e *Engine) WithMetrics(m *observe.Metrics) *Engine {
	e.metrics = m
	return e
}

// StepCallback receives the text fragment appended by each walk step.
// Returning false cancels the walk cooperatively (spec.md §4.11); the walk
// then returns with FinishCancelled and the partial text produced so far.
type StepCallback func(fragment string) bool

// Walk runs a full walk from start to completion, equivalent to Stream with
// a callback that always returns true.
func (e *Engine) Walk(ctx context.Context, start ident.ID) (Result, error) {
	return e.Stream(ctx, start, func(string) bool { return true })
}

// Stream runs the walk step by step, invoking onStep after each step with
// the newly appended fragment (spec.md §4.11's streaming variant).
func (e *Engine) Stream(ctx context.Context, start ident.ID, onStep StepCallback) (result Result, err error) {
	startTime := time.Now()
	defer func() {
		if e.metrics == nil {
			return
		}
		status := "ok"
		if err != nil {
			status = "error"
			e.metrics.RecordSubstrateError(ctx, "walk")
		}
		e.metrics.WalkDuration.Record(ctx, time.Since(startTime).Seconds())
		e.metrics.RecordWalk(ctx, string(result.Reason), status)
	}()
	result, err = e.stream(ctx, start, onStep)
	return result, err
}

// stream contains the walk loop itself, split out from Stream so the
// latency/counter recording in Stream wraps every return path uniformly.
func (e *Engine) stream(ctx context.Context, start ident.ID, onStep StepCallback) (Result, error) {
	comp, err := e.store.Compositions().Get(ctx, start)
	if err != nil {
		return Result{}, err
	}
	phys, err := e.store.Physicality().Get(ctx, comp.PhysicalityID)
	if err != nil {
		return Result{}, err
	}

	rng := seededRNG(start)
	energy := e.cfg.Energy
	if energy <= 0 {
		energy = 1.0
	}
	decay := e.cfg.Decay
	if decay <= 0 {
		decay = 0.05
	}
	maxTokens := e.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 200
	}
	temperature := e.cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	visited := map[ident.ID]bool{start: true}
	var text strings.Builder
	current := comp
	currentCentroid := phys.Centroid
	steps := 0
	tokenCount := 0

	for {
		select {
		case <-ctx.Done():
			return Result{Text: text.String(), Reason: FinishCancelled, Steps: steps}, nil
		default:
		}

		if energy <= 0 {
			return Result{Text: text.String(), Reason: FinishEnergy, Steps: steps}, nil
		}
		if tokenCount >= maxTokens {
			return Result{Text: text.String(), Reason: FinishLength, Steps: steps}, nil
		}

		relations, err := e.store.Relations().Outgoing(ctx, current.ID)
		if err != nil {
			return Result{}, err
		}
		relations = withoutVisited(relations, visited)
		if len(relations) == 0 {
			return Result{Text: text.String(), Reason: FinishDeadEnd, Steps: steps}, nil
		}

		neighbour, weights, err := e.scoreNeighbours(ctx, relations, currentCentroid)
		if err != nil {
			return Result{}, err
		}
		chosen := sampleSoftmax(rng, weights, temperature, e.cfg.TopP)

		fragment, err := e.renderSequence(ctx, neighbour[chosen].ID)
		if err != nil {
			return Result{}, err
		}

		text.WriteString(fragment)
		tokenCount += len([]rune(fragment))
		visited[neighbour[chosen].ID] = true
		steps++
		energy -= decay * (1 + float64(steps)/float64(maxTokens))

		if e.cfg.StopText != "" && strings.Contains(fragment, e.cfg.StopText) {
			onStep(fragment)
			return Result{Text: text.String(), Reason: FinishStop, Steps: steps}, nil
		}

		if !onStep(fragment) {
			return Result{Text: text.String(), Reason: FinishCancelled, Steps: steps}, nil
		}

		nextComp, nextCentroid, err := e.lastChildOf(ctx, neighbour[chosen].ID)
		if err != nil {
			return Result{}, err
		}
		current = nextComp
		currentCentroid = nextCentroid
	}
}

// scoreNeighbours computes spec.md §4.11's step-2 weight for each outgoing
// relation: (base_elo + alpha*consensus_elo) * exp(-beta*distance).
func (e *Engine) scoreNeighbours(ctx context.Context, relations []substrate.Relation, from geom.Vec4) ([]substrate.Relation, []float64, error) {
	weights := make([]float64, len(relations))
	for i, rel := range relations {
		rating, err := e.store.Ratings().Get(ctx, rel.ID)
		if err != nil {
			rating = substrate.RelationRating{BaseElo: 0, ConsensusElo: 0}
		}
		phys, err := e.store.Physicality().Get(ctx, rel.PhysicalityID)
		dist := 0.0
		if err == nil {
			dist = geom.Geodesic(from, phys.Centroid)
		}
		weights[i] = (rating.BaseElo + e.cfg.Alpha*rating.ConsensusElo) * math.Exp(-e.cfg.Beta*dist)
	}
	return relations, weights, nil
}

// renderSequence renders relationID's child composition sequence as the
// fragment appended to the walk's output: the concatenation of each
// composition's own atom-sequence text.
func (e *Engine) renderSequence(ctx context.Context, relationID ident.ID) (string, error) {
	seq, err := e.store.Relations().Sequence(ctx, relationID)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, entry := range seq {
		frag, err := e.renderComposition(ctx, entry.CompositionID)
		if err != nil {
			continue
		}
		sb.WriteString(frag)
	}
	return sb.String(), nil
}

// renderComposition renders a composition's atom sequence back to text by
// resolving each atom's codepoint, since Composition itself only stores a
// content hash.
func (e *Engine) renderComposition(ctx context.Context, compositionID ident.ID) (string, error) {
	seq, err := e.store.Compositions().Sequence(ctx, compositionID)
	if err != nil {
		return "", err
	}
	runes := make([]rune, 0, len(seq))
	for _, entry := range seq {
		cp, ok := e.atomCodepoint(ctx, entry.AtomID)
		if !ok {
			continue
		}
		runes = append(runes, rune(cp))
	}
	return string(runes), nil
}

// atomCodepoint resolves an atom id back to its codepoint via the
// AtomStore's reverse index.
func (e *Engine) atomCodepoint(ctx context.Context, atomID ident.ID) (uint32, bool) {
	a, err := e.atoms.LookupByID(ctx, atomID)
	if err != nil {
		return 0, false
	}
	return a.Codepoint, true
}

// lastChildOf resolves the last composition in a relation's sequence — the
// walk's new current position — and its centroid.
func (e *Engine) lastChildOf(ctx context.Context, relationID ident.ID) (substrate.Composition, geom.Vec4, error) {
	seq, err := e.store.Relations().Sequence(ctx, relationID)
	if err != nil || len(seq) == 0 {
		return substrate.Composition{}, geom.Vec4{}, errs.New(errs.NotFound, "relation %s has no sequence to advance into", relationID)
	}
	last := seq[len(seq)-1].CompositionID
	comp, err := e.store.Compositions().Get(ctx, last)
	if err != nil {
		return substrate.Composition{}, geom.Vec4{}, err
	}
	phys, err := e.store.Physicality().Get(ctx, comp.PhysicalityID)
	if err != nil {
		return comp, geom.Vec4{}, nil
	}
	return comp, phys.Centroid, nil
}

func withoutVisited(relations []substrate.Relation, visited map[ident.ID]bool) []substrate.Relation {
	out := make([]substrate.Relation, 0, len(relations))
	for _, r := range relations {
		if !visited[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// sampleSoftmax implements spec.md §4.11's temperature-softmax sampling
// over weights, with an optional top_p nucleus cutoff.
func sampleSoftmax(rng *rand.Rand, weights []float64, temperature, topP float64) int {
	probs := make([]float64, len(weights))
	maxW := weights[0]
	for _, w := range weights {
		if w > maxW {
			maxW = w
		}
	}
	var sum float64
	for i, w := range weights {
		probs[i] = math.Exp((w - maxW) / temperature)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}

	if topP > 0 && topP < 1 {
		probs = applyTopP(probs, topP)
	}

	r := rng.Float64()
	var cumulative float64
	for i, p := range probs {
		cumulative += p
		if r <= cumulative {
			return i
		}
	}
	return len(probs) - 1
}

// applyTopP zeroes out the lowest-probability tail beyond the nucleus and
// renormalises the remainder.
func applyTopP(probs []float64, topP float64) []float64 {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && probs[order[j]] > probs[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	out := make([]float64, len(probs))
	var cumulative float64
	for _, idx := range order {
		if cumulative >= topP {
			break
		}
		out[idx] = probs[idx]
		cumulative += probs[idx]
	}
	var renorm float64
	for _, p := range out {
		renorm += p
	}
	if renorm <= 0 {
		return probs
	}
	for i := range out {
		out[i] /= renorm
	}
	return out
}

// seededRNG derives a deterministic math/rand/v2 source from a composition
// id's content hash, so a walk starting from the same composition is
// reproducible within one process (spec.md §4.11 Non-goals: bit-exact
// cross-version RNG reproduction is not promised).
func seededRNG(start ident.ID) *rand.Rand {
	return rand.New(rand.NewPCG(start.Hi, start.Lo))
}
