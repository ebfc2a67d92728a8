// Package rating implements the dual-ELO quality/frequency scoring engine
// for relations (spec.md §4.9, component C9), grounded on the heuristics
// engine's evidence-propagation discipline of recomputing a derived score
// from whatever evidence remains after some of it is discounted or removed
// (leanlp-BTC-coinjoin/internal/heuristics/evidence_propagation.go) — here
// applied to surgical GDPR-style deletion instead of hop-decay (see
// DESIGN.md).
package rating

import (
	"context"
	"math"

	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// Config holds the tunables spec.md §6 lists for rating updates.
type Config struct {
	KFactor     float64 // rating_k_factor, default 32
	BaseDefault float64 // rating_base_default, default 1500
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{KFactor: 32, BaseDefault: 1500}
}

// Outcome is the observation outcome fed into the dual-ELO update: 1 when
// confirmed by co-occurrence, 0.5 when weak, 0 when contradicted by an
// explicit deletion recompute (spec.md §4.9).
type Outcome float64

const (
	OutcomeContradicted Outcome = 0
	OutcomeWeak         Outcome = 0.5
	OutcomeConfirmed    Outcome = 1
)

// Engine applies the dual-ELO update formula and the surgical-deletion
// recompute rule against a substrate.Store (spec.md §4.9).
type Engine struct {
	store substrate.Store
	cfg   Config
}

// New returns a rating Engine bound to store.
func New(store substrate.Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Observe applies one dual-ELO update to relationID for a single new
// observation with the given outcome and consensus weight (spec.md §4.9):
//
//	expected       = 1 / (1 + 10^((1500 - base_elo)/400))
//	base_elo'      = clamp(base_elo + k_factor*(outcome - expected), 0, 4000)
//	consensus_elo' = consensus_elo + log2(1+observations)*weightIn
//	observations'  = observations + 1
func (e *Engine) Observe(ctx context.Context, relationID ident.ID, outcome Outcome, weightIn float64) (substrate.RelationRating, error) {
	current, err := e.store.Ratings().Get(ctx, relationID)
	if err != nil {
		current = substrate.RelationRating{
			RelationID:   relationID,
			BaseElo:      e.cfg.BaseDefault,
			ConsensusElo: 0,
			Observations: 0,
			KFactor:      e.cfg.KFactor,
		}
	}

	updated := applyUpdate(current, outcome, weightIn)
	if err := e.store.Ratings().Upsert(ctx, updated); err != nil {
		return substrate.RelationRating{}, err
	}
	return updated, nil
}

func applyUpdate(r substrate.RelationRating, outcome Outcome, weightIn float64) substrate.RelationRating {
	expected := 1 / (1 + math.Pow(10, (1500-r.BaseElo)/400))
	baseElo := r.BaseElo + r.KFactor*(float64(outcome)-expected)
	baseElo = clamp(baseElo, 0, 4000)

	consensusElo := r.ConsensusElo + math.Log2(1+float64(r.Observations))*weightIn

	return substrate.RelationRating{
		RelationID:   r.RelationID,
		BaseElo:      baseElo,
		ConsensusElo: consensusElo,
		Observations: r.Observations + 1,
		KFactor:      r.KFactor,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Recompute implements spec.md §4.9's surgical-deletion rule: after evidence
// has been purged for a source, recompute relationID's ELOs from the
// remaining evidence set as if the deleted events never occurred, replaying
// each remaining evidence row in timestamp order as a confirmed observation
// weighted by its stored weight. A relation with zero remaining evidence is
// pruned from the store entirely.
func (e *Engine) Recompute(ctx context.Context, relationID ident.ID) error {
	remaining, err := e.store.Relations().Evidence(ctx, relationID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return e.store.Relations().Delete(ctx, relationID)
	}

	rating := substrate.RelationRating{
		RelationID:   relationID,
		BaseElo:      e.cfg.BaseDefault,
		ConsensusElo: 0,
		Observations: 0,
		KFactor:      e.cfg.KFactor,
	}
	for _, ev := range orderByCreated(remaining) {
		rating = applyUpdate(rating, OutcomeConfirmed, ev.Weight)
	}
	return e.store.Ratings().Upsert(ctx, rating)
}

func orderByCreated(evidence []substrate.RelationEvidence) []substrate.RelationEvidence {
	out := append([]substrate.RelationEvidence(nil), evidence...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Created.Before(out[j-1].Created); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
