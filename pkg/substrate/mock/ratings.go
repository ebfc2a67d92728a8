package mock

import (
	"context"
	"sort"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type ratingStore struct{ s *Store }

var _ substrate.RatingStore = ratingStore{}

func (r ratingStore) Get(ctx context.Context, relationID ident.ID) (substrate.RelationRating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rating, ok := r.s.ratings[relationID]
	if !ok {
		return substrate.RelationRating{}, errs.New(errs.NotFound, "no rating for relation %s", relationID)
	}
	return rating, nil
}

func (r ratingStore) Upsert(ctx context.Context, rating substrate.RelationRating) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ratings[rating.RelationID] = rating
	return nil
}

// TopByConsensus implements [substrate.RatingStore.TopByConsensus]: rank by
// consensus_elo DESC, observations DESC (spec.md §4.10 find_related).
func (r ratingStore) TopByConsensus(ctx context.Context, candidates []ident.ID, limit int) ([]ident.ID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type scored struct {
		id     ident.ID
		rating substrate.RelationRating
		ok     bool
	}
	rows := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		rating, ok := r.s.ratings[id]
		rows = append(rows, scored{id: id, rating: rating, ok: ok})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ok {
			return false
		}
		if !rows[j].ok {
			return true
		}
		if rows[i].rating.ConsensusElo != rows[j].rating.ConsensusElo {
			return rows[i].rating.ConsensusElo > rows[j].rating.ConsensusElo
		}
		return rows[i].rating.Observations > rows[j].rating.Observations
	})

	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]ident.ID, len(rows))
	for i, row := range rows {
		out[i] = row.id
	}
	return out, nil
}
