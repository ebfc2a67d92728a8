package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type ratingStore struct{ q querier }

var _ substrate.RatingStore = ratingStore{}

// Get implements [substrate.RatingStore.Get].
func (r ratingStore) Get(ctx context.Context, relationID ident.ID) (substrate.RelationRating, error) {
	idBytes := relationID.Bytes()
	const q = `SELECT base_elo, consensus_elo, observations, k_factor FROM relation_rating WHERE relation_id = $1`
	row := r.q.QueryRow(ctx, q, idBytes[:])

	var rating substrate.RelationRating
	rating.RelationID = relationID
	var observations int64
	if err := row.Scan(&rating.BaseElo, &rating.ConsensusElo, &observations, &rating.KFactor); err != nil {
		if err == pgx.ErrNoRows {
			return substrate.RelationRating{}, errs.New(errs.NotFound, "no rating for relation %s", relationID)
		}
		return substrate.RelationRating{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: get rating")
	}
	rating.Observations = uint64(observations)
	return rating, nil
}

// Upsert implements [substrate.RatingStore.Upsert].
func (r ratingStore) Upsert(ctx context.Context, rating substrate.RelationRating) error {
	idBytes := rating.RelationID.Bytes()
	const upsert = `INSERT INTO relation_rating (relation_id, base_elo, consensus_elo, observations, k_factor)
	                 VALUES ($1, $2, $3, $4, $5)
	                 ON CONFLICT (relation_id) DO UPDATE SET
	                   base_elo = EXCLUDED.base_elo,
	                   consensus_elo = EXCLUDED.consensus_elo,
	                   observations = EXCLUDED.observations,
	                   k_factor = EXCLUDED.k_factor`
	if _, err := r.q.Exec(ctx, upsert, idBytes[:], rating.BaseElo, rating.ConsensusElo, int64(rating.Observations), rating.KFactor); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: upsert rating")
	}
	return nil
}

// TopByConsensus implements [substrate.RatingStore.TopByConsensus]: ranks
// candidates by consensus_elo DESC, observations DESC, with candidates that
// have no rating row sorted last — a LEFT JOIN against the given id list
// instead of the mock's in-memory sort over a not-found sentinel
// (pkg/substrate/mock/ratings.go).
func (r ratingStore) TopByConsensus(ctx context.Context, candidates []ident.ID, limit int) ([]ident.ID, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([][]byte, len(candidates))
	for i, id := range candidates {
		b := id.Bytes()
		ids[i] = append([]byte(nil), b[:]...)
	}

	const q = `SELECT c.id
	            FROM unnest($1::bytea[]) AS c(id)
	            LEFT JOIN relation_rating rr ON rr.relation_id = c.id
	            ORDER BY
	              (rr.relation_id IS NULL) ASC,
	              rr.consensus_elo DESC NULLS LAST,
	              rr.observations DESC NULLS LAST
	            LIMIT $2`
	rows, err := r.q.Query(ctx, q, ids, limit)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: top by consensus")
	}
	defer rows.Close()

	var out []ident.ID
	for rows.Next() {
		var idBytes []byte
		if err := rows.Scan(&idBytes); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan top by consensus")
		}
		var idArr [16]byte
		copy(idArr[:], idBytes)
		out = append(out, ident.FromBytes(idArr))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: top by consensus row iteration")
	}
	return out, nil
}
