package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type contentStore struct{ q querier }

var _ substrate.ContentStore = contentStore{}

// GetOrCreate implements [substrate.ContentStore.GetOrCreate].
func (c contentStore) GetOrCreate(ctx context.Context, h hash.H16, size uint64, mime, sourceIdentifier string) (ident.ID, error) {
	if id, ok, err := lookupByHash(ctx, c.q, "content", h); err != nil {
		return ident.ID{}, err
	} else if ok {
		return id, nil
	}

	id := ident.FromHash(h, false, 0)
	idBytes := id.Bytes()

	const insert = `INSERT INTO content (id, hash, size, mime, source_identifier)
	                 VALUES ($1, $2, $3, $4, $5)
	                 ON CONFLICT (hash) DO NOTHING`
	tag, err := c.q.Exec(ctx, insert, idBytes[:], h[:], int64(size), mime, sourceIdentifier)
	if err != nil {
		return ident.ID{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: insert content")
	}
	if tag.RowsAffected() == 0 {
		winnerID, ok, err := lookupByHash(ctx, c.q, "content", h)
		if err != nil {
			return ident.ID{}, err
		}
		if !ok {
			return ident.ID{}, errs.New(errs.Internal, "content insert conflicted but no row found for hash")
		}
		return winnerID, nil
	}
	return id, nil
}

// Get implements [substrate.ContentStore.Get].
func (c contentStore) Get(ctx context.Context, id ident.ID) (substrate.Content, error) {
	idBytes := id.Bytes()
	const q = `SELECT hash, size, mime, source_identifier FROM content WHERE id = $1`
	row := c.q.QueryRow(ctx, q, idBytes[:])

	var hashBytes []byte
	var size int64
	var mime, sourceIdentifier string
	if err := row.Scan(&hashBytes, &size, &mime, &sourceIdentifier); err != nil {
		if err == pgx.ErrNoRows {
			return substrate.Content{}, errs.New(errs.NotFound, "no content %s", id)
		}
		return substrate.Content{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: get content")
	}

	var h hash.H16
	copy(h[:], hashBytes)
	return substrate.Content{
		ID:               id,
		Hash:             h,
		Size:             uint64(size),
		Mime:             mime,
		SourceIdentifier: sourceIdentifier,
	}, nil
}
