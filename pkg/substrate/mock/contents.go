package mock

import (
	"context"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type contentStore struct{ s *Store }

var _ substrate.ContentStore = contentStore{}

func (c contentStore) GetOrCreate(ctx context.Context, h hash.H16, size uint64, mime, sourceIdentifier string) (ident.ID, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if id, ok := c.s.contentByHash[h]; ok {
		return id, nil
	}

	id := ident.FromHash(h, false, 0)
	c.s.contents[id] = substrate.Content{
		ID:               id,
		Hash:             h,
		Size:             size,
		Mime:             mime,
		SourceIdentifier: sourceIdentifier,
	}
	c.s.contentByHash[h] = id
	return id, nil
}

func (c contentStore) Get(ctx context.Context, id ident.ID) (substrate.Content, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	row, ok := c.s.contents[id]
	if !ok {
		return substrate.Content{}, errs.New(errs.NotFound, "no content %s", id)
	}
	return row, nil
}
