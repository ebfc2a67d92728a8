package mock

import (
	"context"
	"sort"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hilbert"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type physicalityStore struct{ s *Store }

var _ substrate.PhysicalityStore = physicalityStore{}

func (p physicalityStore) Create(ctx context.Context, centroid geom.Vec4, trajectory []geom.Vec4) (ident.ID, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.createPhysicalityLocked(centroid, trajectory), nil
}

func (p physicalityStore) Get(ctx context.Context, id ident.ID) (substrate.Physicality, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	row, ok := p.s.physicality[id]
	if !ok {
		return substrate.Physicality{}, errs.New(errs.NotFound, "no physicality %s", id)
	}
	return row, nil
}

// NearestByHilbert is a brute-force scan appropriate for the mock's scale:
// it ranks every row by Hamming distance of the untagged Hilbert code to
// the query point's code (spec.md §4.3, §6). The Postgres-backed store
// ranks by centroid cosine distance over an index instead.
func (p physicalityStore) NearestByHilbert(ctx context.Context, query geom.Vec4, limit int) ([]ident.ID, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	unitCube := [4]float64{
		(query[0] + 1) / 2,
		(query[1] + 1) / 2,
		(query[2] + 1) / 2,
		(query[3] + 1) / 2,
	}
	queryCode := hilbert.Encode(unitCube).Untagged()

	type scored struct {
		id   ident.ID
		dist int
	}
	candidates := make([]scored, 0, len(p.s.physicality))
	for id, row := range p.s.physicality {
		code := hilbert.FromBytes(row.Hilbert).Untagged()
		candidates = append(candidates, scored{id: id, dist: hilbert.Hamming(queryCode, code)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	out := make([]ident.ID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out, nil
}
