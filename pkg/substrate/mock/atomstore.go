// Package mock provides in-memory implementations of the substrate store
// interfaces: a real, functional in-memory store rather than a
// call-recording double, since these mocks back local/dev deployments of
// the engine in addition to unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// AtomStore is a thread-safe, in-memory implementation of
// [substrate.AtomStore]. The zero value is not ready to use; call
// NewAtomStore.
type AtomStore struct {
	mu          sync.RWMutex
	byCodepoint map[uint32]substrate.Atom
	byHash      map[hash.H16]substrate.Atom
	byID        map[ident.ID]substrate.Atom
	sealed      bool
}

var _ substrate.AtomStore = (*AtomStore)(nil)

// NewAtomStore returns an empty, unsealed AtomStore.
func NewAtomStore() *AtomStore {
	return &AtomStore{
		byCodepoint: make(map[uint32]substrate.Atom),
		byHash:      make(map[hash.H16]substrate.Atom),
		byID:        make(map[ident.ID]substrate.Atom),
	}
}

// Seed implements [substrate.AtomStore.Seed].
func (s *AtomStore) Seed(ctx context.Context, reference substrate.CodepointIterator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return errs.New(errs.SealedFoundation, "atom store already sealed")
	}

	count := 0
	for cp := range reference {
		h := hash.Codepoint(cp)
		id := ident.FromHash(h, true, 0)
		s.byCodepoint[cp] = substrate.Atom{ID: id, Codepoint: cp, Hash: h}
		s.byHash[h] = s.byCodepoint[cp]
		s.byID[id] = s.byCodepoint[cp]
		count++
		if count%1024 == 0 {
			select {
			case <-ctx.Done():
				return errs.Wrap(errs.Cancelled, ctx.Err(), "atom store seed cancelled after %d codepoints", count)
			default:
			}
		}
	}

	s.sealed = true
	return nil
}

// LookupByCodepoint implements [substrate.AtomStore.LookupByCodepoint].
func (s *AtomStore) LookupByCodepoint(ctx context.Context, cp uint32) (substrate.Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byCodepoint[cp]
	if !ok {
		return substrate.Atom{}, errs.New(errs.NotFound, "no atom for codepoint %d", cp)
	}
	return a, nil
}

// LookupByHash implements [substrate.AtomStore.LookupByHash].
func (s *AtomStore) LookupByHash(ctx context.Context, h hash.H16) (substrate.Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byHash[h]
	if !ok {
		return substrate.Atom{}, errs.New(errs.NotFound, "no atom for hash %s", h)
	}
	return a, nil
}

// LookupByID implements [substrate.AtomStore.LookupByID].
func (s *AtomStore) LookupByID(ctx context.Context, id ident.ID) (substrate.Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return substrate.Atom{}, errs.New(errs.NotFound, "no atom for id %s", id)
	}
	return a, nil
}

// Sealed implements [substrate.AtomStore.Sealed].
func (s *AtomStore) Sealed(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed, nil
}

// SetPhysicality attaches a physicality id to an already-seeded atom, used
// by the seeding pipeline once the centroid/Hilbert code has been computed
// for each codepoint (composition and relation physicality rows are created
// inline by the Store mock, but atoms are seeded in bulk before their
// physicality rows exist).
func (s *AtomStore) SetPhysicality(cp uint32, physicalityID ident.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byCodepoint[cp]
	if !ok {
		return
	}
	a.PhysicalityID = physicalityID
	s.byCodepoint[cp] = a
	s.byHash[a.Hash] = a
	s.byID[a.ID] = a
}
