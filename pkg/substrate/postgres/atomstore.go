package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// AtomStore is the PostgreSQL-backed implementation of
// [substrate.AtomStore]. Seed writes every codepoint row inside one
// transaction and then flips the sealed flag; subsequent writes against an
// already-sealed foundation fail with errs.SealedFoundation, matching the
// mock's semantics (pkg/substrate/mock/atomstore.go).
type AtomStore struct {
	pool *pgxpool.Pool
}

// Seed implements [substrate.AtomStore.Seed].
func (a *AtomStore) Seed(ctx context.Context, reference substrate.CodepointIterator) error {
	sealed, err := a.Sealed(ctx)
	if err != nil {
		return err
	}
	if sealed {
		return errs.New(errs.SealedFoundation, "atom store already sealed")
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: begin atom seed")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var noPhysicality [16]byte // placeholder, overwritten once SetPhysicality runs

	batch := &pgx.Batch{}
	count := 0
	reference(func(cp uint32) bool {
		h := hash.Codepoint(cp)
		id := ident.FromHash(h, true, 0)
		idBytes := id.Bytes()
		batch.Queue(
			`INSERT INTO atom (id, codepoint, hash, physicality_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (codepoint) DO UPDATE SET hash = EXCLUDED.hash`,
			idBytes[:], int32(cp), h[:], noPhysicality[:],
		)
		count++
		if count%1024 == 0 {
			select {
			case <-ctx.Done():
				return false
			default:
			}
		}
		return true
	})
	if ctx.Err() != nil {
		return errs.Wrap(errs.Cancelled, ctx.Err(), "substrate/postgres: atom seed cancelled")
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < count; i++ {
		if _, execErr := results.Exec(); execErr != nil {
			_ = results.Close()
			return errs.Wrap(errs.StorageFailure, execErr, "substrate/postgres: seed atom batch")
		}
	}
	if err := results.Close(); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: close seed batch")
	}

	// Sealed as part of the same transaction as the codepoint rows
	// themselves, matching the mock's Seed, which flips its in-memory
	// sealed flag unconditionally at the end of every successful call
	// (pkg/substrate/mock/atomstore.go) rather than waiting for a later
	// SetPhysicality pass to finish.
	if _, err := tx.Exec(ctx, `INSERT INTO atom_seal (sealed) VALUES (true)`); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: seal atom foundation")
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: commit atom seed")
	}
	return nil
}

// LookupByCodepoint implements [substrate.AtomStore.LookupByCodepoint].
func (a *AtomStore) LookupByCodepoint(ctx context.Context, cp uint32) (substrate.Atom, error) {
	const q = `SELECT id, codepoint, hash, physicality_id FROM atom WHERE codepoint = $1`
	return a.scanOne(ctx, q, int32(cp))
}

// LookupByHash implements [substrate.AtomStore.LookupByHash].
func (a *AtomStore) LookupByHash(ctx context.Context, h hash.H16) (substrate.Atom, error) {
	const q = `SELECT id, codepoint, hash, physicality_id FROM atom WHERE hash = $1`
	return a.scanOne(ctx, q, h[:])
}

// LookupByID implements [substrate.AtomStore.LookupByID].
func (a *AtomStore) LookupByID(ctx context.Context, id ident.ID) (substrate.Atom, error) {
	idBytes := id.Bytes()
	const q = `SELECT id, codepoint, hash, physicality_id FROM atom WHERE id = $1`
	return a.scanOne(ctx, q, idBytes[:])
}

func (a *AtomStore) scanOne(ctx context.Context, q string, arg any) (substrate.Atom, error) {
	row := a.pool.QueryRow(ctx, q, arg)
	var idBytes, hashBytes, physBytes []byte
	var cp int32
	if err := row.Scan(&idBytes, &cp, &hashBytes, &physBytes); err != nil {
		if err == pgx.ErrNoRows {
			return substrate.Atom{}, errs.New(errs.NotFound, "no atom")
		}
		return substrate.Atom{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: lookup atom")
	}
	return atomFromRow(idBytes, cp, hashBytes, physBytes), nil
}

func atomFromRow(idBytes []byte, cp int32, hashBytes, physBytes []byte) substrate.Atom {
	var id, phys ident.ID
	var h hash.H16
	var idArr, physArr [16]byte
	copy(idArr[:], idBytes)
	copy(physArr[:], physBytes)
	copy(h[:], hashBytes)
	id = ident.FromBytes(idArr)
	phys = ident.FromBytes(physArr)
	return substrate.Atom{ID: id, Codepoint: uint32(cp), Hash: h, PhysicalityID: phys}
}

// Sealed implements [substrate.AtomStore.Sealed], backed by a one-row
// sentinel table that survives a process restart rather than an in-memory
// flag (pkg/substrate/mock/atomstore.go's sealed bool).
func (a *AtomStore) Sealed(ctx context.Context) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM atom_seal)`
	var sealed bool
	if err := a.pool.QueryRow(ctx, q).Scan(&sealed); err != nil {
		return false, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: check seal")
	}
	return sealed, nil
}

// SetPhysicality attaches a physicality id to an already-seeded atom, used
// by the seeding pipeline once the centroid/Hilbert code has been computed
// for each codepoint. Mirrors the mock's SetPhysicality
// (pkg/substrate/mock/atomstore.go), with an added error return since a
// durable backend's "no such codepoint" is a real failure worth surfacing
// rather than a silent no-op.
func (a *AtomStore) SetPhysicality(ctx context.Context, cp uint32, physicalityID ident.ID) error {
	physBytes := physicalityID.Bytes()
	const q = `UPDATE atom SET physicality_id = $2 WHERE codepoint = $1`
	tag, err := a.pool.Exec(ctx, q, int32(cp), physBytes[:])
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: set atom physicality")
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "no atom for codepoint %d", cp)
	}
	return nil
}
