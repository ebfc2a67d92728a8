package postgres

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type compositionStore struct{ q querier }

var _ substrate.CompositionStore = compositionStore{}

// GetOrCreate implements [substrate.CompositionStore.GetOrCreate], the SQL
// translation of the mock's hash-map lookup-then-insert
// (pkg/substrate/mock/compositions.go): a hash lookup first, and only on a
// miss does it derive the centroid, insert a Physicality row, and insert the
// composition row itself.
func (c compositionStore) GetOrCreate(ctx context.Context, h hash.H16, atomCentroids []geom.Vec4) (ident.ID, bool, error) {
	if id, ok, err := lookupByHash(ctx, c.q, "composition", h); err != nil {
		return ident.ID{}, false, err
	} else if ok {
		return id, false, nil
	}

	centroid := geom.Centroid(atomCentroids)
	physID, err := insertPhysicality(ctx, c.q, centroid, nil)
	if err != nil {
		return ident.ID{}, false, err
	}

	id := ident.FromHash(h, false, 0)
	idBytes, physBytes := id.Bytes(), physID.Bytes()

	const insert = `INSERT INTO composition (id, hash, physicality_id)
	                 VALUES ($1, $2, $3)
	                 ON CONFLICT (hash) DO NOTHING`
	tag, err := c.q.Exec(ctx, insert, idBytes[:], h[:], physBytes[:])
	if err != nil {
		return ident.ID{}, false, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: insert composition")
	}
	if tag.RowsAffected() == 0 {
		// Lost the race to a concurrent creator; the physicality row just
		// inserted is orphaned, matching this package's tolerance for an
		// occasional unreferenced physicality row over a stricter
		// check-then-insert protocol that would need its own lock.
		winnerID, ok, err := lookupByHash(ctx, c.q, "composition", h)
		if err != nil {
			return ident.ID{}, false, err
		}
		if !ok {
			return ident.ID{}, false, errs.New(errs.Internal, "composition insert conflicted but no row found for hash")
		}
		return winnerID, false, nil
	}
	return id, true, nil
}

// Lookup implements [substrate.CompositionStore.Lookup]: a plain hash
// lookup with no insert-on-miss, used by the query engine's read path so
// asking about text that was never ingested doesn't create a row for it.
func (c compositionStore) Lookup(ctx context.Context, h hash.H16) (ident.ID, bool, error) {
	return lookupByHash(ctx, c.q, "composition", h)
}

func lookupByHash(ctx context.Context, q querier, table string, h hash.H16) (ident.ID, bool, error) {
	sql := `SELECT id FROM ` + table + ` WHERE hash = $1`
	row := q.QueryRow(ctx, sql, h[:])
	var idBytes []byte
	if err := row.Scan(&idBytes); err != nil {
		if err == pgx.ErrNoRows {
			return ident.ID{}, false, nil
		}
		return ident.ID{}, false, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: lookup %s by hash", table)
	}
	var idArr [16]byte
	copy(idArr[:], idBytes)
	return ident.FromBytes(idArr), true, nil
}

// AppendSequence implements [substrate.CompositionStore.AppendSequence]:
// upserts each child by (composition_id, ordinal), incrementing occurrences
// on an existing ordinal, then validates the full {0,...,n-1} contiguity
// invariant the mock enforces in Go after the same upsert loop.
func (c compositionStore) AppendSequence(ctx context.Context, parentID ident.ID, children []substrate.SequenceChild) error {
	parentBytes := parentID.Bytes()

	for _, ch := range children {
		childBytes := ch.ChildID.Bytes()
		const upsert = `INSERT INTO composition_sequence (composition_id, atom_id, ordinal, occurrences)
		                 VALUES ($1, $2, $3, $4)
		                 ON CONFLICT (composition_id, ordinal)
		                 DO UPDATE SET occurrences = composition_sequence.occurrences + EXCLUDED.occurrences`
		if _, err := c.q.Exec(ctx, upsert, parentBytes[:], childBytes[:], int32(ch.Ordinal), int32(ch.Occurrences)); err != nil {
			return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: append composition sequence")
		}
	}

	return checkOrdinalContiguity(ctx, c.q, "composition_sequence", "composition_id", parentID)
}

// checkOrdinalContiguity re-reads the full ordinal set for parentID and
// fails with errs.InvalidInput on any gap, mirroring the mock's in-memory
// contiguity check (pkg/substrate/mock/compositions.go,
// pkg/substrate/mock/relations.go).
func checkOrdinalContiguity(ctx context.Context, q querier, table, parentColumn string, parentID ident.ID) error {
	parentBytes := parentID.Bytes()
	sql := `SELECT ordinal FROM ` + table + ` WHERE ` + parentColumn + ` = $1 ORDER BY ordinal`
	rows, err := q.Query(ctx, sql, parentBytes[:])
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: check %s contiguity", table)
	}
	defer rows.Close()

	var ordinals []uint32
	for rows.Next() {
		var ord int32
		if err := rows.Scan(&ord); err != nil {
			return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan ordinal")
		}
		ordinals = append(ordinals, uint32(ord))
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: ordinal row iteration")
	}

	sort.Slice(ordinals, func(i, j int) bool { return ordinals[i] < ordinals[j] })
	for i, ord := range ordinals {
		if ord != uint32(i) {
			return errs.New(errs.InvalidInput, "%s for %s has a gap at ordinal %d", table, parentID, i)
		}
	}
	return nil
}

// Get implements [substrate.CompositionStore.Get].
func (c compositionStore) Get(ctx context.Context, id ident.ID) (substrate.Composition, error) {
	idBytes := id.Bytes()
	const q = `SELECT hash, physicality_id FROM composition WHERE id = $1`
	row := c.q.QueryRow(ctx, q, idBytes[:])

	var hashBytes, physBytes []byte
	if err := row.Scan(&hashBytes, &physBytes); err != nil {
		if err == pgx.ErrNoRows {
			return substrate.Composition{}, errs.New(errs.NotFound, "no composition %s", id)
		}
		return substrate.Composition{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: get composition")
	}

	var h hash.H16
	var physArr [16]byte
	copy(h[:], hashBytes)
	copy(physArr[:], physBytes)
	return substrate.Composition{ID: id, Hash: h, PhysicalityID: ident.FromBytes(physArr)}, nil
}

// Sequence implements [substrate.CompositionStore.Sequence].
func (c compositionStore) Sequence(ctx context.Context, parentID ident.ID) ([]substrate.CompositionSequenceEntry, error) {
	parentBytes := parentID.Bytes()
	const q = `SELECT atom_id, ordinal, occurrences FROM composition_sequence WHERE composition_id = $1 ORDER BY ordinal`
	rows, err := c.q.Query(ctx, q, parentBytes[:])
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: composition sequence")
	}
	defer rows.Close()

	var out []substrate.CompositionSequenceEntry
	for rows.Next() {
		var atomBytes []byte
		var ordinal, occurrences int32
		if err := rows.Scan(&atomBytes, &ordinal, &occurrences); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan composition sequence")
		}
		var atomArr [16]byte
		copy(atomArr[:], atomBytes)
		out = append(out, substrate.CompositionSequenceEntry{
			CompositionID: parentID,
			AtomID:        ident.FromBytes(atomArr),
			Ordinal:       uint32(ordinal),
			Occurrences:   uint32(occurrences),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: composition sequence row iteration")
	}
	return out, nil
}
