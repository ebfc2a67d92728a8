package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type relationStore struct{ q querier }

var _ substrate.RelationStore = relationStore{}

// GetOrCreate implements [substrate.RelationStore.GetOrCreate]. Unlike
// composition/content, the relation table carries no separate hash column:
// the relation's id is itself ident.FromHash(h, false, 1), so testing "does
// this hash already have a relation" is the same as testing "does this id
// already exist" (pkg/substrate/mock/relations.go's relByHash map serves the
// identical purpose in memory).
func (r relationStore) GetOrCreate(ctx context.Context, h hash.H16, compositionCentroids []geom.Vec4) (ident.ID, bool, error) {
	id := ident.FromHash(h, false, 1)
	idBytes := id.Bytes()

	if existing, err := r.Get(ctx, id); err == nil {
		return existing.ID, false, nil
	} else if errs.KindOf(err) != errs.NotFound {
		return ident.ID{}, false, err
	}

	centroid := geom.Centroid(compositionCentroids)
	physID, err := insertPhysicality(ctx, r.q, centroid, nil)
	if err != nil {
		return ident.ID{}, false, err
	}
	physBytes := physID.Bytes()

	const insert = `INSERT INTO relation (id, physicality_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	tag, err := r.q.Exec(ctx, insert, idBytes[:], physBytes[:])
	if err != nil {
		return ident.ID{}, false, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: insert relation")
	}
	if tag.RowsAffected() == 0 {
		// Lost the race to a concurrent creator; tolerate the orphaned
		// physicality row just inserted, same as compositionStore.GetOrCreate.
		existing, getErr := r.Get(ctx, id)
		if getErr != nil {
			return ident.ID{}, false, getErr
		}
		return existing.ID, false, nil
	}
	return id, true, nil
}

// AppendSequence implements [substrate.RelationStore.AppendSequence].
func (r relationStore) AppendSequence(ctx context.Context, parentID ident.ID, children []substrate.SequenceChild) error {
	parentBytes := parentID.Bytes()

	for _, ch := range children {
		childBytes := ch.ChildID.Bytes()
		const upsert = `INSERT INTO relation_sequence (relation_id, composition_id, ordinal, occurrences)
		                 VALUES ($1, $2, $3, $4)
		                 ON CONFLICT (relation_id, ordinal)
		                 DO UPDATE SET occurrences = relation_sequence.occurrences + EXCLUDED.occurrences`
		if _, err := r.q.Exec(ctx, upsert, parentBytes[:], childBytes[:], int32(ch.Ordinal), int32(ch.Occurrences)); err != nil {
			return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: append relation sequence")
		}
	}

	return checkOrdinalContiguity(ctx, r.q, "relation_sequence", "relation_id", parentID)
}

// AttachEvidence implements [substrate.RelationStore.AttachEvidence].
func (r relationStore) AttachEvidence(ctx context.Context, relationID, contentID ident.ID, source substrate.SourceType, position uint32, weight float64) (int64, error) {
	relBytes, contentBytes := relationID.Bytes(), contentID.Bytes()
	const insert = `INSERT INTO relation_evidence (relation_id, content_id, source_type, position, weight, created)
	                 VALUES ($1, $2, $3, $4, $5, $6)
	                 RETURNING id`
	row := r.q.QueryRow(ctx, insert, relBytes[:], contentBytes[:], int16(source), int32(position), weight, time.Now())
	var evidenceID int64
	if err := row.Scan(&evidenceID); err != nil {
		return 0, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: attach evidence")
	}
	return evidenceID, nil
}

// Get implements [substrate.RelationStore.Get].
func (r relationStore) Get(ctx context.Context, id ident.ID) (substrate.Relation, error) {
	idBytes := id.Bytes()
	const q = `SELECT physicality_id FROM relation WHERE id = $1`
	row := r.q.QueryRow(ctx, q, idBytes[:])
	var physBytes []byte
	if err := row.Scan(&physBytes); err != nil {
		if err == pgx.ErrNoRows {
			return substrate.Relation{}, errs.New(errs.NotFound, "no relation %s", id)
		}
		return substrate.Relation{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: get relation")
	}
	var physArr [16]byte
	copy(physArr[:], physBytes)
	return substrate.Relation{ID: id, PhysicalityID: ident.FromBytes(physArr)}, nil
}

// Sequence implements [substrate.RelationStore.Sequence].
func (r relationStore) Sequence(ctx context.Context, parentID ident.ID) ([]substrate.RelationSequenceEntry, error) {
	parentBytes := parentID.Bytes()
	const q = `SELECT composition_id, ordinal, occurrences FROM relation_sequence WHERE relation_id = $1 ORDER BY ordinal`
	rows, err := r.q.Query(ctx, q, parentBytes[:])
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: relation sequence")
	}
	defer rows.Close()

	var out []substrate.RelationSequenceEntry
	for rows.Next() {
		var compBytes []byte
		var ordinal, occurrences int32
		if err := rows.Scan(&compBytes, &ordinal, &occurrences); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan relation sequence")
		}
		var compArr [16]byte
		copy(compArr[:], compBytes)
		out = append(out, substrate.RelationSequenceEntry{
			RelationID:    parentID,
			CompositionID: ident.FromBytes(compArr),
			Ordinal:       uint32(ordinal),
			Occurrences:   uint32(occurrences),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: relation sequence row iteration")
	}
	return out, nil
}

// Evidence implements [substrate.RelationStore.Evidence].
func (r relationStore) Evidence(ctx context.Context, relationID ident.ID) ([]substrate.RelationEvidence, error) {
	relBytes := relationID.Bytes()
	const q = `SELECT id, content_id, source_type, position, weight, created
	            FROM relation_evidence WHERE relation_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, q, relBytes[:])
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: evidence")
	}
	defer rows.Close()

	var out []substrate.RelationEvidence
	for rows.Next() {
		var id int64
		var contentBytes []byte
		var source int16
		var position int32
		var weight float64
		var created time.Time
		if err := rows.Scan(&id, &contentBytes, &source, &position, &weight, &created); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan evidence")
		}
		var contentArr [16]byte
		copy(contentArr[:], contentBytes)
		out = append(out, substrate.RelationEvidence{
			ID:         id,
			RelationID: relationID,
			ContentID:  ident.FromBytes(contentArr),
			Source:     substrate.SourceType(source),
			Position:   uint32(position),
			Weight:     weight,
			Created:    created,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: evidence row iteration")
	}
	return out, nil
}

// Outgoing implements [substrate.RelationStore.Outgoing]: relations whose
// first (ordinal 0) child composition is compositionID, the traversal anchor
// the query and walk engines follow (spec.md §4.10, §4.11). The mock
// maintains this as a write-time index (outgoingIndex); here it is a plain
// join, since the relation_sequence table already carries the ordinal.
func (r relationStore) Outgoing(ctx context.Context, compositionID ident.ID) ([]substrate.Relation, error) {
	compBytes := compositionID.Bytes()
	const q = `SELECT r.id, r.physicality_id
	            FROM relation r
	            JOIN relation_sequence rs ON rs.relation_id = r.id AND rs.ordinal = 0
	            WHERE rs.composition_id = $1`
	rows, err := r.q.Query(ctx, q, compBytes[:])
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: outgoing relations")
	}
	defer rows.Close()

	var out []substrate.Relation
	for rows.Next() {
		var idBytes, physBytes []byte
		if err := rows.Scan(&idBytes, &physBytes); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan outgoing relation")
		}
		var idArr, physArr [16]byte
		copy(idArr[:], idBytes)
		copy(physArr[:], physBytes)
		out = append(out, substrate.Relation{ID: ident.FromBytes(idArr), PhysicalityID: ident.FromBytes(physArr)})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: outgoing row iteration")
	}
	return out, nil
}

// PurgeEvidenceBySource implements [substrate.RelationStore.PurgeEvidenceBySource].
func (r relationStore) PurgeEvidenceBySource(ctx context.Context, sourceIdentifier string) ([]ident.ID, error) {
	const q = `WITH purged AS (
	             DELETE FROM relation_evidence re
	             USING content c
	             WHERE re.content_id = c.id AND c.source_identifier = $1
	             RETURNING re.relation_id
	           )
	           SELECT DISTINCT relation_id FROM purged`
	rows, err := r.q.Query(ctx, q, sourceIdentifier)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: purge evidence by source")
	}
	defer rows.Close()

	var out []ident.ID
	for rows.Next() {
		var idBytes []byte
		if err := rows.Scan(&idBytes); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan purged relation")
		}
		var idArr [16]byte
		copy(idArr[:], idBytes)
		out = append(out, ident.FromBytes(idArr))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: purge row iteration")
	}
	return out, nil
}

// Delete implements [substrate.RelationStore.Delete]: the relation row's
// foreign keys cascade to relation_sequence, relation_rating, and
// relation_evidence (schema.go), so a single DELETE clears the whole subtree.
func (r relationStore) Delete(ctx context.Context, id ident.ID) error {
	idBytes := id.Bytes()
	if _, err := r.q.Exec(ctx, `DELETE FROM relation WHERE id = $1`, idBytes[:]); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "substrate/postgres: delete relation")
	}
	return nil
}
