package postgres

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/hilbert"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

type physicalityStore struct{ q querier }

var _ substrate.PhysicalityStore = physicalityStore{}

// Create implements [substrate.PhysicalityStore.Create].
func (p physicalityStore) Create(ctx context.Context, centroid geom.Vec4, trajectory []geom.Vec4) (ident.ID, error) {
	return insertPhysicality(ctx, p.q, centroid, trajectory)
}

// insertPhysicality computes the Hilbert code from centroid, stores both the
// code and the native pgvector column, and returns the new row's id. Shared
// by physicalityStore.Create and the composition/relation stores' GetOrCreate
// paths, which both derive a Physicality at creation time (spec.md §4.6).
func insertPhysicality(ctx context.Context, q querier, centroid geom.Vec4, trajectory []geom.Vec4) (ident.ID, error) {
	unitCube := [4]float64{
		(centroid[0] + 1) / 2,
		(centroid[1] + 1) / 2,
		(centroid[2] + 1) / 2,
		(centroid[3] + 1) / 2,
	}
	code := hilbert.Encode(unitCube)
	codeBytes := code.Bytes()

	id, err := newPhysicalityID(ctx, q, centroid)
	if err != nil {
		return ident.ID{}, err
	}
	idBytes := id.Bytes()

	vec := pgvector.NewVector(vec4ToFloat32(centroid))

	var trajCol []float64
	for _, p := range trajectory {
		trajCol = append(trajCol, p[0], p[1], p[2], p[3])
	}

	const insert = `INSERT INTO physicality (id, hilbert, centroid, trajectory)
	                 VALUES ($1, $2, $3, $4)`
	if _, err := q.Exec(ctx, insert, idBytes[:], codeBytes[:], vec, trajCol); err != nil {
		return ident.ID{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: insert physicality")
	}
	return id, nil
}

func vec4ToFloat32(v geom.Vec4) []float32 {
	return []float32{float32(v[0]), float32(v[1]), float32(v[2]), float32(v[3])}
}

// newPhysicalityID derives a collision-free id for a new physicality row:
// the high word is a content hash of the centroid bytes, the low word comes
// from physicality_seq, a durable monotonic counter guaranteeing uniqueness
// across rows that happen to share a centroid — the same two-part scheme as
// the mock's newPhysicalityIDLocked (pkg/substrate/mock/store.go), with the
// in-process counter replaced by a database sequence.
func newPhysicalityID(ctx context.Context, q querier, centroid geom.Vec4) (ident.ID, error) {
	var buf [32]byte
	for i, f := range centroid {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	h := hash.Bytes(buf[:])

	var lo int64
	row := q.QueryRow(ctx, `SELECT nextval('physicality_seq')`)
	if err := row.Scan(&lo); err != nil {
		return ident.ID{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: next physicality id")
	}

	return ident.ID{Hi: binary.BigEndian.Uint64(h[:8]), Lo: uint64(lo)}, nil
}

// Get implements [substrate.PhysicalityStore.Get].
func (p physicalityStore) Get(ctx context.Context, id ident.ID) (substrate.Physicality, error) {
	idBytes := id.Bytes()
	const q = `SELECT hilbert, centroid, trajectory FROM physicality WHERE id = $1`
	row := p.q.QueryRow(ctx, q, idBytes[:])

	var hilbertBytes []byte
	var vec pgvector.Vector
	var trajCol []float64
	if err := row.Scan(&hilbertBytes, &vec, &trajCol); err != nil {
		if err == pgx.ErrNoRows {
			return substrate.Physicality{}, errs.New(errs.NotFound, "no physicality %s", id)
		}
		return substrate.Physicality{}, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: get physicality")
	}

	var hilbertArr [16]byte
	copy(hilbertArr[:], hilbertBytes)

	centroid := float32SliceToVec4(vec.Slice())

	var trajectory []geom.Vec4
	for i := 0; i+3 < len(trajCol); i += 4 {
		trajectory = append(trajectory, geom.Vec4{trajCol[i], trajCol[i+1], trajCol[i+2], trajCol[i+3]})
	}

	return substrate.Physicality{
		ID:         id,
		Hilbert:    hilbertArr,
		Centroid:   centroid,
		Trajectory: trajectory,
	}, nil
}

func float32SliceToVec4(s []float32) geom.Vec4 {
	var v geom.Vec4
	for i := 0; i < 4 && i < len(s); i++ {
		v[i] = float64(s[i])
	}
	return v
}

// NearestByHilbert implements [substrate.PhysicalityStore.NearestByHilbert]
// as an HNSW-indexed approximate nearest-neighbour search over the native
// vector column (idx_physicality_centroid, vector_cosine_ops), used as the
// pre-filter spec.md §4.3 describes; the mock's equivalent
// (pkg/substrate/mock/physicality.go) performs the same pre-filter as a
// brute-force Hamming scan over the Hilbert code instead. Cosine distance on
// unit-norm centroids is a monotonic function of geodesic distance, so
// ordering by <=> recovers the same ranking the exact operator would.
func (p physicalityStore) NearestByHilbert(ctx context.Context, query geom.Vec4, limit int) ([]ident.ID, error) {
	vec := pgvector.NewVector(vec4ToFloat32(query))
	const q = `SELECT id FROM physicality ORDER BY centroid <=> $1 LIMIT $2`
	rows, err := p.q.Query(ctx, q, vec, limit)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: nearest by hilbert")
	}
	defer rows.Close()

	var out []ident.ID
	for rows.Next() {
		var idBytes []byte
		if err := rows.Scan(&idBytes); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: scan nearest")
		}
		var idArr [16]byte
		copy(idArr[:], idBytes)
		out = append(out, ident.FromBytes(idArr))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "substrate/postgres: nearest row iteration")
	}
	return out, nil
}
