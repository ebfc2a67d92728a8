package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl realizes spec.md §6's persisted layout literally: one table per row
// kind, 128-bit ids as BYTEA(16), the centroid as a native pgvector
// vector(4) column, and an HNSW index used as the *approximate*
// nearest-neighbour pre-filter ahead of exact geodesic re-ranking in Go
// (SPEC_FULL.md §6).
const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

-- physicality_seq supplies the low 64 bits of a new Physicality row's id;
-- the high 64 bits are a content hash of the centroid (see insertPhysicality
-- in physicality.go), mirroring pkg/substrate/mock/store.go's
-- newPhysicalityIDLocked so two independently-created rows with identical
-- centroids still get distinct ids.
CREATE SEQUENCE IF NOT EXISTS physicality_seq;

CREATE TABLE IF NOT EXISTS atom (
    id             BYTEA PRIMARY KEY,
    codepoint      INTEGER NOT NULL UNIQUE,
    hash           BYTEA NOT NULL UNIQUE,
    physicality_id BYTEA NOT NULL
);

-- atom_seal is a one-row sentinel: its presence marks the atom foundation
-- sealed (spec.md §4.5), surviving process restarts unlike an in-memory flag.
CREATE TABLE IF NOT EXISTS atom_seal (
    sealed BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS physicality (
    id         BYTEA PRIMARY KEY,
    hilbert    BYTEA NOT NULL,
    centroid   vector(4) NOT NULL,
    trajectory DOUBLE PRECISION[]
);

CREATE INDEX IF NOT EXISTS idx_physicality_centroid
    ON physicality USING hnsw (centroid vector_cosine_ops);

CREATE TABLE IF NOT EXISTS composition (
    id             BYTEA PRIMARY KEY,
    hash           BYTEA NOT NULL UNIQUE,
    physicality_id BYTEA NOT NULL REFERENCES physicality (id)
);

CREATE TABLE IF NOT EXISTS composition_sequence (
    composition_id BYTEA NOT NULL REFERENCES composition (id) ON DELETE CASCADE,
    atom_id        BYTEA NOT NULL REFERENCES atom (id),
    ordinal        INTEGER NOT NULL,
    occurrences    INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (composition_id, ordinal)
);

CREATE TABLE IF NOT EXISTS relation (
    id             BYTEA PRIMARY KEY,
    physicality_id BYTEA NOT NULL REFERENCES physicality (id)
);

CREATE TABLE IF NOT EXISTS relation_sequence (
    relation_id    BYTEA NOT NULL REFERENCES relation (id) ON DELETE CASCADE,
    composition_id BYTEA NOT NULL REFERENCES composition (id),
    ordinal        INTEGER NOT NULL,
    occurrences    INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (relation_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_relation_sequence_composition
    ON relation_sequence (composition_id);

CREATE TABLE IF NOT EXISTS relation_rating (
    relation_id   BYTEA PRIMARY KEY REFERENCES relation (id) ON DELETE CASCADE,
    base_elo      DOUBLE PRECISION NOT NULL,
    consensus_elo DOUBLE PRECISION NOT NULL,
    observations  BIGINT NOT NULL,
    k_factor      DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS content (
    id                BYTEA PRIMARY KEY,
    hash              BYTEA NOT NULL UNIQUE,
    size              BIGINT NOT NULL,
    mime              TEXT NOT NULL DEFAULT '',
    source_identifier TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS relation_evidence (
    id          BIGSERIAL PRIMARY KEY,
    relation_id BYTEA NOT NULL REFERENCES relation (id) ON DELETE CASCADE,
    content_id  BYTEA NOT NULL REFERENCES content (id),
    source_type SMALLINT NOT NULL,
    position    INTEGER NOT NULL,
    weight      DOUBLE PRECISION NOT NULL,
    created     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_relation_evidence_relation
    ON relation_evidence (relation_id);
`

// Migrate creates or ensures every table/extension/index this package needs
// exists. Idempotent and safe to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("substrate/postgres: migrate: %w", err)
	}
	return nil
}
