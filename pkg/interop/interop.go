// Package interop implements the opaque-handle ABI surface (spec.md §4.12,
// component C12): a handle table mapping small integer handles to live
// DbConnection/Ingester/QueryEngine/WalkEngine instances, plus the
// operations a cgo-exported façade needs to drive them.
//
// This package is plain Go with no cgo and no C types; cmd/hartonomousabi
// is the thin //export layer that translates C calling-convention arguments
// into calls against the Table here. Keeping the handle table itself free
// of cgo means it is unit-testable the normal way, keeping the
// registration/bookkeeping logic separate from the wire protocol it
// eventually serves.
package interop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AHartTN/hartonomous/internal/errs"
	"github.com/AHartTN/hartonomous/internal/ingest"
	"github.com/AHartTN/hartonomous/internal/query"
	"github.com/AHartTN/hartonomous/internal/rating"
	"github.com/AHartTN/hartonomous/internal/walk"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/substrate"
)

// Handle is an opaque reference to a live object in the Table, the Go-side
// counterpart of the ABI's db_connection_t/ingester_t/query_t/walk_t
// integers.
type Handle uint64

// kind distinguishes what a Handle resolves to, so a caller passing an
// ingester_t where a walk_t is expected fails with a clear error instead of
// an interface type assertion panic crossing into a cgo export.
type kind int

const (
	kindConnection kind = iota
	kindIngester
	kindQuery
	kindWalk
)

// entry is one row of the handle table: the live object plus the last error
// observed on operations against this handle. A per-handle error buffer is
// the Open Question resolution documented for thread-local error state:
// calls on one handle are serialised by contract (spec.md §5), so per-handle
// storage is observationally equivalent to TLS for any caller that respects
// that contract.
type entry struct {
	kind     kind
	value    any
	lastErr  string
	hasError bool
}

// Table is the process-wide handle registry. The zero value is not ready to
// use; call NewTable.
type Table struct {
	mu      sync.RWMutex
	entries map[Handle]*entry
	next    uint64
}

// NewTable returns an empty handle table.
func NewTable() *Table {
	return &Table{entries: make(map[Handle]*entry)}
}

func (t *Table) register(k kind, value any) Handle {
	h := Handle(atomic.AddUint64(&t.next, 1))
	t.mu.Lock()
	t.entries[h] = &entry{kind: k, value: value}
	t.mu.Unlock()
	return h
}

func (t *Table) get(h Handle, want kind) (*entry, error) {
	t.mu.RLock()
	e, ok := t.entries[h]
	t.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.InvalidInput, "interop: unknown handle %d", h)
	}
	if e.kind != want {
		return nil, errs.New(errs.InvalidInput, "interop: handle %d is not the expected kind", h)
	}
	return e, nil
}

// setError records err (if non-nil) on e's buffer and returns false, the
// pattern every exported entry point follows: return ok, consult LastError
// on failure.
func (t *Table) setError(h Handle, e *entry, err error) bool {
	if err == nil {
		t.mu.Lock()
		e.hasError = false
		e.lastErr = ""
		t.mu.Unlock()
		return true
	}
	t.mu.Lock()
	e.hasError = true
	e.lastErr = err.Error()
	t.mu.Unlock()
	return false
}

// LastError returns the last error message recorded against h, and whether
// one is present. Mirrors get_last_error (spec.md §4.12/§6).
func (t *Table) LastError(h Handle) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if !ok {
		return "", false
	}
	return e.lastErr, e.hasError
}

// Close releases h, regardless of its kind. Calling Close twice, or on an
// unknown handle, is a no-op error rather than a panic — cgo callers that
// double-free must get a clean false, not undefined behaviour.
func (t *Table) Close(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[h]; !ok {
		return errs.New(errs.InvalidInput, "interop: unknown handle %d", h)
	}
	delete(t.entries, h)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────
// DbConnection
// ─────────────────────────────────────────────────────────────────────────

// connection bundles the store halves an Ingester/QueryEngine/WalkEngine
// need: the sealed AtomStore and the general Store (spec.md §4.5/§4.6), plus
// the function that releases them.
type connection struct {
	atoms substrate.AtomStore
	store substrate.Store
	close func() error
}

// Connect registers an already-opened (atoms, store) pair and returns its
// handle. Opening the actual database connection is the concern of
// pkg/substrate/postgres and internal/hoststore; interop only takes
// ownership of the result, matching the ABI's "opaque handle" contract
// without duplicating connection-string parsing here.
func (t *Table) Connect(atoms substrate.AtomStore, store substrate.Store) Handle {
	return t.register(kindConnection, &connection{atoms: atoms, store: store})
}

// OpenStore is the pluggable factory the DSN-based entry points use to turn
// a connection string into a live (AtomStore, Store, close) triple. It is a
// package variable rather than an import of pkg/substrate/postgres directly
// so this package does not force every caller to pull in the Postgres
// driver; cmd/hartonomousabi (and internal/app) assign it once at process
// start.
var OpenStore func(ctx context.Context, dsn string) (substrate.AtomStore, substrate.Store, func() error, error)

// ConnectDSN opens a store via OpenStore and registers it, returning the
// resulting handle. Fails with errs.Internal if OpenStore has not been
// configured.
func (t *Table) ConnectDSN(ctx context.Context, dsn string) (Handle, error) {
	if OpenStore == nil {
		return 0, errs.New(errs.Internal, "interop: no store backend configured")
	}
	atoms, store, closeFn, err := OpenStore(ctx, dsn)
	if err != nil {
		return 0, err
	}
	return t.register(kindConnection, &connection{atoms: atoms, store: store, close: closeFn}), nil
}

func (t *Table) connectionOf(h Handle) (*connection, *entry, error) {
	e, err := t.get(h, kindConnection)
	if err != nil {
		return nil, nil, err
	}
	return e.value.(*connection), e, nil
}

// CloseConnection releases db, invoking its close function (if any) before
// removing it from the table.
func (t *Table) CloseConnection(db Handle) error {
	conn, _, err := t.connectionOf(db)
	if err != nil {
		return err
	}
	if conn.close != nil {
		if closeErr := conn.close(); closeErr != nil {
			return closeErr
		}
	}
	return t.Close(db)
}

// ─────────────────────────────────────────────────────────────────────────
// Ingester
// ─────────────────────────────────────────────────────────────────────────

// NewIngester creates an Ingester handle bound to db's store pair, per
// internal/ingest's pipeline construction.
func (t *Table) NewIngester(db Handle, cfg ingest.Config) (Handle, error) {
	conn, _, err := t.connectionOf(db)
	if err != nil {
		return 0, err
	}
	pipeline := ingest.New(conn.atoms, conn.store, cfg)
	return t.register(kindIngester, pipeline), nil
}

// Ingest runs data through the ingester at h, recording the outcome as h's
// last error on failure.
func (t *Table) Ingest(h Handle, data []byte, sourceIdentifier, mime string) (ingest.Counters, bool) {
	e, err := t.get(h, kindIngester)
	if err != nil {
		return ingest.Counters{}, false
	}
	pipeline := e.value.(*ingest.Pipeline)
	counters, err := pipeline.Ingest(context.Background(), data, sourceIdentifier, mime)
	return counters, t.setError(h, e, err)
}

// ─────────────────────────────────────────────────────────────────────────
// QueryEngine
// ─────────────────────────────────────────────────────────────────────────

// NewQueryEngine creates a QueryEngine handle bound to db's store.
func (t *Table) NewQueryEngine(db Handle, cfg query.Config) (Handle, error) {
	conn, _, err := t.connectionOf(db)
	if err != nil {
		return 0, err
	}
	engine := query.New(conn.store, cfg)
	return t.register(kindQuery, engine), nil
}

func (t *Table) queryOf(h Handle) (*query.Engine, *entry, error) {
	e, err := t.get(h, kindQuery)
	if err != nil {
		return nil, nil, err
	}
	return e.value.(*query.Engine), e, nil
}

// FindRelated runs query.Engine.FindRelated against h.
func (t *Table) FindRelated(h Handle, text string, limit int) ([]query.Related, bool) {
	engine, e, err := t.queryOf(h)
	if err != nil {
		return nil, false
	}
	related, err := engine.FindRelated(context.Background(), text, limit)
	return related, t.setError(h, e, err)
}

// FindGravitationalTruth runs query.Engine.FindGravitationalTruth against h.
func (t *Table) FindGravitationalTruth(h Handle, text string, minBaseElo float64, limit int) ([]query.Truth, bool) {
	engine, e, err := t.queryOf(h)
	if err != nil {
		return nil, false
	}
	truths, err := engine.FindGravitationalTruth(context.Background(), text, minBaseElo, limit)
	return truths, t.setError(h, e, err)
}

// AnswerQuestion runs query.Engine.AnswerQuestion against h.
func (t *Table) AnswerQuestion(h Handle, question string, limit int) (query.Answer, bool) {
	engine, e, err := t.queryOf(h)
	if err != nil {
		return query.Answer{}, false
	}
	answer, err := engine.AnswerQuestion(context.Background(), question, limit)
	return answer, t.setError(h, e, err)
}

// ─────────────────────────────────────────────────────────────────────────
// WalkEngine
// ─────────────────────────────────────────────────────────────────────────

// NewWalkEngine creates a WalkEngine handle bound to db's store pair.
func (t *Table) NewWalkEngine(db Handle, cfg walk.Config) (Handle, error) {
	conn, _, err := t.connectionOf(db)
	if err != nil {
		return 0, err
	}
	engine := walk.New(conn.store, conn.atoms, cfg)
	return t.register(kindWalk, engine), nil
}

// Walk runs a full walk from start against h.
func (t *Table) Walk(h Handle, start ident.ID) (walk.Result, bool) {
	e, err := t.get(h, kindWalk)
	if err != nil {
		return walk.Result{}, false
	}
	engine := e.value.(*walk.Engine)
	result, err := engine.Walk(context.Background(), start)
	return result, t.setError(h, e, err)
}

// Stream runs a streaming walk from start against h, invoking onStep after
// every step. Returning false from onStep cancels the walk cooperatively
// (spec.md §4.11).
func (t *Table) Stream(h Handle, start ident.ID, onStep walk.StepCallback) (walk.Result, bool) {
	e, err := t.get(h, kindWalk)
	if err != nil {
		return walk.Result{}, false
	}
	engine := e.value.(*walk.Engine)
	result, err := engine.Stream(context.Background(), start, onStep)
	return result, t.setError(h, e, err)
}

// RatingObserve is exposed so host-store-adjacent callers (and tests) can
// drive rating.Engine.Observe across the same handle table, without forcing
// every caller to thread a *rating.Engine through separately. It is bound
// directly to the connection's store rather than to a registered handle
// kind, since the ABI surface (spec.md §4.12) does not name a separate
// rating handle.
func (t *Table) RatingObserve(db Handle, relationID ident.ID, outcome rating.Outcome, weight float64, cfg rating.Config) (substrate.RelationRating, bool) {
	conn, e, err := t.connectionOf(db)
	if err != nil {
		return substrate.RelationRating{}, false
	}
	engine := rating.New(conn.store, cfg)
	r, err := engine.Observe(context.Background(), relationID, outcome, weight)
	return r, t.setError(db, e, err)
}
