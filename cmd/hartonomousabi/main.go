// Command hartonomousabi builds the C-ABI façade described in spec.md
// §4.12/§6: a cgo-exported library (buildmode=c-shared or c-archive) over
// the opaque handle table in pkg/interop. Every entry point returns a
// boolean success flag; on failure the caller retrieves the message via
// hartonomous_last_error. Strings crossing the boundary are UTF-8 with
// explicit lengths; 128-bit ids are fixed 16-byte arrays; 4-vectors are
// fixed 4-double arrays (spec.md §4.12). Memory this library allocates for
// a caller is released only via the matching hartonomous_free_… call —
// ownership never crosses back into Go-managed memory.
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>

// step_callback_t mirrors walk.StepCallback across the ABI boundary: it
// receives the newly appended fragment and returns false to cancel the walk
// cooperatively (spec.md §4.11's streaming variant).
typedef bool (*step_callback_t)(const char *fragment, size_t len, void *user_data);

// call_step_callback exists because cgo cannot call a C function pointer
// directly from Go; this trampoline does it on the C side.
static inline bool call_step_callback(step_callback_t cb, const char *fragment, size_t len, void *user_data) {
	return cb(fragment, len, user_data);
}
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/AHartTN/hartonomous/internal/ingest"
	"github.com/AHartTN/hartonomous/internal/query"
	"github.com/AHartTN/hartonomous/internal/walk"
	"github.com/AHartTN/hartonomous/pkg/ident"
	"github.com/AHartTN/hartonomous/pkg/interop"
	"github.com/AHartTN/hartonomous/pkg/substrate"
	"github.com/AHartTN/hartonomous/pkg/substrate/postgres"
)

func init() {
	// A cgo-exported library has no composition root of its own to assign
	// this hook, unlike internal/app; the ABI's only store backend is a DSN
	// string crossing the C boundary, so it is always Postgres.
	interop.OpenStore = func(ctx context.Context, dsn string) (substrate.AtomStore, substrate.Store, func() error, error) {
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		return s.AtomStore(), s, s.Close, nil
	}
}

// table is the single process-wide handle registry this library's exported
// functions operate on. Concurrent calls on distinct handles are safe
// (spec.md §5); calls on the same handle must be serialised by the caller.
var table = interop.NewTable()

func main() {} // required by cgo for a c-shared/c-archive build

func goString(ptr *C.char, length C.size_t) string {
	if ptr == nil || length == 0 {
		return ""
	}
	return C.GoStringN(ptr, C.int(length))
}

func goBytes(ptr *C.uint8_t, length C.size_t) []byte {
	if ptr == nil || length == 0 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(ptr), C.int(length))
}

// idFromBytes reads a 16-byte big-endian identifier, the fixed-array 128-bit
// quantity format spec.md §4.12/§6 requires.
func idFromBytes(ptr *C.uint8_t) ident.ID {
	var b [16]byte
	if ptr != nil {
		copy(b[:], unsafe.Slice((*byte)(unsafe.Pointer(ptr)), 16))
	}
	return ident.FromBytes(b)
}

// writeID copies id's 16-byte encoding into a caller-provided out buffer.
func writeID(out *C.uint8_t, id ident.ID) {
	if out == nil {
		return
	}
	b := id.Bytes()
	copy(unsafe.Slice((*byte)(unsafe.Pointer(out)), 16), b[:])
}

// outString allocates a C string the caller must release with
// hartonomous_free_string; *outLen receives the byte length (the string is
// not guaranteed to be NUL-free, so length is explicit rather than implied
// by strlen).
func outString(s string, out **C.char, outLen *C.size_t) {
	if out == nil {
		return
	}
	*out = C.CString(s)
	if outLen != nil {
		*outLen = C.size_t(len(s))
	}
}

//export hartonomous_free_string
func hartonomous_free_string(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

//export hartonomous_last_error
func hartonomous_last_error(handle C.uint64_t, out **C.char, outLen *C.size_t) C.bool {
	msg, ok := table.LastError(interop.Handle(handle))
	if !ok {
		return C.bool(false)
	}
	outString(msg, out, outLen)
	return C.bool(true)
}

//export hartonomous_close_handle
func hartonomous_close_handle(handle C.uint64_t) C.bool {
	return C.bool(table.Close(interop.Handle(handle)) == nil)
}

// ─────────────────────────────────────────────────────────────────────────
// DbConnection
// ─────────────────────────────────────────────────────────────────────────

//export hartonomous_db_connect
func hartonomous_db_connect(dsn *C.char, dsnLen C.size_t, outHandle *C.uint64_t) C.bool {
	h, err := table.ConnectDSN(context.Background(), goString(dsn, dsnLen))
	if err != nil {
		return C.bool(false)
	}
	if outHandle != nil {
		*outHandle = C.uint64_t(h)
	}
	return C.bool(true)
}

//export hartonomous_db_close
func hartonomous_db_close(handle C.uint64_t) C.bool {
	return C.bool(table.CloseConnection(interop.Handle(handle)) == nil)
}

// ─────────────────────────────────────────────────────────────────────────
// Ingester
// ─────────────────────────────────────────────────────────────────────────

//export hartonomous_ingester_new
func hartonomous_ingester_new(dbHandle C.uint64_t, outHandle *C.uint64_t) C.bool {
	h, err := table.NewIngester(interop.Handle(dbHandle), ingest.DefaultConfig())
	if err != nil {
		return C.bool(false)
	}
	if outHandle != nil {
		*outHandle = C.uint64_t(h)
	}
	return C.bool(true)
}

//export hartonomous_ingester_ingest
func hartonomous_ingester_ingest(
	handle C.uint64_t,
	data *C.uint8_t, dataLen C.size_t,
	sourceIdentifier *C.char, sourceLen C.size_t,
	mime *C.char, mimeLen C.size_t,
	outAtoms, outCompositions, outRelations, outOriginalBytes, outStoredBytes *C.uint64_t,
) C.bool {
	counters, ok := table.Ingest(
		interop.Handle(handle),
		goBytes(data, dataLen),
		goString(sourceIdentifier, sourceLen),
		goString(mime, mimeLen),
	)
	if !ok {
		return C.bool(false)
	}
	if outAtoms != nil {
		*outAtoms = C.uint64_t(counters.AtomsProcessed)
	}
	if outCompositions != nil {
		*outCompositions = C.uint64_t(counters.CompositionsCreated)
	}
	if outRelations != nil {
		*outRelations = C.uint64_t(counters.RelationsCreated)
	}
	if outOriginalBytes != nil {
		*outOriginalBytes = C.uint64_t(counters.OriginalBytes)
	}
	if outStoredBytes != nil {
		*outStoredBytes = C.uint64_t(counters.StoredBytes)
	}
	return C.bool(true)
}

// ─────────────────────────────────────────────────────────────────────────
// QueryEngine
// ─────────────────────────────────────────────────────────────────────────

//export hartonomous_query_new
func hartonomous_query_new(dbHandle C.uint64_t, gravitationalRadius C.double, outHandle *C.uint64_t) C.bool {
	cfg := query.DefaultConfig()
	if gravitationalRadius > 0 {
		cfg.GravitationalRadius = float64(gravitationalRadius)
	}
	h, err := table.NewQueryEngine(interop.Handle(dbHandle), cfg)
	if err != nil {
		return C.bool(false)
	}
	if outHandle != nil {
		*outHandle = C.uint64_t(h)
	}
	return C.bool(true)
}

//export hartonomous_query_find_related
func hartonomous_query_find_related(handle C.uint64_t, text *C.char, textLen C.size_t, limit C.int, outRelationIDs *C.uint8_t, outCount *C.int, capacity C.int) C.bool {
	related, ok := table.FindRelated(interop.Handle(handle), goString(text, textLen), int(limit))
	if !ok {
		return C.bool(false)
	}
	n := len(related)
	if n > int(capacity) {
		n = int(capacity)
	}
	for i := 0; i < n; i++ {
		dst := unsafe.Add(unsafe.Pointer(outRelationIDs), i*16)
		writeID((*C.uint8_t)(dst), related[i].RelationID)
	}
	if outCount != nil {
		*outCount = C.int(n)
	}
	return C.bool(true)
}

//export hartonomous_query_answer_question
func hartonomous_query_answer_question(handle C.uint64_t, question *C.char, questionLen C.size_t, limit C.int, outRelationID *C.uint8_t, outScore *C.double) C.bool {
	answer, ok := table.AnswerQuestion(interop.Handle(handle), goString(question, questionLen), int(limit))
	if !ok {
		return C.bool(false)
	}
	writeID(outRelationID, answer.RelationID)
	if outScore != nil {
		*outScore = C.double(answer.Score)
	}
	return C.bool(true)
}

// ─────────────────────────────────────────────────────────────────────────
// WalkEngine
// ─────────────────────────────────────────────────────────────────────────

//export hartonomous_walk_new
func hartonomous_walk_new(dbHandle C.uint64_t, energy, decay, temperature C.double, maxTokens C.int, outHandle *C.uint64_t) C.bool {
	cfg := walk.DefaultConfig()
	if energy > 0 {
		cfg.Energy = float64(energy)
	}
	if decay > 0 {
		cfg.Decay = float64(decay)
	}
	if temperature > 0 {
		cfg.Temperature = float64(temperature)
	}
	if maxTokens > 0 {
		cfg.MaxTokens = int(maxTokens)
	}
	h, err := table.NewWalkEngine(interop.Handle(dbHandle), cfg)
	if err != nil {
		return C.bool(false)
	}
	if outHandle != nil {
		*outHandle = C.uint64_t(h)
	}
	return C.bool(true)
}

//export hartonomous_walk_run
func hartonomous_walk_run(handle C.uint64_t, startID *C.uint8_t, outText **C.char, outTextLen *C.size_t, outReason **C.char, outReasonLen *C.size_t, outSteps *C.int) C.bool {
	result, ok := table.Walk(interop.Handle(handle), idFromBytes(startID))
	if !ok {
		return C.bool(false)
	}
	outString(result.Text, outText, outTextLen)
	outString(string(result.Reason), outReason, outReasonLen)
	if outSteps != nil {
		*outSteps = C.int(result.Steps)
	}
	return C.bool(true)
}

//export hartonomous_walk_stream
func hartonomous_walk_stream(
	handle C.uint64_t, startID *C.uint8_t,
	cb C.step_callback_t, userData unsafe.Pointer,
	outText **C.char, outTextLen *C.size_t,
	outReason **C.char, outReasonLen *C.size_t,
	outSteps *C.int,
) C.bool {
	onStep := func(fragment string) bool {
		cFragment := C.CString(fragment)
		defer C.free(unsafe.Pointer(cFragment))
		return bool(C.call_step_callback(cb, cFragment, C.size_t(len(fragment)), userData))
	}
	result, ok := table.Stream(interop.Handle(handle), idFromBytes(startID), onStep)
	if !ok {
		return C.bool(false)
	}
	outString(result.Text, outText, outTextLen)
	outString(string(result.Reason), outReason, outReasonLen)
	if outSteps != nil {
		*outSteps = C.int(result.Steps)
	}
	return C.bool(true)
}
