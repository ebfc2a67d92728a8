// Package hash provides the 128-bit content-addressed BLAKE3 digest used to
// identify Atoms, Compositions, and Content (spec.md §4.1, component C1).
//
// Batch hashing fans out across a worker pool once the input count crosses a
// threshold, mirroring the concurrency model spec.md §5 describes for
// CPU-bound hot paths.
package hash

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/AHartTN/hartonomous/internal/errs"
)

// H16 is a fixed 16-byte content hash: BLAKE3 truncated to 128 bits.
type H16 [16]byte

// batchThreshold is the input count above which Batch parallelises across a
// worker pool instead of hashing sequentially on the calling goroutine.
const batchThreshold = 100

// Bytes returns the BLAKE3-128 digest of data.
func Bytes(data []byte) H16 {
	full := blake3.Sum256(data)
	var h H16
	copy(h[:], full[:16])
	return h
}

// Codepoint returns the BLAKE3-128 digest of a Unicode scalar value encoded
// as 4 little-endian bytes, per the Atom.hash definition in spec.md §3.
func Codepoint(cp uint32) H16 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], cp)
	return Bytes(buf[:])
}

// Codepoints returns the BLAKE3-128 digest of a sequence of codepoints
// concatenated as 4-byte little-endian words, per the Composition.hash
// definition in spec.md §3.
func Codepoints(cps []uint32) H16 {
	buf := make([]byte, 4*len(cps))
	for i, cp := range cps {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], cp)
	}
	return Bytes(buf)
}

// Equal reports byte-wise equality between two hashes.
func (h H16) Equal(other H16) bool { return h == other }

// String renders h as a lowercase 32-character hex string.
func (h H16) String() string { return hex.EncodeToString(h[:]) }

// Parse accepts a 32-hex-nibble hash, with or without hyphens, and rejects
// any other length (spec.md §4.1).
func Parse(s string) (H16, error) {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return H16{}, errs.New(errs.InvalidInput, "hash: expected 32 hex nibbles, got %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return H16{}, errs.Wrap(errs.InvalidInput, err, "hash: invalid hex")
	}
	var h H16
	copy(h[:], raw)
	return h, nil
}

// Batch hashes each element of inputs independently, returning results in
// the same order. Inputs beyond batchThreshold are hashed concurrently
// across a worker pool sized to GOMAXPROCS; smaller batches hash inline to
// avoid goroutine overhead for the common small-ingest case.
func Batch(inputs [][]byte) []H16 {
	out := make([]H16, len(inputs))
	if len(inputs) <= batchThreshold {
		for i, in := range inputs {
			out[i] = Bytes(in)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(-1) // errgroup schedules one goroutine per Go call; GOMAXPROCS bounds real parallelism
	chunk := (len(inputs) + workerCount() - 1) / workerCount()
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < len(inputs); start += chunk {
		end := start + chunk
		if end > len(inputs) {
			end = len(inputs)
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				out[i] = Bytes(inputs[i])
			}
			return nil
		})
	}
	_ = g.Wait() // hashing cannot fail
	return out
}
