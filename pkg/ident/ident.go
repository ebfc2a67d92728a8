// Package ident defines the 128-bit content-addressed identifier shared by
// every tier of the substrate graph (Atom, Composition, Relation,
// Physicality, Content).
//
// Bit 0 of the low 64-bit word encodes tier parity (1 = Atom, 0 =
// Composition/Relation). Bits 1–7 encode the tier level (0 = atom, 1 =
// composition, 2+ = relation-of-relations). The remaining 120 bits come
// from the content hash. This makes tier membership testable without a
// join: `id.IsAtom()`, `id.Level()`.
package ident

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/AHartTN/hartonomous/internal/errs"
)

// ID is a 128-bit identifier, stored as two big-endian 64-bit words (Hi:Lo),
// matching the 16-byte big-endian on-disk/wire representation used
// throughout spec.md §6.
type ID struct {
	Hi, Lo uint64
}

// Zero is the identifier with all bits unset. Never a valid content address
// (BLAKE3 of any input has negligible probability of colliding with it) but
// used as a sentinel for "no id" in APIs that return (ID, bool).
var Zero ID

const (
	tierParityMask = 0x1
	tierLevelShift = 1
	tierLevelMask  = 0x7F // bits 1..7
)

// FromHash builds an ID from a 16-byte content hash, stamping the tier
// parity bit and level into the low word's low byte per the data-model bit
// layout. isAtom selects parity; level is clamped to 7 bits.
func FromHash(h [16]byte, isAtom bool, level uint8) ID {
	hi := binary.BigEndian.Uint64(h[0:8])
	lo := binary.BigEndian.Uint64(h[8:16])

	lo &^= uint64(tierLevelMask<<tierLevelShift) | tierParityMask
	lo |= uint64(level&tierLevelMask) << tierLevelShift
	if isAtom {
		lo |= tierParityMask
	}
	return ID{Hi: hi, Lo: lo}
}

// IsAtom reports whether the tier-parity bit marks this id as an Atom (as
// opposed to a Composition or Relation).
func (id ID) IsAtom() bool { return id.Lo&tierParityMask == 1 }

// Level returns the tier level encoded in bits 1-7 of the low word: 0 for
// atoms, 1 for compositions, 2+ for relations-of-relations.
func (id ID) Level() uint8 { return uint8((id.Lo >> tierLevelShift) & tierLevelMask) }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id.Hi == 0 && id.Lo == 0 }

// Bytes returns the 16-byte big-endian encoding of id.
func (id ID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.Hi)
	binary.BigEndian.PutUint64(b[8:16], id.Lo)
	return b
}

// FromBytes reconstructs an ID from its 16-byte big-endian encoding.
func FromBytes(b [16]byte) ID {
	return ID{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// String renders id as a lowercase 32-character hex string (no hyphens).
func (id ID) String() string {
	b := id.Bytes()
	return hex.EncodeToString(b[:])
}

// Parse accepts a 32-hex-nibble identifier, with or without hyphens, and
// rejects any other length. Mirrors the hex parsing rule spec.md §4.1
// requires for H16.
func Parse(s string) (ID, error) {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return Zero, errs.New(errs.InvalidInput, "ident: expected 32 hex nibbles, got %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Zero, errs.Wrap(errs.InvalidInput, err, "ident: invalid hex")
	}
	var b [16]byte
	copy(b[:], raw)
	return FromBytes(b), nil
}

// Less provides a total order over ID, used to implement "lowest-id wins"
// tie-breaking on concurrent get_or_create races (spec.md §5).
func Less(a, b ID) bool {
	if a.Hi != b.Hi {
		return a.Hi < b.Hi
	}
	return a.Lo < b.Lo
}
