package substrate

// UnicodeScalarValues yields every Unicode scalar value in ascending order:
// U+0000 through U+D7FF and U+E000 through U+10FFFF, skipping the surrogate
// range U+D800-U+DFFF, which is not a scalar value and can never be a
// decoded rune. This is the default reference set AtomStore.Seed is called
// with at startup (spec.md §4.5).
func UnicodeScalarValues(yield func(uint32) bool) {
	const (
		surrogateLo = 0xD800
		surrogateHi = 0xDFFF
		maxScalar   = 0x10FFFF
	)
	for cp := uint32(0); cp <= maxScalar; cp++ {
		if cp >= surrogateLo && cp <= surrogateHi {
			continue
		}
		if !yield(cp) {
			return
		}
	}
}
