package geom

import "github.com/klauspost/cpuid/v2"

// init selects the dot-product implementation once at package load, per the
// "capability selection at initialisation" design note (spec.md §9). AVX2
// capability lets the runtime prefer the unrolled 4-wide form; everything
// else falls back to the scalar reference implementation. Both are plain Go;
// they add the four products in a different order, so their results can
// differ in the last bits but agree within the 4-ULP bound Dot documents.
func init() {
	if cpuid.CPU.Supports(cpuid.AVX2) {
		dotFn = dotUnrolled4
	}
}
