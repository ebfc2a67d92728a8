// Package geom implements S³ vector geometry: the unit hypersphere in ℝ⁴
// that every Atom, Composition, and Relation's Physicality centroid lives on
// (spec.md §4.2, component C2).
package geom

import "math"

// Vec4 is a point or vector in ℝ⁴.
type Vec4 [4]float64

// dotFn is swapped at init time based on detected CPU capability, modelling
// the SIMD capability-selection design note (spec.md §9) as a dispatch
// trait: both implementations compute the same inner product, differing only
// in summation order (left to right versus pairwise), so their results agree
// within a few ULPs rather than bit for bit.
var dotFn func(a, b Vec4) float64 = dotScalar

// Dot returns the Euclidean inner product of a and b. The result must agree
// with the scalar form within 4 ULPs regardless of which implementation is
// selected (spec.md §4.2).
func Dot(a, b Vec4) float64 { return dotFn(a, b) }

func dotScalar(a, b Vec4) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
}

// dotUnrolled4 is a manually unrolled form that lets a vectorizing compiler
// or a future assembly implementation process all four lanes independently
// before the final reduction, matching the "4-wide" shape real AVX2 code
// would take while remaining portable pure Go.
func dotUnrolled4(a, b Vec4) float64 {
	p0 := a[0] * b[0]
	p1 := a[1] * b[1]
	p2 := a[2] * b[2]
	p3 := a[3] * b[3]
	return (p0 + p1) + (p2 + p3)
}

// Normalize returns v scaled to unit length. Per spec.md §4.2, a
// near-degenerate input (‖v‖ < 1e-12) maps to the canonical pole (1,0,0,0)
// rather than dividing by a near-zero norm.
func Normalize(v Vec4) Vec4 {
	n := math.Sqrt(Dot(v, v))
	if n < 1e-12 {
		return Vec4{1, 0, 0, 0}
	}
	return Vec4{v[0] / n, v[1] / n, v[2] / n, v[3] / n}
}

// Norm returns the Euclidean length of v.
func Norm(v Vec4) float64 { return math.Sqrt(Dot(v, v)) }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Geodesic returns the great-circle (shortest-path) arc length between two
// points on S³, in [0, π]. Uses acos(clamp(dot,-1,1)); GeodesicStable offers
// the numerically stable alternative form, and both must agree within 1e-9
// for |dot| < 0.999 (spec.md §4.2).
func Geodesic(a, b Vec4) float64 {
	return math.Acos(clamp(Dot(a, b), -1, 1))
}

// GeodesicStable computes the same quantity as Geodesic via
// 2·asin(‖a−b‖/2), which is better conditioned near antipodal points.
func GeodesicStable(a, b Vec4) float64 {
	d := Euclidean(a, b)
	return 2 * math.Asin(clamp(d/2, -1, 1))
}

// Euclidean returns the straight-line (chordal) distance between a and b.
func Euclidean(a, b Vec4) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	dw := a[3] - b[3]
	return math.Sqrt(dx*dx + dy*dy + dz*dz + dw*dw)
}

// Centroid returns the normalised componentwise sum of points. If the sum is
// (numerically) zero, it falls back to the first input normalised; with no
// input at all it returns the canonical pole (1,0,0,0) (spec.md §4.2).
func Centroid(points []Vec4) Vec4 {
	if len(points) == 0 {
		return Vec4{1, 0, 0, 0}
	}
	var sum Vec4
	for _, p := range points {
		sum[0] += p[0]
		sum[1] += p[1]
		sum[2] += p[2]
		sum[3] += p[3]
	}
	if Norm(sum) < 1e-12 {
		return Normalize(points[0])
	}
	return Normalize(sum)
}
