// Package fibonacci implements the Super-Fibonacci deterministic,
// low-discrepancy quasi-uniform point sequence on S³ (spec.md §4.4,
// component C4), after Alexa, "Super-Fibonacci Spirals: Fast, Low-
// Discrepancy Sampling of SO(3)" (CVPR 2022): a golden-ratio-spaced
// longitude on the S² base sphere, lifted to S³ through the inverse Hopf
// map with a plastic-constant-spaced fiber angle.
//
// No pack example implements this sequence; it is built directly from the
// spec's formula description (see DESIGN.md).
package fibonacci

import (
	"math"

	"github.com/AHartTN/hartonomous/pkg/geom"
)

// Vec4 is an alias for geom.Vec4, kept local so this package's formulas read
// without a geom. prefix on every line.
type Vec4 = geom.Vec4

// phi is the golden ratio, used for the S² base-sphere longitude spacing.
var phi = (1 + math.Sqrt(5)) / 2

// psi is the plastic number (real root of x³ = x + 1), used for the S¹ Hopf
// fiber angle spacing.
var psi = plasticConstant()

func plasticConstant() float64 {
	// Newton's method on f(x) = x^3 - x - 1, seeded near the known root.
	x := 1.3247179572447
	for i := 0; i < 6; i++ {
		fx := x*x*x - x - 1
		fpx := 3*x*x - 1
		x -= fx / fpx
	}
	return x
}

var invPhi = 1 / phi
var invPsi = 1 / psi

// PointOnS3 returns the i-th of N quasi-uniform points on S³ using the
// midpoint rule t=(i+0.5)/N for the polar coordinate and golden-ratio /
// plastic-constant spaced angles for longitude and Hopf fiber phase.
// Requires 0 <= i < N.
func PointOnS3(i, n uint64) Vec4 {
	t := (float64(i) + 0.5) / float64(n)
	return liftHopf(t, float64(i)*invPhi, float64(i)*invPsi)
}

// HashToPoint computes the same quasi-uniform point but seeded from a
// 16-byte content hash instead of a sequence index, as the pure function
// hash_to_point (spec.md §4.4). The hash is interpreted as a well-mixed
// scalar and fmod (math.Mod) is used throughout so that large seed values
// do not lose precision the way forming a literal 2^128-scale float would.
func HashToPoint(h [16]byte) Vec4 {
	seed := hashScalar(h)
	t := math.Mod(seed, 1.0)
	if t < 0 {
		t += 1
	}
	return liftHopf(t, math.Mod(seed*invPhi, 1.0), math.Mod(seed*invPsi, 1.0))
}

// hashScalar interprets a 16-byte hash as a well-mixed non-negative scalar.
// The high 8 bytes dominate; the low 8 bytes perturb the fractional tail so
// that two hashes differing only in their low bytes still land at distinct
// points.
func hashScalar(h [16]byte) float64 {
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(h[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(h[i])
	}
	const twoPow64 = 18446744073709551616.0 // 2^64, exact in float64
	return float64(hi) + float64(lo)/twoPow64
}

// liftHopf places a point on S³ given a polar parameter t∈[0,1) (mapped to
// z=1-2t, uniform by area on the S² base sphere), a base-sphere longitude
// fraction (in full turns, pre-2π) and a Hopf fiber angle fraction (also in
// full turns). Both angle fractions are reduced mod 1 before scaling by 2π.
func liftHopf(t, lonTurns, fiberTurns float64) Vec4 {
	z := 1 - 2*t
	if z > 1 {
		z = 1
	}
	if z < -1 {
		z = -1
	}
	sinTheta := math.Sqrt(math.Max(0, 1-z*z))
	_ = sinTheta // retained for documentation symmetry with the (θ,φ) base-sphere description

	phiLon := 2 * math.Pi * frac(lonTurns)
	psiFiber := 2 * math.Pi * frac(fiberTurns)

	a := math.Sqrt(math.Max(0, (1+z)/2))
	b := math.Sqrt(math.Max(0, (1-z)/2))

	q0 := a * math.Cos(psiFiber)
	q1 := a * math.Sin(psiFiber)
	q2 := b * math.Cos(phiLon+psiFiber)
	q3 := b * math.Sin(phiLon+psiFiber)

	return geom.Normalize(Vec4{q0, q1, q2, q3})
}

func frac(x float64) float64 {
	f := x - math.Floor(x)
	if f < 0 {
		f += 1
	}
	return f
}
