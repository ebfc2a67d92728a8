package fibonacci_test

import (
	"math"
	"testing"

	"github.com/AHartTN/hartonomous/pkg/fibonacci"
	"github.com/AHartTN/hartonomous/pkg/geom"
)

func norm(v geom.Vec4) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2] + v[3]*v[3])
}

func TestPointOnS3IsUnitNorm(t *testing.T) {
	const n = 1000
	for i := uint64(0); i < n; i++ {
		v := fibonacci.PointOnS3(i, n)
		if got := norm(v); math.Abs(got-1) > 1e-9 {
			t.Fatalf("point %d has norm %v, want 1", i, got)
		}
	}
}

func TestPointOnS3DeterministicAcrossRuns(t *testing.T) {
	const n = 500
	for _, i := range []uint64{0, n / 2, n - 1} {
		a := fibonacci.PointOnS3(i, n)
		b := fibonacci.PointOnS3(i, n)
		if a != b {
			t.Fatalf("point %d not stable across calls: %v != %v", i, a, b)
		}
	}
}

func TestPointOnS3DistinctIndicesGiveDistinctPoints(t *testing.T) {
	const n = 200
	seen := make(map[geom.Vec4]bool)
	for i := uint64(0); i < n; i++ {
		v := fibonacci.PointOnS3(i, n)
		key := geom.Vec4{
			math.Round(v[0] * 1e6),
			math.Round(v[1] * 1e6),
			math.Round(v[2] * 1e6),
			math.Round(v[3] * 1e6),
		}
		if seen[key] {
			t.Fatalf("index %d collided with an earlier point", i)
		}
		seen[key] = true
	}
}

func TestHashToPointIsUnitNormAndPure(t *testing.T) {
	h := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	a := fibonacci.HashToPoint(h)
	b := fibonacci.HashToPoint(h)
	if a != b {
		t.Fatalf("hash_to_point is not a pure function: %v != %v", a, b)
	}
	if got := norm(a); math.Abs(got-1) > 1e-9 {
		t.Fatalf("hash_to_point norm = %v, want 1", got)
	}
}

func TestHashToPointDistinctHashesDiffer(t *testing.T) {
	h1 := [16]byte{0xAA, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	h2 := [16]byte{0xBB, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	a := fibonacci.HashToPoint(h1)
	b := fibonacci.HashToPoint(h2)
	if a == b {
		t.Fatal("distinct hashes produced identical points")
	}
}

func TestHashToPointAllZero(t *testing.T) {
	var h [16]byte
	v := fibonacci.HashToPoint(h)
	if got := norm(v); math.Abs(got-1) > 1e-9 {
		t.Fatalf("zero hash point norm = %v, want 1", got)
	}
}
