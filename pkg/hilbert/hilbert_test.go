package hilbert_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/AHartTN/hartonomous/pkg/geom"
	"github.com/AHartTN/hartonomous/pkg/hilbert"
)

func TestEncodeDeterministic(t *testing.T) {
	p := [4]float64{0.25, 0.5, 0.75, 0.1}
	a := hilbert.Encode(p)
	b := hilbert.Encode(p)
	if a != b {
		t.Fatalf("encode not deterministic: %v != %v", a, b)
	}
}

func TestBytesLengthIsSixteen(t *testing.T) {
	c := hilbert.Encode([4]float64{0.1, 0.2, 0.3, 0.4})
	b := c.Bytes()
	if len(b) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(b))
	}
}

func TestRoundTripWithinOneQuantisationStep(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const step = 1.0 / float64(1<<32-1)
	for i := 0; i < 500; i++ {
		p := [4]float64{rng.Float64(), rng.Float64(), rng.Float64(), rng.Float64()}
		c := hilbert.Encode(p)
		back := hilbert.Decode(c)
		for d := 0; d < 4; d++ {
			if math.Abs(back[d]-p[d]) > step {
				t.Fatalf("round trip off by more than one quantisation step at dim %d: %v vs %v", d, back[d], p[d])
			}
		}
	}
}

func TestWithTagSetsAndClearsLowBit(t *testing.T) {
	c := hilbert.Encode([4]float64{0.5, 0.5, 0.5, 0.5})
	atom := c.WithTag(true)
	nonAtom := c.WithTag(false)
	if atom.Lo&1 != 1 {
		t.Fatal("expected atom tag bit set")
	}
	if nonAtom.Lo&1 != 0 {
		t.Fatal("expected non-atom tag bit clear")
	}
	if atom.Untagged() != nonAtom.Untagged() {
		t.Fatal("untagged codes should be identical regardless of tag")
	}
}

func TestHamming(t *testing.T) {
	a := hilbert.Code{Hi: 0, Lo: 0}
	b := hilbert.Code{Hi: 0, Lo: 0b1011}
	if got := hilbert.Hamming(a, b); got != 3 {
		t.Fatalf("Hamming = %d, want 3", got)
	}
}

// TestLocality checks P-HILBERT-LOCALITY: over random S³ point pairs, the
// Pearson correlation between geodesic distance and Hamming distance of
// the (untagged) Hilbert codes must be >= 0.3.
func TestLocality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 10000

	geodesics := make([]float64, n)
	hammings := make([]float64, n)

	randVec := func() geom.Vec4 {
		return geom.Normalize(geom.Vec4{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()})
	}
	toUnitCube := func(v geom.Vec4) [4]float64 {
		return [4]float64{(v[0] + 1) / 2, (v[1] + 1) / 2, (v[2] + 1) / 2, (v[3] + 1) / 2}
	}

	for i := 0; i < n; i++ {
		a := randVec()
		b := randVec()
		geodesics[i] = geom.Geodesic(a, b)
		ca := hilbert.Encode(toUnitCube(a)).Untagged()
		cb := hilbert.Encode(toUnitCube(b)).Untagged()
		hammings[i] = float64(hilbert.Hamming(ca, cb))
	}

	corr := pearson(geodesics, hammings)
	if corr < 0.3 {
		t.Fatalf("locality correlation = %v, want >= 0.3", corr)
	}
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
		sumY2 += ys[i] * ys[i]
	}
	num := n*sumXY - sumX*sumY
	den := math.Sqrt(n*sumX2-sumX*sumX) * math.Sqrt(n*sumY2-sumY*sumY)
	if den == 0 {
		return 0
	}
	return num / den
}
