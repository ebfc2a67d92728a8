package geom

import "math"

// BBox4 is an axis-aligned bounding box in ℝ⁴, used as the support structure
// for the external spatial index's operator class (spec.md §4.2, §6).
type BBox4 struct {
	Min, Max Vec4
}

// EmptyBBox4 returns a bounding box with no extent: Min at +∞, Max at -∞,
// so that the first Expand call establishes real bounds.
func EmptyBBox4() BBox4 {
	return BBox4{
		Min: Vec4{math.Inf(1), math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: Vec4{math.Inf(-1), math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
}

// BBox4FromPoint returns the degenerate box containing exactly p.
func BBox4FromPoint(p Vec4) BBox4 { return BBox4{Min: p, Max: p} }

// Expand returns the smallest box containing both b and p.
func (b BBox4) Expand(p Vec4) BBox4 {
	out := b
	for i := 0; i < 4; i++ {
		if p[i] < out.Min[i] {
			out.Min[i] = p[i]
		}
		if p[i] > out.Max[i] {
			out.Max[i] = p[i]
		}
	}
	return out
}

// Union returns the smallest box containing both a and b. This is the
// "union" support method a 4-D spatial index's operator class needs.
func Union(a, b BBox4) BBox4 {
	out := a
	for i := 0; i < 4; i++ {
		if b.Min[i] < out.Min[i] {
			out.Min[i] = b.Min[i]
		}
		if b.Max[i] > out.Max[i] {
			out.Max[i] = b.Max[i]
		}
	}
	return out
}

// Volume returns the 4-D hypervolume of b, used by an index's "penalty"
// support method to score candidate subtrees during insertion.
func (b BBox4) Volume() float64 {
	v := 1.0
	for i := 0; i < 4; i++ {
		side := b.Max[i] - b.Min[i]
		if side < 0 {
			return 0
		}
		v *= side
	}
	return v
}

// Contains reports whether p lies within b (inclusive bounds).
func (b BBox4) Contains(p Vec4) bool {
	for i := 0; i < 4; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Intersects reports whether a and b overlap, the "consistent" support
// method's core predicate for an overlap-testing index traversal.
func Intersects(a, b BBox4) bool {
	for i := 0; i < 4; i++ {
		if a.Max[i] < b.Min[i] || b.Max[i] < a.Min[i] {
			return false
		}
	}
	return true
}

// DistancePointBBox returns the Euclidean distance from p to the closest
// face of b, 0 when p is interior — the "distance" support method an index
// uses as its KNN lower bound (spec.md §4.2, §6).
func DistancePointBBox(p Vec4, b BBox4) float64 {
	var sumSq float64
	for i := 0; i < 4; i++ {
		var d float64
		switch {
		case p[i] < b.Min[i]:
			d = b.Min[i] - p[i]
		case p[i] > b.Max[i]:
			d = p[i] - b.Max[i]
		default:
			d = 0
		}
		sumSq += d * d
	}
	return math.Sqrt(sumSq)
}
