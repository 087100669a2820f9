package mathutil

import "math"

// BBox is an axis-aligned bounding box; Valid is false until the first
// point or box has been merged into it.
type BBox struct {
	Min   [3]float32
	Max   [3]float32
	Valid bool
}

// MergePoint extends b to cover p.
func (b *BBox) MergePoint(p [3]float32) {
	if !b.Valid {
		b.Min, b.Max, b.Valid = p, p, true
		return
	}
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// MergeBox extends b to cover other.
func (b *BBox) MergeBox(other BBox) {
	if !other.Valid {
		return
	}
	b.MergePoint(other.Min)
	b.MergePoint(other.Max)
}

// Corners returns the eight corners of the box.
func (b BBox) Corners() [8][3]float32 {
	return [8][3]float32{
		{b.Min[0], b.Min[1], b.Min[2]},
		{b.Max[0], b.Min[1], b.Min[2]},
		{b.Min[0], b.Max[1], b.Min[2]},
		{b.Max[0], b.Max[1], b.Min[2]},
		{b.Min[0], b.Min[1], b.Max[2]},
		{b.Max[0], b.Min[1], b.Max[2]},
		{b.Min[0], b.Max[1], b.Max[2]},
		{b.Max[0], b.Max[1], b.Max[2]},
	}
}

// TransformedBy returns the axis-aligned box enclosing every corner of b
// after transformation by the column-major 4x4 matrix m.
func (b BBox) TransformedBy(m []float32) BBox {
	var out BBox
	if !b.Valid {
		return out
	}
	for _, c := range b.Corners() {
		out.MergePoint(MulVec3(m, c))
	}
	return out
}

// Similar reports whether a and b are within tol on every axis of both min
// and max, per the tolerance-mode bounding-box-similarity witness.
func Similar(a, b BBox, tol float64) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	for i := 0; i < 3; i++ {
		if math.Abs(float64(a.Min[i]-b.Min[i])) > tol {
			return false
		}
		if math.Abs(float64(a.Max[i]-b.Max[i])) > tol {
			return false
		}
	}
	return true
}
