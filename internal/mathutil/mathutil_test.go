package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityMul4IsIdentity(t *testing.T) {
	var a, b, out [16]float32
	Identity(a[:])
	Identity(b[:])
	Mul4(out[:], a[:], b[:])
	assert.Equal(t, a, out)
}

func TestComposeDecomposeRoundTrip(t *testing.T) {
	translation := [3]float32{1, 2, 3}
	rotation := NormalizeQuat([4]float32{0.1, 0.2, 0.3, 0.9})
	scale := [3]float32{2, 0.5, 1.5}

	var m [16]float32
	ComposeTRS(m[:], translation, rotation, scale)

	gotT, gotR, gotS, ok := DecomposeTRS(m[:])
	require.True(t, ok)

	for i := range translation {
		assert.InDelta(t, translation[i], gotT[i], 1e-4)
		assert.InDelta(t, scale[i], gotS[i], 1e-4)
	}
	// Quaternion sign is ambiguous (q and -q represent the same rotation).
	dot := rotation[0]*gotR[0] + rotation[1]*gotR[1] + rotation[2]*gotR[2] + rotation[3]*gotR[3]
	assert.Greater(t, math.Abs(float64(dot)), 0.999)
}

func TestDecomposeTRSSingularReturnsNotOK(t *testing.T) {
	m := [16]float32{
		0, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	_, _, _, ok := DecomposeTRS(m[:])
	assert.False(t, ok)
}

func TestInvert4RoundTrip(t *testing.T) {
	m := [16]float32{
		1, 0, 0, 0,
		0, 2, 0, 0,
		0, 0, 3, 0,
		4, 5, 6, 1,
	}
	var inv, back [16]float32
	ok := Invert4(inv[:], m[:])
	require.True(t, ok)
	Mul4(back[:], m[:], inv[:])

	var identity [16]float32
	Identity(identity[:])
	for i := range back {
		assert.InDelta(t, identity[i], back[i], 1e-4)
	}
}

func TestInvert4Singular(t *testing.T) {
	var zero [16]float32
	var out [16]float32
	ok := Invert4(out[:], zero[:])
	assert.False(t, ok)
}

func TestBBoxSimilar(t *testing.T) {
	a := BBox{Min: [3]float32{0, 0, 0}, Max: [3]float32{1, 1, 1}, Valid: true}
	b := BBox{Min: [3]float32{0.01, 0, 0}, Max: [3]float32{1, 1, 1}, Valid: true}
	assert.True(t, Similar(a, b, 0.1))
	assert.False(t, Similar(a, b, 0.001))
}

func TestBBoxMergePoint(t *testing.T) {
	var box BBox
	box.MergePoint([3]float32{1, -1, 0})
	box.MergePoint([3]float32{-1, 1, 2})
	assert.Equal(t, [3]float32{-1, -1, 0}, box.Min)
	assert.Equal(t, [3]float32{1, 1, 2}, box.Max)
	assert.True(t, box.Valid)
}
