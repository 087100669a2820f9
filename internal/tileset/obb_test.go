package tileset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/271586852/instancing-rendering-project/internal/mathutil"
)

func TestFromBBoxInvalidReturnsZeroVolume(t *testing.T) {
	var box mathutil.BBox
	got := FromBBox(box)
	assert.Equal(t, BoundingVolume{}, got)
}

func TestFromBBoxPermutesYUpToZUp(t *testing.T) {
	box := mathutil.BBox{
		Min:   [3]float32{-1, 0, -2},
		Max:   [3]float32{1, 4, 2},
		Valid: true,
	}
	got := FromBBox(box)

	// center in Y-up is (0, 2, 0) -> Z-up (x, -z, y) = (0, 0, 2)
	assert.InDelta(t, 0, got[0], 1e-6)
	assert.InDelta(t, 0, got[1], 1e-6)
	assert.InDelta(t, 2, got[2], 1e-6)

	// half-extents in Y-up are (1, 2, 2); permuted and made non-negative
	assert.InDelta(t, 1, got[3], 1e-6)
	assert.InDelta(t, 2, got[7], 1e-6)
	assert.InDelta(t, 2, got[11], 1e-6)
}

func TestFromBBoxHalfExtentsAreNeverNegative(t *testing.T) {
	box := mathutil.BBox{
		Min:   [3]float32{0, 0, 0},
		Max:   [3]float32{2, 2, 6},
		Valid: true,
	}
	got := FromBBox(box)
	for _, i := range []int{3, 7, 11} {
		assert.GreaterOrEqual(t, got[i], 0.0)
	}
}
