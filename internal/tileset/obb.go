// Package tileset computes the 3D-Tiles-style oriented bounding-box
// bounding volume for an output document's root, permuting glTF's Y-up
// axis convention to the tileset format's Z-up convention.
package tileset

import "github.com/271586852/instancing-rendering-project/internal/mathutil"

// BoundingVolume is the 12-double box encoding the 3D-Tiles manifest
// expects: [cx,cy,cz, rx,0,0, 0,ry,0, 0,0,rz].
type BoundingVolume [12]float64

// permuteYUpToZUp maps a glTF Y-up coordinate to the tileset's Z-up
// convention: (x, y, z) -> (x, -z, y).
func permuteYUpToZUp(v [3]float32) [3]float64 {
	return [3]float64{float64(v[0]), float64(-v[2]), float64(v[1])}
}

// FromBBox builds the root bounding volume for a world-space axis-aligned
// box, permuting both its center and its half-extents into Z-up.
func FromBBox(box mathutil.BBox) BoundingVolume {
	if !box.Valid {
		return BoundingVolume{}
	}
	centerYUp := [3]float32{
		(box.Min[0] + box.Max[0]) / 2,
		(box.Min[1] + box.Max[1]) / 2,
		(box.Min[2] + box.Max[2]) / 2,
	}
	halfYUp := [3]float32{
		(box.Max[0] - box.Min[0]) / 2,
		(box.Max[1] - box.Min[1]) / 2,
		(box.Max[2] - box.Min[2]) / 2,
	}

	center := permuteYUpToZUp(centerYUp)
	half := permuteYUpToZUp(halfYUp)
	rx, ry, rz := abs(half[0]), abs(half[1]), abs(half[2])

	return BoundingVolume{
		center[0], center[1], center[2],
		rx, 0, 0,
		0, ry, 0,
		0, 0, rz,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
