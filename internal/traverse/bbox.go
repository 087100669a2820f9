package traverse

import (
	"github.com/qmuntal/gltf"

	"github.com/271586852/instancing-rendering-project/internal/gltfutil"
	"github.com/271586852/instancing-rendering-project/internal/mathutil"
)

// primitiveBoundingBox returns a primitive's local-space bounding box,
// preferring the POSITION accessor's declared Min/Max (cheap, and what a
// well-formed glTF file already carries) and falling back to scanning the
// packed position data when those are absent.
func primitiveBoundingBox(doc *gltf.Document, prim *gltf.Primitive) (mathutil.BBox, error) {
	var box mathutil.BBox
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return box, nil
	}
	acc := doc.Accessors[posIdx]
	if len(acc.Min) == 3 && len(acc.Max) == 3 {
		box.MergePoint([3]float32{acc.Min[0], acc.Min[1], acc.Min[2]})
		box.MergePoint([3]float32{acc.Max[0], acc.Max[1], acc.Max[2]})
		return box, nil
	}

	packed, elemLen, err := gltfutil.ReadPacked(doc, posIdx)
	if err != nil {
		return box, err
	}
	if elemLen != 12 {
		return box, nil
	}
	for _, p := range gltfutil.Vec3Array(packed) {
		box.MergePoint(p)
	}
	return box, nil
}

// meshBoundingBox merges every primitive's local bounding box.
func meshBoundingBox(doc *gltf.Document, mesh *gltf.Mesh) (mathutil.BBox, error) {
	var box mathutil.BBox
	for _, prim := range mesh.Primitives {
		pb, err := primitiveBoundingBox(doc, prim)
		if err != nil {
			return box, err
		}
		box.MergeBox(pb)
	}
	return box, nil
}

// primitiveBoundingBoxes returns the per-primitive local bounding boxes for
// a mesh, in primitive order; recorded on an InstanceGroup's first sighting
// in tolerance mode.
func primitiveBoundingBoxes(doc *gltf.Document, mesh *gltf.Mesh) ([]mathutil.BBox, error) {
	boxes := make([]mathutil.BBox, len(mesh.Primitives))
	for i, prim := range mesh.Primitives {
		pb, err := primitiveBoundingBox(doc, prim)
		if err != nil {
			return nil, err
		}
		boxes[i] = pb
	}
	return boxes, nil
}

// boxesSimilar reports whether every corresponding pair of boxes in a and b
// is similar within tol; used to decide whether a candidate mesh's
// primitives all match a group representative's recorded boxes.
func boxesSimilar(a, b []mathutil.BBox, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !mathutil.Similar(a[i], b[i], tol) {
			return false
		}
	}
	return true
}
