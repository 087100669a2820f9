package gltfutil

import "github.com/qmuntal/gltf"

// Vec3Array reinterprets a packed byte slice of float32 VEC3 elements.
func Vec3Array(packed []byte) [][3]float32 {
	n := len(packed) / 12
	out := make([][3]float32, n)
	for i := 0; i < n; i++ {
		e := packed[i*12 : i*12+12]
		out[i] = [3]float32{Float32(e[0:4]), Float32(e[4:8]), Float32(e[8:12])}
	}
	return out
}

// Vec4Array reinterprets a packed byte slice of float32 VEC4 elements.
func Vec4Array(packed []byte) [][4]float32 {
	n := len(packed) / 16
	out := make([][4]float32, n)
	for i := 0; i < n; i++ {
		e := packed[i*16 : i*16+16]
		out[i] = [4]float32{Float32(e[0:4]), Float32(e[4:8]), Float32(e[8:12]), Float32(e[12:16])}
	}
	return out
}

// PackVec3Array packs vec3s into a little-endian float32 byte slice.
func PackVec3Array(v [][3]float32) []byte {
	out := make([]byte, len(v)*12)
	for i, e := range v {
		PutFloat32(out[i*12:i*12+4], e[0])
		PutFloat32(out[i*12+4:i*12+8], e[1])
		PutFloat32(out[i*12+8:i*12+12], e[2])
	}
	return out
}

// PackVec4Array packs vec4s into a little-endian float32 byte slice.
func PackVec4Array(v [][4]float32) []byte {
	out := make([]byte, len(v)*16)
	for i, e := range v {
		PutFloat32(out[i*16:i*16+4], e[0])
		PutFloat32(out[i*16+4:i*16+8], e[1])
		PutFloat32(out[i*16+8:i*16+12], e[2])
		PutFloat32(out[i*16+12:i*16+16], e[3])
	}
	return out
}

// LocalTransform returns a node's local transform as a column-major 4x4
// matrix: the explicit Matrix if the node carries one that differs from
// identity, else T*R*S from Translation/Rotation/Scale (each defaulted per
// the glTF spec when the node doesn't set them).
func LocalTransform(n *gltf.Node, out []float32, compose func(out []float32, t [3]float32, r [4]float32, s [3]float32)) {
	if m := n.MatrixOrDefault(); m != gltf.DefaultMatrix {
		for i, v := range m {
			out[i] = float32(v)
		}
		return
	}
	t := [3]float32{float32(n.Translation[0]), float32(n.Translation[1]), float32(n.Translation[2])}
	r := [4]float32{float32(n.Rotation[0]), float32(n.Rotation[1]), float32(n.Rotation[2]), float32(n.Rotation[3])}
	s := [3]float32{float32(n.Scale[0]), float32(n.Scale[1]), float32(n.Scale[2])}
	if r == [4]float32{0, 0, 0, 0} {
		r = [4]float32{0, 0, 0, 1}
	}
	if s == [3]float32{0, 0, 0} {
		s = [3]float32{1, 1, 1}
	}
	compose(out, t, r, s)
}

// GPUInstancingExtension is the glTF extension name for per-node GPU
// instancing (EXT_mesh_gpu_instancing).
const GPUInstancingExtension = "EXT_mesh_gpu_instancing"

// InstancingAttributes reads a node's EXT_mesh_gpu_instancing payload and
// returns its attribute-name -> accessor-index map. The payload may arrive
// either as a typed map[string]any (after JSON-decoding a GLB) or already
// as map[string]uint32; both shapes are handled, and any entry that isn't
// an integer is treated as "attribute absent" rather than fatal, per the
// dynamic-typing design note.
func InstancingAttributes(n *gltf.Node) (map[string]uint32, bool) {
	if n.Extensions == nil {
		return nil, false
	}
	raw, ok := n.Extensions[GPUInstancingExtension]
	if !ok {
		return nil, false
	}
	payload, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	attrsRaw, ok := payload["attributes"]
	if !ok {
		return nil, false
	}
	var attrsMap map[string]any
	switch a := attrsRaw.(type) {
	case map[string]uint32:
		return a, len(a) > 0
	case map[string]any:
		attrsMap = a
	default:
		return nil, false
	}
	out := make(map[string]uint32, len(attrsMap))
	for k, v := range attrsMap {
		switch n := v.(type) {
		case float64:
			out[k] = uint32(n)
		case uint32:
			out[k] = n
		case int:
			out[k] = uint32(n)
		default:
			continue
		}
	}
	return out, len(out) > 0
}
