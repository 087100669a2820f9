// Package gltfutil holds the low-level glTF accessor/buffer-view byte-walk
// helpers shared by the fingerprint engine and the resource remapper. Both
// need the exact same "never view the whole accessor as one contiguous
// slice" discipline described for the source's ReadAccessorData, so the
// walk lives here once instead of being duplicated per caller.
package gltfutil

import (
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
)

// ComponentSize returns the byte size of a single scalar component.
func ComponentSize(ct gltf.ComponentType) int {
	switch ct {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	default:
		return 0
	}
}

// ComponentCount returns the number of scalar components in one element of
// the given accessor type (SCALAR=1, VEC3=3, MAT4=16, ...).
func ComponentCount(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	case gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	default:
		return 0
	}
}

// ElementByteLength returns componentSize * componentCount for an accessor.
func ElementByteLength(a *gltf.Accessor) int {
	return ComponentSize(a.ComponentType) * ComponentCount(a.Type)
}

// ReadPacked walks accessor idx element-by-element at its true source
// stride (the buffer view's ByteStride if set, else the element's own
// byte length) and returns a freshly packed, contiguous byte slice holding
// exactly accessor.Count * ElementByteLength bytes.
//
// This is the one place interleaved vertex data is ever touched: callers
// must never slice a buffer view directly and assume it is one accessor's
// data, because a shared, strided view holds several interleaved
// attributes end to end.
func ReadPacked(doc *gltf.Document, idx int) ([]byte, int, error) {
	if int(idx) >= len(doc.Accessors) {
		return nil, 0, fmt.Errorf("accessor index %d out of range", idx)
	}
	acc := doc.Accessors[idx]
	elemLen := ElementByteLength(acc)
	if elemLen == 0 {
		return nil, 0, fmt.Errorf("accessor %d: unsupported component/type combination", idx)
	}
	if acc.BufferView == nil {
		// A sparse-only or zero-filled accessor with no backing view: the
		// packed representation is simply all-zero bytes.
		return make([]byte, int(acc.Count)*elemLen), elemLen, nil
	}
	if int(*acc.BufferView) >= len(doc.BufferViews) {
		return nil, 0, fmt.Errorf("accessor %d: buffer view index %d out of range", idx, *acc.BufferView)
	}
	bv := doc.BufferViews[*acc.BufferView]
	if int(bv.Buffer) >= len(doc.Buffers) {
		return nil, 0, fmt.Errorf("buffer view %d: buffer index %d out of range", *acc.BufferView, bv.Buffer)
	}
	buf := doc.Buffers[bv.Buffer]

	stride := int(bv.ByteStride)
	if stride == 0 {
		stride = elemLen
	}
	base := int(bv.ByteOffset) + int(acc.ByteOffset)

	out := make([]byte, int(acc.Count)*elemLen)
	for i := 0; i < int(acc.Count); i++ {
		start := base + i*stride
		end := start + elemLen
		if start < 0 || end > len(buf.Data) {
			return nil, 0, fmt.Errorf("accessor %d: element %d out of buffer bounds", idx, i)
		}
		copy(out[i*elemLen:(i+1)*elemLen], buf.Data[start:end])
	}
	return out, elemLen, nil
}

// Float32 reinterprets four little-endian bytes as a float32.
func Float32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

// PutFloat32 writes v into b (which must have length >= 4) as little-endian
// bytes.
func PutFloat32(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}
