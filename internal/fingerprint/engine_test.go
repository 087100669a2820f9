package fingerprint

import (
	"math"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCubeDoc returns a minimal document with a single POSITION-only
// accessor backed by packed float32 vec3 data, embedded in buffer 0.
func buildCubeDoc(positions [][3]float32, material *uint32) *gltf.Document {
	data := make([]byte, len(positions)*12)
	for i, p := range positions {
		for c := 0; c < 3; c++ {
			bits := float32bitsLE(p[c])
			copy(data[i*12+c*4:i*12+c*4+4], bits[:])
		}
	}

	doc := gltf.NewDocument()
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{ByteLength: uint32(len(data)), Data: data})
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{Buffer: 0, ByteOffset: 0, ByteLength: uint32(len(data))})
	bvIdx := uint32(0)
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    &bvIdx,
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec3,
		Count:         uint32(len(positions)),
	})

	prim := &gltf.Primitive{
		Attributes: gltf.Attribute{"POSITION": 0},
		Material:   material,
	}
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Primitives: []*gltf.Primitive{prim}})
	return doc
}

func float32bitsLE(v float32) [4]byte {
	var out [4]byte
	bits := math.Float32bits(v)
	out[0] = byte(bits)
	out[1] = byte(bits >> 8)
	out[2] = byte(bits >> 16)
	out[3] = byte(bits >> 24)
	return out
}

func TestExactModeIdenticalMeshesMatch(t *testing.T) {
	e := New(Options{})
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

	docA := buildCubeDoc(positions, nil)
	docB := buildCubeDoc(positions, nil)

	hA, err := e.MeshFingerprint(docA, docA.Meshes[0])
	require.NoError(t, err)
	hB, err := e.MeshFingerprint(docB, docB.Meshes[0])
	require.NoError(t, err)
	assert.Equal(t, hA, hB)
}

func TestExactModeDifferentPositionsDiffer(t *testing.T) {
	e := New(Options{})
	docA := buildCubeDoc([][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, nil)
	docB := buildCubeDoc([][3]float32{{0, 0, 0}, {2, 0, 0}, {0, 1, 0}}, nil)

	hA, err := e.MeshFingerprint(docA, docA.Meshes[0])
	require.NoError(t, err)
	hB, err := e.MeshFingerprint(docB, docB.Meshes[0])
	require.NoError(t, err)
	assert.NotEqual(t, hA, hB)
}

func TestToleranceModeIgnoresPosition(t *testing.T) {
	e := New(Options{Tolerance: 0.5})
	docA := buildCubeDoc([][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, nil)
	docB := buildCubeDoc([][3]float32{{10, 10, 10}, {11, 10, 10}, {10, 11, 10}}, nil)

	hA, err := e.MeshFingerprint(docA, docA.Meshes[0])
	require.NoError(t, err)
	hB, err := e.MeshFingerprint(docB, docB.Meshes[0])
	require.NoError(t, err)
	assert.Equal(t, hA, hB, "position-only difference must not affect the tolerance-mode fingerprint")
}

func TestDifferentMaterialsDiffer(t *testing.T) {
	e := New(Options{})
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	m0 := uint32(0)
	m1 := uint32(1)

	docA := buildCubeDoc(positions, &m0)
	docB := buildCubeDoc(positions, &m1)

	hA, err := e.MeshFingerprint(docA, docA.Meshes[0])
	require.NoError(t, err)
	hB, err := e.MeshFingerprint(docB, docB.Meshes[0])
	require.NoError(t, err)
	assert.NotEqual(t, hA, hB)
}

func TestToleranceModeNormalToleranceWithoutNormalAttribute(t *testing.T) {
	e := New(Options{Tolerance: 0.5, NormalTolerance: 0.1})
	docA := buildCubeDoc([][3]float32{{0, 0, 0}}, nil)
	docB := buildCubeDoc([][3]float32{{0, 0, 0}}, nil)
	// Both docs have identical (trivial) NORMAL-less primitives here; this
	// asserts the engine doesn't error when NormalTolerance is set but no
	// NORMAL attribute is present.
	hA, err := e.MeshFingerprint(docA, docA.Meshes[0])
	require.NoError(t, err)
	hB, err := e.MeshFingerprint(docB, docB.Meshes[0])
	require.NoError(t, err)
	assert.Equal(t, hA, hB)
}
