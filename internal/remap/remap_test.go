package remap

import (
	"math"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/271586852/instancing-rendering-project/internal/model"
)

func packFloats(vs ...float32) []byte {
	data := make([]byte, len(vs)*4)
	for i, v := range vs {
		bits := math.Float32bits(v)
		off := i * 4
		data[off] = byte(bits)
		data[off+1] = byte(bits >> 8)
		data[off+2] = byte(bits >> 16)
		data[off+3] = byte(bits >> 24)
	}
	return data
}

// buildInterleavedDoc returns a document with a single buffer holding two
// vec3 attributes (POSITION, NORMAL) interleaved at a 24-byte stride, plus
// one vec3 accessor for each, to exercise CopyAccessor's de-interleave walk.
func buildInterleavedDoc() *gltf.Document {
	pos0 := [3]float32{1, 2, 3}
	nrm0 := [3]float32{0, 1, 0}
	pos1 := [3]float32{4, 5, 6}
	nrm1 := [3]float32{0, 0, 1}

	data := make([]byte, 0, 48)
	data = append(data, packFloats(pos0[:]...)...)
	data = append(data, packFloats(nrm0[:]...)...)
	data = append(data, packFloats(pos1[:]...)...)
	data = append(data, packFloats(nrm1[:]...)...)

	doc := gltf.NewDocument()
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{ByteLength: uint32(len(data)), Data: data})
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{
		Buffer:     0,
		ByteLength: uint32(len(data)),
		ByteStride: 24,
	})
	bvIdx := uint32(0)
	doc.Accessors = append(doc.Accessors,
		&gltf.Accessor{BufferView: &bvIdx, ByteOffset: 0, ComponentType: gltf.ComponentFloat, Type: gltf.AccessorVec3, Count: 2},
		&gltf.Accessor{BufferView: &bvIdx, ByteOffset: 12, ComponentType: gltf.ComponentFloat, Type: gltf.AccessorVec3, Count: 2},
	)
	return doc
}

func TestCopyAccessorDeinterleaves(t *testing.T) {
	doc := buildInterleavedDoc()
	c := NewCopier(model.NewRemapTable())

	posIdx, err := c.CopyAccessor(doc, 0, 0, RoleAttribute)
	require.NoError(t, err)
	nrmIdx, err := c.CopyAccessor(doc, 0, 1, RoleAttribute)
	require.NoError(t, err)
	assert.NotEqual(t, posIdx, nrmIdx)

	_, accs, _, _, _, _ := c.Results()
	require.Len(t, accs, 2)

	posOut := accs[posIdx]
	require.NotNil(t, posOut.BufferView)
	bvs, _, _, _, _, _ := c.Results()
	bv := bvs[*posOut.BufferView]
	packed := c.Arena()[bv.ByteOffset : bv.ByteOffset+bv.ByteLength]

	var got [3]float32
	for i := 0; i < 3; i++ {
		got[i] = math.Float32frombits(
			uint32(packed[i*4]) | uint32(packed[i*4+1])<<8 | uint32(packed[i*4+2])<<16 | uint32(packed[i*4+3])<<24,
		)
	}
	assert.Equal(t, [3]float32{1, 2, 3}, got)
	assert.Equal(t, uint32(12), bv.ByteStride, "a de-interleaved vertex-attribute view must stride by its own element length")
	assert.Equal(t, gltf.TargetArrayBuffer, bv.Target, "a vertex-attribute buffer view must target ARRAY_BUFFER")
}

func TestCopyAccessorIndexRoleSetsElementArrayTargetWithoutStride(t *testing.T) {
	doc := buildInterleavedDoc()
	c := NewCopier(model.NewRemapTable())

	idx, err := c.CopyAccessor(doc, 0, 0, RoleIndex)
	require.NoError(t, err)

	bvs, accs, _, _, _, _ := c.Results()
	bv := bvs[*accs[idx].BufferView]
	assert.Equal(t, gltf.TargetElementArrayBuffer, bv.Target)
	assert.Equal(t, uint32(0), bv.ByteStride, "index buffer views must stay tightly packed")
}

func TestCopyAccessorMemoizesPerModel(t *testing.T) {
	doc := buildInterleavedDoc()
	c := NewCopier(model.NewRemapTable())

	first, err := c.CopyAccessor(doc, 0, 0, RoleAttribute)
	require.NoError(t, err)
	second, err := c.CopyAccessor(doc, 0, 0, RoleAttribute)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, accs, _, _, _, _ := c.Results()
	assert.Len(t, accs, 1, "a repeated (model, index) lookup must not duplicate the output accessor")
}

func TestCopyBufferViewAlignsTo4Bytes(t *testing.T) {
	doc := gltf.NewDocument()
	odd := []byte{1, 2, 3}
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{ByteLength: 3, Data: odd})
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{Buffer: 0, ByteLength: 3})

	c := NewCopier(model.NewRemapTable())
	_, err := c.CopyBufferView(doc, 0, 0)
	require.NoError(t, err)

	more := []byte{9, 9, 9, 9}
	doc.Buffers[0] = &gltf.Buffer{ByteLength: 4, Data: more}
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{Buffer: 0, ByteLength: 4})
	secondIdx, err := c.CopyBufferView(doc, 0, 1)
	require.NoError(t, err)

	bvs, _, _, _, _, _ := c.Results()
	assert.Equal(t, 0, int(bvs[secondIdx].ByteOffset)%4, "every buffer view must start on a 4-byte boundary")
}

func TestCopyMaterialDescendsIntoTextures(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Images = append(doc.Images, &gltf.Image{URI: "tex.png"})
	doc.Samplers = append(doc.Samplers, &gltf.Sampler{})
	imgIdx := uint32(0)
	samplerIdx := uint32(0)
	doc.Textures = append(doc.Textures, &gltf.Texture{Source: &imgIdx, Sampler: &samplerIdx})
	texIdx := uint32(0)
	doc.Materials = append(doc.Materials, &gltf.Material{
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorTexture: &gltf.TextureInfo{Index: texIdx},
		},
	})

	c := NewCopier(model.NewRemapTable())
	matIdx, err := c.CopyMaterial(doc, 0, 0)
	require.NoError(t, err)

	_, _, mats, texs, samplers, images := c.Results()
	require.Len(t, mats, 1)
	require.Len(t, texs, 1)
	require.Len(t, samplers, 1)
	require.Len(t, images, 1)
	assert.Equal(t, uint32(0), mats[matIdx].PBRMetallicRoughness.BaseColorTexture.Index)
}

func TestCopyImageWithoutBufferViewPreservesURI(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Images = append(doc.Images, &gltf.Image{URI: "external.png"})

	c := NewCopier(model.NewRemapTable())
	idx, err := c.CopyImage(doc, 0, 0)
	require.NoError(t, err)

	_, _, _, _, _, images := c.Results()
	assert.Equal(t, "external.png", images[idx].URI)
}

func TestAppendStandaloneAccessorIndexSpaceMatchesCopyAccessor(t *testing.T) {
	doc := buildInterleavedDoc()
	c := NewCopier(model.NewRemapTable())

	_, err := c.CopyAccessor(doc, 0, 0, RoleAttribute)
	require.NoError(t, err)

	bvIdx, err := c.AppendStandaloneBufferView([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	bvIdx32 := uint32(bvIdx)
	standaloneIdx := c.AppendStandaloneAccessor(&gltf.Accessor{
		BufferView:    &bvIdx32,
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorScalar,
		Count:         1,
	})

	_, accs, _, _, _, _ := c.Results()
	assert.Equal(t, 1, standaloneIdx, "standalone accessors must share the same index space as CopyAccessor's output")
	assert.Len(t, accs, 2)
}
