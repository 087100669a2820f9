// Package remap copies glTF sub-resources (buffer views, accessors,
// materials, textures, samplers, images) from one or more source documents
// into a single output document, consolidating their backing buffer data
// into one contiguous, 4-byte-aligned arena and caching every
// (sourceModel, sourceIndex) -> newIndex mapping so repeated references
// collapse onto the same output resource.
package remap

import (
	"fmt"

	"github.com/qmuntal/gltf"

	"github.com/271586852/instancing-rendering-project/internal/gltfutil"
	"github.com/271586852/instancing-rendering-project/internal/model"
)

// Copier accumulates output document resources as it is asked to remap
// resources out of various source documents. One Copier backs exactly one
// output-assembly pass; it owns the output buffer arena and must not be
// reused across GLB variants.
type Copier struct {
	table *model.RemapTable
	arena []byte

	bufferViews []*gltf.BufferView
	accessors   []*gltf.Accessor
	materials   []*gltf.Material
	textures    []*gltf.Texture
	samplers    []*gltf.Sampler
	images      []*gltf.Image

	extensionsUsed map[string]struct{}
}

// NewCopier returns a Copier with an empty output arena, backed by table
// for cross-call memoization.
func NewCopier(table *model.RemapTable) *Copier {
	return &Copier{
		table:          table,
		extensionsUsed: make(map[string]struct{}),
	}
}

// Arena returns the consolidated output buffer bytes accumulated so far.
// Valid to call at any point; grows as more resources are copied.
func (c *Copier) Arena() []byte {
	return c.arena
}

// Results returns the output-document resource slices built so far, in
// the order they were first copied.
func (c *Copier) Results() (bufferViews []*gltf.BufferView, accessors []*gltf.Accessor, materials []*gltf.Material, textures []*gltf.Texture, samplers []*gltf.Sampler, images []*gltf.Image) {
	return c.bufferViews, c.accessors, c.materials, c.textures, c.samplers, c.images
}

// ExtensionsUsed returns the set of extension names that should be listed
// in the output document's extensionsUsed array, as a result of copying
// resources that referenced them.
func (c *Copier) ExtensionsUsed() []string {
	out := make([]string, 0, len(c.extensionsUsed))
	for name := range c.extensionsUsed {
		out = append(out, name)
	}
	return out
}

// appendAligned appends data to the arena padded to a 4-byte boundary,
// returning the byte offset the data itself starts at.
func (c *Copier) appendAligned(data []byte) int {
	for len(c.arena)%4 != 0 {
		c.arena = append(c.arena, 0)
	}
	offset := len(c.arena)
	c.arena = append(c.arena, data...)
	return offset
}

// CopyBufferView copies the raw bytes backing a source buffer view into the
// output arena and returns its new index, memoized per (model, sourceIdx).
func (c *Copier) CopyBufferView(doc *gltf.Document, modelID model.ModelId, srcIdx int) (int, error) {
	if newIdx, ok := c.table.Lookup(model.KindBufferView, modelID, int(srcIdx)); ok {
		return newIdx, nil
	}
	if int(srcIdx) >= len(doc.BufferViews) {
		return 0, fmt.Errorf("buffer view index %d out of range", srcIdx)
	}
	src := doc.BufferViews[srcIdx]
	if int(src.Buffer) >= len(doc.Buffers) {
		return 0, fmt.Errorf("buffer view %d: buffer index %d out of range", srcIdx, src.Buffer)
	}
	buf := doc.Buffers[src.Buffer]

	start := int(src.ByteOffset)
	end := start + int(src.ByteLength)
	if start < 0 || end > len(buf.Data) {
		return 0, fmt.Errorf("buffer view %d: byte range out of bounds", srcIdx)
	}
	offset := c.appendAligned(buf.Data[start:end])

	out := &gltf.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: src.ByteLength,
		ByteStride: src.ByteStride,
		Target:     src.Target,
	}
	newIdx := len(c.bufferViews)
	c.bufferViews = append(c.bufferViews, out)
	c.table.Record(model.KindBufferView, modelID, int(srcIdx), newIdx)
	return newIdx, nil
}

// AccessorRole tells CopyAccessor what kind of output buffer view to build
// for the accessor it is copying, since glTF's bufferView.target and
// byteStride are a function of how the accessor is used, not anything the
// accessor descriptor itself carries.
type AccessorRole int

const (
	// RoleAttribute marks a vertex-attribute accessor (POSITION, NORMAL,
	// a morph-target delta, ...): its output buffer view gets
	// Target = ARRAY_BUFFER and ByteStride = the element's own byte
	// length, since CopyAccessor always de-interleaves into a packed,
	// single-accessor view.
	RoleAttribute AccessorRole = iota
	// RoleIndex marks a primitive's Indices accessor: its output buffer
	// view gets Target = ELEMENT_ARRAY_BUFFER and no ByteStride, per the
	// glTF requirement that index buffer views stay tightly packed.
	RoleIndex
)

// CopyAccessor copies one accessor's descriptor and de-interleaves its
// backing data into a freshly packed buffer view of its own, since the
// output's resource set no longer shares the source's interleaved vertex
// layout once meshes from different models are combined. role decides the
// output buffer view's Target/ByteStride.
func (c *Copier) CopyAccessor(doc *gltf.Document, modelID model.ModelId, srcIdx int, role AccessorRole) (int, error) {
	if newIdx, ok := c.table.Lookup(model.KindAccessor, modelID, int(srcIdx)); ok {
		return newIdx, nil
	}
	if int(srcIdx) >= len(doc.Accessors) {
		return 0, fmt.Errorf("accessor index %d out of range", srcIdx)
	}
	src := doc.Accessors[srcIdx]

	out := &gltf.Accessor{
		ComponentType: src.ComponentType,
		Type:          src.Type,
		Count:         src.Count,
		Normalized:    src.Normalized,
		Min:           append([]float64{}, src.Min...),
		Max:           append([]float64{}, src.Max...),
	}

	if src.BufferView != nil {
		packed, elemLen, err := gltfutil.ReadPacked(doc, srcIdx)
		if err != nil {
			return 0, fmt.Errorf("copying accessor %d: %w", srcIdx, err)
		}
		offset := c.appendAligned(packed)
		bv := &gltf.BufferView{
			Buffer:     0,
			ByteOffset: offset,
			ByteLength: len(packed),
		}
		switch role {
		case RoleAttribute:
			bv.ByteStride = elemLen
			bv.Target = gltf.TargetArrayBuffer
		case RoleIndex:
			bv.Target = gltf.TargetElementArrayBuffer
		}
		bvIdx := len(c.bufferViews)
		c.bufferViews = append(c.bufferViews, bv)
		out.BufferView = &bvIdx
	}

	newIdx := len(c.accessors)
	c.accessors = append(c.accessors, out)
	c.table.Record(model.KindAccessor, modelID, int(srcIdx), newIdx)
	return newIdx, nil
}

// CopyMaterial copies a material descriptor, descending into every texture
// reference it holds (base color, metallic-roughness, normal, occlusion,
// emissive) so the textures/samplers/images they point at are pulled into
// the output too.
func (c *Copier) CopyMaterial(doc *gltf.Document, modelID model.ModelId, srcIdx int) (int, error) {
	if newIdx, ok := c.table.Lookup(model.KindMaterial, modelID, int(srcIdx)); ok {
		return newIdx, nil
	}
	if int(srcIdx) >= len(doc.Materials) {
		return 0, fmt.Errorf("material index %d out of range", srcIdx)
	}
	src := doc.Materials[srcIdx]

	out := &gltf.Material{
		Name:                 src.Name,
		EmissiveFactor:       src.EmissiveFactor,
		AlphaMode:            src.AlphaMode,
		AlphaCutoff:          src.AlphaCutoff,
		DoubleSided:          src.DoubleSided,
		NormalTexture:        nil,
		OcclusionTexture:     nil,
		EmissiveTexture:      nil,
		PBRMetallicRoughness: nil,
	}

	if src.PBRMetallicRoughness != nil {
		pbr := *src.PBRMetallicRoughness
		if pbr.BaseColorTexture != nil {
			if newTexIdx, err := c.remapTextureInfo(doc, modelID, pbr.BaseColorTexture); err != nil {
				return 0, err
			} else {
				pbr.BaseColorTexture = newTexIdx
			}
		}
		if pbr.MetallicRoughnessTexture != nil {
			if newTexIdx, err := c.remapTextureInfo(doc, modelID, pbr.MetallicRoughnessTexture); err != nil {
				return 0, err
			} else {
				pbr.MetallicRoughnessTexture = newTexIdx
			}
		}
		out.PBRMetallicRoughness = &pbr
	}
	if src.NormalTexture != nil {
		nt := *src.NormalTexture
		if remapped, err := c.remapNormalTexture(doc, modelID, &nt); err != nil {
			return 0, err
		} else {
			out.NormalTexture = remapped
		}
	}
	if src.OcclusionTexture != nil {
		ot := *src.OcclusionTexture
		if remapped, err := c.remapOcclusionTexture(doc, modelID, &ot); err != nil {
			return 0, err
		} else {
			out.OcclusionTexture = remapped
		}
	}
	if src.EmissiveTexture != nil {
		if remapped, err := c.remapTextureInfo(doc, modelID, src.EmissiveTexture); err != nil {
			return 0, err
		} else {
			out.EmissiveTexture = remapped
		}
	}

	newIdx := len(c.materials)
	c.materials = append(c.materials, out)
	c.table.Record(model.KindMaterial, modelID, int(srcIdx), newIdx)
	return newIdx, nil
}

func (c *Copier) remapTextureInfo(doc *gltf.Document, modelID model.ModelId, ti *gltf.TextureInfo) (*gltf.TextureInfo, error) {
	newTexIdx, err := c.CopyTexture(doc, modelID, ti.Index)
	if err != nil {
		return nil, err
	}
	out := *ti
	out.Index = newTexIdx
	return &out, nil
}

func (c *Copier) remapNormalTexture(doc *gltf.Document, modelID model.ModelId, nt *gltf.NormalTexture) (*gltf.NormalTexture, error) {
	if nt.Index == nil {
		return nt, nil
	}
	newTexIdx, err := c.CopyTexture(doc, modelID, *nt.Index)
	if err != nil {
		return nil, err
	}
	out := *nt
	idx := newTexIdx
	out.Index = &idx
	return &out, nil
}

func (c *Copier) remapOcclusionTexture(doc *gltf.Document, modelID model.ModelId, ot *gltf.OcclusionTexture) (*gltf.OcclusionTexture, error) {
	if ot.Index == nil {
		return ot, nil
	}
	newTexIdx, err := c.CopyTexture(doc, modelID, *ot.Index)
	if err != nil {
		return nil, err
	}
	out := *ot
	idx := newTexIdx
	out.Index = &idx
	return &out, nil
}

// CopyTexture copies a texture descriptor, descending into its sampler and
// image.
func (c *Copier) CopyTexture(doc *gltf.Document, modelID model.ModelId, srcIdx int) (int, error) {
	if newIdx, ok := c.table.Lookup(model.KindTexture, modelID, int(srcIdx)); ok {
		return newIdx, nil
	}
	if int(srcIdx) >= len(doc.Textures) {
		return 0, fmt.Errorf("texture index %d out of range", srcIdx)
	}
	src := doc.Textures[srcIdx]
	out := &gltf.Texture{Name: src.Name}

	if src.Sampler != nil {
		newSamplerIdx, err := c.CopySampler(doc, modelID, *src.Sampler)
		if err != nil {
			return 0, err
		}
		idx := newSamplerIdx
		out.Sampler = &idx
	}
	if src.Source != nil {
		newImageIdx, err := c.CopyImage(doc, modelID, *src.Source)
		if err != nil {
			return 0, err
		}
		idx := newImageIdx
		out.Source = &idx
	}

	newIdx := len(c.textures)
	c.textures = append(c.textures, out)
	c.table.Record(model.KindTexture, modelID, int(srcIdx), newIdx)
	return newIdx, nil
}

// CopySampler copies a sampler descriptor verbatim; samplers never
// reference other resources.
func (c *Copier) CopySampler(doc *gltf.Document, modelID model.ModelId, srcIdx int) (int, error) {
	if newIdx, ok := c.table.Lookup(model.KindSampler, modelID, int(srcIdx)); ok {
		return newIdx, nil
	}
	if int(srcIdx) >= len(doc.Samplers) {
		return 0, fmt.Errorf("sampler index %d out of range", srcIdx)
	}
	src := doc.Samplers[srcIdx]
	out := *src

	newIdx := len(c.samplers)
	c.samplers = append(c.samplers, &out)
	c.table.Record(model.KindSampler, modelID, int(srcIdx), newIdx)
	return newIdx, nil
}

// CopyImage copies an image descriptor. A buffer-view-backed image routes
// its bytes through CopyBufferView; an external-URI image is copied with
// its URI unchanged and without an error; the URI is neither resolved nor
// logged.
func (c *Copier) CopyImage(doc *gltf.Document, modelID model.ModelId, srcIdx int) (int, error) {
	if newIdx, ok := c.table.Lookup(model.KindImage, modelID, int(srcIdx)); ok {
		return newIdx, nil
	}
	if int(srcIdx) >= len(doc.Images) {
		return 0, fmt.Errorf("image index %d out of range", srcIdx)
	}
	src := doc.Images[srcIdx]
	out := &gltf.Image{
		Name:     src.Name,
		MimeType: src.MimeType,
		URI:      src.URI,
	}

	if src.BufferView != nil {
		newBvIdx, err := c.CopyBufferView(doc, modelID, *src.BufferView)
		if err != nil {
			return 0, fmt.Errorf("copying image %d buffer view: %w", srcIdx, err)
		}
		idx := newBvIdx
		out.BufferView = &idx
	}

	newIdx := len(c.images)
	c.images = append(c.images, out)
	c.table.Record(model.KindImage, modelID, int(srcIdx), newIdx)
	return newIdx, nil
}

// MarkExtensionUsed records name as an extension the output document must
// declare in extensionsUsed.
func (c *Copier) MarkExtensionUsed(name string) {
	c.extensionsUsed[name] = struct{}{}
}

// AppendStandaloneAccessor records acc directly into the output accessor
// list, for callers building accessors with no single corresponding
// source accessor. Returned index is stable against further CopyAccessor
// calls for this Copier's lifetime.
func (c *Copier) AppendStandaloneAccessor(acc *gltf.Accessor) int {
	c.accessors = append(c.accessors, acc)
	return len(c.accessors) - 1
}

// AppendStandaloneBufferView appends data to the output arena and records
// a new unstrided buffer view over it, for callers building accessors
// that have no single corresponding source accessor (e.g. the assembler's
// synthesized per-instance TRANSLATION/ROTATION/SCALE arrays).
func (c *Copier) AppendStandaloneBufferView(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("appending empty buffer view data")
	}
	offset := c.appendAligned(data)
	c.bufferViews = append(c.bufferViews, &gltf.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: len(data),
	})
	return len(c.bufferViews) - 1, nil
}
