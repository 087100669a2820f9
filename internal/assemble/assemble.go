// Package assemble builds output glTF-Binary documents out of instance
// groups and non-instanced meshes discovered by the traversal stage. It
// writes the three output variants, a strict state machine, and the
// atomic write-to-temp-then-rename discipline that protects a run's output
// directory from partial files if the process is interrupted mid-write.
package assemble

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"

	"github.com/271586852/instancing-rendering-project/internal/gltfutil"
	"github.com/271586852/instancing-rendering-project/internal/mathutil"
	"github.com/271586852/instancing-rendering-project/internal/model"
	"github.com/271586852/instancing-rendering-project/internal/pipelineerr"
	"github.com/271586852/instancing-rendering-project/internal/remap"
)

// state names the assembler's progress through one document build, mostly
// useful as a defensive assertion surface: each method below checks it is
// being called in the right order and panics (a programmer error, never a
// data error) otherwise.
type state int

const (
	stateIdle state = iota
	stateBufferInitialized
	stateGroupsCopied
	stateNodesAssembled
	stateSceneBuilt
	stateBufferFinalized
	stateSerialized
)

// DocumentSet maps each loaded model's ModelId to its parsed document, so
// the assembler can dereference source models by ModelId while it is
// building a document. It is passed to NewBuilder.
type DocumentSet map[model.ModelId]*gltf.Document

// Builder assembles one output glTF document across its state machine.
// Not safe for concurrent use; build one variant per Builder.
type Builder struct {
	state state

	docs   DocumentSet
	copier *remap.Copier
	table  *model.RemapTable

	out      *gltf.Document
	rootNode *gltf.Node
	sceneIdx uint32

	rootBox mathutil.BBox
}

// NewBuilder returns a Builder ready to assemble a document out of docs,
// the set of every loaded model's parsed document keyed by ModelId.
func NewBuilder(docs DocumentSet) *Builder {
	table := model.NewRemapTable()
	return &Builder{
		docs:   docs,
		table:  table,
		copier: remap.NewCopier(table),
		out:    gltf.NewDocument(),
	}
}

func (b *Builder) requireState(want state, op string) {
	if b.state != want {
		panic(fmt.Sprintf("assemble: %s called in state %d, want %d", op, b.state, want))
	}
}

// InitBuffer seeds the output document's single buffer slot. Must be the
// first call on a fresh Builder.
func (b *Builder) InitBuffer() {
	b.requireState(stateIdle, "InitBuffer")
	b.out.Buffers = append(b.out.Buffers, &gltf.Buffer{})
	b.state = stateBufferInitialized
}

// CopyGroup copies one instance group's representative mesh into the
// output document (once) and returns the output mesh index, ready to be
// referenced by every node this group expands into.
func (b *Builder) CopyGroup(group *model.InstanceGroup) (int, error) {
	b.requireState(stateBufferInitialized, "CopyGroup")
	doc, ok := b.docs[group.RepresentativeModel]
	if !ok {
		return 0, pipelineerr.DataAccessError{ModelId: uint32(group.RepresentativeModel), MeshIndex: group.RepresentativeMesh, Err: fmt.Errorf("representative model not loaded")}
	}
	srcMesh := doc.Meshes[group.RepresentativeMesh]
	mesh, err := b.copier.CopyMesh(doc, group.RepresentativeModel, srcMesh)
	if err != nil {
		return 0, pipelineerr.DataAccessError{ModelId: uint32(group.RepresentativeModel), MeshIndex: group.RepresentativeMesh, Err: err}
	}
	b.out.Meshes = append(b.out.Meshes, mesh)
	return len(b.out.Meshes) - 1, nil
}

// CopyNonInstancedMesh copies a single non-instanced mesh usage's source
// mesh into the output document.
func (b *Builder) CopyNonInstancedMesh(nim model.NonInstancedMesh) (int, error) {
	b.requireState(stateBufferInitialized, "CopyNonInstancedMesh")
	doc, ok := b.docs[nim.SourceModel]
	if !ok {
		return 0, pipelineerr.DataAccessError{ModelId: uint32(nim.SourceModel), MeshIndex: nim.MeshIndex, Err: fmt.Errorf("source model not loaded")}
	}
	srcMesh := doc.Meshes[nim.MeshIndex]
	mesh, err := b.copier.CopyMesh(doc, nim.SourceModel, srcMesh)
	if err != nil {
		return 0, pipelineerr.DataAccessError{ModelId: uint32(nim.SourceModel), MeshIndex: nim.MeshIndex, Err: err}
	}
	b.out.Meshes = append(b.out.Meshes, mesh)
	return len(b.out.Meshes) - 1, nil
}

// FinishGroupCopy transitions the builder into node assembly once every
// group/non-instanced mesh has been copied.
func (b *Builder) FinishGroupCopy() {
	b.requireState(stateBufferInitialized, "FinishGroupCopy")
	b.state = stateGroupsCopied
}

// AddInstancedNode appends one output node carrying an
// EXT_mesh_gpu_instancing extension over the packed per-instance
// TRANSLATION/ROTATION/SCALE accessors built from group's instances.
func (b *Builder) AddInstancedNode(meshIdx int, group *model.InstanceGroup) (int, error) {
	b.requireState(stateGroupsCopied, "AddInstancedNode")

	n := len(group.Instances)
	translations := make([][3]float32, n)
	rotations := make([][4]float32, n)
	scales := make([][3]float32, n)
	for i, inst := range group.Instances {
		if inst.DegenerateMatrix {
			t, r, s, ok := mathutil.DecomposeTRS(inst.WorldMatrix[:])
			if ok {
				translations[i], rotations[i], scales[i] = t, r, s
				continue
			}
			// Cannot decompose even here; fall back to identity-scaled
			// translation-only placement rather than dropping the instance.
			translations[i] = [3]float32{inst.WorldMatrix[12], inst.WorldMatrix[13], inst.WorldMatrix[14]}
			rotations[i] = [4]float32{0, 0, 0, 1}
			scales[i] = [3]float32{1, 1, 1}
			continue
		}
		translations[i] = inst.World.Translation
		rotations[i] = inst.World.Rotation
		scales[i] = inst.World.Scale
	}

	tAcc := b.packVec3Accessor(translations, gltf.AccessorVec3)
	rAcc := b.packVec4Accessor(rotations)
	sAcc := b.packVec3Accessor(scales, gltf.AccessorVec3)

	node := &gltf.Node{
		Mesh: gltf.Index(meshIdx),
		Extensions: gltf.Extensions{
			gltfutil.GPUInstancingExtension: map[string]any{
				"attributes": map[string]any{
					"TRANSLATION": tAcc,
					"ROTATION":    rAcc,
					"SCALE":       sAcc,
				},
			},
		},
	}
	b.copier.MarkExtensionUsed(gltfutil.GPUInstancingExtension)

	b.out.Nodes = append(b.out.Nodes, node)
	idx := len(b.out.Nodes) - 1

	for _, inst := range group.Instances {
		box, err := b.worldBoxFor(inst.SourceModel, inst.MeshIndex, inst.WorldMatrix, !inst.DegenerateMatrix, inst.World)
		if err != nil {
			return idx, err
		}
		b.rootBox.MergeBox(box)
	}
	return idx, nil
}

// AddPlainNode appends one output node at a non-instanced mesh usage's
// world transform, omitting default-valued TRS components as the teacher's
// encoder convention expects.
func (b *Builder) AddPlainNode(meshIdx int, nim model.NonInstancedMesh) (int, error) {
	b.requireState(stateGroupsCopied, "AddPlainNode")

	node := &gltf.Node{Mesh: gltf.Index(meshIdx)}
	if nim.DegenerateMatrix {
		node.Matrix = toFloat64Array16(nim.WorldMatrix)
	} else {
		if !nearDefault3(nim.World.Translation, [3]float32{0, 0, 0}) {
			node.Translation = toFloat64Array3(nim.World.Translation)
		}
		if !nearDefaultQuat(nim.World.Rotation) {
			node.Rotation = toFloat64Array4(nim.World.Rotation)
		}
		if !nearDefault3(nim.World.Scale, [3]float32{1, 1, 1}) {
			node.Scale = toFloat64Array3(nim.World.Scale)
		}
	}

	b.out.Nodes = append(b.out.Nodes, node)
	idx := len(b.out.Nodes) - 1

	box, err := b.worldBoxFor(nim.SourceModel, nim.MeshIndex, nim.WorldMatrix, !nim.DegenerateMatrix, nim.World)
	if err != nil {
		return idx, err
	}
	b.rootBox.MergeBox(box)
	return idx, nil
}

func toFloat64Array3(v [3]float32) [3]float64 {
	return [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}
}

func toFloat64Array4(v [4]float32) [4]float64 {
	return [4]float64{float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3])}
}

func toFloat64Array16(v [16]float32) [16]float64 {
	var out [16]float64
	for i, c := range v {
		out[i] = float64(c)
	}
	return out
}

func nearDefault3(v, def [3]float32) bool {
	const eps = 1e-10
	for i := range v {
		if diff := float64(v[i] - def[i]); diff > eps || diff < -eps {
			return false
		}
	}
	return true
}

func nearDefaultQuat(q [4]float32) bool {
	return nearDefault3([3]float32{q[0], q[1], q[2]}, [3]float32{0, 0, 0}) && q[3] > 1-1e-10
}

// worldBoxFor recovers the world-space bounding box of one mesh usage, for
// root bounding-box aggregation.
func (b *Builder) worldBoxFor(modelID model.ModelId, meshIdx int, worldMatrix [16]float32, haveTRS bool, trs model.Transform) (mathutil.BBox, error) {
	doc, ok := b.docs[modelID]
	if !ok {
		return mathutil.BBox{}, pipelineerr.DataAccessError{ModelId: uint32(modelID), MeshIndex: meshIdx, Err: fmt.Errorf("model not loaded")}
	}
	mesh := doc.Meshes[meshIdx]

	var local mathutil.BBox
	for _, prim := range mesh.Primitives {
		posIdx, ok := prim.Attributes["POSITION"]
		if !ok {
			continue
		}
		acc := doc.Accessors[posIdx]
		if len(acc.Min) == 3 && len(acc.Max) == 3 {
			local.MergePoint([3]float32{float32(acc.Min[0]), float32(acc.Min[1]), float32(acc.Min[2])})
			local.MergePoint([3]float32{float32(acc.Max[0]), float32(acc.Max[1]), float32(acc.Max[2])})
		}
	}
	if !local.Valid {
		return mathutil.BBox{}, nil
	}

	var m [16]float32
	if haveTRS {
		mathutil.ComposeTRS(m[:], trs.Translation, trs.Rotation, trs.Scale)
	} else {
		m = worldMatrix
	}
	return local.TransformedBy(m[:]), nil
}

func (b *Builder) packVec3Accessor(v [][3]float32, accType gltf.AccessorType) int {
	packed := gltfutil.PackVec3Array(v)
	bvIdx := b.appendArena(packed)
	acc := &gltf.Accessor{
		BufferView:    gltf.Index(bvIdx),
		ComponentType: gltf.ComponentFloat,
		Type:          accType,
		Count:         len(v),
	}
	return b.copier.AppendStandaloneAccessor(acc)
}

func (b *Builder) packVec4Accessor(v [][4]float32) int {
	packed := gltfutil.PackVec4Array(v)
	bvIdx := b.appendArena(packed)
	acc := &gltf.Accessor{
		BufferView:    gltf.Index(bvIdx),
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec4,
		Count:         len(v),
	}
	return b.copier.AppendStandaloneAccessor(acc)
}

// appendArena hands data to the copier's shared arena and records a new
// buffer view over it, mirroring the alignment discipline CopyBufferView
// uses for copied resources.
func (b *Builder) appendArena(data []byte) int {
	bvIdx, err := b.copier.AppendStandaloneBufferView(data)
	if err != nil {
		panic(err)
	}
	return bvIdx
}

// FinishNodes transitions the builder into scene assembly.
func (b *Builder) FinishNodes() {
	b.requireState(stateGroupsCopied, "FinishNodes")
	b.state = stateNodesAssembled
}

// BuildScene wires every node added so far as a root of the single output
// scene.
func (b *Builder) BuildScene() {
	b.requireState(stateNodesAssembled, "BuildScene")
	scene := &gltf.Scene{}
	for i := range b.out.Nodes {
		scene.Nodes = append(scene.Nodes, uint32(i))
	}
	b.out.Scenes = append(b.out.Scenes, scene)
	b.sceneIdx = 0
	b.out.Scene = gltf.Index(b.sceneIdx)
	b.state = stateSceneBuilt
}

// RootBoundingBox returns the aggregated world-space bounding box of every
// mesh usage added to this document so far. Valid only after BuildScene.
func (b *Builder) RootBoundingBox() mathutil.BBox {
	return b.rootBox
}

// FinalizeBuffer flushes the copier's resource set and consolidated arena
// into the output document, pruning nothing unreferenced since every
// resource recorded here was recorded because a node or mesh referenced
// it.
func (b *Builder) FinalizeBuffer() {
	b.requireState(stateSceneBuilt, "FinalizeBuffer")

	bvs, accs, mats, texs, samps, imgs := b.copier.Results()
	b.out.BufferViews = bvs
	b.out.Accessors = append(b.out.Accessors, accs...)
	b.out.Materials = mats
	b.out.Textures = texs
	b.out.Samplers = samps
	b.out.Images = imgs

	arena := b.copier.Arena()
	b.out.Buffers[0].Data = arena
	b.out.Buffers[0].ByteLength = uint32(len(arena))

	b.out.ExtensionsUsed = append(b.out.ExtensionsUsed, b.copier.ExtensionsUsed()...)

	b.state = stateBufferFinalized
}

// WriteGLB serializes the finished document to path using a temp-file
// write followed by an atomic rename, so a crash mid-write never leaves a
// corrupt file at the final path.
func (b *Builder) WriteGLB(path string) error {
	b.requireState(stateBufferFinalized, "WriteGLB")

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(b.out); err != nil {
		return pipelineerr.SerializationError{OutputPath: path, Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.glb")
	if err != nil {
		return pipelineerr.IOError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return pipelineerr.IOError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return pipelineerr.IOError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return pipelineerr.IOError{Path: path, Err: err}
	}

	b.state = stateSerialized
	return nil
}
