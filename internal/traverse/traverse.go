// Package traverse walks a loaded model's scene graph, accumulating world
// transforms and sorting every mesh usage it finds into instance groups or
// a non-instanced list.
package traverse

import (
	"fmt"
	"sort"

	"github.com/qmuntal/gltf"

	"github.com/271586852/instancing-rendering-project/internal/fingerprint"
	"github.com/271586852/instancing-rendering-project/internal/gltfutil"
	"github.com/271586852/instancing-rendering-project/internal/mathutil"
	"github.com/271586852/instancing-rendering-project/internal/model"
	"github.com/271586852/instancing-rendering-project/internal/pipelineerr"
)

// Options configures one Grouper for the lifetime of a run.
type Options struct {
	// Tolerance is the bounding-box similarity threshold used whenever the
	// fingerprint engine is in tolerance mode. Ignored in exact mode.
	Tolerance float64

	// InstanceLimit is the minimum group size that survives finalization;
	// smaller groups demote to non-instanced. Minimum 1, default 2.
	InstanceLimit int
}

// Grouper accumulates InstanceGroups and NonInstancedMeshes across every
// model in a run, then applies the finalization pass.
type Grouper struct {
	opts Options
	fp   *fingerprint.Engine

	groups       map[uint64]*model.InstanceGroup
	groupOrder   []uint64
	nonInstanced []model.NonInstancedMesh

	initialNodes     int
	initialMeshNodes int
	initialInstances int
}

// NewGrouper returns a Grouper that fingerprints primitives with fp and
// groups per opts.
func NewGrouper(fp *fingerprint.Engine, opts Options) *Grouper {
	if opts.InstanceLimit < 1 {
		opts.InstanceLimit = 2
	}
	return &Grouper{
		opts:   opts,
		fp:     fp,
		groups: make(map[uint64]*model.InstanceGroup),
	}
}

// TraverseModel walks lm's default scene, descending every root node with
// an accumulating world transform.
func (g *Grouper) TraverseModel(lm *model.LoadedModel) error {
	doc := lm.Document
	sceneIdx := 0
	if doc.Scene != nil {
		sceneIdx = int(*doc.Scene)
	}
	if sceneIdx >= len(doc.Scenes) {
		return fmt.Errorf("model %d: scene index %d out of range", lm.Id, sceneIdx)
	}
	scene := doc.Scenes[sceneIdx]

	var identity [16]float32
	mathutil.Identity(identity[:])

	for _, rootIdx := range scene.Nodes {
		if err := g.visitNode(doc, lm.CanonicalId, int(rootIdx), identity); err != nil {
			return err
		}
	}
	return nil
}

func (g *Grouper) visitNode(doc *gltf.Document, modelID model.ModelId, nodeIdx int, parentWorld [16]float32) error {
	if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", nodeIdx)
	}
	node := doc.Nodes[nodeIdx]
	g.initialNodes++

	var local [16]float32
	gltfutil.LocalTransform(node, local[:], mathutil.ComposeTRS)

	var world [16]float32
	mathutil.Mul4(world[:], parentWorld[:], local[:])

	if node.Mesh != nil {
		if err := g.visitMeshNode(doc, modelID, nodeIdx, int(*node.Mesh), node, world); err != nil {
			return err
		}
	}

	for _, childIdx := range node.Children {
		if err := g.visitNode(doc, modelID, int(childIdx), world); err != nil {
			return err
		}
	}
	return nil
}

func (g *Grouper) visitMeshNode(doc *gltf.Document, modelID model.ModelId, nodeIdx, meshIdx int, node *gltf.Node, world [16]float32) error {
	if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", meshIdx)
	}
	mesh := doc.Meshes[meshIdx]
	g.initialMeshNodes++

	fpHash, err := g.fp.MeshFingerprint(doc, mesh)
	if err != nil {
		return fmt.Errorf("fingerprinting model %d mesh %d: %w", modelID, meshIdx, err)
	}

	if attrs, ok := gltfutil.InstancingAttributes(node); ok {
		return g.visitInstancedNode(doc, modelID, nodeIdx, meshIdx, mesh, attrs, world, fpHash)
	}
	return g.visitPlainNode(doc, modelID, nodeIdx, meshIdx, mesh, world, fpHash)
}

// visitInstancedNode implements Case A: the node carries
// EXT_mesh_gpu_instancing. Every per-instance TRS expands into its own
// MeshInstance appended to the fingerprint-keyed group.
func (g *Grouper) visitInstancedNode(doc *gltf.Document, modelID model.ModelId, nodeIdx, meshIdx int, mesh *gltf.Mesh, attrs map[string]uint32, world [16]float32, fpHash uint64) error {
	translations, rotations, scales, count, err := readInstanceAttributes(doc, attrs)
	if err != nil {
		return pipelineerr.DataAccessError{ModelId: uint32(modelID), MeshIndex: meshIdx, Err: fmt.Errorf("reading instancing attributes on node %d: %w", nodeIdx, err)}
	}
	g.initialInstances += count

	group := g.groupFor(fpHash, modelID, meshIdx, mesh.Name)
	if len(group.PrimitiveBoxes) == 0 && g.opts.Tolerance > 0 {
		boxes, err := primitiveBoundingBoxes(doc, mesh)
		if err != nil {
			return err
		}
		group.PrimitiveBoxes = boxes
	}

	for i := 0; i < count; i++ {
		t := [3]float32{0, 0, 0}
		r := [4]float32{0, 0, 0, 1}
		s := [3]float32{1, 1, 1}
		if translations != nil {
			t = translations[i]
		}
		if rotations != nil {
			r = mathutil.NormalizeQuat(rotations[i])
		}
		if scales != nil {
			s = scales[i]
		}

		var local [16]float32
		mathutil.ComposeTRS(local[:], t, r, s)
		var instWorld [16]float32
		mathutil.Mul4(instWorld[:], world[:], local[:])

		inst := buildInstance(modelID, nodeIdx, meshIdx, instWorld)
		group.Instances = append(group.Instances, inst)
	}
	return nil
}

// visitPlainNode implements Case B: a node with a mesh but no instancing
// extension.
func (g *Grouper) visitPlainNode(doc *gltf.Document, modelID model.ModelId, nodeIdx, meshIdx int, mesh *gltf.Mesh, world [16]float32, fpHash uint64) error {
	g.initialInstances++
	inst := buildInstance(modelID, nodeIdx, meshIdx, world)

	if g.opts.Tolerance <= 0 {
		group := g.groupFor(fpHash, modelID, meshIdx, mesh.Name)
		group.Instances = append(group.Instances, inst)
		return nil
	}

	candidateBoxes, err := primitiveBoundingBoxes(doc, mesh)
	if err != nil {
		return err
	}

	existing, ok := g.groups[fpHash]
	if !ok {
		group := g.groupFor(fpHash, modelID, meshIdx, mesh.Name)
		group.PrimitiveBoxes = candidateBoxes
		group.Instances = append(group.Instances, inst)
		return nil
	}

	if boxesSimilar(candidateBoxes, existing.PrimitiveBoxes, g.opts.Tolerance) {
		existing.Instances = append(existing.Instances, inst)
		return nil
	}

	// Fingerprint matched but bounding boxes did not: this node neither
	// joins the existing group nor replaces its representative.
	g.nonInstanced = append(g.nonInstanced, model.NonInstancedMesh{
		SourceModel:      modelID,
		MeshIndex:        meshIdx,
		NodeIndex:        nodeIdx,
		World:            trsOf(inst),
		WorldMatrix:      inst.WorldMatrix,
		DegenerateMatrix: inst.DegenerateMatrix,
	})
	return nil
}

func (g *Grouper) groupFor(fpHash uint64, modelID model.ModelId, meshIdx int, meshName string) *model.InstanceGroup {
	group, ok := g.groups[fpHash]
	if !ok {
		group = &model.InstanceGroup{
			Fingerprint:         fpHash,
			RepresentativeModel: modelID,
			RepresentativeMesh:  meshIdx,
			RepresentativeName:  meshName,
		}
		g.groups[fpHash] = group
		g.groupOrder = append(g.groupOrder, fpHash)
	}
	return group
}

func buildInstance(modelID model.ModelId, nodeIdx, meshIdx int, world [16]float32) model.MeshInstance {
	t, r, s, ok := mathutil.DecomposeTRS(world[:])
	if !ok {
		return model.MeshInstance{
			SourceModel:      modelID,
			NodeIndex:        nodeIdx,
			MeshIndex:        meshIdx,
			WorldMatrix:      world,
			DegenerateMatrix: true,
		}
	}
	return model.MeshInstance{
		SourceModel: modelID,
		NodeIndex:   nodeIdx,
		MeshIndex:   meshIdx,
		World:       model.Transform{Translation: t, Rotation: r, Scale: s},
	}
}

func trsOf(inst model.MeshInstance) model.Transform {
	return inst.World
}

// Finalize applies the instance-count threshold: groups below
// InstanceLimit demote their instances to NonInstancedMeshes. Returns the
// surviving groups (sorted by fingerprint for output-order stability) and
// the complete non-instanced list.
func (g *Grouper) Finalize() ([]*model.InstanceGroup, []model.NonInstancedMesh) {
	sorted := make([]uint64, len(g.groupOrder))
	copy(sorted, g.groupOrder)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var surviving []*model.InstanceGroup
	nonInstanced := append([]model.NonInstancedMesh{}, g.nonInstanced...)

	for _, fp := range sorted {
		group := g.groups[fp]
		if len(group.Instances) < g.opts.InstanceLimit {
			for _, inst := range group.Instances {
				nonInstanced = append(nonInstanced, model.NonInstancedMesh{
					SourceModel:      inst.SourceModel,
					MeshIndex:        inst.MeshIndex,
					NodeIndex:        inst.NodeIndex,
					World:            inst.World,
					WorldMatrix:      inst.WorldMatrix,
					DegenerateMatrix: inst.DegenerateMatrix,
				})
			}
			continue
		}
		surviving = append(surviving, group)
	}
	return surviving, nonInstanced
}

// Counters exposes the traversal-phase counters the run report needs
// (initial nodes/meshes/instances) before the finalization pass runs.
func (g *Grouper) Counters() (nodes, meshNodes, instances int) {
	return g.initialNodes, g.initialMeshNodes, g.initialInstances
}

// readInstanceAttributes reads the TRANSLATION/ROTATION/SCALE accessors
// named by an EXT_mesh_gpu_instancing payload. Any of the three may be
// absent; the instance count is the common count of whichever accessors
// are present, and it is an error for two present accessors to disagree on
// that count, since the caller indexes every present array up to count.
func readInstanceAttributes(doc *gltf.Document, attrs map[string]uint32) (translations [][3]float32, rotations [][4]float32, scales [][3]float32, count int, err error) {
	haveCount := false
	agree := func(n int) error {
		if !haveCount {
			count, haveCount = n, true
			return nil
		}
		if n != count {
			return fmt.Errorf("mismatched instance attribute counts: %d vs %d", count, n)
		}
		return nil
	}

	if idx, ok := attrs["TRANSLATION"]; ok {
		packed, elemLen, err := gltfutil.ReadPacked(doc, idx)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("reading TRANSLATION: %w", err)
		}
		if elemLen != 12 {
			return nil, nil, nil, 0, fmt.Errorf("reading TRANSLATION: unexpected element size %d", elemLen)
		}
		translations = gltfutil.Vec3Array(packed)
		if err := agree(len(translations)); err != nil {
			return nil, nil, nil, 0, err
		}
	}
	if idx, ok := attrs["ROTATION"]; ok {
		packed, elemLen, err := gltfutil.ReadPacked(doc, idx)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("reading ROTATION: %w", err)
		}
		if elemLen != 16 {
			return nil, nil, nil, 0, fmt.Errorf("reading ROTATION: unexpected element size %d", elemLen)
		}
		rotations = gltfutil.Vec4Array(packed)
		if err := agree(len(rotations)); err != nil {
			return nil, nil, nil, 0, err
		}
	}
	if idx, ok := attrs["SCALE"]; ok {
		packed, elemLen, err := gltfutil.ReadPacked(doc, idx)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("reading SCALE: %w", err)
		}
		if elemLen != 12 {
			return nil, nil, nil, 0, fmt.Errorf("reading SCALE: unexpected element size %d", elemLen)
		}
		scales = gltfutil.Vec3Array(packed)
		if err := agree(len(scales)); err != nil {
			return nil, nil, nil, 0, err
		}
	}
	if !haveCount {
		return nil, nil, nil, 0, fmt.Errorf("no TRANSLATION/ROTATION/SCALE accessor present")
	}
	return translations, rotations, scales, count, nil
}
