// Package model contains the plain data types shared across the instancing
// pipeline. They are not interface-wrapped, just structs that express the
// pipeline's commonly used domain concepts.
package model

import (
	"github.com/qmuntal/gltf"

	"github.com/271586852/instancing-rendering-project/internal/mathutil"
)

// ModelId identifies one loaded input document for the duration of a run.
// Assigned in discovery order; a duplicate-content input keeps its own Id
// and carries the first occurrence's ModelId as its CanonicalId.
type ModelId uint32

// LoadedModel is a parsed glTF document plus run-scoped identity metadata.
// Created once per input file at load time and treated as read-only by
// every later pipeline stage.
type LoadedModel struct {
	// Id is the run-scoped identifier assigned in discovery order.
	Id ModelId

	// Path is the original source file path.
	Path string

	// Digest is a hex-encoded content digest of the raw input bytes, used
	// for identity-level duplicate collapsing.
	Digest string

	// Document is the parsed glTF document.
	Document *gltf.Document

	// CanonicalId is the ModelId of the first-seen input sharing this
	// model's Digest. Equal to Id unless this model is a duplicate.
	CanonicalId ModelId
}

// Transform is a decomposed translation/rotation/scale triple.
// Rotation is stored as a unit quaternion in glTF's [x, y, z, w] order.
type Transform struct {
	Translation [3]float32
	Rotation    [4]float32
	Scale       [3]float32
}

// Identity returns the TRS identity transform.
func Identity() Transform {
	return Transform{
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
}

// MeshInstance is one usage of a mesh at a specific world-space transform.
// Lifetime is a single run.
type MeshInstance struct {
	SourceModel ModelId
	NodeIndex   int
	MeshIndex   int
	World       Transform

	// WorldMatrix is set instead of World when the local transform could
	// not be decomposed into TRS (see DegenerateMatrix).
	WorldMatrix      [16]float32
	DegenerateMatrix bool
}

// InstanceGroup is a set of mesh usages that share a fingerprint (and, in
// tolerance mode, a matching bounding box), destined to become a single
// instanced node.
type InstanceGroup struct {
	Fingerprint uint64

	// RepresentativeModel / RepresentativeMesh name the source mesh whose
	// definition is copied into the output for this group.
	RepresentativeModel ModelId
	RepresentativeMesh  int
	RepresentativeName  string

	Instances []MeshInstance

	// PrimitiveBoxes holds the representative's per-primitive local
	// bounding boxes; populated only in tolerance mode, on first sighting.
	PrimitiveBoxes []mathutil.BBox
}

// NonInstancedMesh is a single mesh usage that did not make it into an
// instanced group, either because its group fell below instanceLimit or
// because its bounding box failed the tolerance-mode similarity check.
type NonInstancedMesh struct {
	SourceModel ModelId
	MeshIndex   int
	NodeIndex   int
	World       Transform

	WorldMatrix      [16]float32
	DegenerateMatrix bool
}

// ResourceKind tags which of the five remap maps a RemapTable entry belongs
// to. Kept as a named type rather than five separate map types living loose
// in the caller, per the cycles/back-reference design note.
type ResourceKind int

const (
	KindBufferView ResourceKind = iota
	KindAccessor
	KindMaterial
	KindTexture
	KindSampler
	KindImage
)

// remapKey is the cache key shared by all five RemapTable maps.
type remapKey struct {
	model ModelId
	index int
}

// RemapTable caches (sourceModelId, sourceOriginalIndex) -> newIndex for
// each of the five resource kinds a single output emission can reference.
// Scoped to one Output Assembler invocation; never shared across variants.
type RemapTable struct {
	bufferViews map[remapKey]int
	accessors   map[remapKey]int
	materials   map[remapKey]int
	textures    map[remapKey]int
	samplers    map[remapKey]int
	images      map[remapKey]int
}

// NewRemapTable returns an empty RemapTable ready for one assembly pass.
func NewRemapTable() *RemapTable {
	return &RemapTable{
		bufferViews: make(map[remapKey]int),
		accessors:   make(map[remapKey]int),
		materials:   make(map[remapKey]int),
		textures:    make(map[remapKey]int),
		samplers:    make(map[remapKey]int),
		images:      make(map[remapKey]int),
	}
}

func (t *RemapTable) mapFor(kind ResourceKind) map[remapKey]int {
	switch kind {
	case KindBufferView:
		return t.bufferViews
	case KindAccessor:
		return t.accessors
	case KindMaterial:
		return t.materials
	case KindTexture:
		return t.textures
	case KindSampler:
		return t.samplers
	case KindImage:
		return t.images
	default:
		return nil
	}
}

// Lookup returns the new index previously recorded for (model, kind,
// sourceIndex), if any.
func (t *RemapTable) Lookup(kind ResourceKind, model ModelId, sourceIndex int) (int, bool) {
	m := t.mapFor(kind)
	v, ok := m[remapKey{model, sourceIndex}]
	return v, ok
}

// Record caches newIndex for (model, kind, sourceIndex).
func (t *RemapTable) Record(kind ResourceKind, model ModelId, sourceIndex, newIndex int) {
	t.mapFor(kind)[remapKey{model, sourceIndex}] = newIndex
}

// RunReport accumulates the counters that feed instancing_analysis.csv and
// the completion log line.
type RunReport struct {
	InputModels        int
	InitialNodes       int
	InitialMeshes      int
	InitialInstances   int
	InstancedGroups    int
	FinalInstances     int
	NonInstancedMeshes int
	FinalNodes         int
	FinalMeshes        int
}

// TotalDisplayedMeshes is the number of mesh draws visible in the final
// scene: one instanced draw per group plus one per non-instanced mesh.
func (r RunReport) TotalDisplayedMeshes() int {
	return r.InstancedGroups + r.NonInstancedMeshes
}

// NodeReductionPercent is the percentage drop from InitialNodes to
// FinalNodes.
func (r RunReport) NodeReductionPercent() float64 {
	if r.InitialNodes == 0 {
		return 0
	}
	return 100 * float64(r.InitialNodes-r.FinalNodes) / float64(r.InitialNodes)
}

// InitialInstancingRatioPercent is the fraction of initial mesh usages that
// were already instance-groupable before any processing, i.e. always 0 for
// this pipeline's input model (instancing is discovered, not pre-existing)
// except where GPU-instancing-extension nodes pre-expand into instances.
func (r RunReport) InitialInstancingRatioPercent() float64 {
	if r.InitialInstances == 0 {
		return 0
	}
	return 100 * float64(r.InitialInstances-r.InitialMeshes) / float64(r.InitialInstances)
}

// FinalInstancingRatioPercent is the fraction of final displayed instances
// that live inside an instanced group rather than standing alone.
func (r RunReport) FinalInstancingRatioPercent() float64 {
	total := r.FinalInstances + r.NonInstancedMeshes
	if total == 0 {
		return 0
	}
	return 100 * float64(r.FinalInstances) / float64(total)
}

// InstancingIncreasePercent is the improvement in instancing ratio achieved
// by this run.
func (r RunReport) InstancingIncreasePercent() float64 {
	return r.FinalInstancingRatioPercent() - r.InitialInstancingRatioPercent()
}
