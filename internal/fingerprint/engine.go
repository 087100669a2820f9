// Package fingerprint computes deterministic content hashes for glTF mesh
// primitives, under an exact mode (full byte-identity) and a tolerance mode
// (quantized, position-excluded hashing backed by a bounding-box similarity
// check performed later by the traversal stage).
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/qmuntal/gltf"

	"github.com/271586852/instancing-rendering-project/internal/gltfutil"
)

// Options configures one Engine for the lifetime of a run.
type Options struct {
	// Tolerance > 0 switches primitive fingerprinting into tolerance mode
	// and excludes POSITION data from the hash.
	Tolerance float64

	// NormalTolerance is the quantization step applied to NORMAL data in
	// tolerance mode. Ignored when zero or when NORMAL is skipped.
	NormalTolerance float64

	// SkipAttributeDataHash names attributes whose data is never hashed in
	// tolerance mode (their element count still contributes).
	SkipAttributeDataHash map[string]struct{}
}

// Engine computes primitive and mesh fingerprints against the documents it
// is given. It is stateless beyond its Options and safe to reuse across an
// entire run.
type Engine struct {
	opts Options
}

// New returns an Engine configured with opts.
func New(opts Options) *Engine {
	if opts.SkipAttributeDataHash == nil {
		opts.SkipAttributeDataHash = map[string]struct{}{}
	}
	return &Engine{opts: opts}
}

// ToleranceMode reports whether the engine is configured for tolerance
// fingerprinting (Tolerance > 0).
func (e *Engine) ToleranceMode() bool {
	return e.opts.Tolerance > 0
}

const sentinelIndex = ^uint64(0)

// MeshFingerprint combines the fingerprints of every primitive in mesh, in
// source order.
func (e *Engine) MeshFingerprint(doc *gltf.Document, mesh *gltf.Mesh) (uint64, error) {
	var seed uint64
	for _, prim := range mesh.Primitives {
		h, err := e.PrimitiveFingerprint(doc, prim)
		if err != nil {
			return 0, err
		}
		seed = combine(seed, h)
	}
	return seed, nil
}

// PrimitiveFingerprint computes the 64-bit content hash for a single
// primitive per the ordering and exclusion rules in §4.2.
func (e *Engine) PrimitiveFingerprint(doc *gltf.Document, prim *gltf.Primitive) (uint64, error) {
	var seed uint64

	// 1. material reference.
	matIdx := sentinelIndex
	if prim.Material != nil {
		matIdx = uint64(*prim.Material)
	}
	seed = combine(seed, fnv64a(u64Bytes(matIdx)))

	// 2. primitive mode.
	seed = combine(seed, fnv64a(u64Bytes(uint64(prim.Mode))))

	// 3. indices descriptor.
	if prim.Indices != nil {
		h, err := e.accessorDescriptorHash(doc, *prim.Indices, true, "")
		if err != nil {
			return 0, err
		}
		seed = combine(seed, h)
	} else {
		seed = combine(seed, fnv64a(u64Bytes(sentinelIndex)))
	}

	// 4. attributes, lexicographic order.
	names := make([]string, 0, len(prim.Attributes))
	for name := range prim.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h, err := e.accessorDescriptorHash(doc, prim.Attributes[name], false, name)
		if err != nil {
			return 0, err
		}
		seed = combine(seed, fnv64a([]byte(name)))
		seed = combine(seed, h)
	}

	// 5. morph targets, source order; attributes lexicographic within each.
	for _, target := range prim.Targets {
		tnames := make([]string, 0, len(target))
		for name := range target {
			tnames = append(tnames, name)
		}
		sort.Strings(tnames)
		for _, name := range tnames {
			h, err := e.accessorDescriptorHash(doc, target[name], false, name)
			if err != nil {
				return 0, err
			}
			seed = combine(seed, fnv64a([]byte(name)))
			seed = combine(seed, h)
		}
	}

	return seed, nil
}

// accessorDescriptorHash hashes (type, componentType, count, normalized,
// hash-of-data) for one accessor, honoring the tolerance-mode exclusion and
// quantization rules. attrName is "" for the indices accessor, which is
// always hashed exactly.
func (e *Engine) accessorDescriptorHash(doc *gltf.Document, accIdx int, isIndices bool, attrName string) (uint64, error) {
	if int(accIdx) >= len(doc.Accessors) {
		return 0, errOutOfRange("accessor", int(accIdx))
	}
	acc := doc.Accessors[accIdx]

	var seed uint64
	seed = combine(seed, fnv64a(u64Bytes(uint64(acc.Type))))
	seed = combine(seed, fnv64a(u64Bytes(uint64(acc.ComponentType))))
	seed = combine(seed, fnv64a(u64Bytes(uint64(acc.Count))))
	seed = combine(seed, fnv64a(boolByte(acc.Normalized)))

	skip := e.skipDataHash(isIndices, attrName)
	if skip {
		return seed, nil
	}

	if !isIndices && attrName == "NORMAL" && e.ToleranceMode() && e.opts.NormalTolerance > 0 {
		h, err := e.quantizedNormalHash(doc, accIdx)
		if err != nil {
			return 0, err
		}
		return combine(seed, h), nil
	}

	packed, _, err := gltfutil.ReadPacked(doc, accIdx)
	if err != nil {
		return 0, err
	}
	return combine(seed, fnv64a(packed)), nil
}

// skipDataHash decides whether an attribute's raw data contributes to the
// hash. Indices, mode, and material are always hashed exactly; POSITION is
// excluded whenever tolerance mode is active; any attribute named in
// SkipAttributeDataHash is excluded in tolerance mode too.
func (e *Engine) skipDataHash(isIndices bool, attrName string) bool {
	if isIndices {
		return false
	}
	if !e.ToleranceMode() {
		return false
	}
	if attrName == "POSITION" {
		return true
	}
	_, skip := e.opts.SkipAttributeDataHash[attrName]
	return skip
}

// quantizedNormalHash hashes NORMAL data after dividing each component by
// NormalTolerance and rounding to the nearest integer, so near-parallel
// normals land in the same fingerprint bucket.
func (e *Engine) quantizedNormalHash(doc *gltf.Document, accIdx int) (uint64, error) {
	packed, elemLen, err := gltfutil.ReadPacked(doc, accIdx)
	if err != nil {
		return 0, err
	}
	if elemLen != 12 {
		// Not a float32 VEC3 — fall back to exact hashing rather than
		// guess at a quantization scheme for a format we don't expect.
		return fnv64a(packed), nil
	}
	normals := gltfutil.Vec3Array(packed)
	buf := make([]byte, 0, len(normals)*12)
	for _, n := range normals {
		for _, c := range n {
			q := roundToInt64(float64(c) / e.opts.NormalTolerance)
			buf = appendI64(buf, q)
		}
	}
	return fnv64a(buf), nil
}

func roundToInt64(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return -int64(-v + 0.5)
}

func appendI64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func u64Bytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func boolByte(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func errOutOfRange(kind string, idx int) error {
	return fmt.Errorf("%s index %d out of range", kind, idx)
}
