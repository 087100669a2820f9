package pipeline

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/271586852/instancing-rendering-project/internal/config"
)

// writeCubeGLB writes a minimal valid binary glTF with a single
// POSITION-only mesh referenced by nodeCount translated root nodes, each
// translation offset by its index along X so their world boxes differ.
func writeCubeGLB(t *testing.T, path string, nodeCount int) {
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	data := make([]byte, 0, len(positions)*12)
	for _, p := range positions {
		for _, c := range p {
			var b [4]byte
			bits := math.Float32bits(c)
			b[0] = byte(bits)
			b[1] = byte(bits >> 8)
			b[2] = byte(bits >> 16)
			b[3] = byte(bits >> 24)
			data = append(data, b[:]...)
		}
	}

	doc := gltf.NewDocument()
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{ByteLength: uint32(len(data)), Data: data})
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{Buffer: 0, ByteLength: uint32(len(data))})
	bvIdx := uint32(0)
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    &bvIdx,
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec3,
		Count:         uint32(len(positions)),
		Min:           []float32{0, 0, 0},
		Max:           []float32{1, 1, 0},
	})
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Primitives: []*gltf.Primitive{{Attributes: gltf.Attribute{"POSITION": 0}}},
	})

	meshIdx := uint32(0)
	scene := &gltf.Scene{}
	for i := 0; i < nodeCount; i++ {
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Mesh:        &meshIdx,
			Translation: [3]float32{float32(i) * 5, 0, 0},
		})
		scene.Nodes = append(scene.Nodes, uint32(len(doc.Nodes)-1))
	}
	doc.Scenes = append(doc.Scenes, scene)
	sceneIdx := uint32(0)
	doc.Scene = &sceneIdx

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPipelineRunProducesInstancedOutputAndReport(t *testing.T) {
	dir := t.TempDir()
	writeCubeGLB(t, filepath.Join(dir, "scene.glb"), 3)

	cfg, err := config.Load("", config.WithInputDirectory(dir), config.WithMergeAllGLB(true))
	require.NoError(t, err)

	p, err := New(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	report, err := p.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, report.InputModels)
	assert.Equal(t, 1, report.InstancedGroups, "3 identical translated cubes with the default instance_limit=2 must form one group")
	assert.Equal(t, 3, report.FinalInstances)

	outDir := cfg.ResolvedOutputDirectory()
	_, err = os.Stat(filepath.Join(outDir, "combined.glb"))
	require.NoError(t, err)

	csvPath := filepath.Join(outDir, "instancing_analysis.csv")
	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPipelineRunOnEmptyDirectoryIsANoop(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load("", config.WithInputDirectory(dir))
	require.NoError(t, err)

	p, err := New(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	report, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, report.InputModels)
}

func TestPipelineRunBelowInstanceLimitWritesNonInstancedOnly(t *testing.T) {
	dir := t.TempDir()
	writeCubeGLB(t, filepath.Join(dir, "scene.glb"), 1)

	cfg, err := config.Load("", config.WithInputDirectory(dir))
	require.NoError(t, err)

	p, err := New(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	report, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, report.InstancedGroups)
	assert.Equal(t, 1, report.NonInstancedMeshes)

	outDir := cfg.ResolvedOutputDirectory()
	_, err = os.Stat(filepath.Join(outDir, "non_instanced.glb"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "instanced.glb"))
	assert.True(t, os.IsNotExist(err), "no instanced.glb should be written when there are zero groups")
}
