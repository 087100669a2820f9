package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersExpectedFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"input", "output", "config", "tolerance", "normal-tolerance", "instance-limit", "merge-all", "segment", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s flag", name)
	}
}

func TestRunInstancerOnEmptyDirectoryIsANoop(t *testing.T) {
	dir := t.TempDir()
	err := runInstancer(&flags{input: dir})
	require.NoError(t, err)
}

func TestRunInstancerWritesOutputForDiscoveredModels(t *testing.T) {
	dir := t.TempDir()

	doc := gltf.NewDocument()
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "solo"})
	saveErr := gltf.SaveBinary(doc, filepath.Join(dir, "solo.glb"))
	require.NoError(t, saveErr)

	out := filepath.Join(dir, "out")
	err := runInstancer(&flags{input: dir, output: out})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(out, "instancing_analysis.csv"))
	require.NoError(t, statErr)
}
