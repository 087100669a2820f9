package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsThenFileThenOptions(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "instancer.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
input_directory: `+dir+`
tolerance: 0.25
instance_limit: 3
`), 0o644))

	cfg, err := Load(configPath, WithInstanceLimit(5))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.InputDirectory)
	assert.Equal(t, 0.25, cfg.Tolerance)
	assert.Equal(t, 5, cfg.InstanceLimit, "a later CLI option must win over the file value")
	assert.Equal(t, "info", cfg.LogLevel, "unset-by-file fields keep the compiled-in default")
}

func TestLoadWithoutFileUsesDefaultsAndOptions(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load("", WithInputDirectory(dir))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.InputDirectory)
	assert.Equal(t, 2, cfg.InstanceLimit)
}

func TestValidateRejectsMissingInputDirectory(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsUnreadableInputDirectory(t *testing.T) {
	cfg := Defaults()
	cfg.InputDirectory = filepath.Join(t.TempDir(), "does-not-exist")
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsNegativeTolerance(t *testing.T) {
	cfg := Defaults()
	cfg.InputDirectory = t.TempDir()
	cfg.Tolerance = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInstanceLimitBelowOne(t *testing.T) {
	cfg := Defaults()
	cfg.InputDirectory = t.TempDir()
	cfg.InstanceLimit = 0
	assert.Error(t, cfg.Validate())
}

func TestResolvedOutputDirectoryDefaultsUnderInput(t *testing.T) {
	cfg := Defaults()
	cfg.InputDirectory = "/data/in"
	assert.Equal(t, filepath.Join("/data/in", "processed_output"), cfg.ResolvedOutputDirectory())
}

func TestResolvedOutputDirectoryHonorsExplicitValue(t *testing.T) {
	cfg := Defaults()
	cfg.InputDirectory = "/data/in"
	cfg.OutputDirectory = "/data/out"
	assert.Equal(t, "/data/out", cfg.ResolvedOutputDirectory())
}

func TestSkipAttributeSetBuildsSet(t *testing.T) {
	cfg := Defaults()
	cfg.SkipAttributeDataHash = []string{"NORMAL", "TANGENT"}
	set := cfg.SkipAttributeSet()
	_, hasNormal := set["NORMAL"]
	_, hasColor := set["COLOR_0"]
	assert.True(t, hasNormal)
	assert.False(t, hasColor)
}

func TestWithLogLevelIgnoresEmptyOverride(t *testing.T) {
	cfg := Defaults()
	WithLogLevel("")(&cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	WithLogLevel("debug")(&cfg)
	assert.Equal(t, "debug", cfg.LogLevel)
}
