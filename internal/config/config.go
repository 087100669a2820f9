// Package config loads the pipeline's run configuration: compiled-in
// defaults layered under an optional YAML file, in turn overridden by CLI
// flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/271586852/instancing-rendering-project/common"
)

// Config is the complete run configuration surface.
type Config struct {
	InputDirectory        string   `yaml:"input_directory"`
	OutputDirectory       string   `yaml:"output_directory"`
	Tolerance             float64  `yaml:"tolerance"`
	NormalTolerance       float64  `yaml:"normal_tolerance"`
	SkipAttributeDataHash []string `yaml:"skip_attribute_data_hash"`
	InstanceLimit         int      `yaml:"instance_limit"`
	MergeAllGLB           bool     `yaml:"merge_all_glb"`
	MeshSegmentation      bool     `yaml:"mesh_segmentation"`

	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb"`
}

// Defaults returns the compiled-in baseline configuration.
func Defaults() Config {
	return Config{
		InstanceLimit: 2,
		LogLevel:      "info",
		LogMaxSizeMB:  50,
	}
}

// Option mutates a Config being built; used for CLI-flag overrides applied
// after the file layer.
type Option func(*Config)

// Load builds a Config by layering, in order: compiled-in defaults, the
// YAML file at path (skipped if path is empty and no `~/.instancer.yaml`
// exists), then every opt in order.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Defaults()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if resolved != "" {
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading config file %q", resolved)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config file %q", resolved)
		}
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveConfigPath expands path if explicitly given, else looks for
// `~/.instancer.yaml`; returns "" if neither exists, which Load treats as
// "use compiled-in defaults only".
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return "", errors.Wrapf(err, "expanding config path %q", path)
		}
		return expanded, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", nil
	}
	candidate := filepath.Join(home, ".instancer.yaml")
	if _, err := os.Stat(candidate); err != nil {
		return "", nil
	}
	return candidate, nil
}

// Validate checks the configuration once at startup; the pipeline itself
// never re-validates.
func (c Config) Validate() error {
	if c.InputDirectory == "" {
		return fmt.Errorf("input_directory is required")
	}
	if info, err := os.Stat(c.InputDirectory); err != nil || !info.IsDir() {
		return fmt.Errorf("input_directory %q is not a readable directory", c.InputDirectory)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %v", c.Tolerance)
	}
	if c.NormalTolerance < 0 {
		return fmt.Errorf("normal_tolerance must be non-negative, got %v", c.NormalTolerance)
	}
	if c.InstanceLimit < 1 {
		return fmt.Errorf("instance_limit must be >= 1, got %d", c.InstanceLimit)
	}
	return nil
}

// ResolvedOutputDirectory returns OutputDirectory, or
// `<input>/processed_output` when unset.
func (c Config) ResolvedOutputDirectory() string {
	return common.Coalesce(c.OutputDirectory, filepath.Join(c.InputDirectory, "processed_output"))
}

// SkipAttributeSet returns SkipAttributeDataHash as a set, the shape the
// fingerprint engine's Options expects.
func (c Config) SkipAttributeSet() map[string]struct{} {
	out := make(map[string]struct{}, len(c.SkipAttributeDataHash))
	for _, name := range c.SkipAttributeDataHash {
		out[name] = struct{}{}
	}
	return out
}

// WithInputDirectory overrides the input directory.
func WithInputDirectory(v string) Option { return func(c *Config) { c.InputDirectory = v } }

// WithOutputDirectory overrides the output directory.
func WithOutputDirectory(v string) Option { return func(c *Config) { c.OutputDirectory = v } }

// WithTolerance overrides the bounding-box tolerance.
func WithTolerance(v float64) Option { return func(c *Config) { c.Tolerance = v } }

// WithNormalTolerance overrides the normal quantization step.
func WithNormalTolerance(v float64) Option { return func(c *Config) { c.NormalTolerance = v } }

// WithInstanceLimit overrides the minimum instanced-group size.
func WithInstanceLimit(v int) Option { return func(c *Config) { c.InstanceLimit = v } }

// WithMergeAllGLB overrides the combined-vs-per-input output packaging.
func WithMergeAllGLB(v bool) Option { return func(c *Config) { c.MergeAllGLB = v } }

// WithMeshSegmentation overrides whether Variant C is enabled.
func WithMeshSegmentation(v bool) Option { return func(c *Config) { c.MeshSegmentation = v } }

// WithLogLevel overrides the console/file log level.
func WithLogLevel(v string) Option {
	return func(c *Config) {
		if v != "" {
			c.LogLevel = v
		}
	}
}
