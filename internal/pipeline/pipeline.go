// Package pipeline wires discovery/load, fingerprinting, traversal,
// remapping, and assembly into the end-to-end run described by the
// configuration it is given.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/271586852/instancing-rendering-project/internal/assemble"
	"github.com/271586852/instancing-rendering-project/internal/config"
	"github.com/271586852/instancing-rendering-project/internal/fingerprint"
	"github.com/271586852/instancing-rendering-project/internal/loader"
	"github.com/271586852/instancing-rendering-project/internal/logging"
	"github.com/271586852/instancing-rendering-project/internal/model"
	"github.com/271586852/instancing-rendering-project/internal/report"
	"github.com/271586852/instancing-rendering-project/internal/tileset"
	"github.com/271586852/instancing-rendering-project/internal/traverse"
)

// Pipeline runs one complete instancing pass over a configuration. Built
// once per invocation via New.
type Pipeline interface {
	// Run executes discovery through report-writing, returning the
	// completed RunReport. On error it returns the report built so far
	// alongside the error. A group or mesh that fails to copy is logged as
	// degraded and left out of its output; that alone does not make Run
	// return an error.
	Run() (model.RunReport, error)
}

// Option configures a pipeline built by New.
type Option func(*pipeline)

// WithLogger overrides the pipeline's logger; New builds a default one
// from cfg.LogFile/LogLevel if this option is absent.
func WithLogger(log *zap.Logger) Option {
	return func(p *pipeline) { p.log = log }
}

type pipeline struct {
	cfg config.Config
	log *zap.Logger

	ld    loader.Loader
	fp    *fingerprint.Engine
	grp   *traverse.Grouper
	timer *logging.StageTimer
}

// New returns a Pipeline configured per cfg.
func New(cfg config.Config, opts ...Option) (Pipeline, error) {
	p := &pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		log, err := logging.New(logging.Options{FilePath: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB, Debug: cfg.LogLevel == "debug"})
		if err != nil {
			return nil, fmt.Errorf("building logger: %w", err)
		}
		p.log = log
	}
	p.timer = logging.NewStageTimer(p.log)

	p.ld = loader.New()
	p.fp = fingerprint.New(fingerprint.Options{
		Tolerance:             cfg.Tolerance,
		NormalTolerance:       cfg.NormalTolerance,
		SkipAttributeDataHash: cfg.SkipAttributeSet(),
	})
	p.grp = traverse.NewGrouper(p.fp, traverse.Options{
		Tolerance:     cfg.Tolerance,
		InstanceLimit: cfg.InstanceLimit,
	})
	return p, nil
}

func (p *pipeline) Run() (model.RunReport, error) {
	var report_ model.RunReport

	var models []*model.LoadedModel
	err := p.timer.Stage("load", func() error {
		loaded, err := p.ld.Load(p.cfg.InputDirectory, func(err error) {
			p.log.Warn("input skipped", zap.Error(err))
		})
		if err != nil {
			return err
		}
		models = loaded
		return nil
	})
	if err != nil {
		return report_, fmt.Errorf("loading models: %w", err)
	}
	report_.InputModels = len(models)

	if len(models) == 0 {
		p.log.Info("no input models discovered; nothing to do")
		return report_, nil
	}

	err = p.timer.Stage("traverse", func() error {
		for _, lm := range models {
			if err := p.grp.TraverseModel(lm); err != nil {
				p.log.Warn("traversal skipped model", zap.Uint32("model_id", uint32(lm.Id)), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return report_, err
	}

	nodes, meshNodes, instances := p.grp.Counters()
	report_.InitialNodes = nodes
	report_.InitialMeshes = meshNodes
	report_.InitialInstances = instances

	groups, nonInstanced := p.grp.Finalize()
	report_.InstancedGroups = len(groups)
	report_.NonInstancedMeshes = len(nonInstanced)
	for _, g := range groups {
		report_.FinalInstances += len(g.Instances)
	}
	report_.FinalNodes = len(groups) + len(nonInstanced)
	report_.FinalMeshes = len(groups) + len(nonInstanced)

	docs := make(assemble.DocumentSet, len(models))
	for _, lm := range models {
		docs[lm.Id] = lm.Document
	}

	outDir := p.cfg.ResolvedOutputDirectory()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return report_, fmt.Errorf("creating output directory %q: %w", outDir, err)
	}

	err = p.timer.Stage("assemble", func() error {
		return p.assembleVariants(docs, groups, nonInstanced, outDir)
	})
	if err != nil {
		return report_, err
	}

	err = p.timer.Stage("report", func() error {
		return report.WriteCSV(filepath.Join(outDir, "instancing_analysis.csv"), report_)
	})
	if err != nil {
		return report_, err
	}

	p.log.Info("run complete",
		zap.Int("instanced_groups", report_.InstancedGroups),
		zap.Int("non_instanced_meshes", report_.NonInstancedMeshes),
		zap.Float64("node_reduction_pct", report_.NodeReductionPercent()),
	)
	return report_, nil
}

// assembleVariants builds Variant A (instanced-only) and Variant B
// (non-instanced-only) into one combined or two separate documents
// depending on cfg.MergeAllGLB, plus Variant C per-mesh segments when
// cfg.MeshSegmentation is set.
func (p *pipeline) assembleVariants(docs assemble.DocumentSet, groups []*model.InstanceGroup, nonInstanced []model.NonInstancedMesh, outDir string) error {
	if p.cfg.MergeAllGLB {
		if err := p.assembleCombined(docs, groups, nonInstanced, outDir); err != nil {
			return err
		}
	} else {
		if err := p.assembleInstanced(docs, groups, outDir); err != nil {
			return err
		}
		if err := p.assembleNonInstanced(docs, nonInstanced, outDir); err != nil {
			return err
		}
	}
	if p.cfg.MeshSegmentation {
		return p.assembleSegmented(docs, groups, nonInstanced, outDir)
	}
	return nil
}

func (p *pipeline) assembleCombined(docs assemble.DocumentSet, groups []*model.InstanceGroup, nonInstanced []model.NonInstancedMesh, outDir string) error {
	b := assemble.NewBuilder(docs)
	b.InitBuffer()

	meshIndices := make([]int, len(groups))
	for i, g := range groups {
		idx, err := b.CopyGroup(g)
		if err != nil {
			p.log.Error("degraded: could not copy instance group", zap.Error(err))
			meshIndices[i] = -1
			continue
		}
		meshIndices[i] = idx
	}
	nimMeshIndices := make([]int, len(nonInstanced))
	for i, nim := range nonInstanced {
		idx, err := b.CopyNonInstancedMesh(nim)
		if err != nil {
			p.log.Error("degraded: could not copy non-instanced mesh", zap.Error(err))
			nimMeshIndices[i] = -1
			continue
		}
		nimMeshIndices[i] = idx
	}
	b.FinishGroupCopy()

	for i, g := range groups {
		if meshIndices[i] < 0 {
			continue
		}
		if _, err := b.AddInstancedNode(meshIndices[i], g); err != nil {
			return fmt.Errorf("adding instanced node: %w", err)
		}
	}
	for i, nim := range nonInstanced {
		if nimMeshIndices[i] < 0 {
			continue
		}
		if _, err := b.AddPlainNode(nimMeshIndices[i], nim); err != nil {
			return fmt.Errorf("adding plain node: %w", err)
		}
	}
	b.FinishNodes()
	b.BuildScene()
	b.FinalizeBuffer()

	if err := b.WriteGLB(filepath.Join(outDir, "combined.glb")); err != nil {
		return err
	}
	return tileset.WriteManifest(filepath.Join(outDir, "combined.tileset.json"), tileset.FromBBox(b.RootBoundingBox()), "combined.glb")
}

func (p *pipeline) assembleInstanced(docs assemble.DocumentSet, groups []*model.InstanceGroup, outDir string) error {
	if len(groups) == 0 {
		return nil
	}
	b := assemble.NewBuilder(docs)
	b.InitBuffer()

	meshIndices := make([]int, len(groups))
	for i, g := range groups {
		idx, err := b.CopyGroup(g)
		if err != nil {
			p.log.Error("degraded: could not copy instance group", zap.Error(err))
			meshIndices[i] = -1
			continue
		}
		meshIndices[i] = idx
	}
	b.FinishGroupCopy()
	for i, g := range groups {
		if meshIndices[i] < 0 {
			continue
		}
		if _, err := b.AddInstancedNode(meshIndices[i], g); err != nil {
			return fmt.Errorf("adding instanced node: %w", err)
		}
	}
	b.FinishNodes()
	b.BuildScene()
	b.FinalizeBuffer()

	if err := b.WriteGLB(filepath.Join(outDir, "instanced.glb")); err != nil {
		return err
	}
	return tileset.WriteManifest(filepath.Join(outDir, "instanced.tileset.json"), tileset.FromBBox(b.RootBoundingBox()), "instanced.glb")
}

func (p *pipeline) assembleNonInstanced(docs assemble.DocumentSet, nonInstanced []model.NonInstancedMesh, outDir string) error {
	if len(nonInstanced) == 0 {
		return nil
	}
	b := assemble.NewBuilder(docs)
	b.InitBuffer()

	meshIndices := make([]int, len(nonInstanced))
	for i, nim := range nonInstanced {
		idx, err := b.CopyNonInstancedMesh(nim)
		if err != nil {
			p.log.Error("degraded: could not copy non-instanced mesh", zap.Error(err))
			meshIndices[i] = -1
			continue
		}
		meshIndices[i] = idx
	}
	b.FinishGroupCopy()
	for i, nim := range nonInstanced {
		if meshIndices[i] < 0 {
			continue
		}
		if _, err := b.AddPlainNode(meshIndices[i], nim); err != nil {
			return fmt.Errorf("adding plain node: %w", err)
		}
	}
	b.FinishNodes()
	b.BuildScene()
	b.FinalizeBuffer()

	if err := b.WriteGLB(filepath.Join(outDir, "non_instanced.glb")); err != nil {
		return err
	}
	return tileset.WriteManifest(filepath.Join(outDir, "non_instanced.tileset.json"), tileset.FromBBox(b.RootBoundingBox()), "non_instanced.glb")
}

// assembleSegmented builds Variant C: one GLB per surviving instance group
// (carrying its EXT_mesh_gpu_instancing node) and one GLB per
// non-instanced entry (a single node at that entry's world transform).
// Outputs are not keyed by source mesh: two non-instanced entries that
// share a source mesh get separate files.
func (p *pipeline) assembleSegmented(docs assemble.DocumentSet, groups []*model.InstanceGroup, nonInstanced []model.NonInstancedMesh, outDir string) error {
	for i, g := range groups {
		b := assemble.NewBuilder(docs)
		b.InitBuffer()
		meshIdx, err := b.CopyGroup(g)
		if err != nil {
			p.log.Error("degraded: segment skipped for instance group", zap.Error(err))
			continue
		}
		b.FinishGroupCopy()
		if _, err := b.AddInstancedNode(meshIdx, g); err != nil {
			return fmt.Errorf("adding instanced node to segment: %w", err)
		}
		b.FinishNodes()
		b.BuildScene()
		b.FinalizeBuffer()
		name := fmt.Sprintf("segment_group_%03d.glb", i)
		if err := b.WriteGLB(filepath.Join(outDir, name)); err != nil {
			return err
		}
		manifestName := fmt.Sprintf("segment_group_%03d.tileset.json", i)
		if err := tileset.WriteManifest(filepath.Join(outDir, manifestName), tileset.FromBBox(b.RootBoundingBox()), name); err != nil {
			return err
		}
	}
	for i, nim := range nonInstanced {
		b := assemble.NewBuilder(docs)
		b.InitBuffer()
		meshIdx, err := b.CopyNonInstancedMesh(nim)
		if err != nil {
			p.log.Error("degraded: segment skipped for non-instanced mesh", zap.Error(err))
			continue
		}
		b.FinishGroupCopy()
		if _, err := b.AddPlainNode(meshIdx, nim); err != nil {
			return fmt.Errorf("adding plain node to segment: %w", err)
		}
		b.FinishNodes()
		b.BuildScene()
		b.FinalizeBuffer()
		name := fmt.Sprintf("segment_mesh_%03d.glb", i)
		if err := b.WriteGLB(filepath.Join(outDir, name)); err != nil {
			return err
		}
		manifestName := fmt.Sprintf("segment_mesh_%03d.tileset.json", i)
		if err := tileset.WriteManifest(filepath.Join(outDir, manifestName), tileset.FromBBox(b.RootBoundingBox()), name); err != nil {
			return err
		}
	}
	return nil
}
