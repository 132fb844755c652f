// Package pipeline wires the export stages together: clone resolution,
// layer filtering, planning, scheduling and the manifest.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/starford/layerexport/internal/checksum"
	"github.com/starford/layerexport/internal/clones"
	"github.com/starford/layerexport/internal/exportdoc"
	"github.com/starford/layerexport/internal/layers"
	"github.com/starford/layerexport/internal/manifest"
	"github.com/starford/layerexport/internal/plan"
	"github.com/starford/layerexport/internal/renderer"
	"github.com/starford/layerexport/internal/scheduler"
	"github.com/starford/layerexport/internal/storage"
	"github.com/starford/layerexport/internal/svgdoc"
)

// Options is the flat configuration record the pipeline runs on.
type Options struct {
	Renderer renderer.Options
	// Plan.OutputRoot is ignored; the store's root is used instead.
	Plan plan.Options

	PreserveClones    bool
	SkipHidden        bool
	SkipPrefix        string
	Mode              layers.Mode
	IgnorePrefix      string
	ForceChildVisible bool
	Manifest          bool

	Workers   int
	ChunkSize int
	TempDir   string
}

// Hook observes finished runs, successful or not.
type Hook interface {
	AfterRun(ctx context.Context, r *Report) error
}

// Pipeline runs exports with a fixed configuration.
type Pipeline struct {
	opts    Options
	command []string
	runner  renderer.Runner
	logger  *slog.Logger
	hooks   []Hook
}

// New creates a Pipeline. The renderer command prefix is computed here once.
func New(opts Options, runner renderer.Runner, logger *slog.Logger, hooks ...Hook) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		opts:    opts,
		command: renderer.Command(opts.Renderer),
		runner:  runner,
		logger:  logger,
		hooks:   hooks,
	}
}

// Command returns the renderer command prefix shared by every layer.
func (p *Pipeline) Command() []string {
	return append([]string(nil), p.command...)
}

// Prepared is the result of the plan-time stages. Nothing has been written
// yet when it is returned.
type Prepared struct {
	Working  *svgdoc.Document
	Selected []layers.Selected
	Plan     *plan.Plan
	Pruned   int
	Clones   clones.Stats
}

// Prepare copies src and runs every stage up to and including the plan.
// src is not modified. All plan-time errors surface here.
func (p *Pipeline) Prepare(src *svgdoc.Document, store storage.Provider) (*Prepared, error) {
	working := src.Copy()

	stats, err := clones.Resolve(working, p.opts.PreserveClones, p.logger)
	if err != nil {
		return nil, err
	}
	pruned := layers.Prune(working, p.opts.SkipHidden, p.opts.SkipPrefix, p.logger)
	selected := layers.Select(working, p.opts.Mode, p.opts.IgnorePrefix)

	planOpts := p.opts.Plan
	planOpts.OutputRoot = store.Root()
	pl, err := plan.Build(selected, planOpts, store)
	if err != nil {
		return nil, err
	}

	p.logger.Info("pipeline: planned",
		slog.Int("clones", stats.Found),
		slog.Int("pruned", pruned),
		slog.Int("selected", len(selected)),
		slog.Int("entries", pl.Len()))
	return &Prepared{
		Working:  working,
		Selected: selected,
		Plan:     pl,
		Pruned:   pruned,
		Clones:   stats,
	}, nil
}

// Describe lists the layers that remain after clone resolution and pruning,
// marking the ones that would be exported. src is not modified.
func (p *Pipeline) Describe(src *svgdoc.Document) ([]layers.Info, error) {
	working := src.Copy()
	if _, err := clones.Resolve(working, p.opts.PreserveClones, p.logger); err != nil {
		return nil, err
	}
	layers.Prune(working, p.opts.SkipHidden, p.opts.SkipPrefix, p.logger)
	return layers.Describe(working, p.opts.Mode, p.opts.IgnorePrefix), nil
}

// Export renders every plan entry and, if enabled, writes the manifest.
// It returns the manifest path relative to the output root, or "".
func (p *Pipeline) Export(ctx context.Context, prep *Prepared, store storage.Provider) (string, error) {
	s := &scheduler.Scheduler{
		Runner:            p.runner,
		Command:           p.command,
		Store:             store,
		Workers:           p.opts.Workers,
		ChunkSize:         p.opts.ChunkSize,
		ForceChildVisible: p.opts.ForceChildVisible,
		TempDir:           p.opts.TempDir,
		Logger:            p.logger,
	}
	if err := s.Run(ctx, exportdoc.NewBase(prep.Working), prep.Plan); err != nil {
		return "", err
	}
	if !p.opts.Manifest {
		return "", nil
	}
	if err := manifest.Write(store, manifest.Build(prep.Plan)); err != nil {
		return "", err
	}
	return manifest.FileName, nil
}

// Report describes one run.
type Report struct {
	RunID          string
	Source         string
	SourceChecksum string
	OutputRoot     string
	StartedAt      time.Time
	FinishedAt     time.Time
	// Plan is nil when the run failed before planning finished.
	Plan         *plan.Plan
	ManifestPath string
	Err          error
}

// Exported returns the number of plan entries of a successful run.
func (r *Report) Exported() int {
	if r.Err != nil || r.Plan == nil {
		return 0
	}
	return r.Plan.Len()
}

// Run exports sourcePath into store and notifies the hooks. The returned
// report is never nil; its Err matches the returned error.
func (p *Pipeline) Run(ctx context.Context, sourcePath string, store storage.Provider) (*Report, error) {
	r := &Report{
		RunID:      uuid.NewString(),
		Source:     sourcePath,
		OutputRoot: store.Root(),
		StartedAt:  time.Now().UTC(),
	}
	logger := p.logger.With(slog.String("run_id", r.RunID))
	logger.Info("pipeline: run started", slog.String("source", sourcePath), slog.String("output", r.OutputRoot))

	r.Err = p.run(ctx, r, store)
	r.FinishedAt = time.Now().UTC()

	for _, h := range p.hooks {
		if err := h.AfterRun(ctx, r); err != nil {
			logger.Warn("pipeline: hook failed", slog.String("error", err.Error()))
			if r.Err == nil {
				r.Err = err
			}
		}
	}

	if r.Err != nil {
		logger.Error("pipeline: run failed", slog.String("error", r.Err.Error()))
		return r, r.Err
	}
	logger.Info("pipeline: run finished",
		slog.Int("exported", r.Exported()),
		slog.Duration("took", r.FinishedAt.Sub(r.StartedAt)))
	return r, nil
}

func (p *Pipeline) run(ctx context.Context, r *Report, store storage.Provider) error {
	data, err := os.ReadFile(r.Source)
	if err != nil {
		return fmt.Errorf("pipeline: read source: %w", err)
	}
	r.SourceChecksum = checksum.Sum(data)

	src, err := svgdoc.Parse(data)
	if err != nil {
		return err
	}
	prep, err := p.Prepare(src, store)
	if err != nil {
		return err
	}
	r.Plan = prep.Plan

	r.ManifestPath, err = p.Export(ctx, prep, store)
	return err
}
