// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/layerexport/internal/ledger"
	"github.com/starford/layerexport/internal/mcpserver"
	"github.com/starford/layerexport/internal/pipeline"
	"github.com/starford/layerexport/internal/publish"
	"github.com/starford/layerexport/internal/renderer"
	"github.com/starford/layerexport/internal/storage"
	"github.com/starford/layerexport/internal/svgdoc"
	"github.com/starford/layerexport/internal/watch"
)

// LogFileName is the log file created inside log.path.
const LogFileName = "layerexport.log"

// environment is everything a command needs, built once from the config.
type environment struct {
	cfg      *Config
	logger   *slog.Logger
	stdout   io.Writer
	store    storage.Provider
	ledger   *ledger.DB
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app, nil
}

// newLogger builds the structured JSON logger. With log.path set, records go
// to <log.path>/layerexport.log, appended unless log.overwrite is set.
func newLogger(cfg LogConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	w := fallback
	var closer io.Closer
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if cfg.Overwrite {
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		}
		f, err := os.OpenFile(filepath.Join(cfg.Path, LogFileName), flags, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.EffectiveLevel(),
	}))
	return logger, closer, nil
}

func setup(app *application) (*environment, error) {
	cfg := app.config

	logger, logCloser, err := newLogger(cfg.Log, app.stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	env := &environment{cfg: cfg, logger: logger, stdout: app.stdout}
	if logCloser != nil {
		env.closers = append(env.closers, logCloser)
	}

	logger.Debug("Configuration loaded",
		slog.String("export_type", cfg.Export.Type),
		slog.String("output", cfg.Export.Path),
		slog.String("selection", cfg.Controls.Selection),
		slog.Int("workers", cfg.Workers.Count),
		slog.String("log_level", cfg.Log.EffectiveLevel().String()))

	// Ensure output directory exists.
	if err := os.MkdirAll(cfg.Export.Path, 0o755); err != nil {
		env.Close()
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Export.Path)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	env.store = store

	runner := app.runner
	if runner == nil {
		exec := &renderer.ExecRunner{Timeout: cfg.Renderer.Timeout, Logger: logger}
		if cfg.Log.Enabled {
			// Stdout may carry the MCP protocol, so both streams go to stderr.
			exec.Stdout, exec.Stderr = os.Stderr, os.Stderr
		}
		runner = exec
	}

	var hooks []pipeline.Hook
	if cfg.Publish.S3.Enabled() {
		s3 := cfg.Publish.S3
		bucket, err := publish.NewS3Bucket(publish.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		hooks = append(hooks, &publish.Publisher{Bucket: bucket, Store: store, Prefix: s3.Prefix, Logger: logger})
	}
	if cfg.Ledger.Path != "" {
		db, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		env.ledger = db
		env.closers = append(env.closers, db)
		hooks = append(hooks, &ledger.Recorder{Ledger: db, Store: store, Logger: logger})
	}

	env.pipeline = pipeline.New(cfg.PipelineOptions(), runner, logger, hooks...)
	return env, nil
}

func requireSource(app *application) error {
	if app.source == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type runResult struct {
	RunID    string `json:"run_id"`
	Exported int    `json:"exported"`
	Output   string `json:"output"`
	Manifest string `json:"manifest,omitempty"`
}

// Run exports every selected layer of the source document once.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if err := requireSource(app); err != nil {
		return err
	}
	env, err := setup(app)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := env.pipeline.Run(ctx, app.source, env.store)
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, runResult{
		RunID:    r.RunID,
		Exported: r.Exported(),
		Output:   r.OutputRoot,
		Manifest: r.ManifestPath,
	})
}

type plannedFile struct {
	Order     int      `json:"order"`
	Hierarchy []string `json:"hierarchy"`
	Path      string   `json:"path"`
}

// Plan prints the output path of every selected layer without rendering.
func Plan(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if err := requireSource(app); err != nil {
		return err
	}
	env, err := setup(app)
	if err != nil {
		return err
	}
	defer env.Close()

	src, err := svgdoc.Load(app.source)
	if err != nil {
		return err
	}
	prep, err := env.pipeline.Prepare(src, env.store)
	if err != nil {
		return err
	}
	out := make([]plannedFile, 0, prep.Plan.Len())
	for _, e := range prep.Plan.Entries() {
		out = append(out, plannedFile{Order: e.Order, Hierarchy: e.Hierarchy, Path: e.Rel})
	}
	return writeJSON(env.stdout, out)
}

// Layers prints every layer that survives pruning and whether it would be
// exported.
func Layers(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if err := requireSource(app); err != nil {
		return err
	}
	env, err := setup(app)
	if err != nil {
		return err
	}
	defer env.Close()

	src, err := svgdoc.Load(app.source)
	if err != nil {
		return err
	}
	infos, err := env.pipeline.Describe(src)
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, infos)
}

// Watch exports the source once and again after every change, until ctx is
// cancelled or a termination signal arrives. Existing outputs are always
// overwritten.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if err := requireSource(app); err != nil {
		return err
	}
	cfg := *app.config
	cfg.Export.Overwrite = true
	app.config = &cfg

	env, err := setup(app)
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.logger

	export := func(ctx context.Context) error {
		_, err := env.pipeline.Run(ctx, app.source, env.store)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := export(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("initial export failed", slog.String("error", err.Error()))
		}
		return watch.Watch(gCtx, app.source, watch.DefaultDebounce, logger, export)
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Watcher stopped")
	return nil
}

// ServeMCP serves the export tools over stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	env, err := setup(app)
	if err != nil {
		return err
	}
	defer env.Close()

	var l ledger.Ledger
	if env.ledger != nil {
		l = env.ledger
	}
	srv, err := mcpserver.New(env.pipeline, env.store, l, env.logger)
	if err != nil {
		return err
	}
	env.logger.Info("MCP server starting", slog.String("output", env.store.Root()))
	return srv.ServeStdio()
}

type historyRow struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Output     string `json:"output"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Outputs    int    `json:"outputs"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// History prints the most recent runs recorded in the ledger.
func History(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if app.config.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is not configured")
	}
	env, err := setup(app)
	if err != nil {
		return err
	}
	defer env.Close()

	limit := app.limit
	if limit <= 0 {
		limit = 20
	}
	runs, err := env.ledger.ListRuns(limit)
	if err != nil {
		return err
	}
	out := make([]historyRow, 0, len(runs))
	for _, r := range runs {
		out = append(out, historyRow{
			ID:         r.ID,
			Source:     r.Source,
			Output:     r.OutputRoot,
			Status:     r.Status,
			Error:      r.Error,
			Outputs:    r.Outputs,
			StartedAt:  r.StartedAt.Format(time.RFC3339),
			FinishedAt: r.FinishedAt.Format(time.RFC3339),
		})
	}
	return writeJSON(env.stdout, out)
}
