// Package scheduler renders every entry of an export plan with a bounded
// pool of workers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/starford/layerexport/internal/exportdoc"
	"github.com/starford/layerexport/internal/plan"
	"github.com/starford/layerexport/internal/renderer"
	"github.com/starford/layerexport/internal/storage"
)

// Scheduler runs the renderer once per plan entry.
type Scheduler struct {
	Runner  renderer.Runner
	Command []string
	Store   storage.Provider

	// Workers bounds the number of concurrent renderer calls.
	Workers int
	// ChunkSize is the number of entries a worker takes at a time.
	ChunkSize         int
	ForceChildVisible bool
	// TempDir holds the transient export documents. Empty means os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// Run exports every entry of p. The first failure stops the batch: entries
// not yet started are skipped and the error is returned. Files already
// written stay in place.
func (s *Scheduler) Run(ctx context.Context, base *exportdoc.Base, p *plan.Plan) error {
	workers := max(s.Workers, 1)
	chunkSize := max(s.ChunkSize, 1)
	logger := s.logger()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, chunk := range chunks(p.Entries(), chunkSize) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, e := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := s.export(gctx, base, e); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("scheduler: batch done", slog.Int("entries", p.Len()), slog.Int("workers", workers))
	return nil
}

// export runs one entry: build, serialise to a private temp file, render,
// clean up.
func (s *Scheduler) export(ctx context.Context, base *exportdoc.Base, e plan.Entry) error {
	doc, err := base.Build(e.Layer, s.ForceChildVisible)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.TempDir, "layerexport-*.svg")
	if err != nil {
		return fmt.Errorf("scheduler: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := doc.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("scheduler: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scheduler: close temp: %w", err)
	}

	if err := s.Store.MkdirAll(path.Dir(e.Rel)); err != nil {
		return err
	}
	if err := s.Runner.Run(ctx, s.Command, e.Path, tmpName); err != nil {
		return err
	}
	s.logger().Debug("scheduler: exported",
		slog.Int("order", e.Order),
		slog.String("path", e.Rel))
	return nil
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func chunks(entries []plan.Entry, size int) [][]plan.Entry {
	var out [][]plan.Entry
	for i := 0; i < len(entries); i += size {
		out = append(out, entries[i:min(i+size, len(entries))])
	}
	return out
}
