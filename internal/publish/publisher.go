package publish

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/starford/layerexport/internal/pipeline"
	"github.com/starford/layerexport/internal/storage"
)

// Publisher is a pipeline hook that uploads the outputs and manifest of
// every successful run under <prefix>/<run id>/.
type Publisher struct {
	Bucket Bucket
	Store  storage.Provider
	Prefix string
	Logger *slog.Logger
}

var _ pipeline.Hook = (*Publisher)(nil)

// AfterRun uploads r's files. Failed runs are skipped. An output the
// renderer did not produce is skipped with a warning.
func (p *Publisher) AfterRun(ctx context.Context, r *pipeline.Report) error {
	if r.Err != nil || r.Plan == nil {
		return nil
	}
	logger := p.logger()

	rels := make([]string, 0, r.Plan.Len()+1)
	for _, e := range r.Plan.Entries() {
		rels = append(rels, e.Rel)
	}
	if r.ManifestPath != "" {
		rels = append(rels, r.ManifestPath)
	}

	uploaded := 0
	for _, rel := range rels {
		data, err := p.Store.Read(rel)
		if err != nil {
			logger.Warn("publish: output missing", slog.String("path", rel))
			continue
		}
		key := ObjectKey(p.Prefix, r.RunID, rel)
		if err := p.Bucket.Put(ctx, key, data, mime.TypeByExtension(path.Ext(rel))); err != nil {
			return fmt.Errorf("publish: run %s: %w", r.RunID, err)
		}
		uploaded++
	}
	logger.Info("publish: uploaded", slog.String("run_id", r.RunID), slog.Int("objects", uploaded))
	return nil
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// ObjectKey joins prefix, run id and a slash-separated relative path.
func ObjectKey(prefix, runID, rel string) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, runID, strings.TrimLeft(rel, "/"))
	return strings.Join(parts, "/")
}
