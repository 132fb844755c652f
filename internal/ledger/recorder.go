package ledger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/layerexport/internal/checksum"
	"github.com/starford/layerexport/internal/pipeline"
	"github.com/starford/layerexport/internal/storage"
)

// Recorder is a pipeline hook that writes every finished run to a Ledger.
type Recorder struct {
	Ledger Ledger
	Store  storage.Provider
	Logger *slog.Logger
}

var _ pipeline.Hook = (*Recorder)(nil)

// AfterRun records r. Outputs are checksummed from the store; an output
// the renderer did not produce is recorded with an empty checksum.
func (rec *Recorder) AfterRun(_ context.Context, r *pipeline.Report) error {
	run := RunRow{
		ID:             r.RunID,
		Source:         r.Source,
		SourceChecksum: r.SourceChecksum,
		OutputRoot:     r.OutputRoot,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Status:         StatusOK,
	}
	if r.Err != nil {
		run.Status = StatusFailed
		run.Error = r.Err.Error()
	}

	var outputs []OutputRow
	if r.Err == nil && r.Plan != nil {
		outputs = make([]OutputRow, 0, r.Plan.Len())
		for _, e := range r.Plan.Entries() {
			o := OutputRow{
				RunID:     r.RunID,
				Path:      e.Rel,
				Hierarchy: strings.Join(e.Hierarchy, "/"),
				Order:     e.Order,
			}
			if sum, err := rec.checksum(e.Rel); err == nil {
				o.Checksum = sum
			} else {
				rec.logger().Debug("ledger: output missing", slog.String("path", e.Rel))
			}
			outputs = append(outputs, o)
		}
	}

	if err := rec.Ledger.RecordRun(run, outputs); err != nil {
		return err
	}
	rec.logger().Debug("ledger: recorded",
		slog.String("run_id", run.ID),
		slog.String("status", run.Status),
		slog.Int("outputs", len(outputs)))
	return nil
}

func (rec *Recorder) checksum(rel string) (string, error) {
	abs, err := rec.Store.Resolve(rel)
	if err != nil {
		return "", err
	}
	return checksum.File(abs)
}

func (rec *Recorder) logger() *slog.Logger {
	if rec.Logger != nil {
		return rec.Logger
	}
	return slog.Default()
}
