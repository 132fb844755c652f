package ledger

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/layerexport/internal/apperr"
	"github.com/starford/layerexport/internal/layers"
	"github.com/starford/layerexport/internal/pipeline"
	"github.com/starford/layerexport/internal/plan"
	"github.com/starford/layerexport/internal/testutil"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM runs`).Scan(&count); err != nil {
		t.Fatalf("runs table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM outputs`).Scan(&count); err != nil {
		t.Fatalf("outputs table missing: %v", err)
	}
}

func TestRecordAndGetRun(t *testing.T) {
	db := testDB(t)
	start := time.Now().UTC().Truncate(time.Second)
	run := RunRow{
		ID:         "run-1",
		Source:     "drawing.svg",
		OutputRoot: "/out",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Status:     StatusOK,
	}
	outputs := []OutputRow{
		{Path: "b.png", Hierarchy: "A/B", Order: 2, Checksum: "bb"},
		{Path: "a.png", Hierarchy: "A", Order: 1, Checksum: "aa"},
	}
	if err := db.RecordRun(run, outputs); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Outputs != 2 {
		t.Errorf("outputs = %d, want 2", got.Outputs)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, start)
	}

	outs, err := db.Outputs("run-1")
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}
	if len(outs) != 2 || outs[0].Path != "a.png" || outs[1].Hierarchy != "A/B" {
		t.Errorf("unexpected outputs: %+v", outs)
	}
}

func TestRecordRunReplaces(t *testing.T) {
	db := testDB(t)
	run := RunRow{ID: "r", Source: "s", OutputRoot: "/o", StartedAt: time.Now(), FinishedAt: time.Now(), Status: StatusOK}
	_ = db.RecordRun(run, []OutputRow{{Path: "x.png", Hierarchy: "X", Order: 1}})

	run.Status = StatusFailed
	run.Error = "boom"
	if err := db.RecordRun(run, nil); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, err := db.GetRun("r")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "boom" || got.Outputs != 0 {
		t.Errorf("unexpected run: %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetRun("missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := testDB(t)
	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Minute)
		_ = db.RecordRun(RunRow{ID: id, Source: "s", OutputRoot: "/o", StartedAt: at, FinishedAt: at, Status: StatusOK}, nil)
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestRecorderAfterRun(t *testing.T) {
	db := testDB(t)
	root, store := testutil.TestStore(t)
	if err := store.Write("A/C.png", []byte("pixels")); err != nil {
		t.Fatal(err)
	}

	p, err := plan.Build([]layers.Selected{
		{Hierarchy: []string{"A", "C"}},
		{Hierarchy: []string{"E"}},
	}, plan.Options{
		Naming:       plan.Naming{Separator: "/", Strategy: plan.StrategyRight, TopHierarchyFirst: true},
		OutputRoot:   root,
		Extension:    "png",
		Template:     "[HIERARCHY][LAYER_NAME]",
		CounterStart: 1,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := &Recorder{Ledger: db, Store: store, Logger: slog.New(slog.DiscardHandler)}
	report := &pipeline.Report{
		RunID:      "run-ok",
		Source:     "drawing.svg",
		OutputRoot: root,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Plan:       p,
	}
	if err := rec.AfterRun(context.Background(), report); err != nil {
		t.Fatalf("AfterRun: %v", err)
	}

	outs, err := db.Outputs("run-ok")
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outs))
	}
	if outs[0].Checksum == "" {
		t.Error("existing output should be checksummed")
	}
	if outs[1].Checksum != "" {
		t.Error("missing output should have an empty checksum")
	}

	failed := &pipeline.Report{RunID: "run-bad", Source: "x.svg", OutputRoot: root, StartedAt: time.Now(), FinishedAt: time.Now(), Err: os.ErrNotExist}
	if err := rec.AfterRun(context.Background(), failed); err != nil {
		t.Fatalf("AfterRun: %v", err)
	}
	got, err := db.GetRun("run-bad")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("unexpected run: %+v", got)
	}
}
