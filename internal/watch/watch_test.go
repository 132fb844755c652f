package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, path string, fn Action) (cancel func(), done <-chan error) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancelCtx := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- Watch(ctx, path, 50*time.Millisecond, logger, fn) }()
	time.Sleep(100 * time.Millisecond)
	return cancelCtx, ch
}

func TestWatch_BurstRunsOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "drawing.svg")
	if err := os.WriteFile(src, []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	cancel, done := startWatch(t, src, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	defer cancel()

	for range 5 {
		_ = os.WriteFile(src, []byte("<svg><g/></svg>"), 0o644)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "action not run after change")

	time.Sleep(200 * time.Millisecond)
	if n := runs.Load(); n != 1 {
		t.Errorf("runs = %d, want 1 for a single burst", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestWatch_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "drawing.svg")
	if err := os.WriteFile(src, []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	cancel, _ := startWatch(t, src, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	defer cancel()

	_ = os.WriteFile(filepath.Join(dir, "other.svg"), []byte("<svg/>"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Errorf("runs = %d, want 0", n)
	}
}

func TestWatch_ActionErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "drawing.svg")
	if err := os.WriteFile(src, []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	cancel, _ := startWatch(t, src, func(context.Context) error {
		runs.Add(1)
		return errors.New("render failed")
	})
	defer cancel()

	_ = os.WriteFile(src, []byte("<svg>1</svg>"), 0o644)
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool { return runs.Load() == 1 }, "first change not handled")

	_ = os.WriteFile(src, []byte("<svg>2</svg>"), 0o644)
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool { return runs.Load() == 2 }, "second change not handled")
}

func TestWatch_MissingDirectory(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "drawing.svg"), 0, logger, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
