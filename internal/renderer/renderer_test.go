package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/layerexport/internal/apperr"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults",
			opts: Options{ExportType: "png"},
			want: []string{"inkscape", "--vacuum-defs", "--export-area-page"},
		},
		{
			name: "plain svg",
			opts: Options{Binary: "/opt/inkscape", ExportType: "svg", PlainSVG: true, AreaType: AreaDrawing},
			want: []string{"/opt/inkscape", "--vacuum-defs", "--export-plain-svg", "--export-area-drawing"},
		},
		{
			name: "plain flag ignored for png",
			opts: Options{ExportType: "png", PlainSVG: true},
			want: []string{"inkscape", "--vacuum-defs", "--export-area-page"},
		},
		{
			name: "pdf custom area dpi",
			opts: Options{ExportType: "pdf", PDFVersion: "1.4", AreaType: AreaCustom, AreaSize: "0:0:50:60", ResolutionType: ResolutionDPI, DPI: 300},
			want: []string{"inkscape", "--vacuum-defs", "--export-pdf-version=1.4", "--export-area=0:0:50:60", "--export-dpi=300"},
		},
		{
			name: "size",
			opts: Options{ExportType: "png", ResolutionType: ResolutionSize, Width: 64, Height: 32},
			want: []string{"inkscape", "--vacuum-defs", "--export-area-page", "--export-width=64", "--export-height=32"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Command(tt.opts))
		})
	}
}

func TestArgsDoesNotAliasPrefix(t *testing.T) {
	prefix := make([]string, 2, 8)
	prefix[0], prefix[1] = "inkscape", "--vacuum-defs"

	a := Args(prefix, "a.png", "a.svg")
	b := Args(prefix, "b.png", "b.svg")
	assert.Equal(t, []string{"inkscape", "--vacuum-defs", "--export-filename=a.png", "a.svg"}, a)
	assert.Equal(t, []string{"inkscape", "--vacuum-defs", "--export-filename=b.png", "b.svg"}, b)
}

// helperPrefix re-executes the test binary as a fake renderer.
func helperPrefix(t *testing.T, mode string) []string {
	t.Helper()
	t.Setenv("LAYEREXPORT_HELPER_PROCESS", "1")
	return []string{os.Args[0], "-test.run=TestHelperProcess", "--", mode}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("LAYEREXPORT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 4 {
		fmt.Fprintln(os.Stderr, "helper: missing arguments")
		os.Exit(2)
	}
	mode, output, input := args[1], strings.TrimPrefix(args[2], "--export-filename="), args[3]

	switch mode {
	case "copy":
		data, err := os.ReadFile(input)
		if err != nil {
			os.Exit(3)
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			os.Exit(4)
		}
	case "sleep":
		time.Sleep(30 * time.Second)
	case "fail":
		os.Exit(1)
	}
	os.Exit(0)
}

func testRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout, Logger: slog.New(slog.DiscardHandler)}
}

func TestExecRunnerCopies(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.svg")
	out := filepath.Join(dir, "out.svg")
	require.NoError(t, os.WriteFile(in, []byte("<svg/>"), 0o644))

	err := testRunner(10*time.Second).Run(context.Background(), helperPrefix(t, "copy"), out, in)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
}

func TestExecRunnerTimeout(t *testing.T) {
	dir := t.TempDir()

	start := time.Now()
	err := testRunner(200*time.Millisecond).Run(context.Background(), helperPrefix(t, "sleep"),
		filepath.Join(dir, "out.png"), filepath.Join(dir, "in.svg"))
	require.ErrorIs(t, err, apperr.ErrRendererTimeout)
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestExecRunnerNonZeroExitIsNotFatal(t *testing.T) {
	dir := t.TempDir()

	err := testRunner(10*time.Second).Run(context.Background(), helperPrefix(t, "fail"),
		filepath.Join(dir, "out.png"), filepath.Join(dir, "in.svg"))
	assert.NoError(t, err)
}

func TestExecRunnerLaunchFailure(t *testing.T) {
	dir := t.TempDir()
	prefix := []string{filepath.Join(dir, "no-such-renderer")}

	err := testRunner(time.Second).Run(context.Background(), prefix,
		filepath.Join(dir, "out.png"), filepath.Join(dir, "in.svg"))
	require.ErrorIs(t, err, apperr.ErrRendererLaunch)
	assert.Contains(t, err.Error(), "no-such-renderer")

	err = testRunner(time.Second).Run(context.Background(), nil, "out.png", "in.svg")
	assert.ErrorIs(t, err, apperr.ErrRendererLaunch)
}

func TestExecRunnerParentCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	err := testRunner(10*time.Second).Run(ctx, helperPrefix(t, "sleep"),
		filepath.Join(dir, "out.png"), filepath.Join(dir, "in.svg"))
	assert.ErrorIs(t, err, context.Canceled)
}
