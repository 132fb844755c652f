package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/starford/layerexport/internal/apperr"
)

// DefaultTimeout bounds a single renderer call.
const DefaultTimeout = 300 * time.Second

// Runner invokes the renderer once for one layer.
type Runner interface {
	// Run executes prefix followed by the output flag and the input path.
	Run(ctx context.Context, prefix []string, output, input string) error
}

// ExecRunner runs the renderer as a child process.
type ExecRunner struct {
	Timeout time.Duration
	// Stdout and Stderr receive the child's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Args returns the full argument list for one call.
func Args(prefix []string, output, input string) []string {
	args := make([]string, 0, len(prefix)+2)
	args = append(args, prefix...)
	return append(args, "--export-filename="+output, input)
}

// Run starts the renderer and waits for it. Launch failures and timeouts
// are returned as errors; a non-zero exit status is only logged.
func (r *ExecRunner) Run(ctx context.Context, prefix []string, output, input string) error {
	if len(prefix) == 0 {
		return fmt.Errorf("renderer: empty command: %w", apperr.ErrRendererLaunch)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := Args(prefix, output, input)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, args[0], args[1:]...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	logger.Debug("renderer: run", slog.String("command", strings.Join(args, " ")))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("renderer: %s: %w: %v", args[0], apperr.ErrRendererLaunch, err)
	}

	err := cmd.Wait()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("renderer: %s after %s: %w", output, timeout, apperr.ErrRendererTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.Warn("renderer: non-zero exit",
			slog.String("output", output),
			slog.Int("code", exitErr.ExitCode()))
		return nil
	}
	return fmt.Errorf("renderer: wait %s: %w", output, err)
}
