package internal

import (
	"io"

	"github.com/starford/layerexport/internal/renderer"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	source string
	stdout io.Writer
	stderr io.Writer
	runner renderer.Runner
	limit  int
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithSource sets the SVG document to work on.
func WithSource(path string) Option {
	return func(a *application) {
		a.source = path
	}
}

// WithStdout sets where command results are printed. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

// WithStderr sets where logs go when no log directory is configured.
// Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(a *application) {
		a.stderr = w
	}
}

// WithRunner replaces the renderer process runner.
func WithRunner(r renderer.Runner) Option {
	return func(a *application) {
		a.runner = r
	}
}

// WithLimit bounds the number of runs History prints.
func WithLimit(n int) Option {
	return func(a *application) {
		a.limit = n
	}
}
