// Package testutil provides shared test fixtures: sample layered documents,
// output stores and a renderer stand-in that copies its input.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/layerexport/internal/storage"
)

// LayeredSVG has nested layers A/B/{C,D}, a skip-prefixed layer under A,
// a top-level layer E holding a clone of the circle in C, and unlabeled
// background content.
const LayeredSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:inkscape="http://www.inkscape.org/namespaces/inkscape" width="100" height="100" viewBox="0 0 100 100">
  <defs id="defs1">
    <linearGradient id="grad1"/>
  </defs>
  <rect id="background" width="100" height="100" fill="#fff"/>
  <g id="layerA" inkscape:groupmode="layer" inkscape:label="A" transform="translate(10,0)">
    <g id="layerB" inkscape:groupmode="layer" inkscape:label="B" transform="translate(0,5)">
      <g id="layerC" inkscape:groupmode="layer" inkscape:label="C">
        <circle id="dot" cx="5" cy="5" r="2"/>
      </g>
      <g id="layerD" inkscape:groupmode="layer" inkscape:label="D" style="display:none">
        <rect id="box" width="4" height="4"/>
      </g>
    </g>
    <g id="layerDraft" inkscape:groupmode="layer" inkscape:label="_draft">
      <rect id="draft" width="1" height="1"/>
    </g>
  </g>
  <g id="layerE" inkscape:groupmode="layer" inkscape:label="E">
    <use id="cloneOfDot" xlink:href="#dot" transform="translate(50,50)"/>
  </g>
</svg>
`

// CloneChainSVG has a chain of clones u1 -> u2 -> u3 -> rect.
const CloneChainSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:inkscape="http://www.inkscape.org/namespaces/inkscape">
  <g id="layerSrc" inkscape:groupmode="layer" inkscape:label="Source">
    <rect id="concrete" width="3" height="3" transform="scale(2)"/>
  </g>
  <g id="layerClones" inkscape:groupmode="layer" inkscape:label="Clones">
    <use id="u1" xlink:href="#u2" transform="translate(1,1)"/>
    <use id="u2" xlink:href="#u3"/>
    <use id="u3" href="#concrete" style="opacity:0"/>
  </g>
</svg>
`

// WriteFile writes content under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// TestStore creates a temporary output root with a storage.Provider.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// Call records one renderer invocation.
type Call struct {
	Prefix []string
	Output string
	Input  string
}

// CopyRunner stands in for the renderer: it copies the artifact it is given
// to the requested output path.
type CopyRunner struct {
	mu    sync.Mutex
	calls []Call
}

// Run copies input to output.
func (r *CopyRunner) Run(_ context.Context, prefix []string, output, input string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	r.mu.Lock()
	r.calls = append(r.calls, Call{Prefix: prefix, Output: output, Input: input})
	r.mu.Unlock()
	return nil
}

// Calls returns the recorded invocations.
func (r *CopyRunner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
