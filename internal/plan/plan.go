// Package plan resolves every selected layer to a unique output path.
// A Plan is built once per run and is read-only afterwards.
package plan

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	"github.com/starford/layerexport/internal/apperr"
	"github.com/starford/layerexport/internal/layers"
)

// Options configures Build.
type Options struct {
	Naming

	OutputRoot   string
	Extension    string
	Template     string
	CounterStart int
	Overwrite    bool
}

// Exister reports whether a path relative to the output root already exists.
// storage.Provider satisfies it.
type Exister interface {
	Exists(rel string) (bool, error)
}

// Entry is one export record.
type Entry struct {
	// Path is the absolute output path.
	Path string
	// Rel is Path relative to the output root, slash separated.
	Rel       string
	Layer     *etree.Element
	Hierarchy []string
	Order     int
}

// Label returns the layer's own label.
func (e Entry) Label() string {
	return e.Hierarchy[len(e.Hierarchy)-1]
}

// Plan maps output paths to export records.
type Plan struct {
	entries []Entry
	byPath  map[string]int
}

// Entries returns the records in counter order. The slice must not be
// modified.
func (p *Plan) Entries() []Entry {
	return p.entries
}

// Len returns the number of records.
func (p *Plan) Len() int {
	return len(p.entries)
}

// Lookup returns the record for an absolute output path.
func (p *Plan) Lookup(path string) (Entry, bool) {
	i, ok := p.byPath[filepath.Clean(path)]
	if !ok {
		return Entry{}, false
	}
	return p.entries[i], true
}

// ConflictError reports an output path that cannot be used. Other is set
// for duplicates and holds the hierarchy that claimed the path first.
type ConflictError struct {
	Path      string
	Hierarchy []string
	Other     []string
	Err       error
}

func (e *ConflictError) Error() string {
	h := strings.Join(e.Hierarchy, "/")
	if e.Other != nil {
		return fmt.Sprintf("plan: layers %q and %q both resolve to %s: %v",
			strings.Join(e.Other, "/"), h, e.Path, e.Err)
	}
	return fmt.Sprintf("plan: layer %q -> %s: %v", h, e.Path, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Build assigns counters and output paths to the selected layers. It fails
// on the first duplicate path, on a path outside the output root and, when
// overwrite is off, on a path that already exists. existing may be nil
// when overwrite is on.
func Build(selected []layers.Selected, opts Options, existing Exister) (*Plan, error) {
	root, err := filepath.Abs(opts.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("plan: resolve output root: %w", err)
	}

	p := &Plan{
		entries: make([]Entry, 0, len(selected)),
		byPath:  make(map[string]int, len(selected)),
	}
	counter := opts.CounterStart
	for _, s := range selected {
		ancestors := s.Hierarchy[:len(s.Hierarchy)-1]
		name := ExpandTemplate(opts.Template, opts.JoinHierarchy(ancestors), s.Label(), counter)

		rel, err := relPath(name, opts.Extension)
		if err != nil {
			return nil, &ConflictError{Path: name, Hierarchy: s.Hierarchy, Err: err}
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))

		if i, dup := p.byPath[abs]; dup {
			return nil, &ConflictError{
				Path:      abs,
				Hierarchy: s.Hierarchy,
				Other:     p.entries[i].Hierarchy,
				Err:       apperr.ErrDuplicatePath,
			}
		}
		if !opts.Overwrite && existing != nil {
			ok, err := existing.Exists(rel)
			if err != nil {
				return nil, fmt.Errorf("plan: check %s: %w", rel, err)
			}
			if ok {
				return nil, &ConflictError{Path: abs, Hierarchy: s.Hierarchy, Err: apperr.ErrAlreadyExists}
			}
		}

		p.byPath[abs] = len(p.entries)
		p.entries = append(p.entries, Entry{
			Path:      abs,
			Rel:       rel,
			Layer:     s.Layer,
			Hierarchy: s.Hierarchy,
			Order:     counter,
		})
		counter++
	}
	return p, nil
}

// relPath turns an expanded template into a clean slash-separated path
// below the output root.
func relPath(name, ext string) (string, error) {
	name = strings.TrimLeft(name, `/\`)
	if ext != "" {
		name += "." + ext
	}
	rel := path.Clean(name)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", apperr.ErrPathEscape
	}
	return rel, nil
}
