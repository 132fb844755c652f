// Package apperr holds the sentinel errors shared across the export pipeline.
// Callers wrap them with context and test with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Plan-time user errors.
	ErrDuplicatePath = errors.New("duplicate output path")
	ErrPathEscape    = errors.New("output path escapes output root")

	// Clone resolution.
	ErrDanglingClone = errors.New("clone references a missing element")
	ErrCloneCycle    = errors.New("clone references itself")

	// Renderer invocation.
	ErrRendererLaunch  = errors.New("renderer could not be launched")
	ErrRendererTimeout = errors.New("renderer timed out")
)
