// Package storage defines the output-root file-system abstraction.
package storage

// Provider is the interface for output file operations. Paths are relative
// to the output root unless stated otherwise.
type Provider interface {
	// Root returns the absolute output root.
	Root() string
	// Resolve returns the absolute path for rel, rejecting paths that
	// escape the root.
	Resolve(rel string) (string, error)
	// Exists reports whether rel exists.
	Exists(rel string) (bool, error)
	// MkdirAll creates the directory rel and its parents.
	MkdirAll(rel string) error
	// Read returns the raw bytes of rel.
	Read(rel string) ([]byte, error)
	// Write atomically writes content to rel.
	Write(rel string, content []byte) error
}
