// Package storage defines the source directory abstraction.
package storage

import "github.com/starford/staffreg/internal/models"

// Provider is the interface for source file operations. Paths are relative
// to the source root.
type Provider interface {
	// List returns metadata for every source file under dir, in lexical path order.
	List(dir string) ([]models.SourceMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Root returns the absolute source root.
	Root() string
	// IsSource reports whether path names a source file by its extension.
	IsSource(path string) bool
}
