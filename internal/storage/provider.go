// Package storage defines the data-directory abstraction for JSON snapshots.
package storage

import "github.com/starford/interlink/internal/models"

// Provider is the interface for snapshot file operations.
type Provider interface {
	// List returns metadata for every .json file under dir (relative to the data root).
	List(dir string) ([]models.SnapshotMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
