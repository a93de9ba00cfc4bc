// Package archive provides durable storage backends for call-record
// batches. The gateway never reads these; they exist for offline
// auditing of provider usage.
package archive

import "context"

// Storage is a write-mostly blob store for archived call records.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)
}
