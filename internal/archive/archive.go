// Package archive defines blob storage for raw page snapshots. The pipeline
// saves each candidate's card HTML keyed by content hash so a notice can be
// re-examined after the portal takes it down. This abstraction keeps the
// crawler independent of the concrete backend (Google Cloud Storage, the
// local filesystem, or an in-memory store for tests).
package archive

import "context"

// BlobStore persists one named object and returns a provider URI for it.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	Save(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// Noop discards every object. Used when archiving is disabled.
type Noop struct{}

// Save does nothing and reports success with an empty URI.
func (Noop) Save(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
