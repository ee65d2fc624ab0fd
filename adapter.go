// Package memfs contains the domain types used to seed the in-memory filesystem
// with files whose initial content comes from external sources.
package memfs

import (
	"context"
	"io"
	"slices"
)

// ContentAdapter produces the initial content of one file node.
// Instances are 1:1 with a source entry in a [FileCreateRequest].
type ContentAdapter interface {
	// Open returns a reader over the full content. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// AdapterProvider is a factory for concrete [ContentAdapter] implementations
// built from a source's raw JSON config.
// Implementations should handle resource management (connection pooling etc) for its adapters
type AdapterProvider interface {
	NewAdapter(raw []byte) (ContentAdapter, error)
}

// FileSource pairs a ready adapter with its priority
type FileSource struct {
	Type     string // source type key, i.e. "http"
	Adapter  ContentAdapter
	Priority int // Lower number = higher priority
}

// SortSources orders sources by priority, keeping declaration order for ties
func SortSources(sources []FileSource) []FileSource {
	sorted := slices.Clone(sources)
	slices.SortStableFunc(sorted, func(a, b FileSource) int {
		return a.Priority - b.Priority
	})
	return sorted
}
