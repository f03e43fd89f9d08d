package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrIndexNotFound is returned by index operations against an index that has
// not been created.
var ErrIndexNotFound = errors.New("index not found")

// IndexFilter narrows index operations to one datasource and optionally one
// connection. An empty ConnectionID matches chunks without a connection.
type IndexFilter struct {
	Datasource   string
	ConnectionID string
}

// IndexStore is the vector search index the pipeline writes into. The store
// is consumed, not owned; EnsureIndex tolerates concurrent creation.
type IndexStore interface {
	// EnsureIndex creates the index when missing.
	EnsureIndex(ctx context.Context, name string) error

	// BulkInsert stores the chunks in the index.
	BulkInsert(ctx context.Context, name string, chunks []*models.Chunk) error

	// DeleteByKey removes all chunks whose metadata keyField equals value,
	// narrowed by the filter. Returns ErrIndexNotFound when the index does
	// not exist.
	DeleteByKey(ctx context.Context, name string, keyField, value string, filter IndexFilter) error

	// ScrollKeys streams the distinct keyField values of chunks matching
	// the filter.
	ScrollKeys(ctx context.Context, name string, keyField string, filter IndexFilter, fn func(value string) error) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Embedder turns chunk texts into embedding vectors, one per input.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}
