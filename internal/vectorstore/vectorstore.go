// Package vectorstore provides interfaces and implementations for vector similarity search.
package vectorstore

import (
	"context"
)

// Point is an embedded evidence unit stored in a namespace collection.
// Upsert/Delete are consumed by the ingestion path, not by retrieval.
type Point struct {
	ID       string
	Vector   []float32
	Text     string
	Source   string
	Section  string
	DocID    string
	Metadata map[string]string
}

// SearchResult represents a similarity match from the vector store
type SearchResult struct {
	ID      string
	Score   float32
	Text    string
	Source  string
	Section string
	DocID   string
}

// VectorStore defines the interface for vector storage operations.
// A collection is an isolated tenant namespace; implementations must never
// merge results across collections.
type VectorStore interface {
	// CreateCollection creates a collection sized for a dimension tier
	CreateCollection(ctx context.Context, collection string, dimension int) error

	// DeleteCollection deletes a namespace's collection
	DeleteCollection(ctx context.Context, collection string) error

	// CollectionExists checks if a collection exists
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Upsert inserts or updates points in a collection
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs similarity search within a single collection
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)

	// DeleteByDocID removes all points belonging to a document
	DeleteByDocID(ctx context.Context, collection string, docID string) error
}
