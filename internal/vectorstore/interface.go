// Package vectorstore provides vector storage implementations for indexed
// documentation chunks.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/docsd/internal/embeddings"
	"github.com/fyrsmithlabs/docsd/internal/processor"
)

// Sentinel errors for vector store operations.
var (
	ErrInvalidConfig         = errors.New("invalid vector store configuration")
	ErrNotInitialized        = errors.New("vector store not initialized")
	ErrEmptyChunks           = errors.New("chunks cannot be empty")
	ErrNotFound              = errors.New("document not found")
	ErrConnectionFailed      = errors.New("connection to vector store failed")
	ErrInvalidCollectionName = errors.New("invalid collection name")
	ErrInvalidFilter         = errors.New("invalid filter")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Embedder generates vector embeddings for texts and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ChunkEmbedder additionally attaches embeddings to chunks. Stores that
// manage their own vectors consume this.
type ChunkEmbedder interface {
	Embedder
	EmbedChunks(ctx context.Context, chunks []processor.Chunk) ([]embeddings.EmbeddedChunk, error)
}

// SearchResult is one hit from a similarity search. Score is a hybrid
// relevance score in [0, 1], higher is more relevant.
type SearchResult struct {
	ID       string
	Text     string
	Score    float32
	Metadata processor.ChunkMetadata
}

// Store is the interface all vector store backends implement.
//
// AddDocuments takes plain chunks; backends that need caller-side vectors
// embed internally. Version strings order lexicographically everywhere a
// "latest" is derived.
type Store interface {
	// Initialize prepares the backing collection. Must be called before any
	// other operation.
	Initialize(ctx context.Context) error

	// AddDocuments embeds and stores chunks.
	AddDocuments(ctx context.Context, chunks []processor.Chunk) error

	// Search performs hybrid similarity search, returning up to limit
	// results matching the filter, best first.
	Search(ctx context.Context, query string, limit int, filter Filter) ([]SearchResult, error)

	// GetDocument retrieves a single chunk by ID. Returns ErrNotFound when
	// the ID is unknown.
	GetDocument(ctx context.Context, id string) (*processor.Chunk, error)

	// GetDocumentChunks returns all chunks of one document path, ordered by
	// chunk index. An empty version matches every version.
	GetDocumentChunks(ctx context.Context, path, version string) ([]processor.Chunk, error)

	// DeleteDocuments removes all chunks matching the filter. The filter
	// must not be empty.
	DeleteDocuments(ctx context.Context, filter Filter) error

	// DeleteByVersion removes every chunk of one version. Deleting a
	// version that does not exist is a no-op.
	DeleteByVersion(ctx context.Context, version string) error

	// GetAllVersions returns the distinct indexed versions, sorted.
	GetAllVersions(ctx context.Context) ([]string, error)

	// GetLatestVersion returns the lexicographically greatest version, or
	// "" when nothing is indexed.
	GetLatestVersion(ctx context.Context) (string, error)

	// GetAllTags returns the distinct tags across all chunks, sorted.
	GetAllTags(ctx context.Context) ([]string, error)

	// ClearAll removes every chunk from the collection.
	ClearAll(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Store providers.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)
