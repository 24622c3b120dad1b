package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/processor"
)

// EmbeddedChunk is a chunk with its externally computed embedding attached.
// Only stores that require caller-supplied vectors consume this type.
type EmbeddedChunk struct {
	processor.Chunk
	Embedding []float32
}

// Service wraps a Provider with sub-batching and metrics.
//
// Bulk requests are sliced into fixed-size sub-batches, the provider is
// called once per sub-batch, and returned vectors are re-attached to their
// inputs by positional index. A sub-batch failure aborts the whole stream;
// retries, if any, belong to the provider adapter.
type Service struct {
	provider  Provider
	batchSize int
	metrics   *Metrics
	logger    *zap.Logger
}

// NewService creates an embedding service. batchSize defaults to 32.
func NewService(provider Provider, batchSize int, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{
		provider:  provider,
		batchSize: batchSize,
		metrics:   NewMetrics(logger),
		logger:    logger,
	}, nil
}

// EmbedDocuments generates embeddings for texts, one vector per input in
// order, calling the provider once per sub-batch.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.provider.EmbedDocuments(ctx, texts[offset:end])
		if err != nil {
			genErr = fmt.Errorf("embedding batch at offset %d: %w", offset, err)
			return nil, genErr
		}
		if len(batch) != end-offset {
			genErr = fmt.Errorf("%w: provider returned %d vectors for %d texts", ErrEmbeddingFailed, len(batch), end-offset)
			return nil, genErr
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, "embed_query", time.Since(start), 1, genErr)
	}()

	vector, err := s.provider.EmbedQuery(ctx, text)
	if err != nil {
		genErr = err
		return nil, err
	}
	return vector, nil
}

// EmbedChunks embeds chunk texts and re-attaches each vector to its
// originating chunk by positional index.
func (s *Service) EmbedChunks(ctx context.Context, chunks []processor.Chunk) ([]EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: chunks cannot be empty", ErrEmptyInput)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	embedded := make([]EmbeddedChunk, len(chunks))
	for i, chunk := range chunks {
		embedded[i] = EmbeddedChunk{Chunk: chunk, Embedding: vectors[i]}
	}
	return embedded, nil
}

// Dimension returns the provider's embedding dimension.
func (s *Service) Dimension() int {
	return s.provider.Dimension()
}

// Close releases the underlying provider.
func (s *Service) Close() error {
	return s.provider.Close()
}
