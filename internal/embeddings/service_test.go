package embeddings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/embeddings"
	"github.com/fyrsmithlabs/docsd/internal/processor"
)

// fakeProvider records batch sizes and returns per-text marker vectors.
type fakeProvider struct {
	batchSizes []int
	failAfter  int // fail on the Nth EmbedDocuments call, 0 = never
	calls      int
	short      bool // return one vector too few
}

func (p *fakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls++
	p.batchSizes = append(p.batchSizes, len(texts))
	if p.failAfter > 0 && p.calls >= p.failAfter {
		return nil, errors.New("provider unavailable")
	}
	n := len(texts)
	if p.short {
		n--
	}
	vectors := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		vectors = append(vectors, []float32{float32(len(texts[i]))})
	}
	return vectors, nil
}

func (p *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func (p *fakeProvider) Dimension() int { return 1 }
func (p *fakeProvider) Close() error   { return nil }

var _ embeddings.Provider = (*fakeProvider)(nil)

func TestNewService_RequiresProvider(t *testing.T) {
	_, err := embeddings.NewService(nil, 8, zap.NewNop())
	assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}

func TestEmbedDocuments_SubBatches(t *testing.T) {
	provider := &fakeProvider{}
	svc, err := embeddings.NewService(provider, 3, zap.NewNop())
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "g"}
	vectors, err := svc.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 1}, provider.batchSizes)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector order must follow input order")
	}
}

func TestEmbedDocuments_Empty(t *testing.T) {
	svc, err := embeddings.NewService(&fakeProvider{}, 3, nil)
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
}

func TestEmbedDocuments_BatchFailureAborts(t *testing.T) {
	provider := &fakeProvider{failAfter: 2}
	svc, err := embeddings.NewService(provider, 2, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 2")
	assert.Equal(t, 2, provider.calls)
}

func TestEmbedDocuments_LengthMismatch(t *testing.T) {
	svc, err := embeddings.NewService(&fakeProvider{short: true}, 4, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
}

func TestEmbedChunks_AttachesByPosition(t *testing.T) {
	svc, err := embeddings.NewService(&fakeProvider{}, 2, zap.NewNop())
	require.NoError(t, err)

	chunks := []processor.Chunk{
		{ID: "c1", Text: "a"},
		{ID: "c2", Text: "bbb"},
		{ID: "c3", Text: "ccccc"},
	}
	embedded, err := svc.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, embedded, 3)

	for i, e := range embedded {
		assert.Equal(t, chunks[i].ID, e.ID)
		assert.Equal(t, float32(len(chunks[i].Text)), e.Embedding[0])
	}
}

func TestEmbedChunks_Empty(t *testing.T) {
	svc, err := embeddings.NewService(&fakeProvider{}, 2, nil)
	require.NoError(t, err)

	_, err = svc.EmbedChunks(context.Background(), nil)
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
}

func TestEmbedQuery(t *testing.T) {
	svc, err := embeddings.NewService(&fakeProvider{}, 2, nil)
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "grid")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, vector)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := embeddings.NewProvider(embeddings.ProviderConfig{Provider: "cohere"})
	assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}

func TestService_Dimension(t *testing.T) {
	svc, err := embeddings.NewService(&fakeProvider{}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Dimension())
}
