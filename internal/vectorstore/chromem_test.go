package vectorstore_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/processor"
	"github.com/fyrsmithlabs/docsd/internal/vectorstore"
)

// hashEmbedder returns deterministic normalized vectors for testing.
type hashEmbedder struct {
	vectorSize int
}

func (e *hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.makeEmbedding(text)
	}
	return vectors, nil
}

func (e *hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.makeEmbedding(text), nil
}

func (e *hashEmbedder) Dimension() int {
	return e.vectorSize
}

func (e *hashEmbedder) makeEmbedding(text string) []float32 {
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	embedding := make([]float32, e.vectorSize)
	var sumSq float64
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += float64(embedding[i]) * float64(embedding[i])
	}
	if sumSq > 0 {
		norm := float32(1 / math.Sqrt(sumSq))
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func newTestChromemStore(t *testing.T) (*vectorstore.ChromemStore, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       dir,
		Collection: "test_chunks",
		VectorSize: 8,
	}, &hashEmbedder{vectorSize: 8}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	return store, dir
}

func testChunk(id, path, version, text string, index, total int, tags ...string) processor.Chunk {
	return processor.Chunk{
		ID:   id,
		Text: text,
		Metadata: processor.ChunkMetadata{
			DocumentPath: path,
			Tags:         tags,
			Product:      "grid",
			Framework:    "react",
			Type:         "guide",
			ChunkIndex:   index,
			TotalChunks:  total,
			Version:      version,
		},
	}
}

func seedChunks(t *testing.T, store vectorstore.Store) {
	t.Helper()
	chunks := []processor.Chunk{
		testChunk("c1", "guides/grid/columns.md", "1.0.0", "resizing grid columns", 0, 2, "grid", "react", "1.0.0"),
		testChunk("c2", "guides/grid/columns.md", "1.0.0", "column width defaults", 1, 2, "grid", "react", "1.0.0"),
		testChunk("c3", "guides/scheduler/events.md", "1.0.0", "scheduler event hooks", 0, 1, "scheduler", "1.0.0"),
		testChunk("c4", "guides/grid/columns.md", "2.0.0", "resizing grid columns", 0, 1, "grid", "react", "2.0.0"),
	}
	require.NoError(t, store.AddDocuments(context.Background(), chunks))
}

func TestChromemConfig_ApplyDefaults(t *testing.T) {
	config := vectorstore.ChromemConfig{}
	config.ApplyDefaults()

	assert.Equal(t, "~/.config/docsd/vectorstore", config.Path)
	assert.Equal(t, "docsd_chunks", config.Collection)
	assert.Equal(t, 384, config.VectorSize)
	assert.InDelta(t, 0.75, config.Alpha, 0.001)
}

func TestNewChromemStore_RequiresEmbedder(t *testing.T) {
	_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir()}, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestChromemStore_RequiresInitialize(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path: t.TempDir(),
	}, &hashEmbedder{vectorSize: 8}, nil)
	require.NoError(t, err)

	_, searchErr := store.Search(context.Background(), "query", 5, nil)
	assert.ErrorIs(t, searchErr, vectorstore.ErrNotInitialized)
}

func TestChromemStore_AddDocuments_Empty(t *testing.T) {
	store, _ := newTestChromemStore(t)
	err := store.AddDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyChunks)
}

func TestChromemStore_SearchFiltersByVersion(t *testing.T) {
	store, _ := newTestChromemStore(t)
	seedChunks(t, store)
	ctx := context.Background()

	results, err := store.Search(ctx, "resizing grid columns", 10, vectorstore.Filter{"version": "1.0.0"})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, result := range results {
		assert.Equal(t, "1.0.0", result.Metadata.Version)
		assert.GreaterOrEqual(t, result.Score, float32(0))
		assert.LessOrEqual(t, result.Score, float32(1))
	}
	// Exact text match should rank first.
	assert.Equal(t, "c1", results[0].ID)
}

func TestChromemStore_SearchEmptyCollection(t *testing.T) {
	store, _ := newTestChromemStore(t)

	results, err := store.Search(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_GetDocument(t *testing.T) {
	store, _ := newTestChromemStore(t)
	seedChunks(t, store)
	ctx := context.Background()

	chunk, err := store.GetDocument(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, "scheduler event hooks", chunk.Text)
	assert.Equal(t, "guides/scheduler/events.md", chunk.Metadata.DocumentPath)
	assert.Equal(t, []string{"scheduler", "1.0.0"}, chunk.Metadata.Tags)

	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestChromemStore_TagsWithSeparatorsRoundTrip(t *testing.T) {
	store, _ := newTestChromemStore(t)
	ctx := context.Background()

	chunk := testChunk("c1", "guides/a,b/doc.md", "1.0.0", "comma tag content", 0, 1,
		"a,b", "1.0.0")
	require.NoError(t, store.AddDocuments(ctx, []processor.Chunk{chunk}))

	got, err := store.GetDocument(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a,b", "1.0.0"}, got.Metadata.Tags)
}

func TestChromemStore_GetDocumentChunks_Ordered(t *testing.T) {
	store, _ := newTestChromemStore(t)
	seedChunks(t, store)

	chunks, err := store.GetDocumentChunks(context.Background(), "guides/grid/columns.md", "1.0.0")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, chunks[1].Metadata.ChunkIndex)

	// Empty version spans all versions of the document.
	all, err := store.GetDocumentChunks(context.Background(), "guides/grid/columns.md", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestChromemStore_VersionCatalog(t *testing.T) {
	store, _ := newTestChromemStore(t)
	seedChunks(t, store)
	ctx := context.Background()

	versions, err := store.GetAllVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, versions)

	latest, err := store.GetLatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", latest)

	tags, err := store.GetAllTags(ctx)
	require.NoError(t, err)
	assert.Contains(t, tags, "grid")
	assert.Contains(t, tags, "scheduler")
	assert.Contains(t, tags, "react")
}

func TestChromemStore_DeleteByVersion(t *testing.T) {
	store, _ := newTestChromemStore(t)
	seedChunks(t, store)
	ctx := context.Background()

	require.NoError(t, store.DeleteByVersion(ctx, "1.0.0"))

	versions, err := store.GetAllVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0.0"}, versions)

	_, err = store.GetDocument(ctx, "c1")
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)

	// Deleting an absent version is a no-op.
	require.NoError(t, store.DeleteByVersion(ctx, "9.9.9"))
}

func TestChromemStore_DeleteDocuments_RequiresFilter(t *testing.T) {
	store, _ := newTestChromemStore(t)

	err := store.DeleteDocuments(context.Background(), vectorstore.Filter{})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
}

func TestChromemStore_ClearAll(t *testing.T) {
	store, _ := newTestChromemStore(t)
	seedChunks(t, store)
	ctx := context.Background()

	require.NoError(t, store.ClearAll(ctx))

	versions, err := store.GetAllVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)

	latest, err := store.GetLatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", latest)
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	open := func() *vectorstore.ChromemStore {
		store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:       dir,
			Collection: "test_chunks",
			VectorSize: 8,
		}, &hashEmbedder{vectorSize: 8}, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, store.Initialize(ctx))
		return store
	}

	store := open()
	seedChunks(t, store)
	require.NoError(t, store.Close())

	reopened := open()
	versions, err := reopened.GetAllVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, versions)

	chunk, err := reopened.GetDocument(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "resizing grid columns", chunk.Text)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, vectorstore.ValidateCollectionName("docsd_chunks"))
	for _, name := range []string{"", "Has-Caps", "../escape", "spaces here"} {
		t.Run(fmt.Sprintf("invalid %q", name), func(t *testing.T) {
			assert.ErrorIs(t, vectorstore.ValidateCollectionName(name), vectorstore.ErrInvalidCollectionName)
		})
	}
}
