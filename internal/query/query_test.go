package query_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/processor"
	"github.com/fyrsmithlabs/docsd/internal/query"
	"github.com/fyrsmithlabs/docsd/internal/vectorstore"
)

// mockStore serves canned search results and records the search call.
type mockStore struct {
	latest  string
	results []vectorstore.SearchResult

	gotQuery  string
	gotLimit  int
	gotFilter vectorstore.Filter
}

func (m *mockStore) Initialize(ctx context.Context) error { return nil }

func (m *mockStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) error { return nil }

func (m *mockStore) Search(ctx context.Context, q string, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	m.gotQuery = q
	m.gotLimit = limit
	m.gotFilter = filter
	if len(m.results) > limit {
		return m.results[:limit], nil
	}
	return m.results, nil
}

func (m *mockStore) GetDocument(ctx context.Context, id string) (*processor.Chunk, error) {
	return nil, vectorstore.ErrNotFound
}

func (m *mockStore) GetDocumentChunks(ctx context.Context, path, version string) ([]processor.Chunk, error) {
	return nil, nil
}

func (m *mockStore) DeleteDocuments(ctx context.Context, filter vectorstore.Filter) error {
	return nil
}
func (m *mockStore) DeleteByVersion(ctx context.Context, version string) error { return nil }

func (m *mockStore) GetAllVersions(ctx context.Context) ([]string, error) {
	if m.latest == "" {
		return nil, nil
	}
	return []string{m.latest}, nil
}

func (m *mockStore) GetLatestVersion(ctx context.Context) (string, error) { return m.latest, nil }
func (m *mockStore) GetAllTags(ctx context.Context) ([]string, error)     { return nil, nil }
func (m *mockStore) ClearAll(ctx context.Context) error                   { return nil }
func (m *mockStore) Close() error                                         { return nil }

var _ vectorstore.Store = (*mockStore)(nil)

func result(id, version string, score float32, tags ...string) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:    id,
		Text:  "chunk text for " + id,
		Score: score,
		Metadata: processor.ChunkMetadata{
			DocumentPath: "guides/grid/" + id + ".md",
			Tags:         tags,
			Version:      version,
			Heading:      "Heading " + id,
		},
	}
}

func newTestService(t *testing.T, store vectorstore.Store) *query.Service {
	t.Helper()
	svc, err := query.NewService(store, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := newTestService(t, &mockStore{latest: "1.0.0"})

	_, err := svc.Search(context.Background(), query.Request{Query: "   "})
	assert.ErrorIs(t, err, query.ErrEmptyQuery)
}

func TestSearch_NoVersionsIndexed(t *testing.T) {
	svc := newTestService(t, &mockStore{})

	resp, err := svc.Search(context.Background(), query.Request{Query: "grid"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "", resp.Version)
}

func TestSearch_ResolvesLatestVersion(t *testing.T) {
	store := &mockStore{latest: "6.2.0", results: []vectorstore.SearchResult{
		result("a", "6.2.0", 0.9),
	}}
	svc := newTestService(t, store)

	resp, err := svc.Search(context.Background(), query.Request{Query: "grid columns"})
	require.NoError(t, err)

	assert.Equal(t, "6.2.0", resp.Version)
	assert.Equal(t, "6.2.0", store.gotFilter["version"])
	assert.Equal(t, 10, store.gotLimit)
}

func TestSearch_ExplicitVersionSkipsResolution(t *testing.T) {
	store := &mockStore{latest: "6.2.0"}
	svc := newTestService(t, store)

	resp, err := svc.Search(context.Background(), query.Request{Query: "grid", Version: "6.1.4"})
	require.NoError(t, err)
	assert.Equal(t, "6.1.4", resp.Version)
	assert.Equal(t, "6.1.4", store.gotFilter["version"])
}

func TestSearch_MetadataFilters(t *testing.T) {
	store := &mockStore{latest: "1.0.0"}
	svc := newTestService(t, store)

	_, err := svc.Search(context.Background(), query.Request{
		Query:     "grid",
		Product:   "grid",
		Framework: "react",
		Type:      "guide",
	})
	require.NoError(t, err)

	assert.Equal(t, "grid", store.gotFilter["product"])
	assert.Equal(t, "react", store.gotFilter["framework"])
	assert.Equal(t, "guide", store.gotFilter["type"])
}

func TestSearch_TagPostFilter(t *testing.T) {
	store := &mockStore{latest: "1.0.0", results: []vectorstore.SearchResult{
		result("a", "1.0.0", 0.95, "grid", "react"),
		result("b", "1.0.0", 0.90, "grid", "angular"),
		result("c", "1.0.0", 0.85, "grid", "react"),
		result("d", "1.0.0", 0.80, "scheduler"),
		result("e", "1.0.0", 0.75, "grid", "react"),
		result("f", "1.0.0", 0.70, "grid", "vue"),
	}}
	svc := newTestService(t, store)

	resp, err := svc.Search(context.Background(), query.Request{
		Query: "grid",
		Limit: 5,
		Tags:  []string{"react"},
	})
	require.NoError(t, err)

	// Over-fetched to survive the post-filter.
	assert.Equal(t, 15, store.gotLimit)

	require.Len(t, resp.Results, 3)
	for _, r := range resp.Results {
		assert.Contains(t, r.Metadata.Tags, "react")
	}
}

func TestSearch_TagPostFilterMatchesAnyTag(t *testing.T) {
	store := &mockStore{latest: "1.0.0", results: []vectorstore.SearchResult{
		result("a", "1.0.0", 0.95, "react"),
		result("b", "1.0.0", 0.90, "vue"),
		result("c", "1.0.0", 0.85, "angular"),
	}}
	svc := newTestService(t, store)

	resp, err := svc.Search(context.Background(), query.Request{
		Query: "grid",
		Tags:  []string{"react", "vue"},
	})
	require.NoError(t, err)

	// Any intersection with the requested tags keeps the result.
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.Equal(t, "b", resp.Results[1].ID)
}

func TestSearch_LimitCapped(t *testing.T) {
	store := &mockStore{latest: "1.0.0"}
	svc := newTestService(t, store)

	_, err := svc.Search(context.Background(), query.Request{Query: "grid", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, store.gotLimit)
}

func TestFormatContext(t *testing.T) {
	resp := &query.Response{
		Version: "6.1.4",
		Results: []vectorstore.SearchResult{
			result("a", "6.1.4", 0.8, "grid"),
			result("b", "6.1.4", 0.6, "grid"),
		},
	}

	out := query.FormatContext(resp)

	assert.Contains(t, out, "## Heading a")
	assert.Contains(t, out, "Source: guides/grid/a.md (6.1.4)")
	assert.Contains(t, out, "Distance: 0.2000")
	assert.Contains(t, out, "Distance: 0.4000")
	assert.Contains(t, out, "chunk text for a")
	assert.Equal(t, 1, strings.Count(out, "\n---\n"))
}

func TestFormatContext_Empty(t *testing.T) {
	assert.Equal(t, "No matching documentation found.\n", query.FormatContext(&query.Response{}))
	assert.Equal(t, "No matching documentation found.\n", query.FormatContext(nil))
}
