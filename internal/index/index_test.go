package index_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/index"
	"github.com/fyrsmithlabs/docsd/internal/processor"
	"github.com/fyrsmithlabs/docsd/internal/source"
	"github.com/fyrsmithlabs/docsd/internal/vectorstore"
)

// mockStore records writes and serves canned version listings.
type mockStore struct {
	initialized     bool
	versions        []string
	added           []processor.Chunk
	deletedVersions []string
	addErr          error
}

func (m *mockStore) Initialize(ctx context.Context) error {
	m.initialized = true
	return nil
}

func (m *mockStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, chunks...)
	return nil
}

func (m *mockStore) Search(ctx context.Context, query string, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return nil, nil
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

func (m *mockStore) DeleteByVersion(ctx context.Context, version string) error {
	m.deletedVersions = append(m.deletedVersions, version)
	return nil
}

func (m *mockStore) GetAllVersions(ctx context.Context) ([]string, error) {
	return m.versions, nil
}

func (m *mockStore) GetLatestVersion(ctx context.Context) (string, error) {
	if len(m.versions) == 0 {
		return "", nil
	}
	return m.versions[len(m.versions)-1], nil
}

func (m *mockStore) GetAllTags(ctx context.Context) ([]string, error) { return nil, nil }
func (m *mockStore) ClearAll(ctx context.Context) error               { return nil }
func (m *mockStore) Close() error                                     { return nil }

var _ vectorstore.Store = (*mockStore)(nil)

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newTestService(t *testing.T, store vectorstore.Store) *index.Service {
	t.Helper()
	proc, err := processor.New(processor.Config{Strategy: processor.StrategyHeader}, zap.NewNop())
	require.NoError(t, err)
	svc, err := index.NewService(store, proc, 2, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestIndexDocuments_VersionRequired(t *testing.T) {
	svc := newTestService(t, &mockStore{})
	dir := writeDocs(t, map[string]string{"a.md": "# A\nbody"})

	src, err := source.NewFSSource(dir, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Cleanup()

	_, err = svc.IndexDocuments(context.Background(), src, index.Options{})
	assert.ErrorIs(t, err, index.ErrVersionRequired)
}

func TestIndexDocuments_StampsVersionAndTag(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, store)
	dir := writeDocs(t, map[string]string{
		"guides/grid/a.md": "# A\nalpha",
		"guides/grid/b.md": "# B\nbravo",
		"notes.txt":        "ignored",
	})

	src, err := source.NewFSSource(dir, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Cleanup()

	result, err := svc.IndexDocuments(context.Background(), src, index.Options{Version: "6.1.4"})
	require.NoError(t, err)

	assert.True(t, store.initialized)
	assert.Equal(t, 2, result.DocumentsProcessed)
	assert.Equal(t, len(store.added), result.ChunksIndexed)
	require.NotEmpty(t, store.added)

	for _, chunk := range store.added {
		assert.Equal(t, "6.1.4", chunk.Metadata.Version)
		assert.Contains(t, chunk.Metadata.Tags, "6.1.4")
	}
}

func TestIndexDocuments_VersionTagNotDuplicated(t *testing.T) {
	store := &mockStore{}
	proc, err := processor.New(processor.Config{
		Strategy:           processor.StrategyHeader,
		IncludeRootSegment: true,
	}, zap.NewNop())
	require.NoError(t, err)
	svc, err := index.NewService(store, proc, 2, zap.NewNop())
	require.NoError(t, err)

	// Root segment equals the version, so the path already contributes it
	// as a tag.
	dir := writeDocs(t, map[string]string{"6.1.4/guides/a.md": "# A\nbody"})
	src, err := source.NewFSSource(dir, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Cleanup()

	_, err = svc.IndexDocuments(context.Background(), src, index.Options{Version: "6.1.4"})
	require.NoError(t, err)
	require.NotEmpty(t, store.added)

	for _, chunk := range store.added {
		count := 0
		for _, tag := range chunk.Metadata.Tags {
			if tag == "6.1.4" {
				count++
			}
		}
		assert.Equal(t, 1, count, "version tag must appear exactly once")
		assert.Contains(t, chunk.Metadata.Tags, "guides")
	}
}

func TestIndexDocuments_ReplacesExistingVersion(t *testing.T) {
	store := &mockStore{versions: []string{"6.1.0", "6.1.4"}}
	svc := newTestService(t, store)
	dir := writeDocs(t, map[string]string{"a.md": "# A\nbody"})

	src, err := source.NewFSSource(dir, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Cleanup()

	_, err = svc.IndexDocuments(context.Background(), src, index.Options{Version: "6.1.4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"6.1.4"}, store.deletedVersions)
}

func TestIndexDocuments_NewVersionNotDeleted(t *testing.T) {
	store := &mockStore{versions: []string{"6.1.0"}}
	svc := newTestService(t, store)
	dir := writeDocs(t, map[string]string{"a.md": "# A\nbody"})

	src, err := source.NewFSSource(dir, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Cleanup()

	_, err = svc.IndexDocuments(context.Background(), src, index.Options{Version: "6.2.0"})
	require.NoError(t, err)
	assert.Empty(t, store.deletedVersions)
}

func TestIndexDocuments_ProgressMilestones(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, store)
	dir := writeDocs(t, map[string]string{
		"a.md": "# A\nalpha",
		"b.md": "# B\nbravo",
	})

	src, err := source.NewFSSource(dir, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Cleanup()

	var percents []int
	var stages []string
	_, err = svc.IndexDocuments(context.Background(), src, index.Options{
		Version: "1.0.0",
		OnProgress: func(percent int, stage, message string) {
			percents = append(percents, percent)
			stages = append(stages, stage)
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, percents)
	assert.Equal(t, 0, percents[0])
	assert.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1], "progress must not regress")
	}
	assert.Contains(t, percents, 5)
	assert.Contains(t, percents, 98)

	assert.Equal(t, index.StageSetup, stages[0])
	assert.Equal(t, index.StageDone, stages[len(stages)-1])
	assert.Contains(t, stages, index.StageIngest)
}

func TestIndexDocuments_StoreErrorAborts(t *testing.T) {
	store := &mockStore{addErr: errors.New("upstream unavailable")}
	svc := newTestService(t, store)
	dir := writeDocs(t, map[string]string{"a.md": "# A\n" + "body"})

	src, err := source.NewFSSource(dir, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Cleanup()

	_, err = svc.IndexDocuments(context.Background(), src, index.Options{Version: "1.0.0", BatchSize: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
}
