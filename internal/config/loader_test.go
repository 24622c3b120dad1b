package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docsd/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// A path that doesn't exist falls through to pure defaults.
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "docsd_chunks", cfg.VectorStore.Chromem.Collection)
	assert.Equal(t, 384, cfg.VectorStore.Chromem.VectorSize)
	assert.Equal(t, "localhost", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, "header", cfg.Indexing.Strategy)
	assert.Equal(t, 1000, cfg.Indexing.ChunkSize)
	assert.Equal(t, 200, cfg.Indexing.ChunkOverlap)
	assert.Equal(t, []string{".md", ".markdown"}, cfg.Indexing.Extensions)
	assert.InDelta(t, 0.75, cfg.Search.Alpha, 0.001)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, "@hourly", cfg.Jobs.SweepSchedule)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 7334
embeddings:
  provider: tei
  base_url: http://tei:8080
indexing:
  strategy: size
  chunk_size: 500
  chunk_overlap: 50
search:
  alpha: 0.5
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "http://tei:8080", cfg.Embeddings.BaseURL)
	assert.Equal(t, "size", cfg.Indexing.Strategy)
	assert.Equal(t, 500, cfg.Indexing.ChunkSize)
	assert.Equal(t, 50, cfg.Indexing.ChunkOverlap)
	assert.InDelta(t, 0.5, cfg.Search.Alpha, 0.001)

	// Untouched sections still get defaults.
	assert.Equal(t, "docsd_chunks", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "@hourly", cfg.Jobs.SweepSchedule)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
vectorstore:
  provider: chromem
indexing:
  chunk_size: 500
`)

	t.Setenv("DOCSD_VECTORSTORE_PROVIDER", "qdrant")
	t.Setenv("DOCSD_INDEXING_CHUNK_SIZE", "750")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, 750, cfg.Indexing.ChunkSize)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "vectorstore: [not: a map")
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown vectorstore provider",
			yaml:    "vectorstore:\n  provider: pinecone\n",
			wantErr: "unsupported vectorstore provider",
		},
		{
			name:    "unknown embeddings provider",
			yaml:    "embeddings:\n  provider: cohere\n",
			wantErr: "unsupported embeddings provider",
		},
		{
			name:    "unknown chunking strategy",
			yaml:    "indexing:\n  strategy: sentences\n",
			wantErr: "unsupported chunking strategy",
		},
		{
			name:    "overlap not below chunk size",
			yaml:    "indexing:\n  chunk_size: 100\n  chunk_overlap: 100\n",
			wantErr: "chunk_overlap",
		},
		{
			name:    "alpha out of range",
			yaml:    "search:\n  alpha: 1.5\n",
			wantErr: "alpha",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
