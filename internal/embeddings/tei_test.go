package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docsd/internal/embeddings"
)

func newTEIServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Inputs any `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		count := 1
		if list, ok := req.Inputs.([]any); ok {
			count = len(list)
		}
		vectors := make([][]float32, count)
		for i := range vectors {
			vectors[i] = []float32{float32(i), 0.5}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	server := newTEIServer(t)
	provider, err := embeddings.NewTEIProvider(embeddings.TEIConfig{BaseURL: server.URL})
	require.NoError(t, err)
	defer provider.Close()

	vectors, err := provider.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 0.5}, vectors[1])
}

func TestTEIProvider_EmbedQuery(t *testing.T) {
	server := newTEIServer(t)
	provider, err := embeddings.NewTEIProvider(embeddings.TEIConfig{BaseURL: server.URL})
	require.NoError(t, err)
	defer provider.Close()

	vector, err := provider.EmbedQuery(context.Background(), "grid columns")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vector)

	_, err = provider.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
}

func TestTEIProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider, err := embeddings.NewTEIProvider(embeddings.TEIConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = provider.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestTEIProvider_RequiresBaseURL(t *testing.T) {
	_, err := embeddings.NewTEIProvider(embeddings.TEIConfig{})
	assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}

func TestTEIProvider_Dimension(t *testing.T) {
	provider, err := embeddings.NewTEIProvider(embeddings.TEIConfig{
		BaseURL: "http://localhost:8080",
		Model:   "BAAI/bge-base-en-v1.5",
	})
	require.NoError(t, err)
	assert.Equal(t, 768, provider.Dimension())
}
