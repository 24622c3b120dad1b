package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/config"
)

// NewStore creates a Store from the application configuration.
//
// The provider field selects the backend:
//   - "chromem" (default): embedded ChromemStore, no external service
//   - "qdrant": QdrantStore, requires a running Qdrant server
//
// Call Initialize on the returned store before use and Close when done.
func NewStore(cfg *config.Config, embedder ChunkEmbedder, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case ProviderChromem, "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			Collection: cfg.VectorStore.Chromem.Collection,
			VectorSize: cfg.VectorStore.Chromem.VectorSize,
			Alpha:      cfg.Search.Alpha,
		}, embedder, logger)

	case ProviderQdrant:
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			Collection: cfg.VectorStore.Qdrant.Collection,
			VectorSize: uint64(cfg.VectorStore.Qdrant.VectorSize),
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			Alpha:      cfg.Search.Alpha,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
