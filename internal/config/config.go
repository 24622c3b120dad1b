// Package config provides configuration loading for docsd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for docsd.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Indexing    IndexingConfig    `koanf:"indexing"`
	Search      SearchConfig      `koanf:"search"`
	Jobs        JobsConfig        `koanf:"jobs"`
	NATS        NATSConfig        `koanf:"nats"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig configures embedding generation.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (local ONNX, default), "tei" (HTTP), or "openai".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
	// BatchSize is the provider sub-batch size for bulk embedding.
	BatchSize int `koanf:"batch_size"`
}

// IndexingConfig configures document chunking and ingestion.
type IndexingConfig struct {
	// Strategy is "header" (default), "size", or "none".
	Strategy     string `koanf:"strategy"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
	// IncludeRootSegment controls whether the first path segment becomes a tag.
	IncludeRootSegment bool `koanf:"include_root_segment"`
	// Extensions is the file extension allow-list for document sources.
	Extensions []string `koanf:"extensions"`
	// BatchSize is the chunk buffer size flushed per store write.
	BatchSize int `koanf:"batch_size"`
}

// SearchConfig configures hybrid search ranking.
type SearchConfig struct {
	// Alpha weights vector similarity against keyword relevance in [0,1].
	// 1.0 is purely semantic.
	Alpha float32 `koanf:"alpha"`
}

// JobsConfig configures the job manager.
type JobsConfig struct {
	// Retention is how long terminal jobs stay queryable before the sweep
	// removes them.
	Retention time.Duration `koanf:"retention"`
	// SweepSchedule is a cron expression for the terminal-job sweep.
	SweepSchedule string `koanf:"sweep_schedule"`
}

// NATSConfig configures the optional NATS progress transport.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %q (supported: chromem, qdrant)", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("unsupported embeddings provider: %q (supported: fastembed, tei, openai)", c.Embeddings.Provider)
	}

	switch c.Indexing.Strategy {
	case "header", "size", "none":
	default:
		return fmt.Errorf("unsupported chunking strategy: %q (supported: header, size, none)", c.Indexing.Strategy)
	}

	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.Indexing.ChunkOverlap)
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("search alpha must be in [0,1], got %f", c.Search.Alpha)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url required when nats is enabled")
	}

	return nil
}
