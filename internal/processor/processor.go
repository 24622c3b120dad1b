// Package processor splits documents into retrievable chunks and derives
// structural metadata from document paths.
package processor

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/source"
)

// Chunking strategies.
const (
	// StrategyHeader splits on Markdown headings, re-splitting oversized
	// sections by size.
	StrategyHeader = "header"
	// StrategySize splits into fixed-size windows with overlap.
	StrategySize = "size"
	// StrategyNone emits the whole document as a single chunk.
	StrategyNone = "none"
)

// ErrInvalidConfig indicates invalid processor configuration.
var ErrInvalidConfig = errors.New("invalid processor configuration")

// ChunkMetadata is the structural metadata attached to every chunk.
//
// Version is stamped by the orchestrator, not the processor, and is appended
// to Tags as well so version and tag filtering compose.
type ChunkMetadata struct {
	DocumentPath string   `json:"path"`
	Tags         []string `json:"tags"`
	Product      string   `json:"product"`
	Framework    string   `json:"framework"`
	Type         string   `json:"type"`
	ChunkIndex   int      `json:"chunkIndex"`
	TotalChunks  int      `json:"totalChunks"`
	Heading      string   `json:"heading"`
	Version      string   `json:"version"`
}

// Chunk is one retrievable unit of a document after splitting.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Config holds processor configuration.
type Config struct {
	// Strategy selects the chunking mode: header (default), size, or none.
	Strategy string

	// ChunkSize is the maximum chunk length in characters. Default: 1000.
	ChunkSize int

	// ChunkOverlap is the character overlap between consecutive size-based
	// chunks. Must be smaller than ChunkSize. Default: 200.
	ChunkOverlap int

	// IncludeRootSegment controls whether the first path segment is kept as
	// a tag. Two historical tagging rules disagree here, so it is a flag.
	IncludeRootSegment bool

	// KnownProducts overrides the default product token set.
	KnownProducts []string

	// KnownFrameworks overrides the default framework token set.
	KnownFrameworks []string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyHeader
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if len(c.KnownProducts) == 0 {
		c.KnownProducts = defaultProducts
	}
	if len(c.KnownFrameworks) == 0 {
		c.KnownFrameworks = defaultFrameworks
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyHeader, StrategySize, StrategyNone:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, chunk size)", ErrInvalidConfig)
	}
	return nil
}

// Processor turns documents into ordered chunk sequences.
type Processor struct {
	config Config
	logger *zap.Logger
}

// New creates a Processor with the given configuration.
func New(config Config, logger *zap.Logger) (*Processor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Processor{config: config, logger: logger}, nil
}

// ProcessDocument splits doc into ordered chunks with derived metadata.
//
// Chunk indexes are contiguous from 0 and TotalChunks is identical across all
// chunks of one document. Metadata derivation is total: it always yields a
// value and never fails.
func (p *Processor) ProcessDocument(doc source.Document) ([]Chunk, error) {
	var parts []part
	switch p.config.Strategy {
	case StrategyHeader:
		parts = p.splitByHeaders(doc.Content)
	case StrategySize:
		for _, text := range splitBySize(doc.Content, p.config.ChunkSize, p.config.ChunkOverlap) {
			parts = append(parts, part{text: text})
		}
	case StrategyNone:
		parts = []part{{text: doc.Content}}
	}

	if len(parts) == 0 {
		parts = []part{{text: doc.Content}}
	}

	meta := extractMetadata(doc.Path, p.config)
	chunks := make([]Chunk, len(parts))
	for i, pt := range parts {
		m := meta
		m.Tags = append([]string(nil), meta.Tags...)
		m.ChunkIndex = i
		m.TotalChunks = len(parts)
		m.Heading = pt.heading
		chunks[i] = Chunk{
			ID:       uuid.New().String(),
			Text:     pt.text,
			Metadata: m,
		}
	}

	p.logger.Debug("processed document",
		zap.String("path", doc.Path),
		zap.Int("chunks", len(chunks)),
	)

	return chunks, nil
}

// part is an intermediate chunk candidate before metadata assignment.
type part struct {
	heading string
	text    string
}
