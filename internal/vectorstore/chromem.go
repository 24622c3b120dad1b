package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/processor"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("docsd.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector
// database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/docsd/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name. Default: "docsd_chunks"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension. Default: 384
	VectorSize int

	// Alpha weights vector similarity against keyword overlap in the
	// hybrid score. Default: 0.75
	Alpha float32
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/docsd/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "docsd_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.Alpha == 0 {
		c.Alpha = defaultAlpha
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha must be in [0, 1]", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with gob-file persistence. No external service is needed.
//
// chromem cannot enumerate its documents, so the store maintains a sidecar
// chunk index (id to metadata) in the same directory. Version and tag
// listings, per-document lookups, and filtered deletes resolve against the
// sidecar; the chromem collection holds content and vectors.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
	path       string
	index      *chunkIndex
	catalog    catalogCache
	logger     *zap.Logger
}

// NewChromemStore creates a ChromemStore and opens its persistent database.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		path:     path,
		logger:   logger,
	}

	logger.Info("chromem store created",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Initialize opens the collection and loads the sidecar chunk index.
func (s *ChromemStore) Initialize(ctx context.Context) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Initialize")
	defer span.End()

	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}

	index, err := openChunkIndex(s.path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.collection = collection
	s.index = index
	span.SetStatus(codes.Ok, "success")
	return nil
}

// embeddingFunc adapts the Embedder for chromem query embedding.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) ready() error {
	if s.collection == nil || s.index == nil {
		return ErrNotInitialized
	}
	return nil
}

// AddDocuments embeds the chunks and stores them with their metadata.
func (s *ChromemStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if err := s.ready(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("embedding chunks: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        chunk.ID,
			Metadata:  encodeChunkMetadata(chunk.Metadata),
			Embedding: vectors[i],
			Content:   chunk.Text,
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to collection %s: %w", s.config.Collection, err)
	}

	if err := s.index.add(chunks); err != nil {
		span.RecordError(err)
		return err
	}
	s.catalog.invalidate()

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs hybrid similarity search over the collection.
func (s *ChromemStore) Search(ctx context.Context, query string, limit int, filter Filter) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	// chromem requires nResults <= doc count
	count := s.collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	fetch := limit * overFetch
	if fetch > count {
		fetch = count
	}

	// Exact string conditions push down; list conditions apply client-side.
	where := filter.stringValues()
	if len(where) == 0 {
		where = nil
	}

	hits, err := s.collection.Query(ctx, query, fetch, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		meta := decodeChunkMetadata(hit.Metadata)
		if !filter.Matches(meta) {
			continue
		}
		results = append(results, SearchResult{
			ID:       hit.ID,
			Text:     hit.Content,
			Score:    hit.Similarity,
			Metadata: meta,
		})
	}

	rankHybrid(results, query, s.config.Alpha)
	if len(results) > limit {
		results = results[:limit]
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// GetDocument retrieves a single chunk by ID.
func (s *ChromemStore) GetDocument(ctx context.Context, id string) (*processor.Chunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.GetDocument")
	defer span.End()

	if err := s.ready(); err != nil {
		return nil, err
	}

	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	chunk := &processor.Chunk{
		ID:       doc.ID,
		Text:     doc.Content,
		Metadata: decodeChunkMetadata(doc.Metadata),
	}
	span.SetStatus(codes.Ok, "success")
	return chunk, nil
}

// GetDocumentChunks returns all chunks of one document path in chunk order.
func (s *ChromemStore) GetDocumentChunks(ctx context.Context, path, version string) ([]processor.Chunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.GetDocumentChunks")
	defer span.End()

	span.SetAttributes(
		attribute.String("path", path),
		attribute.String("version", version),
	)

	if err := s.ready(); err != nil {
		return nil, err
	}

	ids := s.index.documentIDs(path, version)
	chunks := make([]processor.Chunk, 0, len(ids))
	for _, id := range ids {
		chunk, err := s.GetDocument(ctx, id)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn("indexed chunk missing from collection",
				zap.String("id", id),
				zap.String("path", path),
			)
			continue
		}
		chunks = append(chunks, *chunk)
	}

	span.SetStatus(codes.Ok, "success")
	return chunks, nil
}

// DeleteDocuments removes all chunks matching the filter.
func (s *ChromemStore) DeleteDocuments(ctx context.Context, filter Filter) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocuments")
	defer span.End()

	if err := s.ready(); err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("%w: filter cannot be empty", ErrInvalidFilter)
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	ids := s.index.idsMatching(filter)
	span.SetAttributes(attribute.Int("id_count", len(ids)))
	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "no matches")
		return nil
	}

	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := s.index.remove(ids); err != nil {
		span.RecordError(err)
		return err
	}
	s.catalog.invalidate()

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByVersion removes every chunk of one version.
func (s *ChromemStore) DeleteByVersion(ctx context.Context, version string) error {
	return s.DeleteDocuments(ctx, Filter{"version": version})
}

// GetAllVersions returns the distinct indexed versions, sorted.
func (s *ChromemStore) GetAllVersions(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	versions, _, err := s.catalog.get(ctx, s.refreshCatalog)
	return versions, err
}

// GetLatestVersion returns the greatest version by string order, or "" when
// nothing is indexed.
func (s *ChromemStore) GetLatestVersion(ctx context.Context) (string, error) {
	versions, err := s.GetAllVersions(ctx)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[len(versions)-1], nil
}

// GetAllTags returns the distinct tags across all chunks, sorted.
func (s *ChromemStore) GetAllTags(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	_, tags, err := s.catalog.get(ctx, s.refreshCatalog)
	return tags, err
}

func (s *ChromemStore) refreshCatalog(context.Context) ([]string, []string, error) {
	versions, tags := s.index.catalog()
	return versions, tags, nil
}

// ClearAll removes every chunk from the collection.
func (s *ChromemStore) ClearAll(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.ClearAll")
	defer span.End()

	if err := s.ready(); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}

	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("recreating collection %s: %w", s.config.Collection, err)
	}
	s.collection = collection

	if err := s.index.clear(); err != nil {
		span.RecordError(err)
		return err
	}
	s.catalog.invalidate()

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close persists the sidecar index. The chromem database persists on write
// and holds no connection to release.
func (s *ChromemStore) Close() error {
	if s.index != nil {
		return s.index.save()
	}
	return nil
}

// encodeChunkMetadata flattens metadata into chromem's string map. Tags are
// JSON-encoded so tag values containing separators survive the round trip.
func encodeChunkMetadata(m processor.ChunkMetadata) map[string]string {
	var tags string
	if len(m.Tags) > 0 {
		if encoded, err := json.Marshal(m.Tags); err == nil {
			tags = string(encoded)
		}
	}
	return map[string]string{
		"path":        m.DocumentPath,
		"version":     m.Version,
		"product":     m.Product,
		"framework":   m.Framework,
		"type":        m.Type,
		"heading":     m.Heading,
		"chunkIndex":  strconv.Itoa(m.ChunkIndex),
		"totalChunks": strconv.Itoa(m.TotalChunks),
		"tags":        tags,
	}
}

// decodeChunkMetadata is the inverse of encodeChunkMetadata. Malformed
// numeric fields decode as zero.
func decodeChunkMetadata(m map[string]string) processor.ChunkMetadata {
	chunkIndex, _ := strconv.Atoi(m["chunkIndex"])
	totalChunks, _ := strconv.Atoi(m["totalChunks"])

	var tags []string
	if m["tags"] != "" {
		_ = json.Unmarshal([]byte(m["tags"]), &tags)
	}

	return processor.ChunkMetadata{
		DocumentPath: m["path"],
		Tags:         tags,
		Product:      m["product"],
		Framework:    m["framework"],
		Type:         m["type"],
		ChunkIndex:   chunkIndex,
		TotalChunks:  totalChunks,
		Heading:      m["heading"],
		Version:      m["version"],
	}
}

var _ Store = (*ChromemStore)(nil)
