package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/docsd/internal/processor"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("docsd.vectorstore.qdrant")

// scrollBatchSize is the page size for full-collection scrolls.
const scrollBatchSize = 256

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	// Default: 6334
	Port int

	// Collection is the collection name. Default: "docsd_chunks"
	Collection string

	// VectorSize is the dimensionality of embeddings. Must match the
	// embedder's output dimension. Default: 384
	VectorSize uint64

	// Distance is the similarity metric. Default: Cosine
	Distance qdrant.Distance

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry.
	// Default: 1s
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// Alpha weights vector similarity against keyword overlap in the
	// hybrid score. Default: 0.75
	Alpha float32
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "docsd_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Alpha == 0 {
		c.Alpha = defaultAlpha
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha must be in [0, 1]", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// isTransientError reports whether an error should be retried.
func isTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store using Qdrant's native gRPC client.
//
// The gRPC transport (port 6334) bypasses Qdrant's HTTP layer and its 256kB
// payload limit, which matters when indexing large documentation sets. The
// store embeds chunks itself before upserting, so the collection holds
// caller-managed vectors.
type QdrantStore struct {
	client   *qdrant.Client
	embedder ChunkEmbedder
	config   QdrantConfig
	catalog  catalogCache
	logger   *zap.Logger

	initialized bool
}

// NewQdrantStore creates a QdrantStore and connects the gRPC client.
func NewQdrantStore(config QdrantConfig, embedder ChunkEmbedder, logger *zap.Logger) (*QdrantStore, error) {
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

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, enable TLS for production",
			zap.String("host", config.Host),
		)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// retryOperation retries transient gRPC failures with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !isTransientError(err) || attempt == s.config.MaxRetries {
			break
		}
		s.logger.Warn("retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// Initialize creates the collection when it does not exist yet.
func (s *QdrantStore) Initialize(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Initialize")
	defer span.End()

	span.SetAttributes(attribute.String("collection", s.config.Collection))

	exists, err := s.collectionExists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if !exists {
		err := s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.config.Collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.config.VectorSize,
					Distance: s.config.Distance,
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
		}
	}

	s.initialized = true
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (s *QdrantStore) collectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	return exists, nil
}

func (s *QdrantStore) ready() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// AddDocuments embeds the chunks and upserts them as points.
func (s *QdrantStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddDocuments")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if err := s.ready(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	embedded, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("embedding chunks: %w", err)
	}

	points := make([]*qdrant.PointStruct, len(embedded))
	for i, chunk := range embedded {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: payloadFromChunk(chunk.Chunk),
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
	}

	s.catalog.invalidate()
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs hybrid similarity search over the collection.
func (s *QdrantStore) Search(ctx context.Context, query string, limit int, filter Filter) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
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

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	qdrantFilter := filterToQdrant(filter)

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(limit * overFetch)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         qdrantFilter,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		text, meta := chunkFromPayload(point.Payload)
		results = append(results, SearchResult{
			ID:       pointIDString(point.Id),
			Text:     text,
			Score:    point.Score,
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
func (s *QdrantStore) GetDocument(ctx context.Context, id string) (*processor.Chunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.GetDocument")
	defer span.End()

	if err := s.ready(); err != nil {
		return nil, err
	}

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "get", func() error {
		res, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.config.Collection,
			Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting point %s: %w", id, err)
	}
	if len(points) == 0 {
		span.SetStatus(codes.Error, "not found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	text, meta := chunkFromPayload(points[0].Payload)
	span.SetStatus(codes.Ok, "success")
	return &processor.Chunk{ID: id, Text: text, Metadata: meta}, nil
}

// GetDocumentChunks returns all chunks of one document path in chunk order.
func (s *QdrantStore) GetDocumentChunks(ctx context.Context, path, version string) ([]processor.Chunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.GetDocumentChunks")
	defer span.End()

	span.SetAttributes(
		attribute.String("path", path),
		attribute.String("version", version),
	)

	if err := s.ready(); err != nil {
		return nil, err
	}

	filter := Filter{"path": path}
	if version != "" {
		filter["version"] = version
	}

	var chunks []processor.Chunk
	err := s.scroll(ctx, filterToQdrant(filter), func(point *qdrant.RetrievedPoint) {
		text, meta := chunkFromPayload(point.Payload)
		chunks = append(chunks, processor.Chunk{
			ID:       pointIDString(point.Id),
			Text:     text,
			Metadata: meta,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Metadata.ChunkIndex < chunks[j].Metadata.ChunkIndex
	})

	span.SetStatus(codes.Ok, "success")
	return chunks, nil
}

// DeleteDocuments removes all chunks matching the filter.
func (s *QdrantStore) DeleteDocuments(ctx context.Context, filter Filter) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteDocuments")
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

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: filterToQdrant(filter),
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points: %w", err)
	}

	s.catalog.invalidate()
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByVersion removes every chunk of one version.
func (s *QdrantStore) DeleteByVersion(ctx context.Context, version string) error {
	return s.DeleteDocuments(ctx, Filter{"version": version})
}

// GetAllVersions returns the distinct indexed versions, sorted.
func (s *QdrantStore) GetAllVersions(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	versions, _, err := s.catalog.get(ctx, s.refreshCatalog)
	return versions, err
}

// GetLatestVersion returns the greatest version by string order, or "" when
// nothing is indexed.
func (s *QdrantStore) GetLatestVersion(ctx context.Context) (string, error) {
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
func (s *QdrantStore) GetAllTags(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	_, tags, err := s.catalog.get(ctx, s.refreshCatalog)
	return tags, err
}

// refreshCatalog scrolls the full collection collecting distinct versions
// and tags.
func (s *QdrantStore) refreshCatalog(ctx context.Context) ([]string, []string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.refreshCatalog")
	defer span.End()

	versionSet := make(map[string]struct{})
	tagSet := make(map[string]struct{})
	err := s.scroll(ctx, nil, func(point *qdrant.RetrievedPoint) {
		_, meta := chunkFromPayload(point.Payload)
		if meta.Version != "" {
			versionSet[meta.Version] = struct{}{}
		}
		for _, tag := range meta.Tags {
			tagSet[tag] = struct{}{}
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	versions := make([]string, 0, len(versionSet))
	for v := range versionSet {
		versions = append(versions, v)
	}
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(versions)
	sort.Strings(tags)

	span.SetStatus(codes.Ok, "success")
	return versions, tags, nil
}

// scroll pages through all points matching the filter.
func (s *QdrantStore) scroll(ctx context.Context, filter *qdrant.Filter, visit func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	for {
		var points []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err := s.retryOperation(ctx, "scroll", func() error {
			res, nextOffset, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: s.config.Collection,
				Filter:         filter,
				Offset:         offset,
				Limit:          qdrant.PtrOf(uint32(scrollBatchSize)),
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return err
			}
			points = res
			next = nextOffset
			return nil
		})
		if err != nil {
			return fmt.Errorf("scrolling collection %s: %w", s.config.Collection, err)
		}

		for _, point := range points {
			visit(point)
		}

		if next == nil || len(points) == 0 {
			return nil
		}
		offset = next
	}
}

// ClearAll drops and recreates the collection.
func (s *QdrantStore) ClearAll(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.ClearAll")
	defer span.End()

	if err := s.ready(); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, s.config.Collection)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}

	s.initialized = false
	if err := s.Initialize(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.catalog.invalidate()
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close closes the gRPC client.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// payloadFromChunk builds the point payload for a chunk.
func payloadFromChunk(chunk processor.Chunk) map[string]*qdrant.Value {
	m := chunk.Metadata

	tagValues := make([]*qdrant.Value, len(m.Tags))
	for i, tag := range m.Tags {
		tagValues[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: tag}}
	}

	return map[string]*qdrant.Value{
		"text":        {Kind: &qdrant.Value_StringValue{StringValue: chunk.Text}},
		"path":        {Kind: &qdrant.Value_StringValue{StringValue: m.DocumentPath}},
		"version":     {Kind: &qdrant.Value_StringValue{StringValue: m.Version}},
		"product":     {Kind: &qdrant.Value_StringValue{StringValue: m.Product}},
		"framework":   {Kind: &qdrant.Value_StringValue{StringValue: m.Framework}},
		"type":        {Kind: &qdrant.Value_StringValue{StringValue: m.Type}},
		"heading":     {Kind: &qdrant.Value_StringValue{StringValue: m.Heading}},
		"chunkIndex":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(m.ChunkIndex)}},
		"totalChunks": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(m.TotalChunks)}},
		"tags":        {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: tagValues}}},
	}
}

// chunkFromPayload is the inverse of payloadFromChunk.
func chunkFromPayload(payload map[string]*qdrant.Value) (string, processor.ChunkMetadata) {
	meta := processor.ChunkMetadata{
		DocumentPath: payload["path"].GetStringValue(),
		Product:      payload["product"].GetStringValue(),
		Framework:    payload["framework"].GetStringValue(),
		Type:         payload["type"].GetStringValue(),
		Heading:      payload["heading"].GetStringValue(),
		Version:      payload["version"].GetStringValue(),
		ChunkIndex:   int(payload["chunkIndex"].GetIntegerValue()),
		TotalChunks:  int(payload["totalChunks"].GetIntegerValue()),
	}
	for _, v := range payload["tags"].GetListValue().GetValues() {
		meta.Tags = append(meta.Tags, v.GetStringValue())
	}
	return payload["text"].GetStringValue(), meta
}

// filterToQdrant translates a Filter into ANDed qdrant conditions. List
// values become any-of keyword matches.
func filterToQdrant(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	var conditions []*qdrant.Condition
	for key, value := range filter {
		var match *qdrant.Match
		switch v := value.(type) {
		case string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
		case []string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
				Keywords: &qdrant.RepeatedStrings{Strings: v},
			}}
		case int:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		default:
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: key, Match: match},
			},
		})
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// pointIDString renders a point ID as its UUID or numeric form.
func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

var _ Store = (*QdrantStore)(nil)
