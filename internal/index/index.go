// Package index orchestrates document ingestion: reading from a source,
// chunking, embedding, and writing to the vector store.
package index

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/processor"
	"github.com/fyrsmithlabs/docsd/internal/source"
	"github.com/fyrsmithlabs/docsd/internal/vectorstore"
)

var tracer = otel.Tracer("docsd.index")

// Sentinel errors for indexing.
var (
	ErrVersionRequired = errors.New("version is required")
	ErrInvalidSource   = errors.New("invalid document source")
)

// defaultBatchSize is the chunk buffer size flushed per store write.
const defaultBatchSize = 100

// Progress milestones. Ingestion progress is scaled into the span between
// progressIngestStart and progressIngestEnd.
const (
	progressStart       = 0
	progressInitialized = 5
	progressReplaced    = 10
	progressCounted     = 15
	progressIngestStart = 20
	progressIngestEnd   = 95
	progressFlushed     = 98
	progressDone        = 100
)

// Stage names reported with progress, broadcast on job events.
const (
	StageSetup   = "setup"
	StageReplace = "replace"
	StageScan    = "scan"
	StageIngest  = "ingest"
	StageFlush   = "flush"
	StageDone    = "complete"
)

// Options controls one indexing run.
type Options struct {
	// Version labels every chunk written by this run. Required. Indexing a
	// version that already exists replaces it entirely.
	Version string

	// BatchSize overrides the chunk buffer size flushed per store write.
	BatchSize int

	// OnProgress, when set, receives milestone updates as a percentage, the
	// current stage, and a short message.
	OnProgress func(percent int, stage, message string)
}

// Result summarizes one indexing run.
type Result struct {
	DocumentsProcessed int
	ChunksIndexed      int
}

// Service ingests documents from a source into the vector store.
type Service struct {
	store     vectorstore.Store
	processor *processor.Processor
	logger    *zap.Logger
	batchSize int
}

// NewService creates an indexing service.
func NewService(store vectorstore.Store, proc *processor.Processor, batchSize int, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if proc == nil {
		return nil, errors.New("processor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		store:     store,
		processor: proc,
		logger:    logger,
		batchSize: batchSize,
	}, nil
}

// IndexDocuments runs a full ingestion of the source under opts.Version.
//
// If the version already exists, its chunks are deleted first so a run
// always replaces the whole version. Documents that fail to chunk are
// skipped and logged; store and embedding failures abort the run.
func (s *Service) IndexDocuments(ctx context.Context, src source.Source, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Service.IndexDocuments")
	defer span.End()

	if src == nil {
		return nil, ErrInvalidSource
	}
	if opts.Version == "" {
		span.SetStatus(codes.Error, "version required")
		return nil, ErrVersionRequired
	}
	span.SetAttributes(attribute.String("version", opts.Version))

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	report := func(percent int, stage, message string) {
		if opts.OnProgress != nil {
			opts.OnProgress(percent, stage, message)
		}
	}

	report(progressStart, StageSetup, "starting indexing")

	if err := s.store.Initialize(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	report(progressInitialized, StageSetup, "store initialized")

	if err := s.replaceExistingVersion(ctx, opts.Version); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report(progressReplaced, StageReplace, "existing version cleared")

	total, known := src.DocumentCount(ctx)
	if known {
		span.SetAttributes(attribute.Int("document_count", total))
	}
	report(progressCounted, StageScan, "documents counted")

	result := &Result{}
	var buffer []processor.Chunk

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if err := s.store.AddDocuments(ctx, buffer); err != nil {
			return fmt.Errorf("writing %d chunks: %w", len(buffer), err)
		}
		result.ChunksIndexed += len(buffer)
		buffer = buffer[:0]
		return nil
	}

	err := src.ReadDocuments(ctx, func(doc source.Document) error {
		chunks, err := s.processor.ProcessDocument(doc)
		if err != nil {
			s.logger.Warn("skipping document",
				zap.String("path", doc.Path),
				zap.Error(err),
			)
			return nil
		}

		for i := range chunks {
			chunks[i].Metadata.Version = opts.Version
			if !containsTag(chunks[i].Metadata.Tags, opts.Version) {
				chunks[i].Metadata.Tags = append(chunks[i].Metadata.Tags, opts.Version)
			}
		}
		buffer = append(buffer, chunks...)
		result.DocumentsProcessed++

		if len(buffer) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		report(ingestProgress(result.DocumentsProcessed, total, known),
			StageIngest, fmt.Sprintf("indexed %s", doc.Path))
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	if err := flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report(progressFlushed, StageFlush, "chunks flushed")

	s.logger.Info("indexing complete",
		zap.String("version", opts.Version),
		zap.Int("documents", result.DocumentsProcessed),
		zap.Int("chunks", result.ChunksIndexed),
	)
	report(progressDone, StageDone, "indexing complete")

	span.SetAttributes(
		attribute.Int("documents_processed", result.DocumentsProcessed),
		attribute.Int("chunks_indexed", result.ChunksIndexed),
	)
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// replaceExistingVersion deletes the version's chunks when it is already
// indexed.
func (s *Service) replaceExistingVersion(ctx context.Context, version string) error {
	versions, err := s.store.GetAllVersions(ctx)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	for _, v := range versions {
		if v != version {
			continue
		}
		s.logger.Info("replacing existing version", zap.String("version", version))
		if err := s.store.DeleteByVersion(ctx, version); err != nil {
			return fmt.Errorf("deleting version %s: %w", version, err)
		}
		return nil
	}
	return nil
}

// ingestProgress maps documents processed onto the ingestion progress span.
// With an unknown total it stays at the span start.
func ingestProgress(processed, total int, known bool) int {
	if !known || total <= 0 {
		return progressIngestStart
	}
	if processed > total {
		processed = total
	}
	span := progressIngestEnd - progressIngestStart
	return progressIngestStart + span*processed/total
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
