// Package query answers search requests against indexed documentation.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/vectorstore"
)

var tracer = otel.Tracer("docsd.query")

// ErrEmptyQuery indicates a request without query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

const (
	defaultLimit = 10
	maxLimit     = 50

	// tagOverFetch widens the store fetch when tag post-filtering will
	// discard results.
	tagOverFetch = 3
)

// Request is one search request.
type Request struct {
	// Query is the search text. Required.
	Query string

	// Limit caps returned results. Defaults to 10, capped at 50.
	Limit int

	// Version restricts the search to one indexed version. Empty selects
	// the latest version by string order.
	Version string

	// Tags keeps only results whose tag set intersects the listed tags.
	Tags []string

	// Product, Framework, and Type restrict by derived metadata.
	Product   string
	Framework string
	Type      string
}

// Response is the outcome of one search.
type Response struct {
	// Version is the version actually searched.
	Version string

	Results []vectorstore.SearchResult
}

// Service resolves versions and runs filtered searches on the store.
type Service struct {
	store  vectorstore.Store
	logger *zap.Logger
}

// NewService creates a query service.
func NewService(store vectorstore.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}, nil
}

// Search runs a hybrid search for the request.
//
// When no version is given, the latest indexed version is used; with nothing
// indexed at all the response is empty rather than an error. Tag conditions
// are applied as a post-filter over an over-fetched candidate set, keeping
// results carrying any of the requested tags.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "Service.Search")
	defer span.End()

	if strings.TrimSpace(req.Query) == "" {
		span.SetStatus(codes.Error, "empty query")
		return nil, ErrEmptyQuery
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	version, err := s.resolveVersion(ctx, req.Version)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if version == "" {
		span.SetStatus(codes.Ok, "no versions indexed")
		return &Response{}, nil
	}
	span.SetAttributes(
		attribute.String("version", version),
		attribute.Int("limit", limit),
	)

	filter := vectorstore.Filter{"version": version}
	if req.Product != "" {
		filter["product"] = req.Product
	}
	if req.Framework != "" {
		filter["framework"] = req.Framework
	}
	if req.Type != "" {
		filter["type"] = req.Type
	}

	fetch := limit
	if len(req.Tags) > 0 {
		fetch = limit * tagOverFetch
	}

	results, err := s.store.Search(ctx, req.Query, fetch, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching version %s: %w", version, err)
	}

	if len(req.Tags) > 0 {
		results = filterByTags(results, req.Tags)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug("search complete",
		zap.String("version", version),
		zap.Int("results", len(results)),
	)

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return &Response{Version: version, Results: results}, nil
}

// resolveVersion returns the requested version, or the latest indexed one
// when the request leaves it empty.
func (s *Service) resolveVersion(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	latest, err := s.store.GetLatestVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving latest version: %w", err)
	}
	return latest, nil
}

// filterByTags keeps results whose tag set intersects the requested tags.
func filterByTags(results []vectorstore.SearchResult, tags []string) []vectorstore.SearchResult {
	kept := results[:0]
	for _, result := range results {
		if hasAnyTag(result.Metadata.Tags, tags) {
			kept = append(kept, result)
		}
	}
	return kept
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]struct{}, len(want))
	for _, tag := range want {
		set[tag] = struct{}{}
	}
	for _, tag := range have {
		if _, ok := set[tag]; ok {
			return true
		}
	}
	return false
}

// FormatContext renders results as a markdown context block suitable for
// prompt assembly. Distance is 1 minus the hybrid score.
func FormatContext(resp *Response) string {
	if resp == nil || len(resp.Results) == 0 {
		return "No matching documentation found.\n"
	}

	var b strings.Builder
	for i, result := range resp.Results {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		heading := result.Metadata.Heading
		if heading == "" {
			heading = result.Metadata.DocumentPath
		}
		fmt.Fprintf(&b, "## %s\n", heading)
		fmt.Fprintf(&b, "Source: %s (%s)\n", result.Metadata.DocumentPath, result.Metadata.Version)
		fmt.Fprintf(&b, "Distance: %.4f\n\n", 1-result.Score)
		b.WriteString(strings.TrimSpace(result.Text))
		b.WriteString("\n")
	}
	return b.String()
}
