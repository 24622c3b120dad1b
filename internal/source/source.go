// Package source provides document sources for the indexing pipeline.
//
// A Source yields raw documents from a directory tree, an archive, or a git
// revision. Sources are best-effort: a single unreadable entry is skipped and
// logged, never failing the whole read.
package source

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Sentinel errors for source operations.
var (
	// ErrInvalidPath indicates the source path is missing or not usable.
	ErrInvalidPath = errors.New("invalid source path")

	// ErrSourceClosed is returned when reading from a cleaned-up source.
	ErrSourceClosed = errors.New("source is closed")
)

// Document is a raw document produced by a Source and consumed once by the
// processor.
type Document struct {
	// Path is the document path relative to the source root, using forward
	// slashes.
	Path string

	// Content is the full text content.
	Content string

	// Metadata carries source-specific attributes (size, revision, ...).
	Metadata map[string]string
}

// Source produces a lazy, single-pass sequence of documents.
//
// ReadDocuments is restartable only by re-acquiring the Source; archive-backed
// sources hold their handle open until Cleanup.
type Source interface {
	// ReadDocuments invokes fn for each matching document in turn. An error
	// returned by fn aborts the read and is propagated. Unreadable entries
	// are skipped, not propagated.
	ReadDocuments(ctx context.Context, fn func(Document) error) error

	// DocumentCount returns the total number of matching documents and true
	// when the count is cheaply known, or (0, false) otherwise.
	DocumentCount(ctx context.Context) (int, bool)

	// Cleanup releases any held resources. Idempotent.
	Cleanup() error
}

// defaultExtensions is the extension allow-list used when none is configured.
var defaultExtensions = []string{".md", ".markdown"}

// matchExtension reports whether path has one of the allowed extensions.
// Comparison is case-insensitive.
func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		extensions = defaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// skipDirs are directories never descended into during filesystem reads.
var skipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}
