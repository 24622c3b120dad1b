package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"
)

// FSSource reads documents from a directory tree.
type FSSource struct {
	root       string
	extensions []string
	logger     *zap.Logger
	closed     bool
}

// NewFSSource creates a filesystem source rooted at path. The extensions
// allow-list defaults to Markdown when empty.
func NewFSSource(path string, extensions []string, logger *zap.Logger) (*FSSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrInvalidPath, cleanPath)
	}

	return &FSSource{
		root:       cleanPath,
		extensions: extensions,
		logger:     logger,
	}, nil
}

// ReadDocuments walks the tree and yields matching files in walk order.
// Unreadable or binary files are skipped with a warning.
func (s *FSSource) ReadDocuments(ctx context.Context, fn func(Document) error) error {
	if s.closed {
		return ErrSourceClosed
	}

	return filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if skipDirs[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !matchExtension(path, s.extensions) {
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable file", zap.String("path", relPath), zap.Error(err))
			return nil
		}
		if !utf8.Valid(content) {
			s.logger.Warn("skipping non-UTF-8 file", zap.String("path", relPath))
			return nil
		}

		return fn(Document{
			Path:    filepath.ToSlash(relPath),
			Content: string(content),
			Metadata: map[string]string{
				"size": fmt.Sprintf("%d", info.Size()),
			},
		})
	})
}

// DocumentCount counts matching files with a cheap pre-walk.
func (s *FSSource) DocumentCount(ctx context.Context) (int, bool) {
	if s.closed {
		return 0, false
	}

	count := 0
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if skipDirs[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if matchExtension(path, s.extensions) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, false
	}
	return count, true
}

// Cleanup releases resources. Filesystem sources hold none; idempotent.
func (s *FSSource) Cleanup() error {
	s.closed = true
	return nil
}

var _ Source = (*FSSource)(nil)
