package source

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ZipSource reads documents from a zip archive. The archive is opened once at
// construction and held open until Cleanup.
type ZipSource struct {
	reader     *zip.ReadCloser
	extensions []string
	logger     *zap.Logger
	closed     bool
}

// NewZipSource opens the archive at path.
func NewZipSource(path string, extensions []string, logger *zap.Logger) (*ZipSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening archive: %v", ErrInvalidPath, err)
	}

	return &ZipSource{
		reader:     reader,
		extensions: extensions,
		logger:     logger,
	}, nil
}

// ReadDocuments yields matching archive entries in archive order. Entries
// that fail to decompress are skipped with a warning.
func (s *ZipSource) ReadDocuments(ctx context.Context, fn func(Document) error) error {
	if s.closed {
		return ErrSourceClosed
	}

	for _, file := range s.reader.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if file.FileInfo().IsDir() || !s.includeEntry(file.Name) {
			continue
		}

		content, err := readZipEntry(file)
		if err != nil {
			s.logger.Warn("skipping unreadable archive entry",
				zap.String("entry", file.Name), zap.Error(err))
			continue
		}
		if !utf8.Valid(content) {
			s.logger.Warn("skipping non-UTF-8 archive entry", zap.String("entry", file.Name))
			continue
		}

		if err := fn(Document{
			Path:    file.Name,
			Content: string(content),
			Metadata: map[string]string{
				"size": fmt.Sprintf("%d", file.UncompressedSize64),
			},
		}); err != nil {
			return err
		}
	}

	return nil
}

// DocumentCount counts matching entries from the archive directory.
func (s *ZipSource) DocumentCount(ctx context.Context) (int, bool) {
	if s.closed {
		return 0, false
	}
	count := 0
	for _, file := range s.reader.File {
		if !file.FileInfo().IsDir() && s.includeEntry(file.Name) {
			count++
		}
	}
	return count, true
}

// Cleanup closes the archive handle. Idempotent.
func (s *ZipSource) Cleanup() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.reader.Close()
}

func (s *ZipSource) includeEntry(name string) bool {
	if !matchExtension(name, s.extensions) {
		return false
	}
	for _, segment := range strings.Split(name, "/") {
		if skipDirs[segment] {
			return false
		}
	}
	return true
}

func readZipEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

var _ Source = (*ZipSource)(nil)
