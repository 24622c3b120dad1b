package source

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// GitSource reads documents from a git repository tree at a given revision.
// Documentation releases are usually git tags, which makes a revision-pinned
// source a natural fit for version-tagged ingestion.
type GitSource struct {
	tree       *object.Tree
	revision   string
	extensions []string
	logger     *zap.Logger
	closed     bool
}

// NewGitSource opens the repository at path and resolves revision (a tag,
// branch, or commit hash). An empty revision resolves to HEAD.
func NewGitSource(path, revision string, extensions []string, logger *zap.Logger) (*GitSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if revision == "" {
		revision = "HEAD"
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening repository: %v", ErrInvalidPath, err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("resolving revision %q: %w", revision, err)
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", hash, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree for %s: %w", hash, err)
	}

	return &GitSource{
		tree:       tree,
		revision:   revision,
		extensions: extensions,
		logger:     logger,
	}, nil
}

// ReadDocuments yields matching blobs from the pinned tree. Blobs that fail
// to read are skipped with a warning.
func (s *GitSource) ReadDocuments(ctx context.Context, fn func(Document) error) error {
	if s.closed {
		return ErrSourceClosed
	}

	return s.tree.Files().ForEach(func(file *object.File) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !s.includeFile(file.Name) {
			return nil
		}

		content, err := file.Contents()
		if err != nil {
			s.logger.Warn("skipping unreadable blob",
				zap.String("path", file.Name), zap.Error(err))
			return nil
		}
		if !utf8.ValidString(content) {
			s.logger.Warn("skipping non-UTF-8 blob", zap.String("path", file.Name))
			return nil
		}

		return fn(Document{
			Path:    file.Name,
			Content: content,
			Metadata: map[string]string{
				"revision": s.revision,
				"size":     fmt.Sprintf("%d", file.Size),
			},
		})
	})
}

// DocumentCount counts matching blobs in the pinned tree.
func (s *GitSource) DocumentCount(ctx context.Context) (int, bool) {
	if s.closed {
		return 0, false
	}

	count := 0
	err := s.tree.Files().ForEach(func(file *object.File) error {
		if s.includeFile(file.Name) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, false
	}
	return count, true
}

// Cleanup releases the tree reference. Idempotent.
func (s *GitSource) Cleanup() error {
	s.closed = true
	s.tree = nil
	return nil
}

func (s *GitSource) includeFile(name string) bool {
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

var _ Source = (*GitSource)(nil)
