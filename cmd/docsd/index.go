package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/index"
	"github.com/fyrsmithlabs/docsd/internal/jobs"
	"github.com/fyrsmithlabs/docsd/internal/processor"
	"github.com/fyrsmithlabs/docsd/internal/source"
)

var (
	indexVersion  string
	indexSource   string
	indexRevision string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a documentation tree under a version",
	Long: `Index reads markdown documents from a directory, zip archive, or git
repository, chunks them, and writes them to the vector store under the
given version. Re-indexing an existing version replaces it entirely.

Examples:
  # Index a directory as version 6.1.4
  docsd index ./docs --docs-version 6.1.4

  # Index a zip archive
  docsd index docs.zip --docs-version 6.2.0 --source zip

  # Index a git revision
  docsd index ./repo --docs-version 6.2.0 --source git --revision v6.2.0`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexVersion, "docs-version", "", "version label for this run (required)")
	indexCmd.Flags().StringVar(&indexSource, "source", "", "source type: fs, zip, or git (default: autodetect)")
	indexCmd.Flags().StringVar(&indexRevision, "revision", "", "git revision to read (git source only, default HEAD)")
	_ = indexCmd.MarkFlagRequired("docs-version")
}

func runIndex(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	src, err := openSource(app, args[0])
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Cleanup(); err != nil {
			app.logger.Warn("cleaning up source", zap.Error(err))
		}
	}()

	proc, err := processor.New(processor.Config{
		Strategy:           app.cfg.Indexing.Strategy,
		ChunkSize:          app.cfg.Indexing.ChunkSize,
		ChunkOverlap:       app.cfg.Indexing.ChunkOverlap,
		IncludeRootSegment: app.cfg.Indexing.IncludeRootSegment,
	}, app.logger)
	if err != nil {
		return err
	}

	svc, err := index.NewService(app.store, proc, app.cfg.Indexing.BatchSize, app.logger)
	if err != nil {
		return err
	}

	manager, err := newJobManager(app)
	if err != nil {
		return err
	}
	defer manager.Stop()

	job := manager.CreateJob("index", map[string]any{
		"version": indexVersion,
		"path":    args[0],
	})
	if err := manager.StartJob(job.ID); err != nil {
		return err
	}
	fmt.Printf("Indexing %s as version %s (job %s)\n", args[0], indexVersion, job.ID)

	result, err := svc.IndexDocuments(ctx, src, index.Options{
		Version: indexVersion,
		OnProgress: func(percent int, stage, message string) {
			if err := manager.UpdateProgress(job.ID, percent, stage, message); err != nil {
				app.logger.Warn("updating job progress", zap.Error(err))
			}
			fmt.Printf("  [%3d%%] %s\n", percent, message)
		},
	})
	if err != nil {
		if failErr := manager.FailJob(job.ID, err, string(debug.Stack())); failErr != nil {
			app.logger.Warn("recording job failure", zap.Error(failErr))
		}
		return err
	}

	if err := manager.CompleteJob(job.ID, result); err != nil {
		app.logger.Warn("recording job completion", zap.Error(err))
	}
	fmt.Printf("Indexed %d documents (%d chunks) as version %s\n",
		result.DocumentsProcessed, result.ChunksIndexed, indexVersion)
	return nil
}

// openSource picks the source implementation from the flag or the path.
func openSource(app *app, path string) (source.Source, error) {
	kind := indexSource
	if kind == "" {
		if strings.HasSuffix(strings.ToLower(path), ".zip") {
			kind = "zip"
		} else {
			kind = "fs"
		}
	}

	extensions := app.cfg.Indexing.Extensions
	switch kind {
	case "fs":
		return source.NewFSSource(path, extensions, app.logger)
	case "zip":
		return source.NewZipSource(path, extensions, app.logger)
	case "git":
		return source.NewGitSource(path, indexRevision, extensions, app.logger)
	default:
		return nil, fmt.Errorf("unknown source type %q (supported: fs, zip, git)", kind)
	}
}

// newJobManager wires the job manager, attaching the NATS publisher when
// enabled.
func newJobManager(app *app) (*jobs.Manager, error) {
	opts := []jobs.Option{jobs.WithRetention(app.cfg.Jobs.Retention)}

	if app.cfg.NATS.Enabled {
		publisher, err := jobs.NewNATSPublisher(app.cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting job publisher: %w", err)
		}
		opts = append(opts, jobs.WithPublisher(publisher))
	}

	manager := jobs.NewManager(app.logger, opts...)
	if err := manager.StartSweeper(app.cfg.Jobs.SweepSchedule); err != nil {
		return nil, err
	}
	return manager, nil
}
