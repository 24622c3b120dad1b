// Package main implements the docsd CLI for indexing and searching
// versioned documentation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsd/internal/config"
	"github.com/fyrsmithlabs/docsd/internal/embeddings"
	"github.com/fyrsmithlabs/docsd/internal/logging"
	"github.com/fyrsmithlabs/docsd/internal/vectorstore"
)

var (
	// configPath is the optional path to a config file.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docsd",
	Short: "Index and search versioned documentation",
	Long: `docsd ingests documentation trees into a vector store and answers
semantic search queries against any indexed version.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/docsd/config.yaml)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(chunksCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(jobsCmd)
}

// app bundles the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder *embeddings.Service
	store    vectorstore.Store
}

// newApp loads configuration and wires the embedder and vector store.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
		APIKey:   os.Getenv("OPENAI_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	embedder, err := embeddings.NewService(provider, cfg.Embeddings.BatchSize, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	store, err := vectorstore.NewStore(cfg, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		store:    store,
	}, nil
}

// Close releases the store and embedder.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("closing embedder", zap.Error(err))
	}
	_ = a.logger.Sync()
}
