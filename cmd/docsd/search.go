package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docsd/internal/query"
)

var (
	searchVersion   string
	searchTags      []string
	searchLimit     int
	searchProduct   string
	searchFramework string
	searchType      string
	searchFormat    string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed documentation",
	Long: `Search runs a hybrid semantic search against one indexed version.
Without --docs-version the latest version is searched.

Examples:
  # Search the latest version
  docsd search "column resizing"

  # Search a specific version, react docs only
  docsd search "event handlers" --docs-version 6.1.4 --tags react

  # Machine-readable output
  docsd search "sorting" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchVersion, "docs-version", "", "version to search (default: latest)")
	searchCmd.Flags().StringSliceVar(&searchTags, "tags", nil, "keep results matching any listed tag")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().StringVar(&searchProduct, "product", "", "restrict by product")
	searchCmd.Flags().StringVar(&searchFramework, "framework", "", "restrict by framework")
	searchCmd.Flags().StringVar(&searchType, "type", "", "restrict by document type")
	searchCmd.Flags().StringVar(&searchFormat, "format", "context", "output format: context or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	if err := app.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	svc, err := query.NewService(app.store, app.logger)
	if err != nil {
		return err
	}

	resp, err := svc.Search(ctx, query.Request{
		Query:     args[0],
		Limit:     searchLimit,
		Version:   searchVersion,
		Tags:      searchTags,
		Product:   searchProduct,
		Framework: searchFramework,
		Type:      searchType,
	})
	if err != nil {
		return err
	}

	switch searchFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "context":
		fmt.Print(query.FormatContext(resp))
		return nil
	default:
		return fmt.Errorf("unknown format %q (supported: context, json)", searchFormat)
	}
}
