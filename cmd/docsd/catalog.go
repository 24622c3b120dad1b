package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List indexed versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		if err := app.store.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}

		versions, err := app.store.GetAllVersions(ctx)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No versions indexed.")
			return nil
		}

		latest, err := app.store.GetLatestVersion(ctx)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if v == latest {
				fmt.Printf("%s (latest)\n", v)
			} else {
				fmt.Println(v)
			}
		}
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags across all indexed chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		if err := app.store.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}

		tags, err := app.store.GetAllTags(ctx)
		if err != nil {
			return err
		}
		for _, tag := range tags {
			fmt.Println(tag)
		}
		return nil
	},
}

var chunksVersion string

var chunksCmd = &cobra.Command{
	Use:   "chunks <path>",
	Short: "Show the indexed chunks of one document",
	Long: `Chunks prints every stored chunk of a document path in chunk order.

Examples:
  docsd chunks guides/grid/columns.md
  docsd chunks guides/grid/columns.md --docs-version 6.1.4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		if err := app.store.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}

		chunks, err := app.store.GetDocumentChunks(ctx, args[0], chunksVersion)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			fmt.Println("No chunks found.")
			return nil
		}

		for _, chunk := range chunks {
			fmt.Printf("--- chunk %d/%d", chunk.Metadata.ChunkIndex+1, chunk.Metadata.TotalChunks)
			if chunk.Metadata.Heading != "" {
				fmt.Printf(" (%s)", chunk.Metadata.Heading)
			}
			fmt.Printf(" [%s]\n%s\n", chunk.Metadata.Version, chunk.Text)
		}
		return nil
	},
}

func init() {
	chunksCmd.Flags().StringVar(&chunksVersion, "docs-version", "", "restrict to one version")
}
