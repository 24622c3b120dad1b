package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <version>",
	Short: "Delete every chunk of one indexed version",
	Args:  cobra.ExactArgs(1),
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

		if !deleteYes && !confirm(fmt.Sprintf("Delete version %s?", args[0])) {
			fmt.Println("Aborted.")
			return nil
		}

		if err := app.store.DeleteByVersion(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted version %s\n", args[0])
		return nil
	},
}

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every indexed chunk",
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

		if !clearYes && !confirm("Delete ALL indexed documentation?") {
			fmt.Println("Aborted.")
			return nil
		}

		if err := app.store.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Println("Cleared all indexed documentation.")
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip confirmation")
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
