package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "inspect",
	Short:   "Show local store counts",
	Long: `Show how many lists and items the local store holds and how many of them
are linked to the external system. Unlinked entries were created locally and
have not been pushed successfully yet.`,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		cfg := mustLoadConfig()

		if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: database not found at %s\n", cfg.Database.Path)
			fmt.Fprintf(os.Stderr, "Run 'todosync sync' or 'todosync serve' to create it\n")
			os.Exit(1)
		}

		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		ctx := context.Background()
		if err := store.InitSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(stats)
			return
		}

		fmt.Print(ui.KeyValues("todosync status", []ui.Row{
			{Label: "Database", Value: store.Path()},
			{Label: "Lists", Value: fmt.Sprintf("%d (%d linked, %d local only)", stats.Lists, stats.LinkedLists, stats.Lists-stats.LinkedLists)},
			{Label: "Items", Value: fmt.Sprintf("%d (%d linked, %d local only)", stats.Items, stats.LinkedItems, stats.Items-stats.LinkedItems)},
			{Label: "Done", Value: stats.DoneItems},
		}))

		if unlinked := (stats.Lists - stats.LinkedLists) + (stats.Items - stats.LinkedItems); unlinked > 0 {
			fmt.Printf("\n%s %d entries not yet linked to the external system\n", ui.RenderWarn("⚠"), unlinked)
		} else {
			fmt.Printf("\n%s Everything is linked\n", ui.RenderPass("✓"))
		}
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output counts as JSON")
	rootCmd.AddCommand(statusCmd)
}
