package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/external"
	"github.com/mschirtzinger/todosync/internal/notify"
	"github.com/mschirtzinger/todosync/internal/sync"
	"github.com/mschirtzinger/todosync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "run",
	Short:   "Run one reconciliation cycle against the external system",
	Long: `Pull the external snapshot once and reconcile it into the local store.

This performs a single cycle:
  1. Fetches every list and item from the external system
  2. Creates local lists and items for unknown external ids
  3. Renames lists and updates items whose fields differ
  4. Deletes linked local items that disappeared externally

Local-only lists and items are never touched. Nothing is pushed outward.`,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		cfg := mustLoadConfig()
		logger := mustLogger(cfg)
		defer func() { _ = logger.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		if err := store.InitSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		client, err := external.NewClient(cfg.External.URL, external.WithTimeout(cfg.External.Timeout))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating external client: %v\n", err)
			os.Exit(1)
		}

		// One-shot runs have no subscribers; the notifier only satisfies the reconciler.
		reconciler := sync.NewReconciler(client, store, notify.New(nil, nil), logger.SugaredLogger, nil)

		if !jsonOutput {
			fmt.Printf("%s Syncing from %s...\n", ui.RenderAccent("🔄"), client.BaseURL())
		}

		res, err := reconciler.Reconcile(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error syncing: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(res)
			return
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), res.Duration.Round(time.Millisecond))
		fmt.Print(ui.KeyValues("Changes", []ui.Row{
			{Label: "Lists created", Value: res.ListsCreated},
			{Label: "Lists renamed", Value: res.ListsRenamed},
			{Label: "Items created", Value: res.ItemsCreated},
			{Label: "Items updated", Value: res.ItemsUpdated},
			{Label: "Items deleted", Value: res.ItemsDeleted},
		}))
		if res.ListFailures > 0 || res.ItemFailures > 0 {
			fmt.Printf("\n%s %d list(s) and %d item(s) failed to reconcile, see log for details\n",
				ui.RenderWarn("⚠"), res.ListFailures, res.ItemFailures)
		}
	},
}

func init() {
	syncCmd.Flags().Bool("json", false, "Output the result as JSON")
	rootCmd.AddCommand(syncCmd)
}
