package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/todosync/internal/config"
	"github.com/mschirtzinger/todosync/internal/dashboard"
	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/external"
	"github.com/mschirtzinger/todosync/internal/metrics"
	"github.com/mschirtzinger/todosync/internal/notify"
	"github.com/mschirtzinger/todosync/internal/push"
	"github.com/mschirtzinger/todosync/internal/queue"
	"github.com/mschirtzinger/todosync/internal/sync"
	"github.com/mschirtzinger/todosync/internal/todo"
	"github.com/mschirtzinger/todosync/internal/ui"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "run",
	Short:   "Run the sync scheduler, queue workers and HTTP gateway",
	Long: `Run todosync as a long-lived process.

This starts:
  - the pull scheduler, reconciling from the external system every sync.interval
  - the queue workers that apply item updates
  - the HTTP gateway on server.addr with the REST API under /api/todolists,
    the WebSocket endpoint /ws, /health and /metrics

Edits to the config file change the log level without a restart.
SIGINT or SIGTERM stops everything gracefully.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		logger := mustLogger(cfg)
		defer func() { _ = logger.Close() }()
		log := logger.SugaredLogger

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

		m := metrics.New()
		dispatcher := push.New(external.NewAdapter(client, store), log, m)
		notifier := notify.New(log, m)
		q := queue.New(cfg.Queue.Capacity, m)
		worker := queue.NewWorker(q, store, notifier, dispatcher,
			queue.WithConcurrency(cfg.Queue.Workers),
			queue.WithLogger(log),
			queue.WithMetrics(m),
		)
		reconciler := sync.NewReconciler(client, store, notifier, log, m)
		scheduler := sync.NewScheduler(reconciler, cfg.Sync.Interval, log)
		svc := todo.New(store, q, notifier, dispatcher, log)
		server := dashboard.NewServer(dashboard.Config{
			Addr:    cfg.Server.Addr,
			Logger:  log,
			Metrics: m,
		}, svc, notifier)

		loader.Watch(func(next *config.Config) {
			if err := logger.SetLevel(next.Log.Level); err != nil {
				log.Warnf("Ignoring log level change: %v", err)
				return
			}
			log.Infof("Log level set to %s", next.Log.Level)
		}, func(err error) {
			log.Warnf("%v", err)
		})

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s todosync serving on %s\n", ui.RenderPass("✓"), server.Addr())
		fmt.Printf("  External: %s (every %s)\n", client.BaseURL(), cfg.Sync.Interval)
		fmt.Printf("  Database: %s\n", store.Path())
		fmt.Println("\nPress Ctrl+C to stop...")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return scheduler.Start(gctx) })
		g.Go(func() error { return worker.Run(context.WithoutCancel(gctx)) })
		g.Go(func() error {
			<-gctx.Done()
			// Workers finish what is already queued, then stop.
			q.Close()
			return nil
		})

		if err := g.Wait(); err != nil {
			log.Errorf("Background task failed: %v", err)
		}

		fmt.Printf("\n%s Shutting down...\n", ui.RenderAccent("⏻"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		dispatcher.Close()

		fmt.Println("todosync stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
