// Command todosync keeps a local todo store in sync with an external todo
// system and serves it over HTTP and WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/todosync/internal/config"
	"github.com/mschirtzinger/todosync/internal/logging"
)

var (
	loader     = config.NewLoader()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "todosync",
	Short: "Two-way sync between a local todo store and an external todo system",
	Long: `todosync mirrors todo lists and items between a local SQLite store and an
external todo system.

Lists and items created in the external system are pulled on a fixed
interval. Local changes are pushed outward in the background. Item updates
are queued and applied by workers, and every applied change is streamed to
WebSocket clients subscribed to the list.

Configuration is read from todosync.{yaml,toml,json} in the working directory
or $XDG_CONFIG_HOME/todosync, from TODOSYNC_* environment variables, and from
the flags below, in increasing precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "run", Title: "Running:"},
		&cobra.Group{ID: "inspect", Title: "Inspecting:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default: search . and $XDG_CONFIG_HOME/todosync)")
	flags.String("db", "", "Path to the local SQLite database")
	flags.String("external-url", "", "Base URL of the external todo API")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	v := loader.Viper()
	_ = v.BindPFlag("database.path", flags.Lookup("db"))
	_ = v.BindPFlag("external.url", flags.Lookup("external-url"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustLoadConfig loads the effective configuration or exits.
func mustLoadConfig() *config.Config {
	cfg, err := loader.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// mustLogger builds the process logger from cfg or exits.
func mustLogger(cfg *config.Config) *logging.Logger {
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
