package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/todosync/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "inspect",
	Short:   "Print the effective configuration",
	Long: `Print the configuration todosync would run with after merging defaults,
the config file, TODOSYNC_* environment variables and flags.

The output is a valid config file in the chosen format:
  todosync config > todosync.yaml
  todosync config --format toml > todosync.toml`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		cfg := mustLoadConfig()

		if used := loader.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "# loaded from %s\n", used)
		}
		if err := writeConfig(os.Stdout, cfg, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	settings := cfg.Settings()

	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	case "toml":
		if err := toml.NewEncoder(w).Encode(settings); err != nil {
			return fmt.Errorf("failed to encode TOML: %w", err)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q (use yaml, toml or json)", format)
	}
}

func init() {
	configCmd.Flags().String("format", "yaml", "Output format: yaml, toml or json")
	rootCmd.AddCommand(configCmd)
}
