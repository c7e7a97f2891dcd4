// Package cli implements the fundbridge command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fundbridge/fundbridge/internal/daemon"
)

var (
	flagConfig    string
	flagDataDir   string
	flagEphemeral bool
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "fundbridge",
	Short: "Donation-matching ledger",
	Long: `fundbridge matches incoming donations against charity projects,
oldest first, and keeps both sides of the ledger balanced.

Run 'fundbridge serve' for the HTTP API, or use the target, contribution
and report commands to work on the ledger directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default $FUNDBRIDGE_HOME/config.toml)")
	pf.StringVar(&flagDataDir, "data-dir", "", "Directory holding the ledger database")
	pf.BoolVar(&flagEphemeral, "ephemeral", false, "Use an in-memory ledger that is discarded on exit")
	pf.StringVar(&flagLogLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// loadConfig applies the persistent flags over the config file.
func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig(flagConfig)
	if err != nil {
		return daemon.Config{}, err
	}
	if flagDataDir != "" {
		cfg.Storage.DataDir = flagDataDir
	}
	if flagEphemeral {
		cfg.Storage.Driver = daemon.DriverMemory
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, cfg.Validate()
}

// openApp loads the config and wires an App. Logs go to stderr so command
// output stays machine readable.
func openApp(cmd *cobra.Command) (*daemon.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openAppWith(cmd, cfg)
}

func openAppWith(cmd *cobra.Command, cfg daemon.Config) (*daemon.App, error) {
	return daemon.Open(cfg, daemon.NewLogger(cfg.Log, cmd.ErrOrStderr()))
}

// Output formats for listing commands.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", outputTable, "Output format: table, json or yaml")
}

// writeStructured writes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
