package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpcore/mcpcore/internal/config"
)

var startDevMode bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server, recording a PID file for \"mcpcore stop\"",
	Long: `start runs the same server "mcpcore serve" does, additionally
writing a PID file at ~/.mcpcore/server.pid so "mcpcore stop" can find and
signal this process later.

Examples:
  mcpcore start
  mcpcore start --dev
  mcpcore --config /path/to/config.yaml start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startDevMode, "dev", false, "enable development mode (debug logging, auth gate disabled)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if startDevMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write PID file at %s: %v\n", pidPath, err)
	} else {
		defer os.Remove(pidPath)
	}

	return runCore(cfg)
}
