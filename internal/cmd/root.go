// Package cmd provides the CLI commands for the mcpcore server and client
// tooling.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpcore/mcpcore/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpcore",
	Short: "mcpcore - Model Context Protocol core server",
	Long: `mcpcore implements the Model Context Protocol's session lifecycle,
tool/prompt/resource/completion registries, elicitation, and OAuth 2.0
resource-server authentication over both the stdio and HTTP+SSE transports.

Quick start:
  1. Create a config file: mcpcore.yaml
  2. Run: mcpcore serve

Configuration:
  Config is loaded from mcpcore.yaml in the current directory,
  $HOME/.mcpcore/, or /etc/mcpcore/.

  Environment variables can override config values with the MCPCORE_ prefix.
  Example: MCPCORE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Serve one session over stdio, or many over HTTP+SSE
  start       Start the server as a background daemon
  stop        Stop a running daemon
  hash-secret Generate an Argon2id hash for an OAuth client secret
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpcore.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
