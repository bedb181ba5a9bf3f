// Package cmd provides the conductor CLI commands.
//
// Commands:
//   - serve: HTTP API server exposing the tool-call endpoint
//   - mcp: Model Context Protocol server on stdio for agent hosts
//   - migrate: apply pending database migrations
//   - tools: print the tool catalogue as JSON
//   - version: show version information
//
// All long-running commands handle SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cityair/conductor/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Tool orchestration engine for the air quality dashboard",
	Long: `Conductor executes the dashboard's conversational tool calls: it
validates them against the tool schema registry, applies rate and access
limits, tracks per-session view state, and routes reads through the
aggregation cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment lowers the
// level; logs go to stderr so stdout stays free for MCP JSON-RPC.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
