package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cityair/conductor/internal/dispatch"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool catalogue as JSON",
	Long: `Prints every registered tool with its parameter schema, the same
catalogue served at GET /api/v1/tools and advertised over MCP. Needs no
database connection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := dispatch.BuildRegistry()
		if err != nil {
			return fmt.Errorf("building tool registry: %w", err)
		}

		encoded, err := json.MarshalIndent(registry.Catalog(), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding catalogue: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
