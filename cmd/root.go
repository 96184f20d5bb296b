// Package cmd provides the command-line interface for the hierview tool.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hierview",
	Short: "Hierview serves a browser-based viewer for JIRA issue hierarchies",
	Long: `Hierview is a web server that renders JIRA RFE → STRAT → Epic → Task
hierarchies in the browser. It assembles the hierarchy level by level from the
tracker's flat, paginated query API and streams partial results to the page as
they become available, so large trees render incrementally.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
}
