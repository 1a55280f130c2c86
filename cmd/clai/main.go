package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	// build time date
	buildDate = "unknown"
)

func main() {
	var (
		configPath  string
		useStdio    bool
		prettyLog   bool
		portFlag    int
		defsDirFlag string
	)

	rootCmd := &cobra.Command{
		Use:   "clai",
		Short: "clai MCP tool server",
		Long: `clai discovers TOOL.yaml definitions on the filesystem, mounts them into
typed callable tools, and serves the resulting catalog over the Model
Context Protocol (MCP).`,
		Version: fmt.Sprintf("%s (built: %s)", version, buildDate),
		// Default to serve command when no subcommand is provided
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, useStdio, prettyLog, portFlag, defsDirFlag)
		},
	}

	// Serve flags are also available on the root command so plain `clai`
	// behaves like `clai serve`
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to clai.yaml config file")
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (ignored if stdio is used)")
	rootCmd.Flags().BoolVar(&useStdio, "stdio", false, "Use stdio instead of TCP port")
	rootCmd.Flags().BoolVar(&prettyLog, "pretty", false, "Use pretty-printed logs instead of JSON")
	rootCmd.Flags().StringVar(&defsDirFlag, "definitions-dir", "", "Directory containing tool definitions (overrides config file)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newToolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
