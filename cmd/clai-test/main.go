package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version   string // Set via -ldflags at build time
	buildDate string // Set via -ldflags at build time
)

func init() {
	if version == "" {
		version = "dev"
	}
	if buildDate == "" {
		buildDate = "unknown"
	}
}

func main() {
	// set up zap logger - explicitly write to stderr to avoid interfering with tool stdout
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // Ignore close errors on logger
	zap.ReplaceGlobals(logger)

	rootCmd := &cobra.Command{
		Use:   "clai-test",
		Short: "Test clai tools via HTTP or stdio transports",
		Long: `clai-test is a CLI tool for probing a running clai server.

It supports both HTTP and stdio transports and can initialize sessions,
call tools, and run the post-startup validation pass.`,
		Version: fmt.Sprintf("%s (built: %s)", version, buildDate),
	}

	// add commands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
