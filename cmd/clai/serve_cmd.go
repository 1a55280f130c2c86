package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mmeadows3/clai/internal/config"
	"github.com/Mmeadows3/clai/internal/core"
	"github.com/Mmeadows3/clai/internal/server"
)

// newServeCmd creates the serve command
func newServeCmd() *cobra.Command {
	var (
		configPath  string
		useStdio    bool
		prettyLog   bool
		portFlag    int
		defsDirFlag string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the clai MCP server",
		Long: `Start the clai MCP server. This is the default command when no subcommand is specified.

At startup the server discovers tool definitions, mounts them into the
catalog, and becomes servable once the catalog is populated. Definitions
that fail to mount are reported and skipped; the server still starts in
a degraded state as long as at least one tool registered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, useStdio, prettyLog, portFlag, defsDirFlag)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to clai.yaml config file")
	cmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (ignored if stdio is used)")
	cmd.Flags().BoolVar(&useStdio, "stdio", false, "Use stdio instead of TCP port")
	cmd.Flags().BoolVar(&prettyLog, "pretty", false, "Use pretty-printed logs instead of JSON")
	cmd.Flags().StringVar(&defsDirFlag, "definitions-dir", "", "Directory containing tool definitions (overrides config file)")

	return cmd
}

// runServe runs the server with the given flags
func runServe(configPath string, useStdio bool, prettyLog bool, portFlag int, defsDirFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v", err)
		return err
	}

	// Apply definitions directory override if provided via flag
	if defsDirFlag != "" {
		if err := cfg.SetDefinitionsDir(defsDirFlag); err != nil {
			return err
		}
	}

	// Resolve logging format: CLI flag wins; otherwise config
	prettyLog = resolveLogFormat(cfg, prettyLog)

	// Initialize global logger
	if err := core.Init(prettyLog); err != nil {
		fmt.Printf("Failed to initialize logger: %v", err)
		return err
	}
	defer zap.L().Sync() //nolint:errcheck // Ignore sync errors on stdout/stderr, they're not critical and common in test environments

	if err := validateAndApplyPort(cfg, portFlag, useStdio); err != nil {
		fmt.Printf("%s\n", err)
		return err
	}

	srv := server.NewClaiServer(cfg)

	// An unreadable definition source means the process never becomes
	// servable; exit non-zero.
	if err := srv.Bootstrap(); err != nil {
		zap.L().Error("Startup failed", zap.Error(err))
		return fmt.Errorf("startup failed: %w", err)
	}

	ctx, cancel := setupSignalHandling(context.Background())
	defer cancel()

	if err := runServer(ctx, srv, useStdio, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			zap.L().Info("Server context canceled, exiting gracefully")
			return nil
		}

		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// resolveLogFormat determines the log format based on CLI flag and config
func resolveLogFormat(cfg *config.Config, prettyLog bool) bool {
	if !prettyLog && cfg.LogFormat == config.LogFormatPretty {
		return true
	}
	return prettyLog
}

// validateAndApplyPort validates the port flag and applies port logic to config
func validateAndApplyPort(cfg *config.Config, portFlag int, useStdio bool) error {
	if portFlag < 0 {
		return fmt.Errorf("port must be a positive integer (or 0 to remain unset), got %d", portFlag)
	}

	// Command line flag overrides config file
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	if !useStdio && portFlag == 0 && cfg.Port == 0 {
		cfg.Port = config.DefaultPort
	}

	return nil
}

// setupSignalHandling sets up signal handling for graceful shutdown.
// The catalog is immutable after startup, so there is no reload signal;
// re-registration requires a restart.
func setupSignalHandling(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		zap.L().Info("Received shutdown signal")
		cancel()
	}()

	return ctx, cancel
}

// runServer starts the server in either stdio or HTTP mode
func runServer(ctx context.Context, srv *server.ClaiServer, useStdio bool, cfg *config.Config) error {
	if useStdio {
		zap.L().Info("Starting clai server on stdio")
		return srv.ServeStdio(ctx)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	zap.L().Info("Starting clai server", zap.String("address", addr))
	return srv.Serve(ctx, addr)
}
