// Package server implements the clai MCP server surface.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Mmeadows3/clai/internal/bootstrap"
	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/config"
	"github.com/Mmeadows3/clai/internal/core"
	"github.com/Mmeadows3/clai/internal/dispatch"
	"github.com/Mmeadows3/clai/internal/mount"
)

const (
	serverName    = "clai"
	serverVersion = "1.0.0"
	mcpPath       = "/mcp"
	healthzPath   = "/healthz"
)

// ClaiServer stores the state and dependencies for the clai MCP server.
type ClaiServer struct {
	config       *config.Config
	catalog      *catalog.Catalog
	orchestrator *bootstrap.Orchestrator
	dispatcher   *dispatch.Dispatcher

	mu            sync.RWMutex
	claiMCPserver *mcp.Server
	httpHandler   *mcp.StreamableHTTPHandler
}

// NewClaiServer creates a new ClaiServer instance. The server is not
// servable until Bootstrap has run the startup pipeline.
func NewClaiServer(cfg *config.Config) *ClaiServer {
	cat := catalog.New()
	mounter := mount.NewMounter(core.NewProcessRunner(cfg.Timeout))

	srv := &ClaiServer{
		config:       cfg,
		catalog:      cat,
		orchestrator: bootstrap.New(cfg.DefinitionsDir, mounter, cat),
		dispatcher:   dispatch.New(cat, cfg.MaxCallDepth),
	}

	// Create HTTP handler that manages sessions, Origin validation, etc.
	srv.httpHandler = mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server {
			srv.mu.RLock()
			defer srv.mu.RUnlock()
			return srv.claiMCPserver
		},
		&mcp.StreamableHTTPOptions{
			Stateless: false,
		},
	)

	return srv
}

// Orchestrator exposes the startup orchestrator, mainly for readiness
// checks and tests.
func (s *ClaiServer) Orchestrator() *bootstrap.Orchestrator {
	return s.orchestrator
}

// Dispatcher exposes the tool dispatcher for in-process callers.
func (s *ClaiServer) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Bootstrap runs the startup registration pipeline and builds the MCP
// server from the populated catalog. A failed pipeline (unreadable
// definition source) leaves the server unservable and returns the
// error.
func (s *ClaiServer) Bootstrap() error {
	if err := s.orchestrator.Run(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.claiMCPserver = mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: serverVersion},
		nil,
	)

	for contract := range s.catalog.All() {
		s.registerTool(contract)
	}

	return nil
}

// registerTool registers a single contract with the MCP server
func (s *ClaiServer) registerTool(contract *catalog.Contract) {
	// Wrap with panic recovery at the handler boundary since this is the
	// single point where we can return proper MCP error responses
	handler := func(ctx context.Context, req *mcp.CallToolRequest, input map[string]any) (
		result *mcp.CallToolResult,
		output map[string]any,
		err error,
	) {
		defer func() {
			if r := recover(); r != nil {
				core.LogPanicRecovery("tool handler", r)
				result = &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{
						&mcp.TextContent{
							Text: fmt.Sprintf("internal error: panic recovered in tool execution: %v", r),
						},
					},
				}
				output = nil
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return s.handleToolCall(ctx, contract, input)
	}

	mcpTool := &mcp.Tool{
		Name:        contract.Name,
		Description: contract.Description,
		InputSchema: contract.InputSchema(),
	}

	if outputSchema := contract.OutputSchema(); outputSchema != nil {
		mcpTool.OutputSchema = outputSchema
	}

	if contract.PrePrompt != "" {
		mcpTool.Meta = mcp.Meta{"pre_prompt": contract.PrePrompt}
	}

	mcp.AddTool(s.claiMCPserver, mcpTool, handler)
	zap.L().Debug("Registered tool with MCP server",
		zap.String("tool", contract.Name),
		zap.String("kind", string(contract.Kind)))
}

// handleToolCall runs one invocation through the dispatcher and maps
// its structured result onto the MCP response.
func (s *ClaiServer) handleToolCall(
	ctx context.Context,
	contract *catalog.Contract,
	input map[string]any,
) (*mcp.CallToolResult, map[string]any, error) {
	result := s.dispatcher.CallTool(ctx, dispatch.Request{
		Tool:      contract.Name,
		Arguments: input,
	})

	if result.Status != dispatch.StatusOK {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{
					Text: fmt.Sprintf("%s: %s", result.Status, result.Detail),
				},
			},
		}, nil, nil
	}

	// Structured content is validated and attached by the SDK from the
	// output map; Content stays empty for structured results.
	return &mcp.CallToolResult{}, result.Payload, nil
}

// handleHealthz reports process readiness: servable only at Ready or
// Degraded, never at Init, LoadingDefinitions or Failed.
func (s *ClaiServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusOK
	if !s.orchestrator.Servable() {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]any{
		"phase":      string(s.orchestrator.Phase()),
		"registered": s.catalog.RegisteredCount(),
		"failed":     s.catalog.FailedCount(),
	}); err != nil {
		zap.L().Error("Failed to write healthz response", zap.Error(err))
	}
}

// Serve starts the server on the given address using HTTP (Streamable HTTP transport per MCP spec)
// The StreamableHTTPHandler manages sessions, Origin validation, and HTTP protocol details
func (s *ClaiServer) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()

	// MCP endpoint that handles both POST (client requests) and GET (SSE stream)
	mux.Handle(mcpPath, s.httpHandler)
	mux.HandleFunc(healthzPath, s.handleHealthz)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zap.L().Info("Server listening", zap.String("address", addr))

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Server shutdown error", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

// ServeStdio starts the server using stdio transport (per MCP spec)
func (s *ClaiServer) ServeStdio(ctx context.Context) error {
	transport := &mcp.StdioTransport{}
	s.mu.RLock()
	server := s.claiMCPserver
	s.mu.RUnlock()
	return server.Run(ctx, transport)
}
