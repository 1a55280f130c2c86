package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

// newCallCmd creates a new command to call a mounted tool
func newCallCmd() *cobra.Command {
	var (
		transport string
		port      int
		toolName  string
		argsJSON  string
		stdin     string
		claiBin   string
	)

	cmd := &cobra.Command{
		Use:   "call [flags]",
		Short: "Call a mounted tool",
		Long: `Call a mounted tool and display its output.

The tool can be called via HTTP or stdio transport. For HTTP transport,
a session will be automatically initialized. For stdio transport, the
clai binary will be spawned and communication happens via stdin/stdout.`,
		Example: `  # Call a tool via HTTP
  clai-test call --transport http --port 8080 --tool hello --args '{"name":"World"}'

  # Call a tool with stdin input
  clai-test call --transport http --tool greet --args '{"language":"es"}' --stdin "Maria"

  # Call a tool via stdio
  clai-test call --transport stdio --tool hello --args '{"name":"World"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var toolArgs map[string]any
			if argsJSON == "" {
				toolArgs = make(map[string]any)
			} else {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("invalid JSON in --args: %w", err)
				}
			}

			// Add stdin to arguments if provided
			if stdin != "" {
				toolArgs["stdin"] = stdin
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			session, err := connectSession(ctx, transport, port, claiBin)
			if err != nil {
				return err
			}
			defer session.Close() //nolint:errcheck // Ignore close errors on session

			result, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name:      toolName,
				Arguments: toolArgs,
			})
			if err != nil {
				return fmt.Errorf("tool call failed: %w", err)
			}

			fmt.Print(extractToolOutput(result))
			return nil
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "http", "Transport to use (http or stdio)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port (ignored for stdio)")
	cmd.Flags().StringVarP(&toolName, "tool", "n", "", "Tool name to call (required)")
	cmd.Flags().StringVarP(&argsJSON, "args", "a", "{}", "Tool arguments as JSON")
	cmd.Flags().StringVarP(&stdin, "stdin", "s", "", "Stdin input for tool")
	cmd.Flags().StringVar(&claiBin, "clai-bin", "", "Path to clai binary (for stdio transport, default: auto-detect)")

	if err := cmd.MarkFlagRequired("tool"); err != nil {
		// This should never happen, but handle it gracefully
		fmt.Fprintf(os.Stderr, "Warning: failed to mark tool flag as required: %v\n", err)
	}

	return cmd
}

// connectSession establishes an MCP session over the chosen transport.
func connectSession(ctx context.Context, transport string, port int, claiBin string) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "clai-test",
		Version: "1.0.0",
	}, nil)

	switch transport {
	case "http":
		httpTransport := &mcp.StreamableClientTransport{
			Endpoint: fmt.Sprintf("http://localhost:%d/mcp", port),
			HTTPClient: &http.Client{
				Timeout: 30 * time.Second,
			},
		}
		session, err := client.Connect(ctx, httpTransport, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		return session, nil
	case "stdio":
		if claiBin == "" {
			binPath, err := ensureClaiBinary()
			if err != nil {
				return nil, fmt.Errorf("clai binary not found in PATH (required for stdio transport): %w", err)
			}
			claiBin = binPath
		}
		// Stdio transport spawns the clai process itself
		stdioTransport := &mcp.CommandTransport{
			Command: exec.Command(claiBin, "serve", "--stdio"), // #nosec G204 -- binary path comes from the operator
		}
		session, err := client.Connect(ctx, stdioTransport, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		return session, nil
	default:
		return nil, fmt.Errorf("unknown transport: %s (supported: http, stdio)", transport)
	}
}

func ensureClaiBinary() (string, error) {
	// clai must be in the PATH
	if _, err := exec.LookPath("clai"); err != nil {
		return "", fmt.Errorf("clai binary not found in PATH")
	}
	return "clai", nil
}

func extractToolOutput(result *mcp.CallToolResult) string {
	// Try structuredContent.stdout first
	if result.StructuredContent != nil {
		if structuredMap, ok := result.StructuredContent.(map[string]any); ok {
			if stdout, ok := structuredMap["stdout"].(string); ok && stdout != "" {
				return stdout
			}
			if text, ok := structuredMap["text"].(string); ok && text != "" {
				return text
			}
		}
	}

	// Fall back to content[0].text
	if len(result.Content) > 0 {
		if textContent, ok := result.Content[0].(*mcp.TextContent); ok && textContent.Text != "" {
			return textContent.Text
		}
	}

	return ""
}
