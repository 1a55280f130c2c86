package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/definition"
)

// echoContract registers a contract that echoes its message argument
func echoContract(t *testing.T, cat *catalog.Catalog, name string) {
	t.Helper()
	contract := catalog.NewContract(name, definition.KindCLICommand,
		func(_ context.Context, args map[string]any, _ catalog.CallFunc) (map[string]any, error) {
			return map[string]any{"stdout": args["message"], "exit_code": 0}, nil
		})
	contract.Inputs = []definition.ParamSpec{{Name: "message", Type: "string", Required: true}}
	require.NoError(t, cat.Register(contract))
}

// relayContract registers a contract that calls target and relays its stdout
func relayContract(t *testing.T, cat *catalog.Catalog, name, target string, targetArgs map[string]any) {
	t.Helper()
	contract := catalog.NewContract(name, definition.KindScriptRunner,
		func(ctx context.Context, _ map[string]any, call catalog.CallFunc) (map[string]any, error) {
			payload, err := call(ctx, target, targetArgs)
			if err != nil {
				return nil, err
			}
			return map[string]any{"stdout": payload["stdout"], "exit_code": 0}, nil
		})
	require.NoError(t, cat.Register(contract))
}

// TestCallTool_Success tests a plain top-level call
func TestCallTool_Success(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{
		Tool:      "echo",
		Arguments: map[string]any{"message": "hi"},
	})

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "hi", result.Payload["stdout"])
	assert.Empty(t, result.Detail)
}

// TestCallTool_NotFound tests an unknown tool name
func TestCallTool_NotFound(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "missing-tool"})
	assert.Equal(t, StatusToolNotFound, result.Status)
	assert.Contains(t, result.Detail, `unknown tool "missing-tool"`)
}

// TestCallTool_NotFoundSuggestion tests the "did you mean" suggestion for near misses
func TestCallTool_NotFoundSuggestion(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "eco"})
	assert.Equal(t, StatusToolNotFound, result.Status)
	assert.Contains(t, result.Detail, `did you mean "echo"?`)
}

// TestCallTool_NotFoundNoSuggestion tests that distant names get no suggestion
func TestCallTool_NotFoundNoSuggestion(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "kubernetes-deploy"})
	assert.Equal(t, StatusToolNotFound, result.Status)
	assert.NotContains(t, result.Detail, "did you mean")
}

// TestCallTool_UndeclaredArgument tests rejection of arguments the tool never declared
func TestCallTool_UndeclaredArgument(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{
		Tool:      "echo",
		Arguments: map[string]any{"message": "hi", "volume": 11},
	})
	assert.Equal(t, StatusArgumentInvalid, result.Status)
	assert.Contains(t, result.Detail, `"volume"`)
}

// TestCallTool_MissingRequiredArgument tests rejection when a required argument is absent
func TestCallTool_MissingRequiredArgument(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "echo"})
	assert.Equal(t, StatusArgumentInvalid, result.Status)
	assert.Contains(t, result.Detail, `missing required argument "message"`)
}

// TestCallTool_DefaultApplied tests that declared defaults fill absent arguments
func TestCallTool_DefaultApplied(t *testing.T) {
	cat := catalog.New()
	contract := catalog.NewContract("greet", definition.KindCLICommand,
		func(_ context.Context, args map[string]any, _ catalog.CallFunc) (map[string]any, error) {
			return map[string]any{"stdout": args["greeting"]}, nil
		})
	contract.Inputs = []definition.ParamSpec{{Name: "greeting", Type: "string", Default: "hello"}}
	require.NoError(t, cat.Register(contract))
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "greet"})
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "hello", result.Payload["stdout"])
}

// TestCallTool_TypeMismatch tests rejection of wrongly typed arguments
func TestCallTool_TypeMismatch(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{
		Tool:      "echo",
		Arguments: map[string]any{"message": 42},
	})
	assert.Equal(t, StatusArgumentInvalid, result.Status)
	assert.Contains(t, result.Detail, "must be of type string")
}

// TestCallTool_ReservedStdin tests that process-backed tools accept undeclared stdin
func TestCallTool_ReservedStdin(t *testing.T) {
	cat := catalog.New()
	contract := catalog.NewContract("cat", definition.KindCLICommand,
		func(_ context.Context, args map[string]any, _ catalog.CallFunc) (map[string]any, error) {
			return map[string]any{"stdout": args["stdin"]}, nil
		})
	require.NoError(t, cat.Register(contract))
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{
		Tool:      "cat",
		Arguments: map[string]any{"stdin": "piped"},
	})
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "piped", result.Payload["stdout"])
}

// TestCallTool_ReservedStdinRejectedForPrompt tests that prompt tools reject undeclared stdin
func TestCallTool_ReservedStdinRejectedForPrompt(t *testing.T) {
	cat := catalog.New()
	contract := catalog.NewContract("advice", definition.KindPromptExtension,
		func(_ context.Context, _ map[string]any, _ catalog.CallFunc) (map[string]any, error) {
			return map[string]any{"text": "do things"}, nil
		})
	require.NoError(t, cat.Register(contract))
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{
		Tool:      "advice",
		Arguments: map[string]any{"stdin": "piped"},
	})
	assert.Equal(t, StatusArgumentInvalid, result.Status)
}

// TestCallTool_ExecutionFailed tests that invoke errors surface as execution failures
func TestCallTool_ExecutionFailed(t *testing.T) {
	cat := catalog.New()
	contract := catalog.NewContract("broken", definition.KindCLICommand,
		func(_ context.Context, _ map[string]any, _ catalog.CallFunc) (map[string]any, error) {
			return nil, errors.New("process exploded")
		})
	require.NoError(t, cat.Register(contract))
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "broken"})
	assert.Equal(t, StatusExecutionFailed, result.Status)
	assert.Contains(t, result.Detail, "process exploded")
}

// TestCallTool_TimeoutDetail tests that timeout errors are called out
func TestCallTool_TimeoutDetail(t *testing.T) {
	cat := catalog.New()
	contract := catalog.NewContract("slow", definition.KindCLICommand,
		func(_ context.Context, _ map[string]any, _ catalog.CallFunc) (map[string]any, error) {
			return nil, errors.New("process timed out after 30s")
		})
	require.NoError(t, cat.Register(contract))
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "slow"})
	assert.Equal(t, StatusExecutionFailed, result.Status)
	assert.Contains(t, result.Detail, "tool timed out")
}

// TestCallTool_NestedRelay tests one tool calling another end to end
func TestCallTool_NestedRelay(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "echo")
	relayContract(t, cat, "diagnostic", "echo", map[string]any{"message": "ping"})
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "diagnostic"})
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "ping", result.Payload["stdout"])
}

// TestCallTool_CycleDetected tests that mutually recursive tools are cut off
func TestCallTool_CycleDetected(t *testing.T) {
	cat := catalog.New()
	relayContract(t, cat, "a", "b", nil)
	relayContract(t, cat, "b", "a", nil)
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "a"})
	assert.Equal(t, StatusCycleDetected, result.Status)
	assert.Contains(t, result.Detail, `"a"`)
}

// TestCallTool_SelfCycle tests a tool calling itself
func TestCallTool_SelfCycle(t *testing.T) {
	cat := catalog.New()
	relayContract(t, cat, "narcissus", "narcissus", nil)
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "narcissus"})
	assert.Equal(t, StatusCycleDetected, result.Status)
}

// TestCallTool_DepthExceeded tests the depth bound on long nested chains
func TestCallTool_DepthExceeded(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "t5")
	relayContract(t, cat, "t4", "t5", map[string]any{"message": "deep"})
	relayContract(t, cat, "t3", "t4", nil)
	relayContract(t, cat, "t2", "t3", nil)
	relayContract(t, cat, "t1", "t2", nil)
	dispatcher := New(cat, 3)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "t1"})
	assert.Equal(t, StatusDepthExceeded, result.Status)
	assert.Contains(t, result.Detail, "maximum of 3")
}

// TestCallTool_DepthWithinBound tests that a chain inside the bound completes
func TestCallTool_DepthWithinBound(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "t3")
	relayContract(t, cat, "t2", "t3", map[string]any{"message": "ok"})
	relayContract(t, cat, "t1", "t2", nil)
	dispatcher := New(cat, 3)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "t1"})
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "ok", result.Payload["stdout"])
}

// TestCallTool_NestedFailureWrapped tests that ordinary nested failures become execution failures
func TestCallTool_NestedFailureWrapped(t *testing.T) {
	cat := catalog.New()
	relayContract(t, cat, "relay", "missing", nil)
	dispatcher := New(cat, 0)

	result := dispatcher.CallTool(context.Background(), Request{Tool: "relay"})
	assert.Equal(t, StatusExecutionFailed, result.Status)
	assert.Contains(t, result.Detail, "ToolNotFound")
}

// TestListTools tests catalog enumeration in registration order
func TestListTools(t *testing.T) {
	cat := catalog.New()
	echoContract(t, cat, "zed")
	echoContract(t, cat, "alpha")
	dispatcher := New(cat, 0)

	tools := dispatcher.ListTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "zed", tools[0].Name)
	assert.Equal(t, "alpha", tools[1].Name)
}

// TestNew_DefaultDepth tests that non-positive depth limits fall back to the default
func TestNew_DefaultDepth(t *testing.T) {
	cat := catalog.New()
	assert.Equal(t, DefaultMaxCallDepth, New(cat, 0).maxDepth)
	assert.Equal(t, DefaultMaxCallDepth, New(cat, -1).maxDepth)
	assert.Equal(t, 4, New(cat, 4).maxDepth)
}

// TestCheckArgumentType tests the per-type validation table
func TestCheckArgumentType(t *testing.T) {
	cases := []struct {
		name    string
		typ     string
		value   any
		wantErr bool
	}{
		{"any accepts string", "", "x", false},
		{"any accepts number", "", 1.5, false},
		{"string ok", "string", "x", false},
		{"string rejects int", "string", 1, true},
		{"boolean ok", "boolean", true, false},
		{"boolean rejects string", "boolean", "true", true},
		{"integer ok int", "integer", 7, false},
		{"integer ok integral float", "integer", float64(7), false},
		{"integer rejects fraction", "integer", 7.5, true},
		{"number ok float", "number", 7.5, false},
		{"number ok int", "number", 7, false},
		{"number rejects string", "number", "7", true},
		{"array ok", "array", []any{1, 2}, false},
		{"array rejects map", "array", map[string]any{}, true},
		{"object ok", "object", map[string]any{"k": "v"}, false},
		{"object rejects slice", "object", []any{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkArgumentType(definition.ParamSpec{Name: "arg", Type: tc.typ}, tc.value)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
