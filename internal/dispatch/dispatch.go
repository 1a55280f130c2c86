// Package dispatch implements the tool API: catalog enumeration and
// cycle-safe call dispatch, including nested calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/core"
	"github.com/Mmeadows3/clai/internal/definition"
)

// Status classifies the outcome of one tool invocation.
type Status string

// Status constants
const (
	StatusOK              Status = "Ok"
	StatusToolNotFound    Status = "ToolNotFound"
	StatusArgumentInvalid Status = "ArgumentInvalid"
	StatusExecutionFailed Status = "ExecutionFailed"
	StatusCycleDetected   Status = "CycleDetected"
	StatusDepthExceeded   Status = "DepthExceeded"
)

// DefaultMaxCallDepth bounds nested call chains when no limit is configured.
const DefaultMaxCallDepth = 8

// maxSuggestionDistance is the largest edit distance still offered as a
// "did you mean" suggestion for unknown tool names.
const maxSuggestionDistance = 3

// Request describes one tool invocation. Depth and Trace thread the
// nested-call state through the dispatcher; top-level callers leave
// them zero-valued.
type Request struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Depth     int            `json:"depth,omitempty"`
	Trace     []string       `json:"trace,omitempty"`
}

// Result is the structured outcome of one tool invocation. Nothing
// crosses the dispatcher boundary as an unstructured failure.
type Result struct {
	Status  Status         `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
	Detail  string         `json:"detail,omitempty"`
}

// NestedCallError carries a nested invocation's result across the
// invoke boundary so its status can surface at the outer call.
type NestedCallError struct {
	Result Result
}

// Error returns the error message for the NestedCallError
func (e *NestedCallError) Error() string {
	return fmt.Sprintf("nested call returned %s: %s", e.Result.Status, e.Result.Detail)
}

// Interface guard for NestedCallError
var _ error = &NestedCallError{}

// Dispatcher serves the catalog to callers: it lists contracts and
// invokes them, resolving nested calls back through itself.
type Dispatcher struct {
	catalog  *catalog.Catalog
	maxDepth int
}

// New creates a dispatcher over the given catalog. maxDepth bounds
// nested call chains; non-positive values fall back to the default.
func New(cat *catalog.Catalog, maxDepth int) *Dispatcher {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	return &Dispatcher{catalog: cat, maxDepth: maxDepth}
}

// ListTools returns the catalog's current contracts in registration
// order. Read path, no side effects.
func (d *Dispatcher) ListTools() []*catalog.Contract {
	return slices.Collect(d.catalog.All())
}

// CallTool looks up, validates and invokes one tool, returning a
// structured result in every case.
func (d *Dispatcher) CallTool(ctx context.Context, req Request) Result {
	invocationID := uuid.NewString()
	startTime := time.Now()

	result := d.callTool(ctx, req)

	var logErr error
	if result.Status != StatusOK {
		logErr = fmt.Errorf("%s: %s", result.Status, result.Detail)
	}
	core.LogToolCall(req.Tool, invocationID, req.Depth, time.Since(startTime).Seconds(), logErr)

	return result
}

func (d *Dispatcher) callTool(ctx context.Context, req Request) Result {
	contract, ok := d.catalog.Lookup(req.Tool)
	if !ok {
		return Result{Status: StatusToolNotFound, Detail: d.unknownToolDetail(req.Tool)}
	}

	args, argErr := validateArguments(contract, req.Arguments)
	if argErr != nil {
		return Result{Status: StatusArgumentInvalid, Detail: argErr.Error()}
	}

	// Depth and cycle checks happen at the boundary, before any work.
	depth := req.Depth + 1
	if depth > d.maxDepth {
		return Result{Status: StatusDepthExceeded,
			Detail: fmt.Sprintf("call depth %d exceeds the maximum of %d", depth, d.maxDepth)}
	}

	trace := mapset.NewThreadUnsafeSet(req.Trace...)
	if trace.Contains(req.Tool) {
		return Result{Status: StatusCycleDetected,
			Detail: fmt.Sprintf("tool %q already appears in the caller trace %v", req.Tool, req.Trace)}
	}

	nestedCall := func(callCtx context.Context, tool string, callArgs map[string]any) (map[string]any, error) {
		nestedTrace := append(slices.Clone(req.Trace), req.Tool)
		nestedResult := d.CallTool(callCtx, Request{
			Tool:      tool,
			Arguments: callArgs,
			Depth:     depth,
			Trace:     nestedTrace,
		})
		if nestedResult.Status != StatusOK {
			return nil, &NestedCallError{Result: nestedResult}
		}
		return nestedResult.Payload, nil
	}

	payload, invokeErr := contract.Invoke(ctx, args, nestedCall)
	if invokeErr != nil {
		return invocationFailure(ctx, invokeErr)
	}

	return Result{Status: StatusOK, Payload: payload}
}

// invocationFailure converts an invoke error into a typed result.
// Nested cycle and depth violations keep their status; everything else
// is execution failure, with timeouts called out for operators.
func invocationFailure(ctx context.Context, invokeErr error) Result {
	var nestedErr *NestedCallError
	if errors.As(invokeErr, &nestedErr) {
		switch nestedErr.Result.Status {
		case StatusCycleDetected, StatusDepthExceeded:
			return nestedErr.Result
		}
		return Result{Status: StatusExecutionFailed, Detail: invokeErr.Error()}
	}

	if ctx.Err() == context.DeadlineExceeded || strings.Contains(invokeErr.Error(), "timed out") {
		return Result{Status: StatusExecutionFailed,
			Detail: fmt.Sprintf("tool timed out: %v", invokeErr)}
	}

	return Result{Status: StatusExecutionFailed, Detail: invokeErr.Error()}
}

// unknownToolDetail builds the ToolNotFound detail, suggesting the
// nearest registered name when one is plausibly close.
func (d *Dispatcher) unknownToolDetail(name string) string {
	nameLower := strings.ToLower(name)
	best := ""
	bestDistance := maxSuggestionDistance + 1

	for _, candidate := range d.catalog.Names() {
		distance := levenshtein.ComputeDistance(nameLower, strings.ToLower(candidate))
		if distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}

	if best != "" {
		return fmt.Sprintf("unknown tool %q, did you mean %q?", name, best)
	}
	return fmt.Sprintf("unknown tool %q", name)
}

// processKinds may receive the reserved "stdin" argument even when it
// is not declared as a parameter.
var processKinds = map[definition.Kind]struct{}{
	definition.KindCLICommand:   {},
	definition.KindScriptRunner: {},
}

// validateArguments checks the supplied arguments against the
// contract's declared parameters and returns the effective argument
// map with defaults applied.
func validateArguments(contract *catalog.Contract, args map[string]any) (map[string]any, error) {
	declared := make(map[string]definition.ParamSpec, len(contract.Inputs))
	for _, param := range contract.Inputs {
		declared[param.Name] = param
	}

	effective := make(map[string]any, len(args))
	for name, value := range args {
		if _, ok := declared[name]; !ok {
			if _, processKind := processKinds[contract.Kind]; processKind && name == "stdin" {
				effective[name] = value
				continue
			}
			return nil, fmt.Errorf("argument %q is not declared by tool %q", name, contract.Name)
		}
		effective[name] = value
	}

	for _, param := range contract.Inputs {
		value, ok := effective[param.Name]
		if !ok {
			if param.Default != nil {
				effective[param.Name] = param.Default
				continue
			}
			if param.Required {
				return nil, fmt.Errorf("missing required argument %q", param.Name)
			}
			continue
		}

		if err := checkArgumentType(param, value); err != nil {
			return nil, err
		}
	}

	return effective, nil
}

// checkArgumentType validates one argument value against its declared
// JSON schema type. Numeric values arrive as float64 from JSON decoding
// and as int from YAML defaults; both are accepted.
func checkArgumentType(param definition.ParamSpec, value any) error {
	mismatch := func() error {
		return fmt.Errorf("argument %q must be of type %s, got %T", param.Name, param.Type, value)
	}

	switch param.Type {
	case "":
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return mismatch()
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return mismatch()
		}
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			if v != float64(int64(v)) {
				return mismatch()
			}
		default:
			return mismatch()
		}
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return mismatch()
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return mismatch()
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return mismatch()
		}
	default:
		return fmt.Errorf("argument %q declares unknown type %q", param.Name, param.Type)
	}

	return nil
}
