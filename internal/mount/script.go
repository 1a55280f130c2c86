package mount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/core"
	"github.com/Mmeadows3/clai/internal/definition"
)

// mountScript builds one script contract: an interpreter-run script
// resolved relative to its definition file. A script may declare
// nested calls, which execute through the dispatcher before the script
// runs; their payloads reach the script on stdin alongside the input.
func (m *Mounter) mountScript(raw *definition.RawDefinition) (*catalog.Contract, *definition.MountingError) {
	ref := strings.TrimSpace(raw.ImplementationRef)
	if ref == "" {
		return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonSchemaInvalid,
			"script definition requires implementation_ref naming a script file")
	}

	scriptPath := ref
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(filepath.Dir(raw.SourcePath), scriptPath)
	}

	info, err := os.Stat(scriptPath)
	if err != nil {
		return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnresolvedImplementation,
			fmt.Sprintf("script %q not found: %v", ref, err))
	}
	if info.IsDir() {
		return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnresolvedImplementation,
			fmt.Sprintf("script %q is a directory", ref))
	}

	interpreter := strings.TrimSpace(raw.Interpreter)
	if interpreter == "" {
		parsed, shebangErr := definition.ParseShebangFromPath(scriptPath)
		switch {
		case shebangErr == nil:
			interpreter = parsed
		case core.IsExecutable(info):
			// Binary or self-executing script: run it directly.
			var fileReadErr *definition.ShebangFileReadError
			if errors.As(shebangErr, &fileReadErr) {
				return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnresolvedImplementation,
					fmt.Sprintf("script %q is unreadable", ref))
			}
		default:
			return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnresolvedImplementation,
				fmt.Sprintf("script %q is not executable and no interpreter could be determined", ref))
		}
	}

	calls := raw.Calls
	runner := m.runner
	scriptDir := filepath.Dir(scriptPath)

	invoke := func(ctx context.Context, args map[string]any, call catalog.CallFunc) (map[string]any, error) {
		nested := make(map[string]any, len(calls))
		for _, nestedCall := range calls {
			payload, callErr := call(ctx, nestedCall.Tool, nestedCall.Arguments)
			if callErr != nil {
				return nil, fmt.Errorf("nested call to %q failed: %w", nestedCall.Tool, callErr)
			}
			nested[nestedCall.Tool] = payload
		}

		stdin, marshalErr := json.Marshal(map[string]any{
			"input":  args,
			"nested": nested,
		})
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to encode script stdin: %w", marshalErr)
		}

		result, runErr := runner.Run(ctx, core.ProcessSpec{
			Path:        scriptPath,
			Interpreter: interpreter,
			Stdin:       string(stdin),
			Dir:         scriptDir,
		})
		if runErr != nil {
			return nil, runErr
		}

		payload := processPayload(result)
		if len(nested) > 0 {
			payload["nested"] = nested
		}
		return payload, nil
	}

	contract := newContract(raw, definition.KindScriptRunner, invoke)
	if len(contract.Outputs) == 0 {
		contract.Outputs = defaultProcessOutputs()
	}
	return contract, nil
}
