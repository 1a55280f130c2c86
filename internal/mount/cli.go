package mount

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/core"
	"github.com/Mmeadows3/clai/internal/definition"
)

// CLIPrePrompt is attached to cli contracts that declare no pre-prompt
// of their own.
const CLIPrePrompt = "This tool runs a CLI command. Use the man pages tool and " +
	"tldr tool to find an accurate command that fits the prompt."

// defaultProcessOutputs describes the payload of process-backed
// contracts that declare no output fields of their own.
func defaultProcessOutputs() map[string]string {
	return map[string]string{
		"stdout":    "Process stdout text.",
		"stderr":    "Process stderr text.",
		"exit_code": "Process exit code.",
	}
}

// mountCLI builds one cli contract: a named executable invoked with
// flags derived from the contract's declared parameters.
func (m *Mounter) mountCLI(raw *definition.RawDefinition) (*catalog.Contract, *definition.MountingError) {
	command := strings.TrimSpace(raw.ImplementationRef)
	if command == "" {
		return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonSchemaInvalid,
			"cli definition requires implementation_ref naming an executable")
	}

	resolved, err := resolveExecutable(command)
	if err != nil {
		return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnresolvedImplementation,
			fmt.Sprintf("executable %q not found: %v", command, err))
	}

	inputs := raw.Inputs
	runner := m.runner

	invoke := func(ctx context.Context, args map[string]any, _ catalog.CallFunc) (map[string]any, error) {
		spec := core.ProcessSpec{Path: resolved}
		spec.Args, spec.Stdin = flagArgs(inputs, args)

		result, runErr := runner.Run(ctx, spec)
		if runErr != nil {
			return nil, runErr
		}
		return processPayload(result), nil
	}

	contract := newContract(raw, definition.KindCLICommand, invoke)
	if contract.PrePrompt == "" {
		contract.PrePrompt = CLIPrePrompt
	}
	if len(contract.Outputs) == 0 {
		contract.Outputs = defaultProcessOutputs()
	}
	if contract.Description == "" {
		contract.Description = fmt.Sprintf("Run `%s` from the CLI environment.", command)
	}
	return contract, nil
}

// resolveExecutable resolves a command reference to an executable path.
// Bare names go through PATH; paths are checked directly.
func resolveExecutable(command string) (string, error) {
	if !strings.ContainsRune(command, os.PathSeparator) {
		return exec.LookPath(command)
	}

	abs, err := filepath.Abs(command)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() || !core.IsExecutable(info) {
		return "", fmt.Errorf("%s is not an executable file", abs)
	}
	return abs, nil
}

// flagArgs maps validated arguments onto command-line flags in declared
// parameter order. Underscores become hyphens, the command-line
// convention. The reserved "stdin" argument feeds the process instead.
func flagArgs(inputs []definition.ParamSpec, args map[string]any) ([]string, string) {
	var flags []string
	stdin := ""

	if stdinVal, ok := args["stdin"].(string); ok {
		stdin = stdinVal
	}

	for _, param := range inputs {
		if param.Name == "stdin" {
			continue
		}
		value, ok := args[param.Name]
		if !ok {
			continue
		}
		flagName := strings.ReplaceAll(param.Name, "_", "-")
		flags = append(flags, fmt.Sprintf("--%s", flagName), fmt.Sprintf("%v", value))
	}

	return flags, stdin
}

// processPayload maps one process result into an invocation payload.
func processPayload(result *core.ProcessResult) map[string]any {
	return map[string]any{
		"stdout":    strings.TrimRight(result.Stdout, "\n"),
		"stderr":    strings.TrimRight(result.Stderr, "\n"),
		"exit_code": result.ExitCode,
	}
}
