// Package definition loads and models the tool definitions consumed at startup.
package definition

import "fmt"

// Kind identifies a supported tool definition variant.
type Kind string

// Kind constants
const (
	KindCLICommand      Kind = "cli"
	KindScriptRunner    Kind = "script"
	KindPromptExtension Kind = "prompt"
)

// ValidKinds returns the set of supported definition kinds.
func ValidKinds() map[Kind]struct{} {
	return map[Kind]struct{}{
		KindCLICommand:      {},
		KindScriptRunner:    {},
		KindPromptExtension: {},
	}
}

// IsValidKind reports whether kind names a supported variant.
func IsValidKind(kind Kind) bool {
	_, ok := ValidKinds()[kind]
	return ok
}

// ParamSpec describes one declared input parameter of a tool.
type ParamSpec struct {
	Name        string `yaml:"name" validate:"required"`
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	Default     any    `yaml:"default,omitempty"`
}

// NestedCallSpec declares one tool call a script definition performs
// through the dispatcher before its script runs.
type NestedCallSpec struct {
	Tool      string         `yaml:"tool" validate:"required"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
}

// RawDefinition is the untyped record parsed from one TOOL.yaml file.
// It is immutable once produced by the loader.
type RawDefinition struct {
	Name              string            `yaml:"name" validate:"required"`
	Kind              string            `yaml:"kind" validate:"required"`
	Version           string            `yaml:"version,omitempty"`
	Description       string            `yaml:"description,omitempty"`
	PrePrompt         string            `yaml:"pre_prompt,omitempty"`
	ImplementationRef string            `yaml:"implementation_ref,omitempty"`
	Interpreter       string            `yaml:"interpreter,omitempty"`
	Template          string            `yaml:"template,omitempty"`
	Inputs            []ParamSpec       `yaml:"inputs,omitempty" validate:"dive"`
	Outputs           map[string]string `yaml:"outputs,omitempty"`
	Calls             []NestedCallSpec  `yaml:"calls,omitempty" validate:"dive"`
	Metadata          map[string]string `yaml:"metadata,omitempty"`

	// SourcePath is the definition file this record was read from.
	SourcePath string `yaml:"-"`
	// Order is the loader's deterministic enumeration index.
	Order int `yaml:"-"`
}

// Reason classifies a per-definition mounting failure.
type Reason string

// Reason constants
const (
	ReasonSchemaInvalid            Reason = "SchemaInvalid"
	ReasonDuplicateName            Reason = "DuplicateName"
	ReasonUnsupportedKind          Reason = "UnsupportedKind"
	ReasonUnresolvedImplementation Reason = "UnresolvedImplementation"
)

// MountingError records why one definition could not be mounted.
// It is never fatal to the whole startup pass.
type MountingError struct {
	Definition string `json:"definition"`
	SourcePath string `json:"source_path"`
	Reason     Reason `json:"reason"`
	Detail     string `json:"detail"`
}

// Error returns the error message for the MountingError
func (e *MountingError) Error() string {
	return fmt.Sprintf("failed to mount %q (%s): %s", e.Definition, e.Reason, e.Detail)
}

// NewMountingError creates a new MountingError
func NewMountingError(definitionName, sourcePath string, reason Reason, detail string) *MountingError {
	return &MountingError{
		Definition: definitionName,
		SourcePath: sourcePath,
		Reason:     reason,
		Detail:     detail,
	}
}

// Interface guard for MountingError
// This ensures that MountingError implements the error interface.
var _ error = &MountingError{}

// Result carries one loader outcome: a parsed definition or the
// mounting error recorded for its file.
type Result struct {
	Raw *RawDefinition
	Err *MountingError
}
