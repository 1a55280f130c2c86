// Package catalog implements the in-memory registry of callable contracts.
package catalog

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Mmeadows3/clai/internal/definition"
)

// CallFunc issues a nested tool call through the dispatcher on the
// caller's logical call path. Implementations carry the caller's depth
// and trace so nested calls stay cycle-safe.
type CallFunc func(ctx context.Context, tool string, args map[string]any) (map[string]any, error)

// InvokeFunc is the bound operation of one contract. It receives
// arguments already validated against the contract's input parameters.
type InvokeFunc func(ctx context.Context, args map[string]any, call CallFunc) (map[string]any, error)

// Contract is the validated, typed, invocable representation of one
// tool definition. Contracts are immutable after creation;
// re-registration replaces, never mutates in place.
type Contract struct {
	Name        string                 `json:"name"`
	Kind        definition.Kind        `json:"kind"`
	Version     string                 `json:"version,omitempty"`
	Description string                 `json:"description,omitempty"`
	PrePrompt   string                 `json:"pre_prompt,omitempty"`
	Inputs      []definition.ParamSpec `json:"inputs,omitempty"`
	Outputs     map[string]string      `json:"outputs,omitempty"`
	SourcePath  string                 `json:"source_path,omitempty"`

	invoke InvokeFunc
}

// NewContract creates a contract with its bound invoke operation.
func NewContract(name string, kind definition.Kind, invoke InvokeFunc) *Contract {
	return &Contract{Name: name, Kind: kind, invoke: invoke}
}

// Invoke runs the contract's bound operation.
func (c *Contract) Invoke(ctx context.Context, args map[string]any, call CallFunc) (map[string]any, error) {
	return c.invoke(ctx, args, call)
}

// InputSchema projects the contract's parameter list as a JSON schema
// object for the wire.
func (c *Contract) InputSchema() map[string]any {
	properties := make(map[string]any, len(c.Inputs))
	var required []string
	for _, param := range c.Inputs {
		property := map[string]any{}
		if param.Type != "" {
			property["type"] = param.Type
		}
		if param.Description != "" {
			property["description"] = param.Description
		}
		if param.Default != nil {
			property["default"] = param.Default
		}
		properties[param.Name] = property
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		slices.Sort(required)
		schema["required"] = required
	}
	return schema
}

// OutputSchema projects the contract's declared output fields as a JSON
// schema object, or nil when the contract declares none.
func (c *Contract) OutputSchema() map[string]any {
	if len(c.Outputs) == 0 {
		return nil
	}
	properties := make(map[string]any, len(c.Outputs))
	for name, description := range c.Outputs {
		properties[name] = map[string]any{"description": description}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

// SealedError is returned when registration is attempted after the
// catalog has been sealed by the startup orchestrator.
type SealedError struct {
	Name string `json:"name"`
}

// Error returns the error message for the SealedError
func (e *SealedError) Error() string {
	return fmt.Sprintf("catalog is sealed, cannot register tool %q without a restart", e.Name)
}

// NewSealedError creates a new SealedError
func NewSealedError(name string) *SealedError {
	return &SealedError{Name: name}
}

// Interface guard for SealedError
var _ error = &SealedError{}

// Catalog maps tool names to callable contracts. The startup
// orchestrator is the only writer; after Seal it is read-only for the
// remainder of the process. Lookups never block each other.
type Catalog struct {
	contracts *xsync.MapOf[string, *Contract]

	mu       sync.RWMutex
	order    []string
	failures []definition.MountingError

	sealed atomic.Bool
	failed atomic.Int64
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		contracts: xsync.NewMapOf[string, *Contract](),
	}
}

// Register inserts or replaces the contract keyed by its name.
// Registration order is preserved for enumeration; replacing keeps the
// original position. Registering into a sealed catalog is an error.
func (c *Catalog) Register(contract *Contract) error {
	if c.sealed.Load() {
		return NewSealedError(contract.Name)
	}

	_, replaced := c.contracts.LoadAndStore(contract.Name, contract)
	if !replaced {
		c.mu.Lock()
		c.order = append(c.order, contract.Name)
		c.mu.Unlock()
	}
	return nil
}

// Lookup returns the contract registered under name.
func (c *Catalog) Lookup(name string) (*Contract, bool) {
	return c.contracts.Load(name)
}

// All returns a lazy, restartable sequence of contracts in
// registration order.
func (c *Catalog) All() iter.Seq[*Contract] {
	return func(yield func(*Contract) bool) {
		for _, name := range c.Names() {
			contract, ok := c.contracts.Load(name)
			if !ok {
				continue
			}
			if !yield(contract) {
				return
			}
		}
	}
}

// Names returns the registered tool names in registration order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Len returns the number of registered contracts.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// RecordFailure appends one mounting failure from the startup pass and
// bumps the failure counter.
func (c *Catalog) RecordFailure(mountErr definition.MountingError) {
	c.mu.Lock()
	c.failures = append(c.failures, mountErr)
	c.mu.Unlock()
	c.failed.Add(1)
}

// Failures returns the ordered mounting failures from the last
// startup pass.
func (c *Catalog) Failures() []definition.MountingError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.failures)
}

// RegisteredCount returns the number of successfully registered contracts.
func (c *Catalog) RegisteredCount() int {
	return c.Len()
}

// FailedCount returns the number of definitions that failed to mount.
func (c *Catalog) FailedCount() int {
	return int(c.failed.Load())
}

// Seal makes the catalog read-only. Called by the startup orchestrator
// once it reaches Ready or Degraded; there is no unseal.
func (c *Catalog) Seal() {
	c.sealed.Store(true)
}

// Sealed reports whether the catalog has been sealed.
func (c *Catalog) Sealed() bool {
	return c.sealed.Load()
}
