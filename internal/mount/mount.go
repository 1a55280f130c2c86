// Package mount implements the typed mounting pipeline that converts
// raw tool definitions into callable contracts.
package mount

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/core"
	"github.com/Mmeadows3/clai/internal/definition"
)

// mountConcurrency bounds the number of definitions mounted in parallel.
const mountConcurrency = 8

// paramTypes is the set of JSON schema types a declared input
// parameter may use. The empty string means "any".
var paramTypes = map[string]struct{}{
	"":        {},
	"string":  {},
	"number":  {},
	"integer": {},
	"boolean": {},
	"array":   {},
	"object":  {},
}

// Mounter converts raw definitions into callable contracts.
type Mounter struct {
	runner *core.ProcessRunner
}

// NewMounter creates a mounter whose process-backed contracts execute
// through the given runner.
func NewMounter(runner *core.ProcessRunner) *Mounter {
	return &Mounter{runner: runner}
}

// Mount converts one raw definition into a contract or a typed
// mounting error. Mounting is deterministic: the same definition
// always yields an identical contract.
func (m *Mounter) Mount(raw *definition.RawDefinition) (*catalog.Contract, *definition.MountingError) {
	kind := definition.Kind(raw.Kind)
	if !definition.IsValidKind(kind) {
		return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnsupportedKind,
			fmt.Sprintf("unsupported kind %q, valid kinds: %s", raw.Kind, core.JoinMapKeys(definition.ValidKinds())))
	}

	for _, param := range raw.Inputs {
		if _, ok := paramTypes[param.Type]; !ok {
			return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonSchemaInvalid,
				fmt.Sprintf("input %q declares unknown type %q, valid types: %s", param.Name, param.Type, core.JoinMapKeys(paramTypes)))
		}
	}

	switch kind {
	case definition.KindCLICommand:
		return m.mountCLI(raw)
	case definition.KindScriptRunner:
		return m.mountScript(raw)
	case definition.KindPromptExtension:
		return m.mountPrompt(raw)
	}

	// Unreachable: kind membership was checked above.
	return nil, definition.NewMountingError(raw.Name, raw.SourcePath, definition.ReasonUnsupportedKind, raw.Kind)
}

// MountAll mounts loader results concurrently, then registers the
// contracts into the catalog sequentially in loader enumeration order.
// Duplicate names are arbitrated by that order (lowest order wins), so
// registration output is independent of goroutine scheduling. Every
// failure is recorded on the catalog; none aborts the pass.
func (m *Mounter) MountAll(results []definition.Result, cat *catalog.Catalog) {
	type outcome struct {
		contract *definition.RawDefinition
		mounted  *catalog.Contract
		err      *definition.MountingError
	}

	outcomes := make([]outcome, len(results))

	var group errgroup.Group
	group.SetLimit(mountConcurrency)
	for i, result := range results {
		if result.Err != nil {
			outcomes[i] = outcome{err: result.Err}
			continue
		}
		raw := result.Raw
		group.Go(func() error {
			mounted, mountErr := m.Mount(raw)
			outcomes[i] = outcome{contract: raw, mounted: mounted, err: mountErr}
			return nil
		})
	}
	// Mount funcs never return errors; failures travel as outcomes.
	_ = group.Wait()

	claimed := mapset.NewThreadUnsafeSet[string]()
	for _, out := range outcomes {
		if out.err != nil {
			zap.L().Warn("Tool definition failed to mount",
				zap.String("tool", out.err.Definition),
				zap.String("path", out.err.SourcePath),
				zap.String("reason", string(out.err.Reason)),
				zap.String("detail", out.err.Detail))
			cat.RecordFailure(*out.err)
			continue
		}

		// First-seen wins: a later definition claiming the same name is
		// rejected, never silently overwritten.
		if !claimed.Add(out.mounted.Name) {
			dupErr := definition.NewMountingError(out.mounted.Name, out.contract.SourcePath, definition.ReasonDuplicateName,
				fmt.Sprintf("tool name %q already claimed by an earlier definition", out.mounted.Name))
			zap.L().Warn("Tool definition failed to mount",
				zap.String("tool", dupErr.Definition),
				zap.String("path", dupErr.SourcePath),
				zap.String("reason", string(dupErr.Reason)),
				zap.String("detail", dupErr.Detail))
			cat.RecordFailure(*dupErr)
			continue
		}

		if err := cat.Register(out.mounted); err != nil {
			// Only possible against a sealed catalog, which MountAll is
			// never given during a startup pass.
			zap.L().Error("Failed to register mounted tool",
				zap.String("tool", out.mounted.Name),
				zap.Error(err))
		}
	}
}

// newContract builds a contract carrying the definition's declared
// surface, leaving kind-specific fields to the caller.
func newContract(raw *definition.RawDefinition, kind definition.Kind, invoke catalog.InvokeFunc) *catalog.Contract {
	contract := catalog.NewContract(raw.Name, kind, invoke)
	contract.Version = raw.Version
	contract.Description = raw.Description
	contract.PrePrompt = raw.PrePrompt
	contract.Inputs = raw.Inputs
	contract.Outputs = raw.Outputs
	contract.SourcePath = raw.SourcePath
	return contract
}
