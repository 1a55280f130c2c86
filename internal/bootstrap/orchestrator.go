// Package bootstrap sequences the startup registration pipeline:
// definition loading, typed mounting and catalog population.
package bootstrap

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Mmeadows3/clai/internal/catalog"
	"github.com/Mmeadows3/clai/internal/definition"
	"github.com/Mmeadows3/clai/internal/mount"
)

// Phase is one state of the startup orchestrator.
type Phase string

// Phase constants. Transitions are one-directional; there is no way
// back to LoadingDefinitions without a full restart.
const (
	PhaseInit               Phase = "Init"
	PhaseLoadingDefinitions Phase = "LoadingDefinitions"
	PhaseMounting           Phase = "Mounting"
	PhaseCatalogPopulated   Phase = "CatalogPopulated"
	PhaseReady              Phase = "Ready"
	PhaseDegraded           Phase = "Degraded"
	PhaseFailed             Phase = "Failed"
)

// allowedTransitions encodes the startup state machine.
var allowedTransitions = map[Phase][]Phase{
	PhaseInit:               {PhaseLoadingDefinitions, PhaseFailed},
	PhaseLoadingDefinitions: {PhaseMounting, PhaseFailed},
	PhaseMounting:           {PhaseCatalogPopulated},
	PhaseCatalogPopulated:   {PhaseReady, PhaseDegraded},
	PhaseReady:              {},
	PhaseDegraded:           {},
	PhaseFailed:             {},
}

// IllegalTransitionError is returned when a phase transition violates
// the startup state machine. Seeing one is a programmer error.
type IllegalTransitionError struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// Error returns the error message for the IllegalTransitionError
func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal startup transition %s -> %s", e.From, e.To)
}

// NewIllegalTransitionError creates a new IllegalTransitionError
func NewIllegalTransitionError(from, to Phase) *IllegalTransitionError {
	return &IllegalTransitionError{From: from, To: to}
}

// Interface guard for IllegalTransitionError
var _ error = &IllegalTransitionError{}

// Orchestrator runs the startup pipeline once per process lifetime and
// decides overall readiness.
type Orchestrator struct {
	definitionsDir string
	mounter        *mount.Mounter
	catalog        *catalog.Catalog

	mu    sync.RWMutex
	phase Phase
}

// New creates an orchestrator over the given definition source,
// mounter and catalog.
func New(definitionsDir string, mounter *mount.Mounter, cat *catalog.Catalog) *Orchestrator {
	return &Orchestrator{
		definitionsDir: definitionsDir,
		mounter:        mounter,
		catalog:        cat,
		phase:          PhaseInit,
	}
}

// Phase returns the orchestrator's current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// Servable reports whether the process may serve callers. Only Ready
// and Degraded are servable.
func (o *Orchestrator) Servable() bool {
	phase := o.Phase()
	return phase == PhaseReady || phase == PhaseDegraded
}

// advance moves the state machine to next, enforcing one-directional
// transitions.
func (o *Orchestrator) advance(next Phase) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, allowed := range allowedTransitions[o.phase] {
		if allowed == next {
			zap.L().Debug("Startup phase transition",
				zap.String("from", string(o.phase)),
				zap.String("to", string(next)))
			o.phase = next
			return nil
		}
	}
	return NewIllegalTransitionError(o.phase, next)
}

// Run executes one startup pass: load definitions, mount them, populate
// the catalog and decide readiness. It returns an error only when the
// definition source itself is unreadable, in which case the process
// must not become servable.
func (o *Orchestrator) Run() error {
	if err := o.advance(PhaseLoadingDefinitions); err != nil {
		return err
	}

	results, err := definition.Load(o.definitionsDir)
	if err != nil {
		if advErr := o.advance(PhaseFailed); advErr != nil {
			return advErr
		}
		zap.L().Error("Definition source unreadable, startup aborted",
			zap.String("directory", o.definitionsDir),
			zap.Error(err))
		return err
	}

	if err := o.advance(PhaseMounting); err != nil {
		return err
	}
	o.mounter.MountAll(results, o.catalog)

	if err := o.advance(PhaseCatalogPopulated); err != nil {
		return err
	}

	// The catalog is read-only from here until process shutdown.
	o.catalog.Seal()

	next := PhaseReady
	if o.catalog.FailedCount() > 0 {
		next = PhaseDegraded
	}
	if err := o.advance(next); err != nil {
		return err
	}

	o.logRegistrationSummary()
	return nil
}

// logRegistrationSummary emits the registration summary consumed by
// operators: one counts line, one line per mounting failure, and one
// line per registered tool.
func (o *Orchestrator) logRegistrationSummary() {
	registered := o.catalog.RegisteredCount()
	failed := o.catalog.FailedCount()

	if registered == 0 {
		zap.L().Warn("No tools registered from definitions directory",
			zap.String("directory", o.definitionsDir),
			zap.String("hint", "Add TOOL.yaml definitions to the directory to enable tools"))
	}

	zap.L().Info("Tool registration complete",
		zap.String("phase", string(o.Phase())),
		zap.Int("registered", registered),
		zap.Int("failed", failed))

	for _, failure := range o.catalog.Failures() {
		zap.L().Warn("Tool definition not mounted",
			zap.String("tool", failure.Definition),
			zap.String("path", failure.SourcePath),
			zap.String("reason", string(failure.Reason)),
			zap.String("detail", failure.Detail))
	}

	for contract := range o.catalog.All() {
		zap.L().Info("Registered tool",
			zap.String("name", contract.Name),
			zap.String("kind", string(contract.Kind)),
			zap.String("description", contract.Description))
	}
}
