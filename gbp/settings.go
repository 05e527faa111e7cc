package gbp

import "fmt"

// GbpSettings configures the per-iteration behaviour of a FactorGraph: the
// damping schedule, the JIT relinearisation threshold, and dropout.
type GbpSettings struct {
	// Damping is the steady-state convex-blend weight applied to outgoing
	// messages once a factor is past its undamped warm-up window.
	Damping float64
	// Beta is the absolute drift threshold between a non-linear factor's
	// cached linearisation point and its current adjacency mean; crossing
	// it triggers relinearisation.
	Beta float64
	// UndampedIterations is the number of iterations after (re)linearisation
	// during which damping is forced to 0.
	UndampedIterations int
	// MinimumLinearIteration mirrors the source setting of the same name; it
	// is surfaced for callers that gate their own scenario logic on it (this
	// solver does not use it internally beyond carrying the value).
	MinimumLinearIteration int
	// Dropout is the per-iteration probability that a factor's message
	// computation is skipped, in [0, 1].
	Dropout float64
	// ResetIterations lists iteration indices (0-based, as passed to
	// synchronous_iteration within Solve) at which every factor's
	// iterations-since-relinearisation counter is reset to 1.
	ResetIterations []int
	// Parallelism bounds how many factors/variables are processed
	// concurrently within a single phase; 1 (the default) is fully
	// sequential. See FactorGraph for the phase-barrier contract this must
	// preserve.
	Parallelism int
}

// DefaultGbpSettings mirrors the reference defaults: no damping, a modest
// relinearisation threshold, a short undamped warm-up, no dropout.
func DefaultGbpSettings() GbpSettings {
	return GbpSettings{
		Damping:                0.0,
		Beta:                   0.1,
		UndampedIterations:     5,
		MinimumLinearIteration: 10,
		Dropout:                0.0,
		ResetIterations:        nil,
		Parallelism:            1,
	}
}

// Validate enforces the construction-time invariants 0 <= Dropout <= 1,
// Beta >= 0 and Parallelism >= 0. Other fields are not checked, and
// Beta == 0 is accepted (it means "always relinearise", a valid, if
// wasteful, configuration).
func (s GbpSettings) Validate() error {
	if s.Dropout < 0 || s.Dropout > 1 {
		return fmt.Errorf("GbpSettings.Validate: dropout %v: %w", s.Dropout, ErrInvalidSettings)
	}
	if s.Beta < 0 {
		return fmt.Errorf("GbpSettings.Validate: beta %v: %w", s.Beta, ErrInvalidSettings)
	}
	if s.Parallelism < 0 {
		return fmt.Errorf("GbpSettings.Validate: parallelism %v: %w", s.Parallelism, ErrInvalidSettings)
	}

	return nil
}

// damping returns the damping factor to apply given how many iterations
// have elapsed since the owning factor was last (re)linearised: 0 during
// the undamped warm-up window, GbpSettings.Damping afterwards.
func (s GbpSettings) damping(iterationsSinceRelinearisation int) float64 {
	if iterationsSinceRelinearisation > s.UndampedIterations {
		return s.Damping
	}

	return 0.0
}

// SolveSettings configures a single call to FactorGraph.Solve.
type SolveSettings struct {
	// Iterations is the maximum number of synchronous iterations to run.
	Iterations int
	// ConvergenceThreshold is the energy-delta tolerance below which three
	// consecutive iterations are treated as converged.
	ConvergenceThreshold float64
	// IncludePriors controls whether variable prior energy contributes to
	// the convergence/logging energy signal.
	IncludePriors bool
	// Log enables per-iteration energy reporting via the FactorGraph's
	// EnergyLogger (never stdout in production).
	Log bool
}

// DefaultSolveSettings mirrors the reference defaults.
func DefaultSolveSettings() SolveSettings {
	return SolveSettings{
		Iterations:           20,
		ConvergenceThreshold: 1e-6,
		IncludePriors:        true,
		Log:                  true,
	}
}

// Validate enforces Iterations > 0 and ConvergenceThreshold >= 0.
func (s SolveSettings) Validate() error {
	if s.Iterations <= 0 {
		return fmt.Errorf("SolveSettings.Validate: iterations %d: %w", s.Iterations, ErrInvalidSettings)
	}
	if s.ConvergenceThreshold < 0 {
		return fmt.Errorf("SolveSettings.Validate: convergence threshold %v: %w", s.ConvergenceThreshold, ErrInvalidSettings)
	}

	return nil
}

// SolveOutcome reports how Solve terminated.
type SolveOutcome int

const (
	// Converged indicates three consecutive iterations with an energy
	// delta below ConvergenceThreshold.
	Converged SolveOutcome = iota
	// MaxIterationsReached indicates Solve ran to SolveSettings.Iterations
	// without converging.
	MaxIterationsReached
)

func (o SolveOutcome) String() string {
	switch o {
	case Converged:
		return "Converged"
	case MaxIterationsReached:
		return "MaxIterationsReached"
	default:
		return "Unknown"
	}
}
