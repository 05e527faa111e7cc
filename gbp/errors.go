// Package gbp implements a bipartite factor graph and a synchronous
// Gaussian Belief Propagation solver: variable and factor arenas,
// information-form belief updates, just-in-time relinearisation, damped
// messages, stochastic dropout, and joint/gradient queries for
// Gauss-Newton / Levenberg-Marquardt style updates.
//
// Sentinel errors follow the same convention used throughout this module:
// a flat block of package-level errors.New values, wrapped with operation
// context via fmt.Errorf("%s: %w", ...) at call sites, checked with
// errors.Is by callers and tests — never a second sentinel wrapping a
// first.
//
// ERROR PRIORITY:
// InvalidSettings (construction-time) -> DimensionMismatch (construction or
// operation-time, fatal) -> Singular / IllConditioned (runtime-recoverable,
// logged and the affected update is skipped) -> NoSuchConnection (returned,
// not fatal).
package gbp

import "errors"

var (
	// ErrInvalidSettings is returned at construction time when GbpSettings
	// or SolveSettings carry out-of-range values (dropout outside [0,1],
	// iterations == 0, negative beta, ...). Construction-time validation is
	// strict: bad graphs/settings are refused outright.
	ErrInvalidSettings = errors.New("gbp: invalid settings")

	// ErrDimensionMismatch marks a structural bug: a factor's adjacency
	// dimension disagreeing with its measurement model, or a message of
	// the wrong size. Fatal; panics are acceptable at construction time
	// for this, error-returning at operation time.
	ErrDimensionMismatch = errors.New("gbp: dimension mismatch")

	// ErrSingular names a non-invertible precision matrix. No function in
	// this package returns it: MAP and the belief-mean queries surface
	// gaussian.ErrSingular from the gaussian package, and a singular Schur
	// complement inside ComputeMessages is reported as ErrIllConditioned.
	ErrSingular = errors.New("gbp: singular precision matrix")

	// ErrIllConditioned is returned when a Schur complement encountered
	// inside Factor.ComputeMessages cannot be inverted. The outgoing
	// message to that neighbour is left unchanged for the iteration; this
	// is recoverable and does not abort Solve.
	ErrIllConditioned = errors.New("gbp: ill-conditioned schur complement")

	// ErrNoSuchConnection is returned when purging a message slot that is
	// not present (Variable.RemoveConnectionTo / Factor.RemoveConnectionTo
	// on an unknown neighbour id). Not fatal.
	ErrNoSuchConnection = errors.New("gbp: no such connection")

	// ErrUnknownVariable / ErrUnknownFactor mark a reference to an id that
	// does not exist in the current arena (e.g. AddFactor given a
	// neighbour id out of range, or BeliefOf on a removed variable).
	ErrUnknownVariable = errors.New("gbp: unknown variable id")
	ErrUnknownFactor   = errors.New("gbp: unknown factor id")
)
