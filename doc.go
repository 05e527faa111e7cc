// Package gbpgo is a Gaussian Belief Propagation (GBP) solver operating over
// a bipartite factor graph of variables and factors whose beliefs are
// multivariate Gaussians in information form.
//
// 🚀 What is gbpgo?
//
//	A synchronous, iterative message-passing solver that brings together:
//
//	  • gaussian/    — information-form Gaussian algebra (η, Λ)
//	  • linalg/      — gonum-backed dense matrix layer (solve, inverse, eigen)
//	  • gbp/         — the bipartite factor graph and solver driver
//	  • diagnostics/ — DOT/adjacency/ellipse views for visualisation
//	  • config/      — TOML/YAML ingestion of scenarios
//
// ✨ Why gbpgo?
//
//   - Deterministic    — dropout is driven by an explicit, seedable
//     sampler; no hidden global state.
//   - Just-in-time     — non-linear factors relinearise only once their
//     adjacency mean has drifted past a threshold.
//   - Damped & robust  — steady-state damping with a warm-up window, and
//     pluggable robust losses.
//
// Under the hood:
//
//	gaussian/      — Gaussian(η, Λ): mean, covariance, product, norm
//	linalg/        — Dense matrices over gonum/mat: solve, inverse, eigen
//	gbp/           — Variable, Factor, FactorGraph, GbpSettings, SolveSettings
//	diagnostics/   — Graphviz DOT export, adjacency matrices, ellipses
//	config/        — general (TOML), environment (YAML), formation (YAML)
//
//	go get github.com/katalvlaran/gbpgo
package gbpgo
