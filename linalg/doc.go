// Package linalg is the dense matrix layer the rest of gbpgo is built on:
// a bounds-checked, sentinel-error wrapper around gonum's mat package,
// covering the operations the factor graph needs — elementwise algebra,
// block scatter/gather, LU-backed Solve/Inverse, and a symmetric
// eigendecomposition.
//
// No sparse representation is provided. The factor graph's joint
// distribution is explicitly a dense diagnostic artifact (see gbp.FactorGraph
// JointDistribution), never part of the hot solve loop, so a dense backing
// store is the right tradeoff here.
package linalg
