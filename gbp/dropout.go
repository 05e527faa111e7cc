package gbp

import "math/rand"

// DropoutSampler decides, deterministically for a given (seed, factor id,
// iteration) triple, whether a factor's message computation should be
// skipped for that iteration. Keying a fresh RNG off the triple (rather
// than drawing from one shared stream in arena order) makes the decision
// independent of iteration order, so increasing GbpSettings.Parallelism
// reproduces exactly the same dropout pattern as running sequentially.
type DropoutSampler struct {
	seed int64
}

// NewDropoutSampler returns a sampler keyed off seed.
func NewDropoutSampler(seed int64) DropoutSampler {
	return DropoutSampler{seed: seed}
}

// Skip reports whether the factor identified by factorID should have its
// message computation skipped on the given iteration, at the given
// dropout probability.
func (d DropoutSampler) Skip(factorID, iteration int, probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}

	mixed := splitmix64(uint64(d.seed)) ^ splitmix64(uint64(factorID)<<32|uint64(uint32(iteration)))
	src := rand.New(rand.NewSource(int64(mixed))) //nolint:gosec // deterministic reproducibility, not cryptographic use

	return src.Float64() < probability
}

// splitmix64 is a fast, well-distributed integer hash used to derive a
// per-(seed, factor, iteration) RNG seed without correlating adjacent
// factor ids or iterations against each other.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB

	return x ^ (x >> 31)
}
