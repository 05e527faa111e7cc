package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadGeneralConfig(t *testing.T) {
	doc := `
[gbp]
sigma_pose_fixed = 1e-15
damping = 0.2
beta = 0.1
undamped_iterations = 5
dropout = 0.0
parallelism = 4

[simulation]
iterations_per_timestep = 15
convergence_threshold = 1e-6
random_seed = 7
`
	cfg, err := Load(doc)
	require.NoError(t, err)
	require.Equal(t, 0.2, cfg.Gbp.Damping)
	require.Equal(t, 4, cfg.Gbp.Parallelism)

	settings := cfg.GbpSettings()
	require.Equal(t, 0.2, settings.Damping)
	solve := cfg.SolveSettings()
	require.Equal(t, 15, solve.Iterations)
}

func TestLoadEnvironmentAndSDF(t *testing.T) {
	doc := []byte(`
obstacles:
  - center: [0, 0]
    radius: 1.0
`)
	env, err := LoadEnvironment(doc)
	require.NoError(t, err)
	require.Len(t, env.Obstacles, 1)

	sdf := env.SignedDistanceFunc()
	d, grad, err := sdf([]float64{3, 0})
	require.NoError(t, err)
	require.InDelta(t, 2.0, d, 1e-9)
	require.InDelta(t, 1.0, grad[0], 1e-9)
}

func TestLoadFormationRejectsMismatchedDims(t *testing.T) {
	doc := []byte(`
robots:
  - name: r0
    start: [0, 0]
    goal: [1, 1, 1]
    radius: 0.5
`)
	_, err := LoadFormation(doc)
	require.Error(t, err)
}

func TestLoadFormationAcceptsValidSpec(t *testing.T) {
	doc := []byte(`
robots:
  - name: r0
    start: [0, 0]
    goal: [10, 10]
    radius: 0.5
`)
	f, err := LoadFormation(doc)
	require.NoError(t, err)
	require.Len(t, f.Robots, 1)
	require.Equal(t, "r0", f.Robots[0].Name)
}
