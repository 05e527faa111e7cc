// Package config loads the TOML and YAML documents that parameterise a
// solve: general solver settings (TOML, split into gbp and simulation
// sections), an obstacle/environment layout (YAML), and a robot formation
// (YAML).
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/katalvlaran/gbpgo/gbp"
)

// GeneralConfig holds the [gbp] and [simulation] sections of a general
// config document: per-factor-kind measurement sigmas, iteration counts,
// and the damping/relinearisation/dropout knobs gbp.GbpSettings exposes
// directly.
type GeneralConfig struct {
	Gbp struct {
		SigmaPoseFixed        float64 `toml:"sigma_pose_fixed"`
		SigmaFactorDynamics   float64 `toml:"sigma_factor_dynamics"`
		SigmaFactorInterrobot float64 `toml:"sigma_factor_interrobot"`
		SigmaFactorObstacle   float64 `toml:"sigma_factor_obstacle"`
		Damping               float64 `toml:"damping"`
		Beta                  float64 `toml:"beta"`
		UndampedIterations    int     `toml:"undamped_iterations"`
		Dropout               float64 `toml:"dropout"`
		Parallelism           int     `toml:"parallelism"`
	} `toml:"gbp"`

	Simulation struct {
		IterationsPerTimestep int     `toml:"iterations_per_timestep"`
		ConvergenceThreshold  float64 `toml:"convergence_threshold"`
		RandomSeed            int64   `toml:"random_seed"`
	} `toml:"simulation"`
}

// Load decodes a GeneralConfig from a TOML document.
func Load(data string) (GeneralConfig, error) {
	var cfg GeneralConfig
	if _, err := toml.Decode(data, &cfg); err != nil {
		return GeneralConfig{}, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// GbpSettings projects the decoded configuration onto a gbp.GbpSettings.
func (c GeneralConfig) GbpSettings() gbp.GbpSettings {
	s := gbp.DefaultGbpSettings()
	s.Damping = c.Gbp.Damping
	s.Beta = c.Gbp.Beta
	s.UndampedIterations = c.Gbp.UndampedIterations
	s.Dropout = c.Gbp.Dropout
	s.Parallelism = c.Gbp.Parallelism

	return s
}

// SolveSettings projects the decoded configuration onto a gbp.SolveSettings.
func (c GeneralConfig) SolveSettings() gbp.SolveSettings {
	s := gbp.DefaultSolveSettings()
	if c.Simulation.IterationsPerTimestep > 0 {
		s.Iterations = c.Simulation.IterationsPerTimestep
	}
	if c.Simulation.ConvergenceThreshold > 0 {
		s.ConvergenceThreshold = c.Simulation.ConvergenceThreshold
	}

	return s
}
