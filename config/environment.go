package config

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/gbpgo/gbp"
)

// CircleObstacle is a static circular obstacle: a signed-distance field
// SDF(x) = ||x-Center|| - Radius. Circles are the only obstacle shape the
// environment format supports.
type CircleObstacle struct {
	Center []float64 `yaml:"center"`
	Radius float64   `yaml:"radius"`
}

// Environment is the YAML description of a world's static obstacles.
type Environment struct {
	Obstacles []CircleObstacle `yaml:"obstacles"`
}

// LoadEnvironment decodes an Environment from a YAML document.
func LoadEnvironment(data []byte) (Environment, error) {
	var env Environment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return Environment{}, fmt.Errorf("config.LoadEnvironment: %w", err)
	}

	return env, nil
}

// SignedDistanceFunc returns a gbp.SignedDistanceFunc over every obstacle
// in the environment, taking the minimum (closest) signed distance and its
// corresponding gradient -- an agent is penalised by whichever obstacle it
// is nearest to.
func (e Environment) SignedDistanceFunc() gbp.SignedDistanceFunc {
	obstacles := e.Obstacles

	return func(x []float64) (float64, []float64, error) {
		if len(obstacles) == 0 {
			return math.Inf(1), make([]float64, len(x)), nil
		}

		best := math.Inf(1)
		var bestGrad []float64
		for _, o := range obstacles {
			if len(o.Center) != len(x) {
				return 0, nil, fmt.Errorf("SignedDistanceFunc: obstacle center dim %d != %d: %w", len(o.Center), len(x), gbp.ErrDimensionMismatch)
			}
			diff := make([]float64, len(x))
			var sumSq float64
			for i := range x {
				diff[i] = x[i] - o.Center[i]
				sumSq += diff[i] * diff[i]
			}
			dist := math.Sqrt(sumSq)
			signed := dist - o.Radius
			if signed < best {
				best = signed
				grad := make([]float64, len(x))
				d := math.Max(dist, 1e-9)
				for i := range diff {
					grad[i] = diff[i] / d
				}
				bestGrad = grad
			}
		}

		return best, bestGrad, nil
	}
}
