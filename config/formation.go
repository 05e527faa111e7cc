package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RobotSpec describes one robot's start and goal pose in a formation.
type RobotSpec struct {
	Name   string    `yaml:"name"`
	Start  []float64 `yaml:"start"`
	Goal   []float64 `yaml:"goal"`
	Radius float64   `yaml:"radius"`
}

// Formation is the YAML description of a set of robots to instantiate.
type Formation struct {
	Robots []RobotSpec `yaml:"robots"`
}

// LoadFormation decodes a Formation from a YAML document.
func LoadFormation(data []byte) (Formation, error) {
	var f Formation
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Formation{}, fmt.Errorf("config.LoadFormation: %w", err)
	}
	for i, r := range f.Robots {
		if len(r.Start) != len(r.Goal) {
			return Formation{}, fmt.Errorf("config.LoadFormation: robot %d (%s): start dim %d != goal dim %d", i, r.Name, len(r.Start), len(r.Goal))
		}
	}

	return f, nil
}
