package model

import (
	"fmt"
	"strings"
)

// Experiment identifies one of the two stated-choice experiments
type Experiment string

const (
	ExperimentEV Experiment = "ev" // electric vehicle charging contracts
	ExperimentHP Experiment = "hp" // heat pump operation contracts
)

// AllExperiments lists the experiments in canonical order
func AllExperiments() []Experiment {
	return []Experiment{ExperimentEV, ExperimentHP}
}

// ParseExperiment parses a string into an Experiment
func ParseExperiment(s string) (Experiment, error) {
	switch Experiment(strings.ToLower(strings.TrimSpace(s))) {
	case ExperimentEV:
		return ExperimentEV, nil
	case ExperimentHP:
		return ExperimentHP, nil
	default:
		return "", fmt.Errorf("unknown experiment %q (want ev or hp)", s)
	}
}

// Valid reports whether the experiment is a known value
func (e Experiment) Valid() bool {
	return e == ExperimentEV || e == ExperimentHP
}

// String returns the string representation
func (e Experiment) String() string {
	return string(e)
}
