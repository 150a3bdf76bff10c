package design

import (
	"fmt"

	"flexwta/domain/core"
	"flexwta/domain/model"
)

// ProbabilityColumn holds one artifact's acceptance probabilities over the
// scenario grid, labeled by its source ("validated", "r0001", ...).
type ProbabilityColumn struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

// ProbabilityGrid collects acceptance-probability columns over a fixed
// scenario order. Columns are append-only: predictions from new artifacts
// never touch columns already written, so concurrent stages can merge their
// grids without coordination on content.
type ProbabilityGrid struct {
	Experiment  model.Experiment    `json:"experiment"`
	ScenarioIDs []string            `json:"scenario_ids"`
	Columns     []ProbabilityColumn `json:"columns"`
}

// NewProbabilityGrid fixes the scenario order from a design table
func NewProbabilityGrid(t *Table) *ProbabilityGrid {
	ids := make([]string, t.NumScenarios())
	for i, sc := range t.Scenarios() {
		ids[i] = sc.ID
	}
	return &ProbabilityGrid{Experiment: t.Experiment, ScenarioIDs: ids}
}

// Append adds a column. Duplicate labels and length mismatches are rejected;
// existing columns are never overwritten.
func (g *ProbabilityGrid) Append(label string, values []float64) error {
	if label == "" {
		return core.NewValidationError("probability_grid", "column label cannot be empty")
	}
	if len(values) != len(g.ScenarioIDs) {
		return core.NewValidationError("probability_grid",
			fmt.Sprintf("column %s has %d values, want %d", label, len(values), len(g.ScenarioIDs)))
	}
	for _, c := range g.Columns {
		if c.Label == label {
			return core.NewValidationError("probability_grid", fmt.Sprintf("column %s already present", label))
		}
	}
	own := make([]float64, len(values))
	copy(own, values)
	g.Columns = append(g.Columns, ProbabilityColumn{Label: label, Values: own})
	return nil
}

// Column returns the values of a labeled column
func (g *ProbabilityGrid) Column(label string) ([]float64, bool) {
	for _, c := range g.Columns {
		if c.Label == label {
			return c.Values, true
		}
	}
	return nil, false
}

// ReplicateLabel is the canonical column label for a replicate index
func ReplicateLabel(replicate int) string {
	if replicate == model.ValidatedReplicate {
		return "validated"
	}
	return fmt.Sprintf("r%04d", replicate)
}
