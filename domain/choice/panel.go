package choice

import (
	"fmt"
	"math"

	"flexwta/domain/core"
	"flexwta/domain/model"
)

// Observation is one take-it-or-leave-it scenario answered by one
// respondent: the contract's attribute values and whether it was accepted.
// The opt-out alternative carries no attributes, so it needs no row here.
type Observation struct {
	RespondentID  string             `json:"respondent_id"`
	ScenarioID    string             `json:"scenario_id"`
	Attributes    map[string]float64 `json:"attributes"`
	ChoseContract bool               `json:"chose_contract"`
}

// RespondentBlock groups one respondent's observations in panel order
type RespondentBlock struct {
	RespondentID string
	Observations []Observation
}

// Panel is the observed choice data of one experiment, grouped per
// respondent. Construction validates the grouping; attribute coverage
// against a utility spec is a separate startup check.
type Panel struct {
	Experiment   model.Experiment `json:"experiment"`
	Observations []Observation    `json:"observations"`

	blocks []RespondentBlock
}

// NewPanel groups observations by respondent, preserving first-appearance
// order for both respondents and their scenarios.
func NewPanel(experiment model.Experiment, observations []Observation) (*Panel, error) {
	if !experiment.Valid() {
		return nil, core.NewValidationError("panel", fmt.Sprintf("invalid experiment %q", experiment))
	}
	if len(observations) == 0 {
		return nil, core.NewValidationError("panel", "observation list cannot be empty")
	}

	index := make(map[string]int)
	var blocks []RespondentBlock
	for i, obs := range observations {
		if obs.RespondentID == "" {
			return nil, core.NewValidationError("panel", fmt.Sprintf("observation %d has empty respondent id", i))
		}
		if obs.ScenarioID == "" {
			return nil, core.NewValidationError("panel",
				fmt.Sprintf("respondent %s observation %d has empty scenario id", obs.RespondentID, i))
		}
		for name, v := range obs.Attributes {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: respondent %s scenario %s attribute %s",
					core.ErrNonFinite, obs.RespondentID, obs.ScenarioID, name)
			}
		}
		pos, seen := index[obs.RespondentID]
		if !seen {
			pos = len(blocks)
			index[obs.RespondentID] = pos
			blocks = append(blocks, RespondentBlock{RespondentID: obs.RespondentID})
		}
		blocks[pos].Observations = append(blocks[pos].Observations, obs)
	}

	return &Panel{Experiment: experiment, Observations: observations, blocks: blocks}, nil
}

// Respondents returns the per-respondent blocks in panel order
func (p *Panel) Respondents() []RespondentBlock { return p.blocks }

// NumRespondents returns the respondent count
func (p *Panel) NumRespondents() int { return len(p.blocks) }

// ValidateAgainst checks that every observation carries a value for every
// spec attribute and no unknown attributes. Run once before derivation.
func (p *Panel) ValidateAgainst(spec model.UtilitySpec) error {
	if p.Experiment != spec.Experiment {
		return core.NewSpecMismatchError("panel experiment", spec.Experiment, p.Experiment)
	}
	for _, obs := range p.Observations {
		for _, a := range spec.Attributes {
			if _, ok := obs.Attributes[a.Name]; !ok {
				return core.NewSpecMismatchError(
					fmt.Sprintf("respondent %s scenario %s", obs.RespondentID, obs.ScenarioID),
					"attribute "+a.Name, "absent")
			}
		}
		for name := range obs.Attributes {
			if !spec.HasAttribute(name) {
				return core.NewSpecMismatchError(
					fmt.Sprintf("respondent %s scenario %s", obs.RespondentID, obs.ScenarioID),
					"spec attribute", "unknown attribute "+name)
			}
		}
	}
	return nil
}
