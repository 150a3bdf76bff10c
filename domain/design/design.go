package design

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"flexwta/domain/core"
	"flexwta/domain/model"
)

// Alternative labels the two rows of a take-it-or-leave-it scenario
type Alternative string

const (
	AltContract Alternative = "contract"
	AltOptOut   Alternative = "optout"
)

// Row is one alternative of one scenario. Attribute values live in a map so
// tables survive column reordering in source files; prediction code aligns
// them against the utility spec once, up front.
type Row struct {
	ScenarioID  string             `json:"scenario_id"`
	Alternative Alternative        `json:"alternative"`
	Values      map[string]float64 `json:"values"`
}

// Scenario is a validated contract/opt-out pair
type Scenario struct {
	ID       string
	Contract Row
	OptOut   Row
}

// Table is the scenario design of one experiment: an ordered list of
// take-it-or-leave-it scenarios, each exactly one contract row and one
// opt-out row with all attribute values zero.
type Table struct {
	Experiment model.Experiment `json:"experiment"`
	Rows       []Row            `json:"rows"`

	scenarios []Scenario
}

// NewTable validates the pairing invariant and groups rows into scenarios.
// Scenario order follows first appearance in the row list.
func NewTable(experiment model.Experiment, rows []Row) (*Table, error) {
	if !experiment.Valid() {
		return nil, core.NewValidationError("design", fmt.Sprintf("invalid experiment %q", experiment))
	}
	if len(rows) == 0 {
		return nil, core.NewValidationError("design", "row list cannot be empty")
	}

	byScenario := make(map[string][]Row)
	var order []string
	for i, r := range rows {
		if r.ScenarioID == "" {
			return nil, core.NewValidationError("design", fmt.Sprintf("row %d has empty scenario id", i))
		}
		if r.Alternative != AltContract && r.Alternative != AltOptOut {
			return nil, core.NewValidationError("design",
				fmt.Sprintf("scenario %s row %d: unknown alternative %q", r.ScenarioID, i, r.Alternative))
		}
		for name, v := range r.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: scenario %s attribute %s", core.ErrNonFinite, r.ScenarioID, name)
			}
		}
		if _, seen := byScenario[r.ScenarioID]; !seen {
			order = append(order, r.ScenarioID)
		}
		byScenario[r.ScenarioID] = append(byScenario[r.ScenarioID], r)
	}

	scenarios := make([]Scenario, 0, len(order))
	for _, id := range order {
		pair := byScenario[id]
		if len(pair) != 2 {
			return nil, core.NewValidationError("design",
				fmt.Sprintf("scenario %s has %d rows, want exactly 2", id, len(pair)))
		}
		var sc Scenario
		sc.ID = id
		seen := map[Alternative]bool{}
		for _, r := range pair {
			if seen[r.Alternative] {
				return nil, core.NewValidationError("design",
					fmt.Sprintf("scenario %s has duplicate %s rows", id, r.Alternative))
			}
			seen[r.Alternative] = true
			switch r.Alternative {
			case AltContract:
				sc.Contract = r
			case AltOptOut:
				sc.OptOut = r
			}
		}
		if !seen[AltContract] || !seen[AltOptOut] {
			return nil, core.NewValidationError("design",
				fmt.Sprintf("scenario %s is missing a contract or opt-out row", id))
		}
		for name, v := range sc.OptOut.Values {
			if v != 0 {
				return nil, core.NewValidationError("design",
					fmt.Sprintf("scenario %s opt-out row has nonzero %s=%g", id, name, v))
			}
		}
		scenarios = append(scenarios, sc)
	}

	return &Table{Experiment: experiment, Rows: rows, scenarios: scenarios}, nil
}

// Scenarios returns the validated pairs in table order
func (t *Table) Scenarios() []Scenario { return t.scenarios }

// NumScenarios returns the scenario count
func (t *Table) NumScenarios() int { return len(t.scenarios) }

// ValidateAgainst checks that every contract row carries a value for every
// attribute of the utility spec and nothing the spec does not know about.
// Run once before prediction; a failure here is fatal, not per replicate.
func (t *Table) ValidateAgainst(spec model.UtilitySpec) error {
	if t.Experiment != spec.Experiment {
		return core.NewSpecMismatchError("design experiment", spec.Experiment, t.Experiment)
	}
	for _, sc := range t.scenarios {
		for _, a := range spec.Attributes {
			if _, ok := sc.Contract.Values[a.Name]; !ok {
				return core.NewSpecMismatchError(
					fmt.Sprintf("scenario %s", sc.ID), "attribute "+a.Name, "absent")
			}
		}
		for name := range sc.Contract.Values {
			if !spec.HasAttribute(name) {
				return core.NewSpecMismatchError(
					fmt.Sprintf("scenario %s", sc.ID), "spec attribute", "unknown attribute "+name)
			}
		}
	}
	return nil
}

// Hash returns a stable content hash over scenarios in table order
func (t *Table) Hash() core.Hash {
	type kv struct {
		K string  `json:"k"`
		V float64 `json:"v"`
	}
	type flat struct {
		ID     string `json:"id"`
		Values []kv   `json:"values"`
	}
	flats := make([]flat, 0, len(t.scenarios))
	for _, sc := range t.scenarios {
		keys := make([]string, 0, len(sc.Contract.Values))
		for k := range sc.Contract.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		f := flat{ID: sc.ID}
		for _, k := range keys {
			f.Values = append(f.Values, kv{K: k, V: sc.Contract.Values[k]})
		}
		flats = append(flats, f)
	}
	data, _ := json.Marshal(flats)
	return core.NewHash(data)
}

// Expand builds a full-factorial table: one scenario per combination of
// attribute levels, in odometer order (last attribute varies fastest), each
// paired with an all-zero opt-out row. Attributes with no listed levels get
// a constant zero column.
func Expand(experiment model.Experiment, attributes []string, levels map[string][]float64) (*Table, error) {
	if len(attributes) == 0 {
		return nil, core.NewValidationError("design", "attribute list cannot be empty")
	}
	counts := make([]int, len(attributes))
	total := 1
	for i, name := range attributes {
		n := len(levels[name])
		if n == 0 {
			n = 1
		}
		counts[i] = n
		total *= n
	}

	var rows []Row
	idx := make([]int, len(attributes))
	for s := 0; s < total; s++ {
		id := fmt.Sprintf("s%04d", s+1)
		contract := make(map[string]float64, len(attributes))
		optout := make(map[string]float64, len(attributes))
		for i, name := range attributes {
			lv := levels[name]
			if len(lv) == 0 {
				contract[name] = 0
			} else {
				contract[name] = lv[idx[i]]
			}
			optout[name] = 0
		}
		rows = append(rows,
			Row{ScenarioID: id, Alternative: AltContract, Values: contract},
			Row{ScenarioID: id, Alternative: AltOptOut, Values: optout},
		)
		for i := len(attributes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < counts[i] {
				break
			}
			idx[i] = 0
		}
	}

	return NewTable(experiment, rows)
}
