package design

import (
	"testing"

	"flexwta/domain/model"
)

func pairRows(id string, contract map[string]float64) []Row {
	optout := make(map[string]float64, len(contract))
	for k := range contract {
		optout[k] = 0
	}
	return []Row{
		{ScenarioID: id, Alternative: AltContract, Values: contract},
		{ScenarioID: id, Alternative: AltOptOut, Values: optout},
	}
}

func TestNewTableEnforcesPairing(t *testing.T) {
	good := pairRows("s1", map[string]float64{"compensation": 100, "cost": 5})
	good = append(good, pairRows("s2", map[string]float64{"compensation": 200, "cost": 5})...)

	table, err := NewTable(model.ExperimentEV, good)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if table.NumScenarios() != 2 {
		t.Errorf("Expected 2 scenarios, got %d", table.NumScenarios())
	}
	if table.Scenarios()[0].ID != "s1" || table.Scenarios()[1].ID != "s2" {
		t.Error("Scenario order should follow first appearance")
	}

	tests := []struct {
		name string
		rows []Row
	}{
		{"missing optout", []Row{
			{ScenarioID: "s1", Alternative: AltContract, Values: map[string]float64{"cost": 1}},
		}},
		{"duplicate contract", []Row{
			{ScenarioID: "s1", Alternative: AltContract, Values: map[string]float64{"cost": 1}},
			{ScenarioID: "s1", Alternative: AltContract, Values: map[string]float64{"cost": 2}},
		}},
		{"three rows", []Row{
			{ScenarioID: "s1", Alternative: AltContract, Values: map[string]float64{"cost": 1}},
			{ScenarioID: "s1", Alternative: AltOptOut, Values: map[string]float64{"cost": 0}},
			{ScenarioID: "s1", Alternative: AltOptOut, Values: map[string]float64{"cost": 0}},
		}},
		{"nonzero optout", []Row{
			{ScenarioID: "s1", Alternative: AltContract, Values: map[string]float64{"cost": 1}},
			{ScenarioID: "s1", Alternative: AltOptOut, Values: map[string]float64{"cost": 3}},
		}},
		{"unknown alternative", []Row{
			{ScenarioID: "s1", Alternative: "maybe", Values: map[string]float64{"cost": 1}},
			{ScenarioID: "s1", Alternative: AltOptOut, Values: map[string]float64{"cost": 0}},
		}},
		{"empty scenario id", []Row{
			{ScenarioID: "", Alternative: AltContract, Values: map[string]float64{"cost": 1}},
			{ScenarioID: "", Alternative: AltOptOut, Values: map[string]float64{"cost": 0}},
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewTable(model.ExperimentEV, test.rows); err == nil {
				t.Error("Expected error, got none")
			}
		})
	}
}

func TestTableValidateAgainst(t *testing.T) {
	spec := model.UtilitySpec{
		Experiment: model.ExperimentEV,
		Attributes: []model.Attribute{
			{Name: "compensation", Random: true},
			{Name: "cost", Random: false},
		},
		CostAttribute: "cost",
	}

	rows := pairRows("s1", map[string]float64{"compensation": 100, "cost": 5})
	table, err := NewTable(model.ExperimentEV, rows)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := table.ValidateAgainst(spec); err != nil {
		t.Errorf("Expected match, got %v", err)
	}

	// Missing attribute
	rows = pairRows("s1", map[string]float64{"compensation": 100})
	table, err = NewTable(model.ExperimentEV, rows)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := table.ValidateAgainst(spec); err == nil {
		t.Error("Expected mismatch for missing attribute")
	}

	// Unknown attribute
	rows = pairRows("s1", map[string]float64{"compensation": 100, "cost": 5, "duration": 2})
	table, err = NewTable(model.ExperimentEV, rows)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := table.ValidateAgainst(spec); err == nil {
		t.Error("Expected mismatch for unknown attribute")
	}

	// Wrong experiment
	rows = pairRows("s1", map[string]float64{"compensation": 100, "cost": 5})
	table, err = NewTable(model.ExperimentHP, rows)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := table.ValidateAgainst(spec); err == nil {
		t.Error("Expected mismatch for wrong experiment")
	}
}

func TestExpandFactorial(t *testing.T) {
	table, err := Expand(model.ExperimentEV,
		[]string{"compensation", "override_limit"},
		map[string][]float64{
			"compensation":   {50, 100, 150},
			"override_limit": {0, 4},
		})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if table.NumScenarios() != 6 {
		t.Fatalf("Expected 6 scenarios, got %d", table.NumScenarios())
	}

	// Odometer order: last attribute varies fastest
	first := table.Scenarios()[0].Contract.Values
	if first["compensation"] != 50 || first["override_limit"] != 0 {
		t.Errorf("Unexpected first scenario: %v", first)
	}
	second := table.Scenarios()[1].Contract.Values
	if second["compensation"] != 50 || second["override_limit"] != 4 {
		t.Errorf("Unexpected second scenario: %v", second)
	}
	last := table.Scenarios()[5].Contract.Values
	if last["compensation"] != 150 || last["override_limit"] != 4 {
		t.Errorf("Unexpected last scenario: %v", last)
	}

	for _, sc := range table.Scenarios() {
		for name, v := range sc.OptOut.Values {
			if v != 0 {
				t.Errorf("Opt-out value %s=%g should be zero", name, v)
			}
		}
	}
}

func TestExpandDeterministicHash(t *testing.T) {
	build := func() *Table {
		table, err := Expand(model.ExperimentHP,
			[]string{"a", "b"},
			map[string][]float64{"a": {1, 2}, "b": {3}})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return table
	}
	if build().Hash() != build().Hash() {
		t.Error("Identical expansions should hash identically")
	}
}

func TestProbabilityGridAppendOnly(t *testing.T) {
	table, err := Expand(model.ExperimentEV,
		[]string{"compensation"},
		map[string][]float64{"compensation": {50, 100}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	grid := NewProbabilityGrid(table)
	if err := grid.Append("validated", []float64{0.4, 0.6}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := grid.Append("validated", []float64{0.1, 0.2}); err == nil {
		t.Error("Expected error for duplicate label")
	}
	if err := grid.Append("r0001", []float64{0.5}); err == nil {
		t.Error("Expected error for length mismatch")
	}

	vals, ok := grid.Column("validated")
	if !ok || vals[0] != 0.4 || vals[1] != 0.6 {
		t.Errorf("Column(validated): got %v, ok=%v", vals, ok)
	}
}

func TestReplicateLabel(t *testing.T) {
	if ReplicateLabel(0) != "validated" {
		t.Errorf("Expected validated, got %s", ReplicateLabel(0))
	}
	if ReplicateLabel(12) != "r0012" {
		t.Errorf("Expected r0012, got %s", ReplicateLabel(12))
	}
}
