package mlogit

import (
	"math"
	"testing"

	"flexwta/domain/core"
	"flexwta/domain/design"
	"flexwta/domain/model"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// Two fixed attributes: the model collapses to plain logit and every
// probability has a closed form.
func fixedSpec() model.UtilitySpec {
	return model.UtilitySpec{
		Experiment: model.ExperimentEV,
		Attributes: []model.Attribute{
			{Name: "compensation", Random: false},
			{Name: "fee", Random: false},
		},
		CostAttribute: "fee",
	}
}

// One fixed, two random attributes, matching the model package's layout
// convention: theta = [fixed | means | chol lower triangle].
func mixedSpec() model.UtilitySpec {
	return model.UtilitySpec{
		Experiment: model.ExperimentEV,
		Attributes: []model.Attribute{
			{Name: "asc_contract", Random: false},
			{Name: "compensation", Random: true},
			{Name: "override_limit", Random: true},
			{Name: "cost", Random: false},
		},
		CostAttribute: "cost",
	}
}

func makeTable(t *testing.T, experiment model.Experiment, scenarios []map[string]float64) *design.Table {
	t.Helper()
	var rows []design.Row
	for i, values := range scenarios {
		id := design.Row{ScenarioID: scenarioID(i), Alternative: design.AltContract, Values: values}
		rows = append(rows, id)
		rows = append(rows, design.Row{
			ScenarioID:  scenarioID(i),
			Alternative: design.AltOptOut,
			Values:      map[string]float64{},
		})
	}
	table, err := design.NewTable(experiment, rows)
	if err != nil {
		t.Fatalf("Unexpected error building table: %v", err)
	}
	return table
}

func scenarioID(i int) string {
	return string(rune('a'+i)) + "-scenario"
}

func mustFreeze(t *testing.T, spec model.UtilitySpec, theta []float64) *model.Artifact {
	t.Helper()
	art, err := model.Freeze(spec, model.ValidatedReplicate, theta)
	if err != nil {
		t.Fatalf("Unexpected error freezing artifact: %v", err)
	}
	return art
}

func TestPredictExactLogisticWithoutRandomAttributes(t *testing.T) {
	spec := fixedSpec()
	art := mustFreeze(t, spec, []float64{1.0, -0.5})
	table := makeTable(t, model.ExperimentEV, []map[string]float64{
		{"compensation": 1, "fee": 1},
		{"compensation": 2, "fee": 4},
	})

	predictor, err := NewPredictor(64, 15)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	probs, err := predictor.Predict(art, table)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// V1 = 1*1.0 + 1*(-0.5) = 0.5, V2 = 2*1.0 + 4*(-0.5) = 0.
	want := []float64{1 / (1 + math.Exp(-0.5)), 0.5}
	if len(probs) != len(want) {
		t.Fatalf("Expected %d probabilities, got %d", len(want), len(probs))
	}
	for i := range want {
		if !almostEqual(probs[i], want[i], 1e-12) {
			t.Errorf("Scenario %d: want %g, got %g", i, want[i], probs[i])
		}
	}
}

func TestPredictBoundedAndDeterministicWithRandomAttributes(t *testing.T) {
	spec := mixedSpec()
	// asc, cost fixed; compensation/override means 1.2/-0.4; chol 0.3,0.1,0.2
	theta := []float64{0.8, -0.05, 1.2, -0.4, 0.3, 0.1, 0.2}
	art := mustFreeze(t, spec, theta)
	table := makeTable(t, model.ExperimentEV, []map[string]float64{
		{"asc_contract": 1, "compensation": 10, "override_limit": 2, "cost": 5},
		{"asc_contract": 1, "compensation": 0, "override_limit": 8, "cost": 0},
		{"asc_contract": 1, "compensation": 25, "override_limit": 0, "cost": 12},
	})

	predictor, err := NewPredictor(128, 15)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	first, err := predictor.Predict(art, table)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, p := range first {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Errorf("Scenario %d probability out of bounds: %g", i, p)
		}
	}

	second, err := predictor.Predict(art, table)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Scenario %d: prediction not deterministic: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestPredictSaturatesExtremeUtilities(t *testing.T) {
	spec := fixedSpec()
	table := makeTable(t, model.ExperimentEV, []map[string]float64{
		{"compensation": 1, "fee": 0},
	})
	predictor, err := NewPredictor(16, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	huge := mustFreeze(t, spec, []float64{1000, 0})
	probs, err := predictor.Predict(huge, table)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if probs[0] != 1 {
		t.Errorf("Huge positive utility: want exactly 1, got %g", probs[0])
	}

	tiny := mustFreeze(t, spec, []float64{-1000, 0})
	probs, err = predictor.Predict(tiny, table)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if probs[0] != 0 {
		t.Errorf("Huge negative utility: want exactly 0, got %g", probs[0])
	}
}

func TestPredictValidatesInputs(t *testing.T) {
	spec := fixedSpec()
	art := mustFreeze(t, spec, []float64{1.0, -0.5})

	hpTable := makeTable(t, model.ExperimentHP, []map[string]float64{
		{"compensation": 1, "fee": 1},
	})
	predictor, err := NewPredictor(16, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := predictor.Predict(art, hpTable); !core.IsSpecificationMismatch(err) {
		t.Errorf("Expected specification mismatch for experiment, got %v", err)
	}

	unknownAttr := makeTable(t, model.ExperimentEV, []map[string]float64{
		{"compensation": 1, "fee": 1, "duration": 3},
	})
	if _, err := predictor.Predict(art, unknownAttr); !core.IsSpecificationMismatch(err) {
		t.Errorf("Expected specification mismatch for unknown attribute, got %v", err)
	}

	missingAttr := makeTable(t, model.ExperimentEV, []map[string]float64{
		{"compensation": 1},
	})
	if _, err := predictor.Predict(art, missingAttr); !core.IsSpecificationMismatch(err) {
		t.Errorf("Expected specification mismatch for missing attribute, got %v", err)
	}
}

func TestNewPredictorValidatesDrawConfig(t *testing.T) {
	if _, err := NewPredictor(0, 15); err == nil {
		t.Error("Expected error for zero inner draws")
	}
	if _, err := NewPredictor(64, -1); err == nil {
		t.Error("Expected error for negative burn-in")
	}
}

func TestAveragePartialEffectAnalytic(t *testing.T) {
	spec := fixedSpec()
	art := mustFreeze(t, spec, []float64{1.0, -0.5})
	table := makeTable(t, model.ExperimentEV, []map[string]float64{
		{"compensation": 1, "fee": 1},
		{"compensation": 2, "fee": 0},
	})

	predictor, err := NewPredictor(32, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ape, err := predictor.AveragePartialEffect(art, table, APERequest{Attribute: "fee", From: 1, To: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	logistic := func(v float64) float64 { return 1 / (1 + math.Exp(-v)) }
	// Scenario 1: comp=1 fixed, fee 1->2: logistic(0) - logistic(0.5).
	// Scenario 2: comp=2 fixed, fee 1->2: logistic(1) - logistic(1.5).
	want := ((logistic(0) - logistic(0.5)) + (logistic(1.0) - logistic(1.5))) / 2
	if !almostEqual(ape, want, 1e-12) {
		t.Errorf("APE: want %g, got %g", want, ape)
	}
}

func TestAveragePartialEffectUnknownAttribute(t *testing.T) {
	spec := fixedSpec()
	art := mustFreeze(t, spec, []float64{1.0, -0.5})
	table := makeTable(t, model.ExperimentEV, []map[string]float64{
		{"compensation": 1, "fee": 1},
	})

	predictor, err := NewPredictor(16, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := predictor.AveragePartialEffect(art, table, APERequest{Attribute: "notice", From: 0, To: 1}); !core.IsSpecificationMismatch(err) {
		t.Errorf("Expected specification mismatch, got %v", err)
	}
}
