package model

import (
	"testing"
)

func testSpec() UtilitySpec {
	return UtilitySpec{
		Experiment: ExperimentEV,
		Attributes: []Attribute{
			{Name: "asc_contract", Random: false},
			{Name: "compensation", Random: true},
			{Name: "override_limit", Random: true},
			{Name: "cost", Random: false},
		},
		CostAttribute: "cost",
	}
}

func TestUtilitySpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*UtilitySpec)
		wantErr bool
	}{
		{"valid", func(s *UtilitySpec) {}, false},
		{"bad experiment", func(s *UtilitySpec) { s.Experiment = "solar" }, true},
		{"no attributes", func(s *UtilitySpec) { s.Attributes = nil }, true},
		{"duplicate attribute", func(s *UtilitySpec) {
			s.Attributes = append(s.Attributes, Attribute{Name: "cost"})
		}, true},
		{"empty attribute name", func(s *UtilitySpec) {
			s.Attributes[0].Name = ""
		}, true},
		{"missing cost attribute", func(s *UtilitySpec) { s.CostAttribute = "price" }, true},
		{"empty cost attribute", func(s *UtilitySpec) { s.CostAttribute = "" }, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec := testSpec()
			test.mutate(&spec)
			err := spec.Validate()
			if test.wantErr && err == nil {
				t.Error("Expected error, got none")
			}
			if !test.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestUtilitySpecParamLayout(t *testing.T) {
	spec := testSpec()

	// 2 fixed + 2 random means + 3 Cholesky elements
	if got := spec.ParamCount(); got != 7 {
		t.Fatalf("ParamCount: expected 7, got %d", got)
	}

	names := spec.ParamNames()
	expected := []string{
		"asc_contract",
		"cost",
		"mean:compensation",
		"mean:override_limit",
		"chol:compensation:compensation",
		"chol:override_limit:compensation",
		"chol:override_limit:override_limit",
	}
	if len(names) != len(expected) {
		t.Fatalf("ParamNames length: expected %d, got %d", len(expected), len(names))
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("ParamNames[%d]: expected %q, got %q", i, want, names[i])
		}
	}

	if idx := spec.FixedIndex("cost"); idx != 1 {
		t.Errorf("FixedIndex(cost): expected 1, got %d", idx)
	}
	if idx := spec.FixedIndex("compensation"); idx != -1 {
		t.Errorf("FixedIndex(compensation): expected -1 for random attribute, got %d", idx)
	}
	if idx := spec.RandomIndex("override_limit"); idx != 1 {
		t.Errorf("RandomIndex(override_limit): expected 1, got %d", idx)
	}
	if idx := spec.RandomIndex("cost"); idx != -1 {
		t.Errorf("RandomIndex(cost): expected -1 for fixed attribute, got %d", idx)
	}
	if off := spec.MeansOffset(); off != 2 {
		t.Errorf("MeansOffset: expected 2, got %d", off)
	}
	if off := spec.CholOffset(); off != 4 {
		t.Errorf("CholOffset: expected 4, got %d", off)
	}
}

func TestUtilitySpecHashStability(t *testing.T) {
	a := testSpec()
	b := testSpec()
	if a.Hash() != b.Hash() {
		t.Error("Identical specs should hash identically")
	}

	b.Attributes[1].Random = false
	if a.Hash() == b.Hash() {
		t.Error("Changed spec should hash differently")
	}
}

func TestParseExperiment(t *testing.T) {
	tests := []struct {
		input    string
		expected Experiment
		hasError bool
	}{
		{"ev", ExperimentEV, false},
		{"HP", ExperimentHP, false},
		{"  ev ", ExperimentEV, false},
		{"", "", true},
		{"wind", "", true},
	}

	for _, test := range tests {
		result, err := ParseExperiment(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input %q, but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input %q: %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}
