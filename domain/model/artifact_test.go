package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFreezeValidatesThetaLength(t *testing.T) {
	spec := testSpec()

	_, err := Freeze(spec, 1, make([]float64, 6))
	if err == nil {
		t.Fatal("Expected error for short theta, got none")
	}

	theta := []float64{0.8, -0.05, 1.2, -0.4, 0.3, 0.1, 0.2}
	art, err := Freeze(spec, 1, theta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if art.Replicate != 1 {
		t.Errorf("Expected replicate 1, got %d", art.Replicate)
	}
	if art.IsValidated() {
		t.Error("Replicate 1 should not be the validated artifact")
	}

	validated, err := Freeze(spec, ValidatedReplicate, theta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !validated.IsValidated() {
		t.Error("Replicate 0 should be the validated artifact")
	}
}

func TestFreezeRejectsNonFinite(t *testing.T) {
	spec := testSpec()
	theta := []float64{0.8, -0.05, 1.2, -0.4, 0.3, 0.1, 0.2}

	theta[3] = math.NaN()
	if _, err := Freeze(spec, 2, theta); err == nil {
		t.Error("Expected error for NaN theta element")
	}

	theta[3] = math.Inf(1)
	if _, err := Freeze(spec, 2, theta); err == nil {
		t.Error("Expected error for Inf theta element")
	}
}

func TestFreezeCopiesTheta(t *testing.T) {
	spec := testSpec()
	theta := []float64{0.8, -0.05, 1.2, -0.4, 0.3, 0.1, 0.2}

	art, err := Freeze(spec, 1, theta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	theta[0] = 99.0
	if art.Theta[0] == 99.0 {
		t.Error("Artifact should hold its own copy of theta")
	}
}

func TestArtifactAccessors(t *testing.T) {
	spec := testSpec()
	// layout: asc_contract, cost, mean:compensation, mean:override_limit,
	// chol(1,1), chol(2,1), chol(2,2)
	theta := []float64{0.8, -0.05, 1.2, -0.4, 0.3, 0.1, 0.2}

	art, err := Freeze(spec, 0, theta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	cost, err := art.FixedCoef("cost")
	if err != nil {
		t.Fatalf("FixedCoef(cost): %v", err)
	}
	if cost != -0.05 {
		t.Errorf("FixedCoef(cost): expected -0.05, got %g", cost)
	}

	if _, err := art.FixedCoef("compensation"); err == nil {
		t.Error("FixedCoef should reject a random attribute")
	}

	means := art.Means()
	if len(means) != 2 || means[0] != 1.2 || means[1] != -0.4 {
		t.Errorf("Means: expected [1.2 -0.4], got %v", means)
	}

	chol := art.CholLower()
	if len(chol) != 2 {
		t.Fatalf("CholLower: expected 2 rows, got %d", len(chol))
	}
	if chol[0][0] != 0.3 || chol[0][1] != 0 || chol[1][0] != 0.1 || chol[1][1] != 0.2 {
		t.Errorf("CholLower: unexpected unpacking %v", chol)
	}
}

func TestArtifactJSONRoundTrip(t *testing.T) {
	spec := testSpec()
	theta := []float64{0.8, -0.05, 1.2, -0.4, 0.3, 0.1, 0.2}

	art, err := Freeze(spec, 7, theta)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data, err := json.Marshal(art)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back Artifact
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("Validate after round trip: %v", err)
	}
	if back.Replicate != 7 || back.Experiment != ExperimentEV {
		t.Errorf("Round trip lost identity: %+v", back)
	}
	for i := range theta {
		if back.Theta[i] != theta[i] {
			t.Errorf("Theta[%d]: expected %g, got %g", i, theta[i], back.Theta[i])
		}
	}
}

func TestPointEstimateMatchesSpec(t *testing.T) {
	spec := testSpec()
	k := spec.ParamCount()

	cov := make([][]float64, k)
	for i := range cov {
		cov[i] = make([]float64, k)
		cov[i][i] = 0.01
	}
	est := PointEstimate{
		Experiment: ExperimentEV,
		ParamNames: spec.ParamNames(),
		Coefs:      make([]float64, k),
		Cov:        cov,
	}
	if err := est.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := est.MatchesSpec(spec); err != nil {
		t.Fatalf("MatchesSpec: %v", err)
	}

	// Wrong experiment
	est.Experiment = ExperimentHP
	if err := est.MatchesSpec(spec); err == nil {
		t.Error("Expected mismatch for wrong experiment")
	}
	est.Experiment = ExperimentEV

	// Renamed parameter
	est.ParamNames[0] = "asc"
	if err := est.MatchesSpec(spec); err == nil {
		t.Error("Expected mismatch for renamed parameter")
	}
}

func TestPointEstimateValidateRejectsAsymmetry(t *testing.T) {
	est := PointEstimate{
		Experiment: ExperimentEV,
		ParamNames: []string{"a", "b"},
		Coefs:      []float64{1, 2},
		Cov: [][]float64{
			{1.0, 0.5},
			{0.2, 1.0},
		},
	}
	if err := est.Validate(); err == nil {
		t.Error("Expected error for asymmetric covariance")
	}
}
