package krinsky

import (
	"errors"
	"math"
	"testing"

	"flexwta/domain/core"
	"flexwta/domain/result"
)

func TestAggregateWorkedExample(t *testing.T) {
	// Unsorted on purpose: the aggregator owns the sort.
	values := []float64{7, -2, 3, 0, 5, 1, -1, 4, 6, 2}

	summary, err := Aggregate("ape:override_limit", values, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !almostEqual(summary.Mean, 2.5, 1e-12) {
		t.Errorf("Mean: want 2.5, got %g", summary.Mean)
	}
	if summary.CILow != -2 {
		t.Errorf("CILow: want -2, got %g", summary.CILow)
	}
	if summary.CIHigh != 7 {
		t.Errorf("CIHigh: want 7, got %g", summary.CIHigh)
	}
	// 7 of 10 values are strictly positive; the zero counts non-positive.
	if !almostEqual(summary.PValue, 0.6, 1e-12) {
		t.Errorf("PValue: want 0.6, got %g", summary.PValue)
	}
	if summary.NUsable != 10 || summary.NIntended != 10 {
		t.Errorf("Counts: want 10/10, got %d/%d", summary.NUsable, summary.NIntended)
	}
}

func TestAggregateSingleValue(t *testing.T) {
	summary, err := Aggregate("wta_mean:compensation", []float64{3.14}, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Mean != 3.14 || summary.CILow != 3.14 || summary.CIHigh != 3.14 {
		t.Errorf("Single value should give a zero-width interval at the value, got [%g, %g] mean %g",
			summary.CILow, summary.CIHigh, summary.Mean)
	}
	if summary.PValue != 0 {
		t.Errorf("PValue: want 0 for a one-sided singleton, got %g", summary.PValue)
	}
}

func TestAggregateNoUsableValues(t *testing.T) {
	cases := [][]float64{
		nil,
		{},
		{math.NaN(), math.Inf(1), math.Inf(-1)},
	}
	for _, values := range cases {
		if _, err := Aggregate("ape:notice", values, 100); !errors.Is(err, core.ErrInsufficientReplicates) {
			t.Errorf("Aggregate(%v): expected insufficient replicates, got %v", values, err)
		}
	}
}

func TestAggregateCountsMissingReplicates(t *testing.T) {
	values := make([]float64, 950)
	for i := range values {
		values[i] = float64(i%10) - 4.5
	}

	summary, err := Aggregate("ape:compensation", values, 1000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.NUsable != 950 {
		t.Errorf("NUsable: want 950, got %d", summary.NUsable)
	}
	if summary.NIntended != 1000 {
		t.Errorf("NIntended: want 1000, got %d", summary.NIntended)
	}
}

func TestAggregateDropsNonFinite(t *testing.T) {
	values := []float64{1, 2, math.NaN(), 3, math.Inf(1)}

	summary, err := Aggregate("ape:duration", values, 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.NUsable != 3 {
		t.Errorf("NUsable: want 3, got %d", summary.NUsable)
	}
	if !almostEqual(summary.Mean, 2, 1e-12) {
		t.Errorf("Mean: want 2, got %g", summary.Mean)
	}
}

func TestAggregatePValueClipped(t *testing.T) {
	// Exactly half positive, half non-positive: raw 2*0.5 = 1.0 stays 1.
	summary, err := Aggregate("ape:fee", []float64{-2, -1, 1, 2}, 4)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.PValue != 1 {
		t.Errorf("PValue: want 1, got %g", summary.PValue)
	}
}

func TestAggregateRunExcludesValidatedReplicate(t *testing.T) {
	manifest := result.NewRunManifest(
		core.NewRunID(), "ev", 42, 3, 128, 15,
		core.NewHash([]byte("spec")), core.NewHash([]byte("design")), "test",
	)

	statistics := []result.Statistic{
		{RunID: manifest.RunID, Experiment: "ev", Replicate: 0, Name: "ape:compensation", Value: 100},
		{RunID: manifest.RunID, Experiment: "ev", Replicate: 1, Name: "ape:compensation", Value: 1},
		{RunID: manifest.RunID, Experiment: "ev", Replicate: 2, Name: "ape:compensation", Value: 2},
		{RunID: manifest.RunID, Experiment: "ev", Replicate: 3, Name: "ape:compensation", Value: 3},
		{RunID: manifest.RunID, Experiment: "ev", Replicate: 1, Name: "wta_mean:compensation", Value: 10},
		{RunID: manifest.RunID, Experiment: "ev", Replicate: 2, Name: "wta_mean:compensation", Value: 20},
	}

	aggregates, err := AggregateRun(manifest, statistics)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(aggregates) != 2 {
		t.Fatalf("Expected 2 aggregates, got %d", len(aggregates))
	}

	// Sorted by name: ape before wta_mean.
	ape := aggregates[0]
	if ape.Name != "ape:compensation" {
		t.Fatalf("Expected ape aggregate first, got %s", ape.Name)
	}
	if !almostEqual(ape.Mean, 2, 1e-12) {
		t.Errorf("Validated replicate leaked into the bootstrap mean: got %g", ape.Mean)
	}
	if ape.NUsable != 3 || ape.NIntended != 3 {
		t.Errorf("Counts: want 3/3, got %d/%d", ape.NUsable, ape.NIntended)
	}

	wta := aggregates[1]
	if wta.NUsable != 2 || wta.NIntended != 3 {
		t.Errorf("Partial statistic counts: want 2/3, got %d/%d", wta.NUsable, wta.NIntended)
	}
	if wta.RunID != manifest.RunID || wta.Experiment != manifest.Experiment {
		t.Error("Aggregate should carry the manifest's run identity")
	}
}

func TestAggregateRunEmpty(t *testing.T) {
	manifest := result.NewRunManifest(
		core.NewRunID(), "hp", 1, 5, 64, 10,
		core.NewHash([]byte("spec")), core.NewHash([]byte("design")), "test",
	)

	onlyValidated := []result.Statistic{
		{RunID: manifest.RunID, Experiment: "hp", Replicate: 0, Name: "ape:curtail", Value: 0.1},
	}
	if _, err := AggregateRun(manifest, onlyValidated); !errors.Is(err, core.ErrInsufficientReplicates) {
		t.Errorf("Expected insufficient replicates, got %v", err)
	}
}
