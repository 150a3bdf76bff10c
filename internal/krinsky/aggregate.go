package krinsky

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"flexwta/domain/core"
	"flexwta/domain/result"
)

// Interval bounds of the Krinsky-Robb percentile interval.
const (
	lowerQuantile = 0.025
	upperQuantile = 0.975
)

// Summary collapses one statistic's replicate values: mean, the 2.5th/97.5th
// empirical percentile interval, and the two-sided bootstrap p-value.
type Summary struct {
	Name      string
	Mean      float64
	CILow     float64
	CIHigh    float64
	PValue    float64
	NUsable   int
	NIntended int
}

// Aggregate summarizes the usable replicate values of one statistic.
// Non-finite values are dropped and counted against intended. The quantiles
// follow the inverse empirical CDF, so a single usable value degenerates to
// a zero-width interval at that value. Zeros count on the non-positive side
// of the p-value split.
func Aggregate(name string, values []float64, intended int) (*Summary, error) {
	if intended <= 0 {
		return nil, fmt.Errorf("%w: intended replicate count must be positive, got %d", core.ErrInvalidArgument, intended)
	}

	usable := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		usable = append(usable, v)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: statistic %s", core.ErrInsufficientReplicates, name)
	}

	mean, err := stats.Mean(stats.Float64Data(usable))
	if err != nil {
		return nil, core.NewNumericalError("replicate mean", err)
	}

	sort.Float64s(usable)
	low := stat.Quantile(lowerQuantile, stat.Empirical, usable, nil)
	high := stat.Quantile(upperQuantile, stat.Empirical, usable, nil)

	var positive int
	for _, v := range usable {
		if v > 0 {
			positive++
		}
	}
	fracPos := float64(positive) / float64(len(usable))
	pValue := 2 * math.Min(fracPos, 1-fracPos)
	if pValue > 1 {
		pValue = 1
	}

	return &Summary{
		Name:      name,
		Mean:      mean,
		CILow:     low,
		CIHigh:    high,
		PValue:    pValue,
		NUsable:   len(usable),
		NIntended: intended,
	}, nil
}

// AggregateRun groups a run's replicate statistics by name and summarizes
// each group. Only replicate rows enter the bootstrap distribution; the
// validated artifact's rows (replicate 0) describe the point estimate, not
// its sampling variation.
func AggregateRun(manifest *result.RunManifest, statistics []result.Statistic) ([]result.Aggregate, error) {
	if manifest == nil {
		return nil, fmt.Errorf("%w: aggregation requires a run manifest", core.ErrInvalidArgument)
	}

	groups := make(map[string][]float64)
	for _, s := range statistics {
		if s.Replicate == 0 {
			continue
		}
		groups[s.Name] = append(groups[s.Name], s.Value)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: run %s", core.ErrInsufficientReplicates, manifest.RunID)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	aggregates := make([]result.Aggregate, 0, len(names))
	for _, name := range names {
		summary, err := Aggregate(name, groups[name], manifest.Replicates)
		if err != nil {
			return nil, err
		}
		aggregates = append(aggregates, result.Aggregate{
			RunID:      manifest.RunID,
			Experiment: manifest.Experiment,
			Name:       summary.Name,
			Mean:       summary.Mean,
			CILow:      summary.CILow,
			CIHigh:     summary.CIHigh,
			PValue:     summary.PValue,
			NUsable:    summary.NUsable,
			NIntended:  summary.NIntended,
		})
	}
	return aggregates, nil
}
