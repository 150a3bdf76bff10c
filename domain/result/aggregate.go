package result

import (
	"fmt"

	"flexwta/domain/core"
	"flexwta/domain/model"
)

// Aggregate summarizes one named statistic across all usable replicates:
// the replication mean, the 2.5th/97.5th percentile interval, and the
// two-sided sign-based p-value. NUsable versus NIntended makes partial
// failure visible instead of silently narrowing the interval.
type Aggregate struct {
	RunID      core.RunID       `json:"run_id"`
	Experiment model.Experiment `json:"experiment"`
	Name       string           `json:"name"`
	Mean       float64          `json:"mean"`
	CILow      float64          `json:"ci_low"`
	CIHigh     float64          `json:"ci_high"`
	PValue     float64          `json:"p_value"`
	NUsable    int              `json:"n_usable"`
	NIntended  int              `json:"n_intended"`
}

// Validate checks structural integrity of an aggregate row
func (a Aggregate) Validate() error {
	if core.ID(a.RunID).IsEmpty() {
		return core.NewValidationError("aggregate", "run_id cannot be empty")
	}
	if !a.Experiment.Valid() {
		return core.NewValidationError("aggregate", fmt.Sprintf("invalid experiment %q", a.Experiment))
	}
	if a.Name == "" {
		return core.NewValidationError("aggregate", "name cannot be empty")
	}
	if a.NUsable <= 0 {
		return fmt.Errorf("%w: aggregate %s", core.ErrInsufficientReplicates, a.Name)
	}
	if a.NUsable > a.NIntended {
		return core.NewValidationError("aggregate",
			fmt.Sprintf("n_usable %d exceeds n_intended %d", a.NUsable, a.NIntended))
	}
	if a.CILow > a.CIHigh {
		return core.NewValidationError("aggregate",
			fmt.Sprintf("interval [%g, %g] is inverted", a.CILow, a.CIHigh))
	}
	if a.PValue < 0 || a.PValue > 1 {
		return core.NewValidationError("aggregate", fmt.Sprintf("p-value %g outside [0,1]", a.PValue))
	}
	return nil
}
