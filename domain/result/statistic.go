package result

import (
	"fmt"
	"math"

	"flexwta/domain/core"
	"flexwta/domain/model"
)

// Statistic is one named scalar produced by one replicate: a mean WTA, an
// average partial effect, or an auxiliary regression coefficient. It is the
// only thing that crosses replicate boundaries; everything upstream of it
// stays private to the replicate that computed it.
type Statistic struct {
	RunID      core.RunID       `json:"run_id"`
	Experiment model.Experiment `json:"experiment"`
	Replicate  int              `json:"replicate"`
	Name       string           `json:"name"`
	Value      float64          `json:"value"`
	StdErr     *float64         `json:"std_err,omitempty"`
}

// Validate checks the statistic is well formed and finite
func (s Statistic) Validate() error {
	if core.ID(s.RunID).IsEmpty() {
		return core.NewValidationError("statistic", "run_id cannot be empty")
	}
	if !s.Experiment.Valid() {
		return core.NewValidationError("statistic", fmt.Sprintf("invalid experiment %q", s.Experiment))
	}
	if s.Replicate < 0 {
		return core.NewValidationError("statistic", "replicate index cannot be negative")
	}
	if s.Name == "" {
		return core.NewValidationError("statistic", "name cannot be empty")
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%w: statistic %s in replicate %d", core.ErrNonFinite, s.Name, s.Replicate)
	}
	if s.StdErr != nil && (math.IsNaN(*s.StdErr) || math.IsInf(*s.StdErr, 0)) {
		return fmt.Errorf("%w: std error of %s in replicate %d", core.ErrNonFinite, s.Name, s.Replicate)
	}
	return nil
}

// Canonical statistic name constructors. Aggregation groups by these names,
// so they are built here rather than formatted ad hoc at call sites.

// APEStatName names the average partial effect of an attribute
func APEStatName(attribute string) string {
	return "ape:" + attribute
}

// WTAMeanStatName names the population mean of conditional WTA for an attribute
func WTAMeanStatName(attribute string) string {
	return "wta_mean:" + attribute
}

// WTARegStatName names one coefficient of the WTA-on-covariates regression
func WTARegStatName(attribute, covariate string) string {
	return fmt.Sprintf("wta_reg:%s:%s", attribute, covariate)
}

// InterceptCovariate is the reserved covariate name for the regression constant
const InterceptCovariate = "intercept"
