package choice

import (
	"fmt"
	"math"

	"flexwta/domain/core"
)

// CovariateKind types a respondent covariate for the auxiliary regression
type CovariateKind string

const (
	CovariateNumeric CovariateKind = "numeric"
	CovariateBinary  CovariateKind = "binary"
)

// CovariateSpec declares one regressor column by name and kind. The spec is
// fixed up front and validated against the data once, so regressions across
// replicates all see the same typed design matrix.
type CovariateSpec struct {
	Name string        `json:"name"`
	Kind CovariateKind `json:"kind"`
}

// CovariateTable holds respondent covariates aligned with a CovariateSpec
// list. Values for one respondent are stored in spec order.
type CovariateTable struct {
	Spec   []CovariateSpec      `json:"spec"`
	values map[string][]float64 // respondent id -> values in spec order
}

// NewCovariateTable validates the raw rows against the spec: every declared
// covariate present, numeric values finite, binary values exactly 0 or 1.
func NewCovariateTable(spec []CovariateSpec, rows map[string]map[string]float64) (*CovariateTable, error) {
	if len(spec) == 0 {
		return nil, core.NewValidationError("covariates", "spec cannot be empty")
	}
	seen := make(map[string]bool, len(spec))
	for _, s := range spec {
		if s.Name == "" {
			return nil, core.NewValidationError("covariates", "covariate name cannot be empty")
		}
		if seen[s.Name] {
			return nil, core.NewValidationError("covariates", fmt.Sprintf("duplicate covariate %q", s.Name))
		}
		seen[s.Name] = true
		if s.Kind != CovariateNumeric && s.Kind != CovariateBinary {
			return nil, core.NewValidationError("covariates",
				fmt.Sprintf("covariate %q has unknown kind %q", s.Name, s.Kind))
		}
	}

	values := make(map[string][]float64, len(rows))
	for rid, row := range rows {
		if rid == "" {
			return nil, core.NewValidationError("covariates", "respondent id cannot be empty")
		}
		aligned := make([]float64, len(spec))
		for i, s := range spec {
			v, ok := row[s.Name]
			if !ok {
				return nil, core.NewValidationError("covariates",
					fmt.Sprintf("respondent %s is missing covariate %q", rid, s.Name))
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: respondent %s covariate %s", core.ErrNonFinite, rid, s.Name)
			}
			if s.Kind == CovariateBinary && v != 0 && v != 1 {
				return nil, core.NewValidationError("covariates",
					fmt.Sprintf("respondent %s binary covariate %q has value %g", rid, s.Name, v))
			}
			aligned[i] = v
		}
		values[rid] = aligned
	}

	return &CovariateTable{Spec: spec, values: values}, nil
}

// Row returns one respondent's covariates in spec order
func (t *CovariateTable) Row(respondentID string) ([]float64, bool) {
	v, ok := t.values[respondentID]
	return v, ok
}

// Names returns the covariate names in spec order
func (t *CovariateTable) Names() []string {
	names := make([]string, len(t.Spec))
	for i, s := range t.Spec {
		names[i] = s.Name
	}
	return names
}

// NumRespondents returns the row count
func (t *CovariateTable) NumRespondents() int { return len(t.values) }
