package mlogit

import (
	"fmt"

	"flexwta/domain/choice"
	"flexwta/domain/core"
	"flexwta/domain/result"
	"flexwta/internal/regress"
)

// AuxiliaryCoefficient is one covariate's coefficient in the respondent-level
// WTA regression, with its standard error.
type AuxiliaryCoefficient struct {
	Covariate string
	Value     float64
	StdErr    float64
}

// RegressWTA fits the respondent WTA ratios for one attribute on the
// covariate table, intercept first. Degenerate ratios and respondents absent
// from the covariate table are dropped before the fit; the regression runs
// against the startup-validated covariate schema, never against column names
// assembled at run time.
func RegressWTA(observations []WTAObservation, attribute string, covars *choice.CovariateTable) ([]AuxiliaryCoefficient, error) {
	if covars == nil {
		return nil, fmt.Errorf("%w: wta regression requires a covariate table", core.ErrInvalidArgument)
	}

	names := covars.Names()
	var x [][]float64
	var y []float64
	for _, obs := range observations {
		if obs.Attribute != attribute || obs.Degenerate {
			continue
		}
		covRow, ok := covars.Row(obs.RespondentID)
		if !ok {
			continue
		}
		row := make([]float64, 0, len(covRow)+1)
		row = append(row, 1)
		row = append(row, covRow...)
		x = append(x, row)
		y = append(y, obs.Value)
	}

	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no usable wta observations for %s", core.ErrRankDeficient, attribute)
	}

	fit, err := regress.Fit(x, y)
	if err != nil {
		return nil, err
	}

	coefs := make([]AuxiliaryCoefficient, 0, len(names)+1)
	coefs = append(coefs, AuxiliaryCoefficient{
		Covariate: result.InterceptCovariate,
		Value:     fit.Coefs[0],
		StdErr:    fit.StdErrs[0],
	})
	for i, name := range names {
		coefs = append(coefs, AuxiliaryCoefficient{
			Covariate: name,
			Value:     fit.Coefs[i+1],
			StdErr:    fit.StdErrs[i+1],
		})
	}
	return coefs, nil
}
