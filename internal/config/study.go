package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"flexwta/internal/errors"
)

// Study is the immutable definition of the stated-preference study: which
// experiments exist, their contract attributes and level sets, and which
// derived statistics each run computes. It is plain data; conversion into
// domain objects happens at startup in the application layer.
type Study struct {
	Experiments []ExperimentStudy `json:"experiments" yaml:"experiments"`
}

// ExperimentStudy defines one experiment
type ExperimentStudy struct {
	Experiment    string               `json:"experiment" yaml:"experiment"`
	Attributes    []StudyAttribute     `json:"attributes" yaml:"attributes"`
	CostAttribute string               `json:"cost_attribute" yaml:"cost_attribute"`
	Levels        map[string][]float64 `json:"levels" yaml:"levels"`
	APERequests   []APERequestSpec     `json:"ape_requests" yaml:"ape_requests"`
	WTAAttributes []string             `json:"wta_attributes" yaml:"wta_attributes"`
	Covariates    []StudyCovariate     `json:"covariates" yaml:"covariates"`
	EstimatePath  string               `json:"estimate_path" yaml:"estimate_path"`
	PanelPath     string               `json:"panel_path" yaml:"panel_path"`
	CovariatePath string               `json:"covariate_path" yaml:"covariate_path"`
	DesignPath    string               `json:"design_path" yaml:"design_path"`
}

// StudyAttribute is one contract attribute of the utility function
type StudyAttribute struct {
	Name   string `json:"name" yaml:"name"`
	Random bool   `json:"random" yaml:"random"`
}

// APERequestSpec asks for one average-partial-effect statistic: the change
// in acceptance probability when an attribute moves from one level to
// another.
type APERequestSpec struct {
	Attribute string  `json:"attribute" yaml:"attribute"`
	From      float64 `json:"from" yaml:"from"`
	To        float64 `json:"to" yaml:"to"`
}

// StudyCovariate declares one respondent covariate for the WTA regressions
type StudyCovariate struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
}

// LoadStudy loads a study definition: compiled-in defaults when path is
// empty, otherwise the YAML file at path. JSON files parse too, since JSON
// is a YAML subset.
func LoadStudy(path string) (*Study, error) {
	if path == "" {
		study := DefaultStudy()
		if err := study.Validate(); err != nil {
			return nil, err
		}
		return study, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("cannot read study file %s: %v", path, err))
	}
	var study Study
	if err := yaml.Unmarshal(data, &study); err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("cannot parse study file %s: %v", path, err))
	}
	if err := study.Validate(); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("study file %s", path))
	}
	return &study, nil
}

// Experiment returns the definition of one experiment by name
func (s *Study) Experiment(name string) (*ExperimentStudy, bool) {
	for i := range s.Experiments {
		if s.Experiments[i].Experiment == name {
			return &s.Experiments[i], true
		}
	}
	return nil, false
}

// Validate checks the structural integrity of the study definition
func (s *Study) Validate() error {
	if len(s.Experiments) == 0 {
		return errors.ConfigInvalid("study must define at least one experiment")
	}
	seen := make(map[string]bool, len(s.Experiments))
	for i := range s.Experiments {
		e := &s.Experiments[i]
		if seen[e.Experiment] {
			return errors.ConfigInvalid(fmt.Sprintf("duplicate experiment %q", e.Experiment))
		}
		seen[e.Experiment] = true
		if err := e.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExperimentStudy) validate() error {
	if e.Experiment != "ev" && e.Experiment != "hp" {
		return errors.ConfigInvalid(fmt.Sprintf("unknown experiment %q", e.Experiment))
	}
	if len(e.Attributes) == 0 {
		return errors.ConfigInvalid(fmt.Sprintf("experiment %s has no attributes", e.Experiment))
	}

	names := make(map[string]bool, len(e.Attributes))
	for _, a := range e.Attributes {
		if a.Name == "" {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s has an unnamed attribute", e.Experiment))
		}
		if names[a.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s repeats attribute %q", e.Experiment, a.Name))
		}
		names[a.Name] = true
	}

	if e.CostAttribute == "" || !names[e.CostAttribute] {
		return errors.ConfigInvalid(fmt.Sprintf("experiment %s cost attribute %q not in attribute list",
			e.Experiment, e.CostAttribute))
	}

	// Without an explicit design file every attribute needs a level set for
	// the factorial expansion.
	if e.DesignPath == "" {
		for _, a := range e.Attributes {
			if len(e.Levels[a.Name]) == 0 {
				return errors.ConfigInvalid(fmt.Sprintf("experiment %s attribute %q has no levels and no design file",
					e.Experiment, a.Name))
			}
		}
	}
	for name := range e.Levels {
		if !names[name] {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s has levels for unknown attribute %q",
				e.Experiment, name))
		}
	}

	for _, req := range e.APERequests {
		if !names[req.Attribute] {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s APE request targets unknown attribute %q",
				e.Experiment, req.Attribute))
		}
		if req.From == req.To {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s APE request for %q moves nothing",
				e.Experiment, req.Attribute))
		}
	}

	for _, name := range e.WTAAttributes {
		if !names[name] {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s WTA list targets unknown attribute %q",
				e.Experiment, name))
		}
		if name == e.CostAttribute {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s WTA list includes the cost attribute %q",
				e.Experiment, name))
		}
	}

	covariates := make(map[string]bool, len(e.Covariates))
	for _, c := range e.Covariates {
		if c.Name == "" {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s has an unnamed covariate", e.Experiment))
		}
		if covariates[c.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s repeats covariate %q", e.Experiment, c.Name))
		}
		covariates[c.Name] = true
		if c.Kind != "numeric" && c.Kind != "binary" {
			return errors.ConfigInvalid(fmt.Sprintf("experiment %s covariate %q has unknown kind %q",
				e.Experiment, c.Name, c.Kind))
		}
	}

	if e.EstimatePath == "" {
		return errors.ConfigInvalid(fmt.Sprintf("experiment %s has no estimate path", e.Experiment))
	}
	if e.PanelPath == "" {
		return errors.ConfigInvalid(fmt.Sprintf("experiment %s has no panel path", e.Experiment))
	}
	if len(e.Covariates) > 0 && e.CovariatePath == "" {
		return errors.ConfigInvalid(fmt.Sprintf("experiment %s declares covariates but no covariate path",
			e.Experiment))
	}
	return nil
}

// DefaultStudy returns the compiled-in definition of the EV charging and
// heat pump flexibility experiments: a contract constant, the monthly
// compensation as the monetary attribute, and random coefficients on the
// comfort attributes.
func DefaultStudy() *Study {
	return &Study{
		Experiments: []ExperimentStudy{
			{
				Experiment: "ev",
				Attributes: []StudyAttribute{
					{Name: "asc_contract", Random: false},
					{Name: "compensation", Random: false},
					{Name: "remaining_range", Random: true},
					{Name: "interventions_month", Random: true},
					{Name: "night_only", Random: true},
				},
				CostAttribute: "compensation",
				Levels: map[string][]float64{
					"asc_contract":        {1},
					"compensation":        {5, 10, 20, 35},
					"remaining_range":     {20, 40, 60},
					"interventions_month": {2, 5, 10},
					"night_only":          {0, 1},
				},
				APERequests: []APERequestSpec{
					{Attribute: "compensation", From: 10, To: 20},
					{Attribute: "interventions_month", From: 5, To: 10},
				},
				WTAAttributes: []string{"remaining_range", "interventions_month", "night_only"},
				Covariates: []StudyCovariate{
					{Name: "income_keur", Kind: "numeric"},
					{Name: "has_solar", Kind: "binary"},
				},
				EstimatePath:  "data/ev_estimate.json",
				PanelPath:     "data/ev_panel.csv",
				CovariatePath: "data/covariates.csv",
			},
			{
				Experiment: "hp",
				Attributes: []StudyAttribute{
					{Name: "asc_contract", Random: false},
					{Name: "compensation", Random: false},
					{Name: "temp_reduction", Random: true},
					{Name: "events_month", Random: true},
					{Name: "event_hours", Random: true},
				},
				CostAttribute: "compensation",
				Levels: map[string][]float64{
					"asc_contract":   {1},
					"compensation":   {5, 10, 20, 35},
					"temp_reduction": {0.5, 1, 2},
					"events_month":   {2, 5, 10},
					"event_hours":    {2, 4, 8},
				},
				APERequests: []APERequestSpec{
					{Attribute: "compensation", From: 10, To: 20},
					{Attribute: "temp_reduction", From: 1, To: 2},
				},
				WTAAttributes: []string{"temp_reduction", "events_month", "event_hours"},
				Covariates: []StudyCovariate{
					{Name: "income_keur", Kind: "numeric"},
					{Name: "has_solar", Kind: "binary"},
				},
				EstimatePath:  "data/hp_estimate.json",
				PanelPath:     "data/hp_panel.csv",
				CovariatePath: "data/covariates.csv",
			},
		},
	}
}
