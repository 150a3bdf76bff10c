package model

import (
	"encoding/json"
	"fmt"

	"flexwta/domain/core"
)

// Attribute is one contract attribute entering the utility function.
// Random attributes carry a distribution (mean + covariance row) instead of
// a single fixed coefficient.
type Attribute struct {
	Name   string `json:"name"`
	Random bool   `json:"random"`
}

// UtilitySpec pins the utility function of one experiment: the ordered
// attribute list and which attributes have random coefficients.
//
// The flattened parameter layout implied by a spec is the contract between
// the estimator output and everything downstream:
//
//	[ fixed coefficients (spec order) |
//	  random means (spec order) |
//	  row-major lower-triangular Cholesky of the random covariance ]
//
// So a spec with f fixed and m random attributes has
// f + m + m(m+1)/2 parameters.
type UtilitySpec struct {
	Experiment    Experiment  `json:"experiment"`
	Attributes    []Attribute `json:"attributes"`
	CostAttribute string      `json:"cost_attribute"`
}

// Validate checks structural integrity: nonempty unique attribute names and
// a cost attribute that is part of the attribute list.
func (s UtilitySpec) Validate() error {
	if !s.Experiment.Valid() {
		return core.NewValidationError("utility_spec", fmt.Sprintf("invalid experiment %q", s.Experiment))
	}
	if len(s.Attributes) == 0 {
		return core.NewValidationError("utility_spec", "attribute list cannot be empty")
	}
	seen := make(map[string]bool, len(s.Attributes))
	for _, a := range s.Attributes {
		if a.Name == "" {
			return core.NewValidationError("utility_spec", "attribute name cannot be empty")
		}
		if seen[a.Name] {
			return core.NewValidationError("utility_spec", fmt.Sprintf("duplicate attribute %q", a.Name))
		}
		seen[a.Name] = true
	}
	if s.CostAttribute == "" {
		return core.NewValidationError("utility_spec", "cost attribute cannot be empty")
	}
	if !seen[s.CostAttribute] {
		return core.NewValidationError("utility_spec", fmt.Sprintf("cost attribute %q not in attribute list", s.CostAttribute))
	}
	return nil
}

// FixedAttributes returns the non-random attributes in spec order
func (s UtilitySpec) FixedAttributes() []Attribute {
	var out []Attribute
	for _, a := range s.Attributes {
		if !a.Random {
			out = append(out, a)
		}
	}
	return out
}

// RandomAttributes returns the random attributes in spec order
func (s UtilitySpec) RandomAttributes() []Attribute {
	var out []Attribute
	for _, a := range s.Attributes {
		if a.Random {
			out = append(out, a)
		}
	}
	return out
}

// NumFixed returns the count of fixed coefficients
func (s UtilitySpec) NumFixed() int { return len(s.Attributes) - s.NumRandom() }

// NumRandom returns the count of random coefficients
func (s UtilitySpec) NumRandom() int {
	n := 0
	for _, a := range s.Attributes {
		if a.Random {
			n++
		}
	}
	return n
}

// ParamCount returns the length of the flattened parameter vector
func (s UtilitySpec) ParamCount() int {
	m := s.NumRandom()
	return s.NumFixed() + m + m*(m+1)/2
}

// ParamNames returns names for every slot of the flattened layout, in order
func (s UtilitySpec) ParamNames() []string {
	names := make([]string, 0, s.ParamCount())
	for _, a := range s.FixedAttributes() {
		names = append(names, a.Name)
	}
	random := s.RandomAttributes()
	for _, a := range random {
		names = append(names, "mean:"+a.Name)
	}
	for i := 0; i < len(random); i++ {
		for j := 0; j <= i; j++ {
			names = append(names, fmt.Sprintf("chol:%s:%s", random[i].Name, random[j].Name))
		}
	}
	return names
}

// FixedIndex returns the flattened index of a fixed attribute's coefficient,
// or -1 when the attribute is absent or random.
func (s UtilitySpec) FixedIndex(name string) int {
	idx := 0
	for _, a := range s.Attributes {
		if a.Random {
			continue
		}
		if a.Name == name {
			return idx
		}
		idx++
	}
	return -1
}

// RandomIndex returns the position of a random attribute among the random
// attributes (not the flattened index), or -1 when absent or fixed.
func (s UtilitySpec) RandomIndex(name string) int {
	idx := 0
	for _, a := range s.Attributes {
		if !a.Random {
			continue
		}
		if a.Name == name {
			return idx
		}
		idx++
	}
	return -1
}

// MeansOffset returns the flattened index where random means start
func (s UtilitySpec) MeansOffset() int { return s.NumFixed() }

// CholOffset returns the flattened index where Cholesky elements start
func (s UtilitySpec) CholOffset() int { return s.NumFixed() + s.NumRandom() }

// AttributeNames returns all attribute names in spec order
func (s UtilitySpec) AttributeNames() []string {
	names := make([]string, len(s.Attributes))
	for i, a := range s.Attributes {
		names[i] = a.Name
	}
	return names
}

// HasAttribute reports whether the named attribute is part of the utility
func (s UtilitySpec) HasAttribute(name string) bool {
	for _, a := range s.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Hash returns a stable content hash of the spec, used to fingerprint runs
// and detect drift between freeze and resume.
func (s UtilitySpec) Hash() core.Hash {
	data, _ := json.Marshal(s)
	return core.NewHash(data)
}
