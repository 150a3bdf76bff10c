// Package mlogit evaluates a frozen mixed-logit model: simulated acceptance
// probabilities over TIOLI scenario designs and posterior-mean individual
// coefficients over observed choice panels. Nothing here estimates anything;
// every artifact arrives with its coefficient vector already frozen.
package mlogit

import (
	"math"

	"flexwta/domain/model"
	"flexwta/internal/draws"
)

// stableLogistic computes 1/(1+exp(-v)) without overflowing for large |v|.
// Only non-positive arguments ever reach exp, so the result saturates to the
// correct bound instead of producing Inf/NaN.
func stableLogistic(v float64) float64 {
	if v >= 0 {
		return 1.0 / (1.0 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1.0 + e)
}

// logSigmoid computes log(1/(1+exp(-v))) in the softplus form, stable for
// arguments of either sign.
func logSigmoid(v float64) float64 {
	if v >= 0 {
		return -math.Log1p(math.Exp(-v))
	}
	return v - math.Log1p(math.Exp(v))
}

// logSumExp computes log(sum(exp(x_i))) shifted by the maximum element.
func logSumExp(xs []float64) float64 {
	maxVal := math.Inf(-1)
	for _, x := range xs {
		if x > maxVal {
			maxVal = x
		}
	}
	if math.IsInf(maxVal, -1) {
		return maxVal
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - maxVal)
	}
	return maxVal + math.Log(sum)
}

// simulationDraws returns the per-draw random-coefficient vectors
// beta(z) = means + L*z for an artifact, using the shared Halton sequence so
// every consumer of the same (artifact, innerDraws, burnIn) triple sees the
// same draw set. With no random attributes it returns a single empty draw:
// the model collapses to plain logit and needs no simulation.
func simulationDraws(art *model.Artifact, innerDraws, burnIn int) ([][]float64, error) {
	m := art.Spec.NumRandom()
	if m == 0 {
		return [][]float64{nil}, nil
	}

	zs, err := draws.StandardNormal(m, innerDraws, burnIn)
	if err != nil {
		return nil, err
	}

	means := art.Means()
	chol := art.CholLower()
	betas := make([][]float64, len(zs))
	for s, z := range zs {
		beta := make([]float64, m)
		for i := 0; i < m; i++ {
			v := means[i]
			for j := 0; j <= i; j++ {
				v += chol[i][j] * z[j]
			}
			beta[i] = v
		}
		betas[s] = beta
	}
	return betas, nil
}

// utilityTerms splits an attribute-value map into the draw-invariant fixed
// part of the utility and the random-attribute value vector, both in spec
// order. Attributes absent from the map contribute zero.
func utilityTerms(spec model.UtilitySpec, theta []float64, values map[string]float64) (fixed float64, random []float64) {
	f := 0
	random = make([]float64, 0, spec.NumRandom())
	for _, attr := range spec.Attributes {
		if attr.Random {
			random = append(random, values[attr.Name])
			continue
		}
		fixed += theta[f] * values[attr.Name]
		f++
	}
	return fixed, random
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
