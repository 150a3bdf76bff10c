// Package draws generates the low-discrepancy draw sets used to simulate
// mixed logit probabilities. The same (dimension, count, burn-in) triple
// always yields the same draws, so simulation results are reproducible
// without carrying random state between stages.
package draws

import (
	"flexwta/domain/core"

	"gonum.org/v1/gonum/stat/distuv"
)

// firstPrimes returns the first n primes, one base per draw dimension
func firstPrimes(n int) []int {
	primes := make([]int, 0, n)
	for candidate := 2; len(primes) < n; candidate++ {
		isPrime := true
		for _, p := range primes {
			if p*p > candidate {
				break
			}
			if candidate%p == 0 {
				isPrime = false
				break
			}
		}
		if isPrime {
			primes = append(primes, candidate)
		}
	}
	return primes
}

// radicalInverse reflects the base-b digits of n around the decimal point.
// For n >= 1 the result lies strictly inside (0, 1).
func radicalInverse(n, base int) float64 {
	inv := 1.0 / float64(base)
	f := inv
	var result float64
	for n > 0 {
		result += float64(n%base) * f
		n /= base
		f *= inv
	}
	return result
}

// Halton returns count points of the dim-dimensional Halton sequence,
// skipping the first burnIn elements of every dimension. The skip is a
// fixed offset into a deterministic sequence: element i of the returned
// set is always sequence element burnIn+i+1, whatever count is.
// Indexing starts at 1 so no point sits exactly on 0.
func Halton(dim, count, burnIn int) ([][]float64, error) {
	if dim <= 0 {
		return nil, core.NewValidationError("draws", "dimension must be positive")
	}
	if count <= 0 {
		return nil, core.NewValidationError("draws", "count must be positive")
	}
	if burnIn < 0 {
		return nil, core.NewValidationError("draws", "burn-in cannot be negative")
	}

	bases := firstPrimes(dim)
	points := make([][]float64, count)
	for i := 0; i < count; i++ {
		point := make([]float64, dim)
		for d := 0; d < dim; d++ {
			point[d] = radicalInverse(burnIn+i+1, bases[d])
		}
		points[i] = point
	}
	return points, nil
}

// StandardNormal maps the Halton set through the standard normal quantile,
// giving quasi-random N(0,1) draws for simulation.
func StandardNormal(dim, count, burnIn int) ([][]float64, error) {
	points, err := Halton(dim, count, burnIn)
	if err != nil {
		return nil, err
	}
	for _, point := range points {
		for d, u := range point {
			point[d] = distuv.UnitNormal.Quantile(u)
		}
	}
	return points, nil
}
