// Package regress provides ordinary least squares with coefficient standard
// errors for the respondent-level auxiliary regressions.
package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"flexwta/domain/core"
)

// svdRankTol is the singular-value cutoff used when the normal equations
// cannot be inverted directly.
const svdRankTol = 1e-12

// Result holds an ordinary-least-squares fit.
type Result struct {
	Coefs   []float64
	StdErrs []float64
	DF      int
	Sigma2  float64
}

// Fit regresses y on the columns of x. The caller supplies the intercept
// column explicitly. The solve goes through the normal equations; when X'X
// cannot be inverted the fit falls back to an SVD solve, and a design matrix
// without full column rank is rejected rather than pseudo-solved.
func Fit(x [][]float64, y []float64) (*Result, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("%w: regression needs equal-length x (%d) and y (%d)", core.ErrInvalidArgument, n, len(y))
	}
	p := len(x[0])
	if p == 0 {
		return nil, fmt.Errorf("%w: regression needs at least one regressor", core.ErrInvalidArgument)
	}
	if n <= p {
		return nil, fmt.Errorf("%w: %d observations for %d regressors", core.ErrRankDeficient, n, p)
	}

	flat := make([]float64, 0, n*p)
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("%w: row %d has %d regressors, want %d", core.ErrInvalidArgument, i, len(row), p)
		}
		for _, v := range row {
			if !isFinite(v) {
				return nil, fmt.Errorf("%w: regressor matrix row %d", core.ErrNonFinite, i)
			}
		}
		if !isFinite(y[i]) {
			return nil, fmt.Errorf("%w: response row %d", core.ErrNonFinite, i)
		}
		flat = append(flat, row...)
	}

	xMat := mat.NewDense(n, p, flat)
	yVec := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.Dense
	xtx.Mul(xMat.T(), xMat)

	coefs := make([]float64, p)
	xtxInvDiag := make([]float64, p)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err == nil {
		var xty mat.VecDense
		xty.MulVec(xMat.T(), yVec)
		var beta mat.VecDense
		beta.MulVec(&xtxInv, &xty)
		for j := 0; j < p; j++ {
			coefs[j] = beta.AtVec(j)
			xtxInvDiag[j] = xtxInv.At(j, j)
		}
	} else {
		if err := svdSolve(xMat, yVec, coefs, xtxInvDiag); err != nil {
			return nil, err
		}
	}

	for j, b := range coefs {
		if !isFinite(b) {
			return nil, fmt.Errorf("%w: coefficient %d", core.ErrNonFinite, j)
		}
	}

	// Residual variance with the degrees-of-freedom correction.
	var rss float64
	for i := 0; i < n; i++ {
		fitted := 0.0
		for j := 0; j < p; j++ {
			fitted += x[i][j] * coefs[j]
		}
		r := y[i] - fitted
		rss += r * r
	}
	df := n - p
	sigma2 := rss / float64(df)

	stdErrs := make([]float64, p)
	for j := 0; j < p; j++ {
		v := sigma2 * xtxInvDiag[j]
		if v < 0 {
			v = 0
		}
		stdErrs[j] = math.Sqrt(v)
	}

	return &Result{Coefs: coefs, StdErrs: stdErrs, DF: df, Sigma2: sigma2}, nil
}

// svdSolve handles the ill-conditioned path: solve the least-squares problem
// from the SVD of X and rebuild the (X'X)^-1 diagonal from V and the
// singular values. Rank below the column count is a modeling error, not
// something to pseudo-inverse through.
func svdSolve(xMat *mat.Dense, yVec *mat.VecDense, coefs, xtxInvDiag []float64) error {
	n, p := xMat.Dims()

	var svd mat.SVD
	if !svd.Factorize(xMat, mat.SVDThin) {
		return core.NewNumericalError("svd factorization", nil)
	}
	rank := svd.Rank(svdRankTol)
	if rank < p {
		return fmt.Errorf("%w: rank %d of %d regressors", core.ErrRankDeficient, rank, p)
	}

	var beta mat.Dense
	svd.SolveTo(&beta, mat.NewDense(n, 1, rawColumn(yVec)), rank)
	for j := 0; j < p; j++ {
		coefs[j] = beta.At(j, 0)
	}

	var v mat.Dense
	svd.VTo(&v)
	s := svd.Values(nil)
	for j := 0; j < p; j++ {
		var sum float64
		for k := 0; k < p; k++ {
			vk := v.At(j, k)
			sum += vk * vk / (s[k] * s[k])
		}
		xtxInvDiag[j] = sum
	}
	return nil
}

func rawColumn(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
