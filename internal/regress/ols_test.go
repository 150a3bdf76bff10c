package regress

import (
	"errors"
	"math"
	"testing"

	"flexwta/domain/core"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestFitRecoversExactLine(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 5; i++ {
		xi := float64(i)
		x = append(x, []float64{1, xi})
		y = append(y, 2+3*xi)
	}

	fit, err := Fit(x, y)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !almostEqual(fit.Coefs[0], 2, 1e-9) || !almostEqual(fit.Coefs[1], 3, 1e-9) {
		t.Errorf("Coefs: want [2 3], got %v", fit.Coefs)
	}
	if fit.StdErrs[0] > 1e-6 || fit.StdErrs[1] > 1e-6 {
		t.Errorf("Noise-free fit should have near-zero standard errors, got %v", fit.StdErrs)
	}
	if fit.DF != 3 {
		t.Errorf("DF: want 3, got %d", fit.DF)
	}
}

func TestFitMatchesSimpleRegressionFormulas(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 3, 5, 4, 6}

	var x [][]float64
	for _, xi := range xs {
		x = append(x, []float64{1, xi})
	}

	fit, err := Fit(x, ys)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Closed-form simple regression as an independent reference.
	n := float64(len(xs))
	var xBar, yBar float64
	for i := range xs {
		xBar += xs[i]
		yBar += ys[i]
	}
	xBar /= n
	yBar /= n
	var sxx, sxy float64
	for i := range xs {
		sxx += (xs[i] - xBar) * (xs[i] - xBar)
		sxy += (xs[i] - xBar) * (ys[i] - yBar)
	}
	slope := sxy / sxx
	intercept := yBar - slope*xBar
	var rss float64
	for i := range xs {
		r := ys[i] - intercept - slope*xs[i]
		rss += r * r
	}
	sigma2 := rss / (n - 2)
	seSlope := math.Sqrt(sigma2 / sxx)
	seIntercept := math.Sqrt(sigma2 * (1/n + xBar*xBar/sxx))

	if !almostEqual(fit.Coefs[0], intercept, 1e-9) {
		t.Errorf("Intercept: want %g, got %g", intercept, fit.Coefs[0])
	}
	if !almostEqual(fit.Coefs[1], slope, 1e-9) {
		t.Errorf("Slope: want %g, got %g", slope, fit.Coefs[1])
	}
	if !almostEqual(fit.StdErrs[0], seIntercept, 1e-9) {
		t.Errorf("Intercept std err: want %g, got %g", seIntercept, fit.StdErrs[0])
	}
	if !almostEqual(fit.StdErrs[1], seSlope, 1e-9) {
		t.Errorf("Slope std err: want %g, got %g", seSlope, fit.StdErrs[1])
	}
	if !almostEqual(fit.Sigma2, sigma2, 1e-9) {
		t.Errorf("Sigma2: want %g, got %g", sigma2, fit.Sigma2)
	}
}

func TestFitRejectsRankDeficiency(t *testing.T) {
	// Second regressor is an exact copy of the intercept column.
	x := [][]float64{
		{1, 1},
		{1, 1},
		{1, 1},
		{1, 1},
	}
	y := []float64{1, 2, 3, 4}

	_, err := Fit(x, y)
	if err == nil {
		t.Fatal("Expected error for collinear design matrix, got none")
	}
	if !errors.Is(err, core.ErrRankDeficient) {
		t.Errorf("Expected rank deficiency, got %v", err)
	}
}

func TestFitRequiresMoreObservationsThanRegressors(t *testing.T) {
	x := [][]float64{
		{1, 2},
		{1, 3},
	}
	y := []float64{1, 2}

	if _, err := Fit(x, y); !errors.Is(err, core.ErrRankDeficient) {
		t.Errorf("Expected rank deficiency for n <= p, got %v", err)
	}
}

func TestFitRejectsNonFinite(t *testing.T) {
	x := [][]float64{
		{1, 1},
		{1, math.NaN()},
		{1, 3},
	}
	y := []float64{1, 2, 3}
	if _, err := Fit(x, y); !errors.Is(err, core.ErrNonFinite) {
		t.Errorf("Expected non-finite error for NaN regressor, got %v", err)
	}

	x[1][1] = 2
	y[2] = math.Inf(1)
	if _, err := Fit(x, y); !errors.Is(err, core.ErrNonFinite) {
		t.Errorf("Expected non-finite error for Inf response, got %v", err)
	}
}

func TestFitValidatesShapes(t *testing.T) {
	if _, err := Fit(nil, nil); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument for empty input, got %v", err)
	}
	if _, err := Fit([][]float64{{1}, {1}}, []float64{1}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument for length mismatch, got %v", err)
	}
	if _, err := Fit([][]float64{{1, 2}, {1}, {1, 4}}, []float64{1, 2, 3}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument for ragged rows, got %v", err)
	}
}
