// Package krinsky implements the Krinsky-Robb parametric bootstrap: drawing
// coefficient replicates from the estimated sampling distribution N(b, V),
// fanning the per-replicate pipeline across a bounded worker pool, and
// collapsing the replicate statistics into percentile intervals and
// bootstrap p-values.
package krinsky

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"flexwta/domain/core"
	"flexwta/domain/model"
)

// Drawer produces coefficient replicates for one experiment by sampling the
// multivariate normal centered on the point estimate with the estimated
// covariance. A single PCG stream backs every draw, so a given
// (estimate, seed) pair always yields the same replicate sequence.
type Drawer struct {
	estimate model.PointEstimate
	seed     uint64
	dist     *distmv.Normal
}

// NewDrawer validates the estimate and factorizes its covariance. A
// covariance that is not positive definite fails here, before any replicate
// work starts.
func NewDrawer(est model.PointEstimate, seed uint64) (*Drawer, error) {
	if err := est.Validate(); err != nil {
		return nil, err
	}

	k := est.K()
	sigma := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sigma.SetSym(i, j, est.Cov[i][j])
		}
	}

	src := rand.NewPCG(seed, seed)
	dist, ok := distmv.NewNormal(est.Coefs, sigma, src)
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", core.ErrNotPositiveDefinite, est.Experiment)
	}

	return &Drawer{estimate: est, seed: seed, dist: dist}, nil
}

// DrawAll pulls count coefficient vectors from the shared stream. The vector
// at index i becomes replicate i+1; replicate 0 is always the point estimate
// itself and is never drawn.
func (d *Drawer) DrawAll(count int) ([][]float64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: replicate count must be positive, got %d", core.ErrInvalidArgument, count)
	}

	draws := make([][]float64, count)
	for r := 0; r < count; r++ {
		v := d.dist.Rand(nil)
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: draw %d element %d", core.ErrNonFinite, r+1, i)
			}
		}
		draws[r] = v
	}
	return draws, nil
}

// Seed returns the seed the draw stream was initialized with.
func (d *Drawer) Seed() uint64 { return d.seed }

// K returns the coefficient dimension.
func (d *Drawer) K() int { return d.estimate.K() }

// Estimate returns the point estimate the drawer samples around.
func (d *Drawer) Estimate() model.PointEstimate { return d.estimate }
