package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/linalg"
)

const (
	taylorMaxIterations      = 50
	taylorConvergenceMeters  = 10.0
	taylorSpiralStepMeters   = 5000.0
	taylorSpiralGridSize     = 25
)

// taylorSolver is the default Gauss-Newton iterative estimator. It
// refines a nonlinear range-difference model from an initial guess near
// the first receiver, restarting on a spiral of fallback seeds whenever
// the normal matrix goes singular.
type taylorSolver struct{}

func (taylorSolver) Solve(observations []Observation, timeBase burst.TimeBase) (*Point, error) {
	if len(observations) < burst.MinReceivers {
		return nil, ErrInsufficientReceivers
	}

	for _, seed := range taylorSeeds(observations[0]) {
		point, singular := gaussNewton(observations, timeBase, seed)
		if point != nil {
			return point, nil
		}
		if !singular {
			// Ran the full iteration cap without ever hitting a
			// singular normal matrix: further seeding won't help.
			return nil, ErrNoConvergence
		}
	}

	return nil, ErrNoConvergence
}

// gaussNewton runs up to taylorMaxIterations of Gauss-Newton refinement
// from the given seed. It returns a solution point on convergence, or
// (nil, true) if the normal matrix went singular (the caller should try
// another seed), or (nil, false) if the iteration cap was exhausted.
func gaussNewton(observations []Observation, timeBase burst.TimeBase, seed Point) (*Point, bool) {
	n := len(observations)
	x0, y0 := seed.X, seed.Y
	ref := observations[0]

	for iter := 0; iter < taylorMaxIterations; iter++ {
		r := make([]float64, n)
		for i, o := range observations {
			r[i] = math.Hypot(o.X-x0, o.Y-y0)
		}
		if r[0] == 0 {
			return nil, true
		}

		h := mat.NewDense(n-1, 1, nil)
		g := mat.NewDense(n-1, 2, nil)
		for i := 1; i < n; i++ {
			if r[i] == 0 {
				return nil, true
			}
			d1i := rangeDifference(ref.TimeTicks, observations[i].TimeTicks, timeBase)
			h.Set(i-1, 0, d1i-(r[i]-r[0]))
			g.Set(i-1, 0, (ref.X-x0)/r[0]-(observations[i].X-x0)/r[i])
			g.Set(i-1, 1, (ref.Y-y0)/r[0]-(observations[i].Y-y0)/r[i])
		}

		delta, err := linalg.SolveNormalEquations(g, h)
		if err != nil {
			return nil, true
		}

		dx := delta.At(0, 0)
		dy := delta.At(1, 0)
		x0 += dx
		y0 += dy

		if math.Abs(dx) < taylorConvergenceMeters && math.Abs(dy) < taylorConvergenceMeters {
			return &Point{X: x0, Y: y0}, false
		}
	}

	return nil, false
}

// taylorSeeds produces the default initial guess followed by a
// 25x25 grid of fallback seeds spiraling out from the first receiver in
// alternating +/-5000m steps, for use when the default guess's normal
// matrix is singular. The exact enumeration order of the grid is not
// load-bearing; only that it covers 625 distinct positions is.
func taylorSeeds(first Observation) []Point {
	seeds := make([]Point, 0, 1+taylorSpiralGridSize*taylorSpiralGridSize)
	seeds = append(seeds, Point{X: first.X - 1000, Y: first.Y + 1000})

	for j := 0; j < taylorSpiralGridSize; j++ {
		dy := spiralOffset(j)
		for i := 0; i < taylorSpiralGridSize; i++ {
			dx := spiralOffset(i)
			seeds = append(seeds, Point{X: first.X + dx, Y: first.Y + dy})
		}
	}
	return seeds
}

// spiralOffset returns the k-th term of an alternating-sign,
// growing-magnitude sequence of multiples of taylorSpiralStepMeters:
// +1, -1, +2, -2, +3, -3, ...
func spiralOffset(k int) float64 {
	magnitude := float64(k/2 + 1)
	if k%2 == 1 {
		magnitude = -magnitude
	}
	return magnitude * taylorSpiralStepMeters
}
