// Package solver implements the family of TDOA multilateration
// estimators: given a burst's projected receiver positions and raw
// arrival times, compute the planar position of the transmitter.
package solver

import (
	"errors"
	"fmt"
	"math"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/projection"
)

// Algorithm is one of the selector strings a caller passes to Select.
type Algorithm string

// The permitted algorithm selectors. smithAndAbel is a distinct selector
// string but resolves to the same implementation as Schmidt: the
// original source's smith-and-abel routine never produced a result (it
// computed intermediate quantities and stopped short of a solution), so
// there is no independent behaviour to reproduce for it.
const (
	TaylorSeries      Algorithm = "taylorSeries"
	SmithAndAbel      Algorithm = "smithAndAbel"
	Schmidt           Algorithm = "schmidt"
	Friedlander       Algorithm = "friedlander"
	Friedlander3      Algorithm = "friedlander3"
	SchauAndRobinson  Algorithm = "schauAndRobinson"
	SchauAndRobinson3 Algorithm = "schauAndRobinson3"
	Centroid          Algorithm = "centroid"
)

// Error kinds returned by solver implementations. All are non-fatal to a
// driver processing many bursts; the burst in question is simply
// skipped.
var (
	ErrUnknownAlgorithm      = errors.New("solver: unknown algorithm")
	ErrInsufficientReceivers = errors.New("solver: insufficient receivers")
	ErrSingular              = errors.New("solver: singular matrix")
	ErrNoConvergence         = errors.New("solver: no convergence")
	ErrNoRealSolution        = errors.New("solver: no real solution")
)

// Observation is a receiver's projected planar position together with
// the raw arrival time the solver needs, so this package never depends
// on the projection frame used to produce it.
type Observation struct {
	X, Y      float64
	TimeTicks int64
}

// FromProjected builds solver observations from a burst's raw
// observations and their projected points, in parallel slices of equal
// length.
func FromProjected(obs []burst.Observation, points []projection.Point) []Observation {
	out := make([]Observation, len(obs))
	for i := range obs {
		out[i] = Observation{X: points[i].X, Y: points[i].Y, TimeTicks: obs[i].TimeTicks}
	}
	return out
}

// Point is a planar (x, y) solution.
type Point struct {
	X, Y float64
}

// Solver computes a planar position from a set of projected
// observations and the time base those observations' ticks are
// expressed in. A non-nil error means no position could be produced;
// the error's kind (via errors.Is against this package's sentinels)
// tells the caller why.
type Solver interface {
	Solve(observations []Observation, timeBase burst.TimeBase) (*Point, error)
}

// Select returns the Solver implementation for a selector string,
// failing fast with ErrUnknownAlgorithm for anything outside the
// permitted set.
func Select(algorithm Algorithm) (Solver, error) {
	switch algorithm {
	case TaylorSeries:
		return taylorSolver{}, nil
	case SmithAndAbel, Schmidt:
		return schmidtSolver{}, nil
	case Friedlander:
		return friedlanderSolver{receivers: 4}, nil
	case Friedlander3:
		return friedlanderSolver{receivers: 3}, nil
	case SchauAndRobinson:
		return schauRobinsonSolver{receivers: 4}, nil
	case SchauAndRobinson3:
		return schauRobinsonSolver{receivers: 3}, nil
	case Centroid:
		return centroidSolver{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// rangeDifference returns d_ij = V*(t_j - t_i)/T, the propagation
// distance implied by the arrival-time difference between two
// receivers.
func rangeDifference(ti, tj int64, timeBase burst.TimeBase) float64 {
	return projection.SpeedOfLight * float64(tj-ti) / float64(timeBase)
}

// radius returns R_i = sqrt(x_i^2 + y_i^2), the distance from the local
// frame origin to a receiver.
func radius(o Observation) float64 {
	return math.Hypot(o.X, o.Y)
}
