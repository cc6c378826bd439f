package solver

import "tdoa-locate/internal/burst"

// centroidSolver returns the arithmetic mean of the receivers' projected
// coordinates. It is a baseline: it never fails and ignores arrival
// times entirely.
type centroidSolver struct{}

func (centroidSolver) Solve(observations []Observation, _ burst.TimeBase) (*Point, error) {
	var sumX, sumY float64
	for _, o := range observations {
		sumX += o.X
		sumY += o.Y
	}
	n := float64(len(observations))
	return &Point{X: sumX / n, Y: sumY / n}, nil
}
