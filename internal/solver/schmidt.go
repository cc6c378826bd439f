package solver

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/linalg"
)

// schmidtSolver is the closed-form linear estimator of Schmidt, requiring
// at least four receivers. It consults only the burst's first four
// observations; any beyond the fourth are ignored.
type schmidtSolver struct{}

const schmidtMinReceivers = 4

func (schmidtSolver) Solve(observations []Observation, timeBase burst.TimeBase) (*Point, error) {
	if len(observations) < schmidtMinReceivers {
		return nil, fmt.Errorf("%w: schmidt needs %d receivers, got %d", ErrInsufficientReceivers, schmidtMinReceivers, len(observations))
	}

	o1, o2, o3, o4 := observations[0], observations[1], observations[2], observations[3]
	r1 := radius(o1)
	r2 := radius(o2)
	r3 := radius(o3)
	r4 := radius(o4)

	m32 := rangeDifference(o2.TimeTicks, o3.TimeTicks, timeBase)
	m13 := rangeDifference(o3.TimeTicks, o1.TimeTicks, timeBase)
	m42 := rangeDifference(o2.TimeTicks, o4.TimeTicks, timeBase)
	m14 := rangeDifference(o4.TimeTicks, o1.TimeTicks, timeBase)
	m21 := rangeDifference(o1.TimeTicks, o2.TimeTicks, timeBase)

	a3 := o1.X*m32 + o2.X*m13 + o3.X*(-m32-m13)
	b3 := o1.Y*m32 + o2.Y*m13 + o3.Y*(-m32-m13)
	d3 := 0.5 * (m21*m32*m13 + r1*r1*m32 + r2*r2*m13 + r3*r3*(-m32-m13))

	a4 := o1.X*m42 + o2.X*m14 + o4.X*(-m42-m14)
	b4 := o1.Y*m42 + o2.Y*m14 + o4.Y*(-m42-m14)
	d4 := 0.5 * (m21*m42*m14 + r1*r1*m42 + r2*r2*m14 + r4*r4*(-m42-m14))

	g := mat.NewDense(2, 2, []float64{a3, b3, a4, b4})
	gInv, err := linalg.Invert(g)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	d := mat.NewDense(2, 1, []float64{d3, d4})
	var origin mat.Dense
	origin.Mul(gInv, d)

	return &Point{X: origin.At(0, 0), Y: origin.At(1, 0)}, nil
}
