package solver

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/linalg"
)

// friedlanderSolver is the weighted-least-squares estimator of
// Friedländer, parameterised over the number of receivers it consults
// (3 or 4), taken from the start of the observation list with receiver
// 1 as reference.
type friedlanderSolver struct {
	receivers int
}

func (s friedlanderSolver) Solve(observations []Observation, timeBase burst.TimeBase) (*Point, error) {
	if len(observations) < s.receivers {
		return nil, fmt.Errorf("%w: friedlander needs %d receivers, got %d", ErrInsufficientReceivers, s.receivers, len(observations))
	}

	obs := observations[:s.receivers]
	ref := obs[0]
	refR := radius(ref)
	k := s.receivers - 1

	sData := make([]float64, 0, k*2)
	m := make([]float64, k)
	u := make([]float64, k)
	for i := 1; i <= k; i++ {
		o := obs[i]
		sData = append(sData, o.X-ref.X, o.Y-ref.Y)
		m[i-1] = rangeDifference(ref.TimeTicks, o.TimeTicks, timeBase)
		r := radius(o)
		u[i-1] = 0.5 * (r*r - refR*refR - m[i-1]*m[i-1])
	}

	sMat := mat.NewDense(k, 2, sData)

	// M = (I - Z) * D, where D is diag(1/m_i1) and Z is the identity
	// circularly shifted up by one row.
	mMatrix := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		shiftedCol := (i + 1) % k
		for j := 0; j < k; j++ {
			var identity, shifted float64
			if j == i {
				identity = 1
			}
			if j == shiftedCol {
				shifted = 1
			}
			mMatrix.Set(i, j, (identity-shifted)/m[j])
		}
	}

	uVec := mat.NewDense(k, 1, u)

	var mtM mat.Dense
	mtM.Mul(mMatrix.T(), mMatrix)

	var sT mat.Dense
	sT.CloneFrom(sMat.T())

	var stmtm mat.Dense
	stmtm.Mul(&sT, &mtM)

	var stmtmS mat.Dense
	stmtmS.Mul(&stmtm, sMat)

	inv, err := linalg.Invert(&stmtmS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var stmtmU mat.Dense
	stmtmU.Mul(&stmtm, uVec)

	var origin mat.Dense
	origin.Mul(inv, &stmtmU)

	return &Point{X: origin.At(0, 0), Y: origin.At(1, 0)}, nil
}
