package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"tdoa-locate/internal/burst"
	"tdoa-locate/internal/linalg"
)

// schauRobinsonSolver is the quadratic closed-form estimator of Schau
// and Robinson, parameterised over the number of receivers it consults
// (3 or 4). The last of those receivers is translated to the local
// origin; the remaining ones feed the quadratic in R_s.
//
// The two variants pick different roots of that quadratic: the
// 4-receiver variant the more-positive root, the 3-receiver variant the
// more-negative one. This asymmetry traces back to the original
// implementation and is preserved. The 3-receiver variant measures its
// range differences with the opposite sign (t_ref - t_i rather than
// t_i - t_ref), which negates both roots, so its more-negative root
// reconstructs the same source position as the 4-receiver variant's
// more-positive one.
type schauRobinsonSolver struct {
	receivers int
}

func (s schauRobinsonSolver) Solve(observations []Observation, timeBase burst.TimeBase) (*Point, error) {
	if len(observations) < s.receivers {
		return nil, fmt.Errorf("%w: schauAndRobinson needs %d receivers, got %d", ErrInsufficientReceivers, s.receivers, len(observations))
	}

	obs := observations[:s.receivers]
	ref := obs[s.receivers-1]
	remaining := obs[:s.receivers-1]
	k := len(remaining)

	mData := make([]float64, 0, k*2)
	d := make([]float64, k)
	tVec := make([]float64, k)
	for i, o := range remaining {
		tx := o.X - ref.X
		ty := o.Y - ref.Y
		mData = append(mData, tx, ty)
		d[i] = rangeDifference(ref.TimeTicks, o.TimeTicks, timeBase)
		if s.receivers == 3 {
			d[i] = -d[i]
		}
		r := math.Hypot(tx, ty)
		tVec[i] = r*r - d[i]*d[i]
	}

	m := mat.NewDense(k, 2, mData)
	pinv, err := linalg.PseudoInverse(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	dCol := mat.NewDense(k, 1, d)
	tCol := mat.NewDense(k, 1, tVec)

	var pinvD, pinvT mat.Dense
	pinvD.Mul(pinv, dCol)
	pinvT.Mul(pinv, tCol)

	dtPinvTPinvD := dot(&pinvD, &pinvD)
	dtPinvTPinvT := dot(&pinvD, &pinvT)
	ttPinvTPinvT := dot(&pinvT, &pinvT)

	a := 4 - 4*dtPinvTPinvD
	b := 4 * dtPinvTPinvT
	c := -ttPinvTPinvT

	if a == 0 {
		return nil, fmt.Errorf("%w: schauAndRobinson quadratic has zero leading coefficient", ErrSingular)
	}

	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return nil, fmt.Errorf("%w: discriminant %v", ErrNoRealSolution, discriminant)
	}

	var rs float64
	switch {
	case discriminant == 0:
		rs = -b / (2 * a)
	case s.receivers == 4:
		rs = (-b + math.Sqrt(discriminant)) / (2 * a)
	default:
		rs = (-b - math.Sqrt(discriminant)) / (2 * a)
	}

	// origin = 0.5 * M+ * (T - 2*Rs*d)
	adjusted := mat.NewDense(k, 1, nil)
	for i := 0; i < k; i++ {
		adjusted.Set(i, 0, tVec[i]-2*rs*d[i])
	}
	var originTranslated mat.Dense
	originTranslated.Mul(pinv, adjusted)

	x := 0.5*originTranslated.At(0, 0) + ref.X
	y := 0.5*originTranslated.At(1, 0) + ref.Y
	return &Point{X: x, Y: y}, nil
}

func dot(a, b *mat.Dense) float64 {
	rows, _ := a.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		sum += a.At(i, 0) * b.At(i, 0)
	}
	return sum
}
