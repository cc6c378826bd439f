// Package linalg provides the small set of dense-matrix operations the
// TDOA solvers need: inversion, normal-equations least squares, and a
// Moore-Penrose pseudo-inverse for non-square systems. It is a thin
// wrapper over gonum's dense matrix type; none of the solvers manipulate
// gonum directly.
package linalg

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a matrix that must be inverted is singular
// or numerically indistinguishable from singular.
var ErrSingular = errors.New("linalg: singular matrix")

// Invert returns the inverse of a square matrix.
func Invert(m *mat.Dense) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows != cols {
		return nil, fmt.Errorf("linalg: cannot invert non-square %dx%d matrix", rows, cols)
	}
	inv := mat.NewDense(rows, rows, nil)
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return inv, nil
}

// SolveNormalEquations returns x = (AᵀA)⁻¹Aᵀb, the least-squares solution
// of A x = b.
func SolveNormalEquations(a, b *mat.Dense) (*mat.Dense, error) {
	var at mat.Dense
	at.CloneFrom(a.T())

	var ata mat.Dense
	ata.Mul(&at, a)

	ataInv, err := Invert(&ata)
	if err != nil {
		return nil, err
	}

	var atb mat.Dense
	atb.Mul(&at, b)

	var x mat.Dense
	x.Mul(ataInv, &atb)
	return &x, nil
}

// PseudoInverse returns the Moore-Penrose pseudo-inverse of m, computed
// exactly via Invert when m is square and via SVD otherwise.
func PseudoInverse(m *mat.Dense) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows == cols {
		return Invert(m)
	}

	var svd mat.SVD
	ok := svd.Factorize(m, mat.SVDThin)
	if !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrSingular)
	}

	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	uRows, _ := u.Dims()
	vRows, _ := v.Dims()

	sigmaPlus := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > 1e-12 {
			sigmaPlus.Set(i, i, 1/s)
		}
	}

	var vSigma mat.Dense
	vSigma.Mul(v.Slice(0, vRows, 0, len(values)), sigmaPlus)

	var pinv mat.Dense
	pinv.Mul(&vSigma, u.Slice(0, uRows, 0, len(values)).T())
	return &pinv, nil
}
