package linalg

import (
	"fmt"
	"math"

	"github.com/timguo/taichi/internal/dtype"
)

// MaxPolarIterations bounds the Newton iteration in PolarDecompose.
const MaxPolarIterations = 100

// Scaling accelerates the early Newton steps; it is switched off once the
// iterate is close to orthogonal so the final steps converge quadratically.
const polarScalingCutoff = 1e-2

// PolarDecompose factors a square float matrix as M = R·S with R orthogonal
// and S symmetric, using the scaled Newton iteration
//
//	R ← (γR + (γR)⁻ᵀ) / 2
//
// starting from R = M. It fails with ErrConvergence when the update does not
// settle within MaxPolarIterations steps.
func PolarDecompose(m Mat) (r, s Mat, err error) {
	return PolarDecomposeLimit(m, MaxPolarIterations)
}

// PolarDecomposeLimit is PolarDecompose with an explicit iteration bound.
func PolarDecomposeLimit(m Mat, maxIter int) (r, s Mat, err error) {
	if !m.DType.IsFloat() {
		return Mat{}, Mat{}, fmt.Errorf("polar decomposition of %v matrix: %w", m.DType, ErrDType)
	}
	if m.R != m.C {
		return Mat{}, Mat{}, fmt.Errorf("polar decomposition of %dx%d: %w", m.R, m.C, ErrShapeMismatch)
	}

	work := m.Cast(dtype.F64)
	x, err := newtonPolar(work, m.DType, maxIter)
	if err != nil {
		return Mat{}, Mat{}, err
	}

	// S = Rᵀ·M, symmetrised to remove the residual skew part.
	st, err := MatMul(Transpose(x), work)
	if err != nil {
		return Mat{}, Mat{}, err
	}
	sym, err := Add(st, Transpose(st))
	if err != nil {
		return Mat{}, Mat{}, err
	}
	return x.Cast(m.DType), Scale(sym, 0.5).Cast(m.DType), nil
}

func newtonPolar(m Mat, dt dtype.DType, maxIter int) (Mat, error) {
	bound := dt.Tolerance() * 1e-2
	x := m
	delta := math.Inf(1)
	for iter := range maxIter {
		// The iterate lives in float64 whatever the output dtype.
		inv, err := inverse64(x, dtype.F64)
		if err != nil {
			return Mat{}, fmt.Errorf("polar iteration %d: %w", iter, err)
		}
		invT := Transpose(inv)

		gamma := 1.0
		if delta > polarScalingCutoff {
			gamma = math.Sqrt(frobenius(invT) / frobenius(x))
		}
		next, err := Add(Scale(x, 0.5*gamma), Scale(invT, 0.5/gamma))
		if err != nil {
			return Mat{}, err
		}
		delta, err = MaxAbsDiff(next, x)
		if err != nil {
			return Mat{}, err
		}
		x = next
		if delta <= bound {
			return x, nil
		}
	}
	return Mat{}, fmt.Errorf("polar decomposition after %d iterations (last update %g): %w", maxIter, delta, ErrConvergence)
}
