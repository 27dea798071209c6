package linalg

import (
	"fmt"
	"math"

	"github.com/timguo/taichi/internal/dtype"
)

// singularScale multiplies the dtype epsilon when deciding whether a
// determinant is indistinguishable from zero.
const singularScale = 16

type square [MaxDim * MaxDim]float64

func (s *square) at(n, i, j int) float64 { return s[i*n+j] }

// minor drops row r and column c from the n×n matrix s.
func (s *square) minor(n, r, c int) square {
	var out square
	k := 0
	for i := range n {
		if i == r {
			continue
		}
		for j := range n {
			if j == c {
				continue
			}
			out[k] = s[i*n+j]
			k++
		}
	}
	return out
}

func (s *square) det(n int) float64 {
	switch n {
	case 1:
		return s[0]
	case 2:
		return s[0]*s[3] - s[1]*s[2]
	case 3:
		return s.at(3, 0, 0)*(s.at(3, 1, 1)*s.at(3, 2, 2)-s.at(3, 1, 2)*s.at(3, 2, 1)) -
			s.at(3, 0, 1)*(s.at(3, 1, 0)*s.at(3, 2, 2)-s.at(3, 1, 2)*s.at(3, 2, 0)) +
			s.at(3, 0, 2)*(s.at(3, 1, 0)*s.at(3, 2, 1)-s.at(3, 1, 1)*s.at(3, 2, 0))
	default:
		var sum float64
		for j := range n {
			m := s.minor(n, 0, j)
			term := s.at(n, 0, j) * m.det(n-1)
			if j%2 == 1 {
				term = -term
			}
			sum += term
		}
		return sum
	}
}

// cofactor is (-1)^(i+j) times the (i, j) minor determinant.
func (s *square) cofactor(n, i, j int) float64 {
	if n == 1 {
		return 1
	}
	m := s.minor(n, i, j)
	d := m.det(n - 1)
	if (i+j)%2 == 1 {
		return -d
	}
	return d
}

func squareOf(m Mat) (square, error) {
	if m.R != m.C {
		return square{}, fmt.Errorf("%dx%d is not square: %w", m.R, m.C, ErrShapeMismatch)
	}
	var s square
	copy(s[:], m.data[:m.R*m.C])
	return s, nil
}

// hadamard returns the product of the row 2-norms of the n×n matrix s.
func hadamard(s *square, n int) float64 {
	p := 1.0
	for i := range n {
		var sum float64
		for j := range n {
			sum += s.at(n, i, j) * s.at(n, i, j)
		}
		p *= math.Sqrt(sum)
	}
	return p
}

// Det returns the determinant of a square matrix, computed in float64.
func Det(m Mat) (float64, error) {
	s, err := squareOf(m)
	if err != nil {
		return 0, err
	}
	return s.det(m.R), nil
}

// Inverse returns the inverse of a square float matrix using the
// adjugate: inverse(M) = adj(M) / det(M). It fails with ErrSingularMatrix
// when |det| is within a relative epsilon of the product of the row norms,
// which bounds |det| from above and is invariant to row scaling.
func Inverse(m Mat) (Mat, error) {
	if !m.DType.IsFloat() {
		return Mat{}, fmt.Errorf("inverse of %v matrix: %w", m.DType, ErrDType)
	}
	inv, err := inverse64(m, m.DType)
	if err != nil {
		return Mat{}, err
	}
	return inv.Cast(m.DType), nil
}

// inverse64 inverts m without rounding the result; eps selects the
// singularity threshold.
func inverse64(m Mat, eps dtype.DType) (Mat, error) {
	s, err := squareOf(m)
	if err != nil {
		return Mat{}, err
	}
	n := m.R
	d := s.det(n)
	bound := hadamard(&s, n)
	if bound == 0 || math.Abs(d) <= singularScale*eps.Epsilon()*bound {
		return Mat{}, fmt.Errorf("%dx%d determinant %g: %w", n, n, d, ErrSingularMatrix)
	}
	out := Mat{R: n, C: n, DType: dtype.F64}
	inv := 1 / d
	for i := range n {
		for j := range n {
			// adj(M)[i][j] is the (j, i) cofactor.
			out.data[i*n+j] = s.cofactor(n, j, i) * inv
		}
	}
	return out, nil
}
