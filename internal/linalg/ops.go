package linalg

import (
	"fmt"
	"math"

	"github.com/timguo/taichi/internal/dtype"
)

// promote returns the wider of two dtypes (I32 < F32 < F64).
func promote(a, b dtype.DType) dtype.DType {
	if a > b {
		return a
	}
	return b
}

// elementwise applies fn entry by entry. A scalar operand is broadcast
// against a matrix operand; otherwise shapes must match exactly.
func elementwise(a, b Mat, op string, fn func(x, y float64) float64) (Mat, error) {
	r, c := a.R, a.C
	switch {
	case a.R == b.R && a.C == b.C:
	case a.IsScalar():
		r, c = b.R, b.C
	case b.IsScalar():
	default:
		return Mat{}, fmt.Errorf("%s %dx%d and %dx%d: %w", op, a.R, a.C, b.R, b.C, ErrShapeMismatch)
	}
	dt := promote(a.DType, b.DType)
	out := Mat{R: r, C: c, DType: dt}
	for i := range r * c {
		x, y := a.data[0], b.data[0]
		if !a.IsScalar() {
			x = a.data[i]
		}
		if !b.IsScalar() {
			y = b.data[i]
		}
		out.data[i] = dt.Round(fn(x, y))
	}
	return out, nil
}

// Add returns a + b.
func Add(a, b Mat) (Mat, error) {
	return elementwise(a, b, "add", func(x, y float64) float64 { return x + y })
}

// Sub returns a - b.
func Sub(a, b Mat) (Mat, error) {
	return elementwise(a, b, "sub", func(x, y float64) float64 { return x - y })
}

// Mul returns the elementwise (Hadamard) product, broadcasting scalars.
func Mul(a, b Mat) (Mat, error) {
	return elementwise(a, b, "mul", func(x, y float64) float64 { return x * y })
}

// Scale multiplies every entry by s.
func Scale(m Mat, s float64) Mat {
	out := m
	for i := range m.R * m.C {
		out.data[i] = m.DType.Round(m.data[i] * s)
	}
	return out
}

// Neg returns -m.
func Neg(m Mat) Mat { return Scale(m, -1) }

// MatMul returns the matrix product a·b.
func MatMul(a, b Mat) (Mat, error) {
	if a.C != b.R {
		return Mat{}, fmt.Errorf("matmul %dx%d by %dx%d: %w", a.R, a.C, b.R, b.C, ErrShapeMismatch)
	}
	dt := promote(a.DType, b.DType)
	out := Mat{R: a.R, C: b.C, DType: dt}
	for i := range a.R {
		for j := range b.C {
			var sum float64
			for k := range a.C {
				sum += a.data[i*a.C+k] * b.data[k*b.C+j]
			}
			out.data[i*b.C+j] = dt.Round(sum)
		}
	}
	return out, nil
}

// Transpose swaps rows and columns exactly.
func Transpose(m Mat) Mat {
	out := Mat{R: m.C, C: m.R, DType: m.DType}
	for i := range m.R {
		for j := range m.C {
			out.data[j*m.R+i] = m.data[i*m.C+j]
		}
	}
	return out
}

// Any is 1 when at least one entry is nonzero, else 0.
func Any(m Mat) int {
	for i := range m.R * m.C {
		if m.data[i] != 0 {
			return 1
		}
	}
	return 0
}

// All is 1 when every entry is nonzero, else 0.
func All(m Mat) int {
	for i := range m.R * m.C {
		if m.data[i] == 0 {
			return 0
		}
	}
	return 1
}

// MaxAbs is the largest entry magnitude.
func MaxAbs(m Mat) float64 {
	var out float64
	for i := range m.R * m.C {
		out = math.Max(out, math.Abs(m.data[i]))
	}
	return out
}

// MaxAbsDiff is the largest entrywise difference between a and b.
func MaxAbsDiff(a, b Mat) (float64, error) {
	d, err := Sub(a.Cast(dtype.F64), b.Cast(dtype.F64))
	if err != nil {
		return 0, err
	}
	return MaxAbs(d), nil
}

// Equal reports exact equality of shape and entries. DType is ignored.
func Equal(a, b Mat) bool {
	if a.R != b.R || a.C != b.C {
		return false
	}
	for i := range a.R * a.C {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}

func frobenius(m Mat) float64 {
	var sum float64
	for i := range m.R * m.C {
		sum += m.data[i] * m.data[i]
	}
	return math.Sqrt(sum)
}
