// Package linalg is the small-matrix math library evaluated once per field
// element. Matrices are fixed-size values (at most 4x4) so they can be copied,
// compared and stored without allocation.
package linalg

import (
	"fmt"
	"strings"

	"github.com/timguo/taichi/internal/dtype"
)

// MaxDim bounds both matrix dimensions.
const MaxDim = 4

// Mat is a row-major matrix value of R rows and C columns. Vectors are
// R×1 matrices and scalars are 1×1. Entries are held as float64 working
// values that are always already rounded to DType.
//
// The zero Mat is not a valid value; use New, Zeros or one of the
// constructors.
type Mat struct {
	R, C  int
	DType dtype.DType
	data  [MaxDim * MaxDim]float64
}

func validShape(r, c int) bool {
	return r >= 1 && r <= MaxDim && c >= 1 && c <= MaxDim
}

// New returns a zero matrix with the given shape.
func New(dt dtype.DType, r, c int) (Mat, error) {
	if !validShape(r, c) {
		return Mat{}, fmt.Errorf("%dx%d: %w", r, c, ErrBadShape)
	}
	if !dt.Valid() {
		return Mat{}, fmt.Errorf("%v: %w", dt, ErrDType)
	}
	return Mat{R: r, C: c, DType: dt}, nil
}

// Zeros is New for shapes known to be valid. It panics otherwise.
func Zeros(dt dtype.DType, r, c int) Mat {
	m, err := New(dt, r, c)
	if err != nil {
		panic(err)
	}
	return m
}

// Scalar returns a 1×1 matrix holding v.
func Scalar(dt dtype.DType, v float64) Mat {
	m := Zeros(dt, 1, 1)
	m.data[0] = dt.Round(v)
	return m
}

// Identity returns the n×n identity.
func Identity(dt dtype.DType, n int) (Mat, error) {
	m, err := New(dt, n, n)
	if err != nil {
		return Mat{}, err
	}
	for i := range n {
		m.data[i*n+i] = 1
	}
	return m, nil
}

// Vector returns a column vector with the given components.
func Vector(dt dtype.DType, xs ...float64) (Mat, error) {
	m, err := New(dt, len(xs), 1)
	if err != nil {
		return Mat{}, err
	}
	for i, x := range xs {
		m.data[i] = dt.Round(x)
	}
	return m, nil
}

// Unit returns the dim-length column vector with 1 at axis.
func Unit(dt dtype.DType, dim, axis int) (Mat, error) {
	if axis < 0 || axis >= dim {
		return Mat{}, fmt.Errorf("unit vector axis %d for dim %d: %w", axis, dim, ErrIndexOutOfRange)
	}
	m, err := New(dt, dim, 1)
	if err != nil {
		return Mat{}, err
	}
	m.data[axis] = 1
	return m, nil
}

// FromSlice builds an r×c matrix from row-major data.
func FromSlice(dt dtype.DType, r, c int, data []float64) (Mat, error) {
	m, err := New(dt, r, c)
	if err != nil {
		return Mat{}, err
	}
	if len(data) != r*c {
		return Mat{}, fmt.Errorf("%d values for %dx%d: %w", len(data), r, c, ErrShapeMismatch)
	}
	for i, v := range data {
		m.data[i] = dt.Round(v)
	}
	return m, nil
}

// FromRows builds a matrix whose i-th row is rows[i].
func FromRows(dt dtype.DType, rows ...[]float64) (Mat, error) {
	if len(rows) == 0 {
		return Mat{}, fmt.Errorf("no rows: %w", ErrBadShape)
	}
	c := len(rows[0])
	flat := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return Mat{}, fmt.Errorf("row %d has %d entries, want %d: %w", i, len(row), c, ErrShapeMismatch)
		}
		flat = append(flat, row...)
	}
	return FromSlice(dt, len(rows), c, flat)
}

// FromCols builds a matrix whose j-th column is cols[j].
func FromCols(dt dtype.DType, cols ...[]float64) (Mat, error) {
	m, err := FromRows(dt, cols...)
	if err != nil {
		return Mat{}, err
	}
	return Transpose(m), nil
}

// StackRows builds a matrix from vector values used as rows.
func StackRows(vs ...Mat) (Mat, error) {
	rows, dt, err := vectorComponents(vs)
	if err != nil {
		return Mat{}, err
	}
	return FromRows(dt, rows...)
}

// StackCols builds a matrix from vector values used as columns.
func StackCols(vs ...Mat) (Mat, error) {
	cols, dt, err := vectorComponents(vs)
	if err != nil {
		return Mat{}, err
	}
	return FromCols(dt, cols...)
}

func vectorComponents(vs []Mat) ([][]float64, dtype.DType, error) {
	if len(vs) == 0 {
		return nil, dtype.Invalid, fmt.Errorf("no vectors: %w", ErrBadShape)
	}
	dt := vs[0].DType
	out := make([][]float64, len(vs))
	for i, v := range vs {
		if v.C != 1 {
			return nil, dtype.Invalid, fmt.Errorf("operand %d is %dx%d, want a vector: %w", i, v.R, v.C, ErrShapeMismatch)
		}
		dt = promote(dt, v.DType)
		out[i] = v.Data()
	}
	return out, dt, nil
}

// Shape returns (R, C).
func (m Mat) Shape() (int, int) { return m.R, m.C }

// IsScalar reports whether m is 1×1.
func (m Mat) IsScalar() bool { return m.R == 1 && m.C == 1 }

// Len is the number of entries.
func (m Mat) Len() int { return m.R * m.C }

// At returns entry (r, c).
func (m Mat) At(r, c int) (float64, error) {
	if r < 0 || r >= m.R || c < 0 || c >= m.C {
		return 0, fmt.Errorf("entry (%d,%d) of %dx%d: %w", r, c, m.R, m.C, ErrIndexOutOfRange)
	}
	return m.data[r*m.C+c], nil
}

// Set stores v at entry (r, c), rounded to the matrix dtype.
func (m *Mat) Set(r, c int, v float64) error {
	if r < 0 || r >= m.R || c < 0 || c >= m.C {
		return fmt.Errorf("entry (%d,%d) of %dx%d: %w", r, c, m.R, m.C, ErrIndexOutOfRange)
	}
	m.data[r*m.C+c] = m.DType.Round(v)
	return nil
}

// Value returns the single entry of a scalar.
func (m Mat) Value() float64 { return m.data[0] }

// Data returns a row-major copy of the entries.
func (m Mat) Data() []float64 {
	out := make([]float64, m.R*m.C)
	copy(out, m.data[:m.R*m.C])
	return out
}

// CopyTo writes the row-major entries into dst, which must hold Len values.
func (m Mat) CopyTo(dst []float64) { copy(dst, m.data[:m.R*m.C]) }

// Cast converts m to dt, rounding every entry.
func (m Mat) Cast(dt dtype.DType) Mat {
	out := m
	out.DType = dt
	for i := range m.R * m.C {
		out.data[i] = dt.Round(m.data[i])
	}
	return out
}

func (m Mat) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i := range m.R {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('[')
		for j := range m.C {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%g", m.data[i*m.C+j])
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}
