package linalg

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/timguo/taichi/internal/dtype"
)

func mustSlice(t *testing.T, dt dtype.DType, r, c int, data []float64) Mat {
	t.Helper()
	m, err := FromSlice(dt, r, c, data)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	return m
}

// testMatrix fills entry (i, j) with i*2 + j*7 + 3*[i==j].
func testMatrix(t *testing.T, dt dtype.DType, n int) Mat {
	t.Helper()
	data := make([]float64, n*n)
	for i := range n {
		for j := range n {
			v := float64(i*2 + j*7)
			if i == j {
				v += 3
			}
			data[i*n+j] = v
		}
	}
	return mustSlice(t, dt, n, n, data)
}

// invertible fills entry (i, j) with i*j + i*3 + j + 1 + 4*[i==j].
func invertible(t *testing.T, dt dtype.DType, n int) Mat {
	t.Helper()
	data := make([]float64, n*n)
	for i := range n {
		for j := range n {
			v := float64(i*j + i*3 + j + 1)
			if i == j {
				v += 4
			}
			data[i*n+j] = v
		}
	}
	return mustSlice(t, dt, n, n, data)
}

func toDense(m Mat) *mat.Dense {
	return mat.NewDense(m.R, m.C, m.Cast(dtype.F64).Data())
}

func assertClose(t *testing.T, name string, got, want Mat, tol float64) {
	t.Helper()
	d, err := MaxAbsDiff(got, want)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if d > tol {
		t.Fatalf("%s: max abs diff %g > %g\ngot  %v\nwant %v", name, d, tol, got, want)
	}
}

func TestTransposeIsExactAndIdempotent(t *testing.T) {
	t.Parallel()
	for _, n := range []int{2, 3} {
		m := testMatrix(t, dtype.F32, n)
		tr := Transpose(m)
		for i := range n {
			for j := range n {
				a, _ := m.At(i, j)
				b, _ := tr.At(j, i)
				if a != b {
					t.Fatalf("n=%d: transpose (%d,%d) = %v, want %v", n, j, i, b, a)
				}
			}
		}
		if !Equal(Transpose(tr), m) {
			t.Fatalf("n=%d: double transpose changed the matrix", n)
		}
	}

	v, _ := Vector(dtype.I32, 1, 2, 3)
	if r, c := Transpose(v).Shape(); r != 1 || c != 3 {
		t.Fatalf("vector transpose shape %dx%d", r, c)
	}
}

func TestInverseMatchesGonum(t *testing.T) {
	t.Parallel()
	for _, dt := range []dtype.DType{dtype.F32, dtype.F64} {
		for n := 1; n <= 4; n++ {
			m := invertible(t, dt, n)
			inv, err := Inverse(m)
			if err != nil {
				t.Fatalf("%v n=%d: %v", dt, n, err)
			}

			var ref mat.Dense
			if err := ref.Inverse(toDense(m)); err != nil {
				t.Fatalf("gonum inverse: %v", err)
			}
			want := mustSlice(t, dtype.F64, n, n, ref.RawMatrix().Data)
			assertClose(t, "inverse vs gonum", inv, want, dt.InverseTolerance())

			prod, err := MatMul(m.Cast(dtype.F64), inv.Cast(dtype.F64))
			if err != nil {
				t.Fatalf("matmul: %v", err)
			}
			id, _ := Identity(dtype.F64, n)
			assertClose(t, "M·inverse(M)", prod, id, dt.InverseTolerance())
		}
	}
}

func TestInverseSingular(t *testing.T) {
	t.Parallel()
	m := mustSlice(t, dtype.F64, 2, 2, []float64{1, 2, 2, 4})
	if _, err := Inverse(m); !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix, got %v", err)
	}
	z := Zeros(dtype.F32, 3, 3)
	if _, err := Inverse(z); !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix for zeros, got %v", err)
	}
	// The determinant is a few ulps away from zero, not exactly zero.
	near := mustSlice(t, dtype.F64, 2, 2, []float64{3, 1, 6, 2 + 1e-15})
	if d, _ := Det(near); d == 0 {
		t.Fatal("expected a nonzero determinant")
	}
	if _, err := Inverse(near); !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix for near-singular, got %v", err)
	}
}

func TestInverseRejectsIntegerAndNonSquare(t *testing.T) {
	t.Parallel()
	if _, err := Inverse(Zeros(dtype.I32, 2, 2)); !errors.Is(err, ErrDType) {
		t.Fatalf("expected ErrDType, got %v", err)
	}
	if _, err := Inverse(Zeros(dtype.F32, 2, 3)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestPolarDecompose(t *testing.T) {
	t.Parallel()
	for _, dt := range []dtype.DType{dtype.F32, dtype.F64} {
		for _, n := range []int{2, 3} {
			m := testMatrix(t, dt, n)
			r, s, err := PolarDecompose(m)
			if err != nil {
				t.Fatalf("%v n=%d: %v", dt, n, err)
			}
			tol := dt.Tolerance()

			rs, _ := MatMul(r, s)
			assertClose(t, "R·S", rs, m, tol)

			rrt, _ := MatMul(r, Transpose(r))
			id, _ := Identity(dt, n)
			assertClose(t, "R·Rᵀ", rrt, id, tol)

			skew, _ := Sub(s, Transpose(s))
			assertClose(t, "S-Sᵀ", skew, Zeros(dt, n, n), tol)

			// Orthogonal polar factor is U·Vᵀ from the SVD.
			var svd mat.SVD
			if !svd.Factorize(toDense(m), mat.SVDFull) {
				t.Fatal("gonum svd failed")
			}
			var u, v, ref mat.Dense
			svd.UTo(&u)
			svd.VTo(&v)
			ref.Mul(&u, v.T())
			want := mustSlice(t, dtype.F64, n, n, ref.RawMatrix().Data)
			assertClose(t, "R vs svd", r, want, math.Max(tol, 1e-6))
		}
	}
}

func TestPolarDecomposeErrors(t *testing.T) {
	t.Parallel()
	m := testMatrix(t, dtype.F64, 3)
	if _, _, err := PolarDecomposeLimit(m, 1); !errors.Is(err, ErrConvergence) {
		t.Fatalf("expected ErrConvergence, got %v", err)
	}
	sing := mustSlice(t, dtype.F64, 2, 2, []float64{1, 2, 2, 4})
	if _, _, err := PolarDecompose(sing); !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix, got %v", err)
	}
	if _, _, err := PolarDecompose(Zeros(dtype.I32, 2, 2)); !errors.Is(err, ErrDType) {
		t.Fatalf("expected ErrDType, got %v", err)
	}
}

func TestAnyAll(t *testing.T) {
	t.Parallel()
	for i := range 2 {
		for j := range 2 {
			m := mustSlice(t, dtype.I32, 2, 2, []float64{float64(i), float64(j), float64(j), float64(i)})
			wantAny, wantAll := 0, 0
			if i == 1 || j == 1 {
				wantAny = 1
			}
			if i == 1 && j == 1 {
				wantAll = 1
			}
			if got := Any(m); got != wantAny {
				t.Fatalf("Any(i=%d,j=%d) = %d", i, j, got)
			}
			if got := All(m); got != wantAll {
				t.Fatalf("All(i=%d,j=%d) = %d", i, j, got)
			}
		}
	}
}

func TestUnit(t *testing.T) {
	t.Parallel()
	for axis := range 3 {
		u, err := Unit(dtype.I32, 3, axis)
		if err != nil {
			t.Fatalf("Unit: %v", err)
		}
		for j := range 3 {
			got, _ := u.At(j, 0)
			want := 0.0
			if j == axis {
				want = 1
			}
			if got != want {
				t.Fatalf("unit(3,%d)[%d] = %v", axis, j, got)
			}
		}
	}
	if _, err := Unit(dtype.I32, 3, 3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestRowsAndColsConstruction(t *testing.T) {
	t.Parallel()
	a, _ := Vector(dtype.F32, 1, 4, 7)
	b, _ := Vector(dtype.F32, 2, 5, 8)
	c, _ := Vector(dtype.F32, 3, 6, 9)

	byRows, err := StackRows(a, b, c)
	if err != nil {
		t.Fatalf("StackRows: %v", err)
	}
	byCols, err := StackCols(a, b, c)
	if err != nil {
		t.Fatalf("StackCols: %v", err)
	}
	lit, _ := FromRows(dtype.F32, []float64{1, 4, 7}, []float64{2, 5, 8}, []float64{3, 6, 9})
	litCols, _ := FromCols(dtype.F32, []float64{1, 4, 7}, []float64{2, 5, 8}, []float64{3, 6, 9})

	for j := range 3 {
		for i := range 3 {
			want := float64(i + 3*j + 1)
			if v, _ := byRows.At(i, j); v != want {
				t.Fatalf("rows[%d,%d] = %v, want %v", i, j, v, want)
			}
			if v, _ := byCols.At(j, i); v != want {
				t.Fatalf("cols[%d,%d] = %v, want %v", j, i, v, want)
			}
		}
	}
	if !Equal(byRows, lit) || !Equal(byCols, litCols) {
		t.Fatal("vector and literal construction disagree")
	}
}

func TestElementwiseBroadcastAndShapes(t *testing.T) {
	t.Parallel()
	m := mustSlice(t, dtype.I32, 2, 2, []float64{1, 2, 3, 4})
	one := Scalar(dtype.I32, 1)

	sum, err := Add(m, one)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !Equal(sum, mustSlice(t, dtype.I32, 2, 2, []float64{2, 3, 4, 5})) {
		t.Fatalf("broadcast add = %v", sum)
	}
	if _, err := Add(m, Zeros(dtype.I32, 3, 1)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := MatMul(m, Zeros(dtype.I32, 3, 1)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := m.At(2, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := New(dtype.F32, 5, 1); !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape, got %v", err)
	}
}

func TestDet(t *testing.T) {
	t.Parallel()
	for n := 1; n <= 4; n++ {
		m := invertible(t, dtype.F64, n)
		got, err := Det(m)
		if err != nil {
			t.Fatalf("Det: %v", err)
		}
		want := mat.Det(toDense(m))
		if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
			t.Fatalf("n=%d det = %v, want %v", n, got, want)
		}
	}
}

// relDiff is the largest entry difference relative to 1 + |want|.
func relDiff(t *testing.T, got, want Mat) float64 {
	t.Helper()
	if got.R != want.R || got.C != want.C {
		t.Fatalf("shape %dx%d, want %dx%d", got.R, got.C, want.R, want.C)
	}
	g, w := got.Cast(dtype.F64).Data(), want.Cast(dtype.F64).Data()
	var d float64
	for k := range w {
		d = math.Max(d, math.Abs(g[k]-w[k])/(1+math.Abs(w[k])))
	}
	return d
}

func TestInverseOfBadlyScaledRows(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		dt   dtype.DType
		n    int
		data []float64
	}{
		{"f32 diag(1,1e-3,1e-3)", dtype.F32, 3, []float64{1, 0, 0, 0, 1e-3, 0, 0, 0, 1e-3}},
		{"f32 diag(1e-2,1e-2)", dtype.F32, 2, []float64{1e-2, 0, 0, 1e-2}},
		{"f64 diag(1,1e-8,1e-8,1e-8)", dtype.F64, 4, []float64{1, 0, 0, 0, 0, 1e-8, 0, 0, 0, 0, 1e-8, 0, 0, 0, 0, 1e-8}},
	}
	for _, tc := range tests {
		m := mustSlice(t, tc.dt, tc.n, tc.n, tc.data)
		inv, err := Inverse(m)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		prod, err := MatMul(m.Cast(dtype.F64), inv.Cast(dtype.F64))
		if err != nil {
			t.Fatalf("%s: matmul: %v", tc.name, err)
		}
		id, _ := Identity(dtype.F64, tc.n)
		assertClose(t, tc.name+" M·inverse(M)", prod, id, tc.dt.InverseTolerance())
	}
}

func TestPolarDecomposeOfBadlyScaledMatrix(t *testing.T) {
	t.Parallel()
	for _, dt := range []dtype.DType{dtype.F32, dtype.F64} {
		m := mustSlice(t, dt, 2, 2, []float64{1e-3, 0, 0, 1e3})
		r, s, err := PolarDecompose(m)
		if err != nil {
			t.Fatalf("%v: %v", dt, err)
		}
		id, _ := Identity(dt, 2)
		assertClose(t, "R", r, id, dt.Tolerance())
		rs, err := MatMul(r.Cast(dtype.F64), s.Cast(dtype.F64))
		if err != nil {
			t.Fatalf("%v: matmul: %v", dt, err)
		}
		if d := relDiff(t, rs, m); d > dt.Tolerance() {
			t.Fatalf("%v: R·S relative diff %g\ngot  %v\nwant %v", dt, d, rs, m)
		}
	}
}
