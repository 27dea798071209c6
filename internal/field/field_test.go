package field

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/linalg"
)

func TestNewFieldZeroInitialised(t *testing.T) {
	t.Parallel()
	f, err := New("x", []int{4, 3}, Matrix(2, 2, dtype.F32))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Count() != 12 || f.Dims() != 2 {
		t.Fatalf("count=%d dims=%d", f.Count(), f.Dims())
	}
	m, err := f.At(3, 2)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if linalg.MaxAbs(m) != 0 || m.DType != dtype.F32 || m.R != 2 || m.C != 2 {
		t.Fatalf("unexpected zero element %v", m)
	}
}

func TestSetAndReadBack(t *testing.T) {
	t.Parallel()
	f, err := New("m", nil, Matrix(2, 2, dtype.I32))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, _ := linalg.FromSlice(dtype.I32, 2, 2, []float64{1, 2, 3, 4})
	if err := f.Set(v); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := f.At()
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if !linalg.Equal(got, v) {
		t.Fatalf("got %v want %v", got, v)
	}
	if err := f.SetEntry(1, 0, 9.7); err != nil {
		t.Fatalf("SetEntry: %v", err)
	}
	if e, _ := f.Entry(1, 0); e != 9 {
		t.Fatalf("entry = %v, want truncated 9", e)
	}
}

func TestAddressingErrors(t *testing.T) {
	t.Parallel()
	f, _ := New("v", []int{3}, Vector(3, dtype.F64))

	if _, err := f.At(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := f.At(); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for missing index, got %v", err)
	}
	if err := f.SetEntry(3, 0, 1, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for entry, got %v", err)
	}
	wrongShape := linalg.Zeros(dtype.F64, 2, 1)
	if err := f.Set(wrongShape, 0); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	wrongType := linalg.Zeros(dtype.F32, 3, 1)
	if err := f.Set(wrongType, 0); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for dtype, got %v", err)
	}
	if _, err := f.Value(0); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for scalar read, got %v", err)
	}
}

func TestInvalidDeclarations(t *testing.T) {
	t.Parallel()
	if _, err := New("bad", []int{0}, Scalar(dtype.I32)); !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape, got %v", err)
	}
	if _, err := New("bad", []int{2}, Matrix(5, 5, dtype.F32)); !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape, got %v", err)
	}
}

func TestLinearAndUnravel(t *testing.T) {
	t.Parallel()
	f, _ := New("g", []int{2, 3, 4}, Scalar(dtype.I32))
	idx := make([]int, 3)
	for lin := range f.Count() {
		f.Unravel(lin, idx)
		got, err := f.Linear(idx)
		if err != nil {
			t.Fatalf("Linear(%v): %v", idx, err)
		}
		if got != lin {
			t.Fatalf("round trip %d -> %v -> %d", lin, idx, got)
		}
	}
}

func TestResidencySync(t *testing.T) {
	t.Parallel()
	f, _ := New("r", []int{4}, Scalar(dtype.F32))
	if err := f.SetValue(1.5, 2); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	f.Lock()
	dev, err := f.StorageFor(Device)
	if err != nil {
		f.Unlock()
		t.Fatalf("StorageFor(Device): %v", err)
	}
	buf := []float64{0}
	dev.Load(2, buf)
	if buf[0] != 1.5 {
		f.Unlock()
		t.Fatalf("device copy = %v, want 1.5", buf[0])
	}
	dev.Store(3, []float64{7})
	f.Unlock()

	if f.Resident() != Device {
		t.Fatalf("expected device residency")
	}
	// Host access pulls the device contents back.
	if v, _ := f.Value(3); v != 7 {
		t.Fatalf("host read after device write = %v", v)
	}
	if f.Resident() != Host || f.Transfers() != 2 {
		t.Fatalf("resident=%v transfers=%d", f.Resident(), f.Transfers())
	}
}

func TestConcurrentDisjointWrites(t *testing.T) {
	t.Parallel()
	f, _ := New("c", []int{64}, Scalar(dtype.I32))
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := f.SetValue(float64(i), i); err != nil {
				t.Errorf("SetValue: %v", err)
			}
		}(i)
	}
	wg.Wait()
	for i := range 64 {
		if v, _ := f.Value(i); v != float64(i) {
			t.Fatalf("element %d = %v", i, v)
		}
	}
}

func TestElementKindIsPartOfTheType(t *testing.T) {
	t.Parallel()
	cases := []struct {
		elem  ElemType
		shape []int
		str   string
	}{
		{Scalar(dtype.F32), nil, "f32"},
		{Matrix(1, 1, dtype.F32), []int{1, 1}, "1x1 f32"},
		{Vector(1, dtype.F32), []int{1}, "1x1 f32"},
		{Vector(3, dtype.I32), []int{3}, "3x1 i32"},
		{Matrix(2, 3, dtype.F64), []int{2, 3}, "2x3 f64"},
	}
	for _, tc := range cases {
		if !tc.elem.Valid() {
			t.Fatalf("%v: not valid", tc.elem)
		}
		if got := tc.elem.ElemShape(); !slices.Equal(got, tc.shape) {
			t.Fatalf("%v: ElemShape = %v, want %v", tc.elem, got, tc.shape)
		}
		if got := tc.elem.String(); got != tc.str {
			t.Fatalf("String = %q, want %q", got, tc.str)
		}
	}
	if Matrix(1, 1, dtype.F32) == Scalar(dtype.F32) {
		t.Fatal("1x1 matrix and scalar compare equal")
	}
	bad := []ElemType{
		{DType: dtype.F32, Rows: 2, Cols: 1, Kind: ScalarElem},
		{DType: dtype.F32, Rows: 2, Cols: 2, Kind: VectorElem},
		{DType: dtype.F32, Rows: 1, Cols: 1, Kind: ElemKind(9)},
	}
	for _, e := range bad {
		if e.Valid() {
			t.Fatalf("%+v: expected invalid", e)
		}
	}

	var k ElemKind
	for _, want := range []ElemKind{ScalarElem, VectorElem, MatrixElem} {
		text, _ := want.MarshalText()
		if err := k.UnmarshalText(text); err != nil || k != want {
			t.Fatalf("UnmarshalText(%s) = %v, %v", text, k, err)
		}
	}
	if err := k.UnmarshalText([]byte("tensor")); err == nil {
		t.Fatal("expected unknown kind error")
	}
}
