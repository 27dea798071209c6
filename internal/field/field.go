// Package field manages typed, fixed-shape parallel containers. Each field
// element is a scalar or a small matrix of one dtype; elements are addressed
// by a multi-index and stored densely in row-major order.
package field

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/linalg"
)

// ElemKind records how an element type was declared. It fixes the host
// buffer layout: a 1x1 matrix and a scalar hold the same single value but
// expose different element shapes.
type ElemKind uint8

const (
	MatrixElem ElemKind = iota
	VectorElem
	ScalarElem
)

func (k ElemKind) String() string {
	switch k {
	case ScalarElem:
		return "scalar"
	case VectorElem:
		return "vector"
	default:
		return "matrix"
	}
}

func (k ElemKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ElemKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "matrix":
		*k = MatrixElem
	case "vector":
		*k = VectorElem
	case "scalar":
		*k = ScalarElem
	default:
		return fmt.Errorf("unknown element kind %q", text)
	}
	return nil
}

// ElemType is the declared type of every element of a field.
type ElemType struct {
	DType      dtype.DType
	Rows, Cols int
	Kind       ElemKind
}

// Scalar declares scalar elements.
func Scalar(dt dtype.DType) ElemType {
	return ElemType{DType: dt, Rows: 1, Cols: 1, Kind: ScalarElem}
}

// Vector declares n-component column vector elements.
func Vector(n int, dt dtype.DType) ElemType {
	return ElemType{DType: dt, Rows: n, Cols: 1, Kind: VectorElem}
}

// Matrix declares rows×cols matrix elements.
func Matrix(rows, cols int, dt dtype.DType) ElemType {
	return ElemType{DType: dt, Rows: rows, Cols: cols, Kind: MatrixElem}
}

// IsScalar reports whether an element holds a single value, whatever its
// declared kind.
func (e ElemType) IsScalar() bool { return e.Rows == 1 && e.Cols == 1 }

// Len is the number of scalars in one element.
func (e ElemType) Len() int { return e.Rows * e.Cols }

func (e ElemType) Valid() bool {
	if !e.DType.Valid() || e.Rows < 1 || e.Rows > linalg.MaxDim || e.Cols < 1 || e.Cols > linalg.MaxDim {
		return false
	}
	switch e.Kind {
	case ScalarElem:
		return e.IsScalar()
	case VectorElem:
		return e.Cols == 1
	default:
		return e.Kind == MatrixElem
	}
}

func (e ElemType) String() string {
	if e.Kind == ScalarElem {
		return e.DType.String()
	}
	return fmt.Sprintf("%dx%d %v", e.Rows, e.Cols, e.DType)
}

var serials atomic.Uint64

// Field is a typed parallel container. Its shape is fixed once placed;
// fields are never resized.
type Field struct {
	ID   uuid.UUID
	Name string

	serial  uint64
	elem    ElemType
	shape   []int
	strides []int
	count   int

	mu     sync.Mutex
	placed bool
	host   Storage
	device Storage
	owner  Residency
	syncs  int
}

// Declare creates an unplaced field. It gains a shape and storage when it
// is placed under a layout node.
func Declare(name string, elem ElemType) *Field {
	return &Field{
		ID:     uuid.New(),
		Name:   name,
		serial: serials.Add(1),
		elem:   elem,
	}
}

// New declares a field and places it directly with the given shape. An
// empty shape yields a field with a single element.
func New(name string, shape []int, elem ElemType) (*Field, error) {
	f := Declare(name, elem)
	if err := f.place(shape); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Field) place(shape []int) error {
	if !f.elem.Valid() {
		return fmt.Errorf("field %q element %v: %w", f.Name, f.elem, ErrBadShape)
	}
	count := 1
	for _, n := range shape {
		if n <= 0 {
			return fmt.Errorf("field %q extent %d: %w", f.Name, n, ErrBadShape)
		}
		count *= n
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placed {
		return fmt.Errorf("field %q: %w", f.Name, ErrAlreadyPlaced)
	}
	host, err := newStorage(f.elem.DType, count*f.elem.Len())
	if err != nil {
		return err
	}
	f.shape = slices.Clone(shape)
	f.strides = make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		f.strides[i] = stride
		stride *= shape[i]
	}
	f.count = count
	f.host = host
	f.owner = Host
	f.placed = true
	return nil
}

// ElemShape is the shape of one element as seen by host buffers: empty
// for scalars, [n] for vectors and [rows, cols] for every matrix,
// including 1x1.
func (e ElemType) ElemShape() []int {
	switch e.Kind {
	case ScalarElem:
		return nil
	case VectorElem:
		return []int{e.Rows}
	default:
		return []int{e.Rows, e.Cols}
	}
}

// Elem returns the declared element type.
func (f *Field) Elem() ElemType { return f.elem }

// Shape returns a copy of the field extents.
func (f *Field) Shape() []int { return slices.Clone(f.shape) }

// Dims is the number of index axes.
func (f *Field) Dims() int { return len(f.shape) }

// Count is the number of elements.
func (f *Field) Count() int { return f.count }

// Placed reports whether the field has storage.
func (f *Field) Placed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placed
}

// Serial orders fields by creation; launches lock fields in serial order.
func (f *Field) Serial() uint64 { return f.serial }

func (f *Field) String() string {
	return fmt.Sprintf("%s%v:%v", f.Name, f.shape, f.elem)
}

// Linear maps a multi-index to an element number.
func (f *Field) Linear(idx []int) (int, error) {
	if len(idx) != len(f.shape) {
		return 0, fmt.Errorf("field %q: %d indices for %d axes: %w", f.Name, len(idx), len(f.shape), ErrIndexOutOfRange)
	}
	lin := 0
	for k, i := range idx {
		if i < 0 || i >= f.shape[k] {
			return 0, fmt.Errorf("field %q: index %v outside %v: %w", f.Name, idx, f.shape, ErrIndexOutOfRange)
		}
		lin += i * f.strides[k]
	}
	return lin, nil
}

// Unravel writes the multi-index of element lin into idx.
func (f *Field) Unravel(lin int, idx []int) {
	for k, s := range f.strides {
		idx[k] = lin / s
		lin %= s
	}
}

// Offset is the scalar offset of the element at idx.
func (f *Field) Offset(idx []int) (int, error) {
	lin, err := f.Linear(idx)
	if err != nil {
		return 0, err
	}
	return lin * f.elem.Len(), nil
}

// Lock and Unlock guard the field's storage. Launches hold the lock for
// their whole duration so host accesses never observe a partial launch.
func (f *Field) Lock()   { f.mu.Lock() }
func (f *Field) Unlock() { f.mu.Unlock() }

// StorageFor makes res the authoritative copy of the field data, copying
// from the other residency if it holds newer contents, and returns it.
// The caller must hold the field lock.
func (f *Field) StorageFor(res Residency) (Storage, error) {
	if !f.placed {
		return nil, fmt.Errorf("field %q: %w", f.Name, ErrNotPlaced)
	}
	if res == f.owner {
		if res == Device {
			return f.device, nil
		}
		return f.host, nil
	}
	switch res {
	case Device:
		if f.device == nil {
			dev, err := newStorage(f.elem.DType, f.host.Len())
			if err != nil {
				return nil, err
			}
			f.device = dev
		}
		copyStorage(f.device, f.host)
	default:
		copyStorage(f.host, f.device)
	}
	f.owner = res
	f.syncs++
	return f.storage(), nil
}

func (f *Field) storage() Storage {
	if f.owner == Device {
		return f.device
	}
	return f.host
}

// Resident reports which copy currently holds the authoritative data.
func (f *Field) Resident() Residency {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

// Transfers counts residency copies performed so far.
func (f *Field) Transfers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

// WithHost runs fn on the host copy under the field lock, after any
// device-resident data has been copied back.
func (f *Field) WithHost(fn func(st Storage) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.StorageFor(Host)
	if err != nil {
		return err
	}
	return fn(st)
}

// At reads the element at idx. Never-written elements read as zero.
func (f *Field) At(idx ...int) (linalg.Mat, error) {
	var out linalg.Mat
	err := f.WithHost(func(st Storage) error {
		off, err := f.Offset(idx)
		if err != nil {
			return err
		}
		var buf [linalg.MaxDim * linalg.MaxDim]float64
		n := f.elem.Len()
		st.Load(off, buf[:n])
		out, err = linalg.FromSlice(f.elem.DType, f.elem.Rows, f.elem.Cols, buf[:n])
		return err
	})
	return out, err
}

// Set writes v at idx. v must have exactly the declared element shape and
// dtype.
func (f *Field) Set(v linalg.Mat, idx ...int) error {
	if err := f.Check(v); err != nil {
		return err
	}
	return f.WithHost(func(st Storage) error {
		off, err := f.Offset(idx)
		if err != nil {
			return err
		}
		var buf [linalg.MaxDim * linalg.MaxDim]float64
		n := f.elem.Len()
		v.CopyTo(buf[:n])
		st.Store(off, buf[:n])
		return nil
	})
}

// Check reports whether v matches the declared element type.
func (f *Field) Check(v linalg.Mat) error {
	if v.R != f.elem.Rows || v.C != f.elem.Cols || v.DType != f.elem.DType {
		return fmt.Errorf("field %q holds %v, got %dx%d %v: %w", f.Name, f.elem, v.R, v.C, v.DType, ErrShapeMismatch)
	}
	return nil
}

// Entry reads entry (r, c) of the element at idx.
func (f *Field) Entry(r, c int, idx ...int) (float64, error) {
	m, err := f.At(idx...)
	if err != nil {
		return 0, err
	}
	return m.At(r, c)
}

// SetEntry writes entry (r, c) of the element at idx, rounding v to the
// field dtype.
func (f *Field) SetEntry(r, c int, v float64, idx ...int) error {
	if r < 0 || r >= f.elem.Rows || c < 0 || c >= f.elem.Cols {
		return fmt.Errorf("field %q entry (%d,%d) of %v: %w", f.Name, r, c, f.elem, ErrIndexOutOfRange)
	}
	return f.WithHost(func(st Storage) error {
		off, err := f.Offset(idx)
		if err != nil {
			return err
		}
		st.Store(off+r*f.elem.Cols+c, []float64{f.elem.DType.Round(v)})
		return nil
	})
}

// Value reads a scalar field element.
func (f *Field) Value(idx ...int) (float64, error) {
	if !f.elem.IsScalar() {
		return 0, fmt.Errorf("field %q holds %v, not a scalar: %w", f.Name, f.elem, ErrShapeMismatch)
	}
	return f.Entry(0, 0, idx...)
}

// SetValue writes a scalar field element.
func (f *Field) SetValue(v float64, idx ...int) error {
	if !f.elem.IsScalar() {
		return fmt.Errorf("field %q holds %v, not a scalar: %w", f.Name, f.elem, ErrShapeMismatch)
	}
	return f.SetEntry(0, 0, v, idx...)
}
