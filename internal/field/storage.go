package field

import (
	"fmt"

	"github.com/timguo/taichi/internal/dtype"
)

// Residency names the copy of a field's data an architecture works on.
// The sequential backend uses the host copy; the parallel backend works on
// a device mirror that is synchronised on demand.
type Residency uint8

const (
	Host Residency = iota
	Device
)

func (r Residency) String() string {
	if r == Device {
		return "device"
	}
	return "host"
}

// Storage is flat, typed backing memory for one residency of a field.
// Offsets and lengths are counted in scalars, not bytes.
type Storage interface {
	DType() dtype.DType
	Len() int
	// Load converts len(dst) scalars starting at off to float64.
	Load(off int, dst []float64)
	// Store writes src starting at off, rounding to the storage dtype.
	Store(off int, src []float64)
	// Raw returns the backing slice ([]int32, []float32 or []float64).
	Raw() any
}

type scalar interface {
	~int32 | ~float32 | ~float64
}

type slab[T scalar] struct {
	dt   dtype.DType
	data []T
}

func (s *slab[T]) DType() dtype.DType { return s.dt }
func (s *slab[T]) Len() int           { return len(s.data) }
func (s *slab[T]) Raw() any           { return s.data }

func (s *slab[T]) Load(off int, dst []float64) {
	src := s.data[off : off+len(dst)]
	for i, v := range src {
		dst[i] = float64(v)
	}
}

func (s *slab[T]) Store(off int, src []float64) {
	dst := s.data[off : off+len(src)]
	for i, v := range src {
		dst[i] = T(v)
	}
}

func newStorage(dt dtype.DType, n int) (Storage, error) {
	switch dt {
	case dtype.I32:
		return &slab[int32]{dt: dt, data: make([]int32, n)}, nil
	case dtype.F32:
		return &slab[float32]{dt: dt, data: make([]float32, n)}, nil
	case dtype.F64:
		return &slab[float64]{dt: dt, data: make([]float64, n)}, nil
	default:
		return nil, fmt.Errorf("storage for %v: %w", dt, ErrBadShape)
	}
}

// copyStorage copies src into dst; both come from the same field so dtype
// and length always agree.
func copyStorage(dst, src Storage) {
	switch d := dst.(type) {
	case *slab[int32]:
		copy(d.data, src.(*slab[int32]).data)
	case *slab[float32]:
		copy(d.data, src.(*slab[float32]).data)
	case *slab[float64]:
		copy(d.data, src.(*slab[float64]).data)
	}
}
