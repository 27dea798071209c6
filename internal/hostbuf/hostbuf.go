// Package hostbuf moves field contents between fields and flat host
// buffers. Buffers are row-major over the field shape followed by the
// element shape; no dtype or shape coercion is ever applied.
package hostbuf

import (
	"fmt"
	"slices"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
)

// Buffer is a flat host array. Data is []int32, []float32 or []float64
// according to DType.
type Buffer struct {
	DType dtype.DType
	Shape []int
	Data  any
}

type scalar interface {
	int32 | float32 | float64
}

// Of wraps data as a buffer with the given shape.
func Of[T scalar](shape []int, data []T) (Buffer, error) {
	b := Buffer{DType: dtypeOf(data), Shape: slices.Clone(shape), Data: data}
	if n := b.Len(); n != len(data) {
		return Buffer{}, fmt.Errorf("buffer shape %v holds %d values, got %d: %w", shape, n, len(data), field.ErrShapeMismatch)
	}
	return b, nil
}

// New allocates a zeroed buffer.
func New(dt dtype.DType, shape ...int) (Buffer, error) {
	n := count(shape)
	var data any
	switch dt {
	case dtype.I32:
		data = make([]int32, n)
	case dtype.F32:
		data = make([]float32, n)
	case dtype.F64:
		data = make([]float64, n)
	default:
		return Buffer{}, fmt.Errorf("buffer dtype %v: %w", dt, field.ErrShapeMismatch)
	}
	return Buffer{DType: dt, Shape: slices.Clone(shape), Data: data}, nil
}

func count(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= max(d, 0)
	}
	return n
}

// ShapeOf is the buffer shape matching f.
func ShapeOf(f *field.Field) []int {
	return append(f.Shape(), f.Elem().ElemShape()...)
}

// Len is the number of scalars the shape describes.
func (b Buffer) Len() int { return count(b.Shape) }

// Float64s returns a float64 copy of the data.
func (b Buffer) Float64s() []float64 {
	switch d := b.Data.(type) {
	case []int32:
		return widen(d)
	case []float32:
		return widen(d)
	case []float64:
		return slices.Clone(d)
	default:
		return nil
	}
}

func widen[T scalar](src []T) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

// FromHost overwrites every element of f with buf. The buffer's dtype and
// shape must equal the field's exactly.
func FromHost(f *field.Field, buf Buffer) error {
	if err := check(f, buf); err != nil {
		return err
	}
	return f.WithHost(func(st field.Storage) error {
		switch dst := st.Raw().(type) {
		case []int32:
			copy(dst, buf.Data.([]int32))
		case []float32:
			copy(dst, buf.Data.([]float32))
		case []float64:
			copy(dst, buf.Data.([]float64))
		}
		return nil
	})
}

// ToHost snapshots f into a new buffer. The snapshot never observes a
// launch in progress.
func ToHost(f *field.Field) (Buffer, error) {
	if !f.Placed() {
		return Buffer{}, fmt.Errorf("field %q: %w", f.Name, field.ErrNotPlaced)
	}
	var out Buffer
	err := f.WithHost(func(st field.Storage) error {
		var data any
		switch src := st.Raw().(type) {
		case []int32:
			data = slices.Clone(src)
		case []float32:
			data = slices.Clone(src)
		case []float64:
			data = slices.Clone(src)
		}
		out = Buffer{DType: st.DType(), Shape: ShapeOf(f), Data: data}
		return nil
	})
	return out, err
}

func check(f *field.Field, buf Buffer) error {
	if !f.Placed() {
		return fmt.Errorf("field %q: %w", f.Name, field.ErrNotPlaced)
	}
	if buf.DType != f.Elem().DType {
		return fmt.Errorf("field %q holds %v, buffer is %v: %w", f.Name, f.Elem().DType, buf.DType, field.ErrShapeMismatch)
	}
	want := ShapeOf(f)
	if !slices.Equal(buf.Shape, want) {
		return fmt.Errorf("field %q wants buffer shape %v, got %v: %w", f.Name, want, buf.Shape, field.ErrShapeMismatch)
	}
	var n int
	switch d := buf.Data.(type) {
	case []int32:
		n = len(d)
	case []float32:
		n = len(d)
	case []float64:
		n = len(d)
	default:
		return fmt.Errorf("buffer data %T: %w", buf.Data, field.ErrShapeMismatch)
	}
	if n != count(want) {
		return fmt.Errorf("field %q wants %d values, buffer has %d: %w", f.Name, count(want), n, field.ErrShapeMismatch)
	}
	if dtypeOf(buf.Data) != buf.DType {
		return fmt.Errorf("buffer data %T is not %v: %w", buf.Data, buf.DType, field.ErrShapeMismatch)
	}
	return nil
}

func dtypeOf(data any) dtype.DType {
	switch data.(type) {
	case []int32:
		return dtype.I32
	case []float32:
		return dtype.F32
	case []float64:
		return dtype.F64
	default:
		return dtype.Invalid
	}
}
