package kernel

import (
	"fmt"
	"slices"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/linalg"
)

// Source determines a kernel's iteration domain. FieldSource and
// RangeSource are runtime domains whose indices are opaque until dispatch;
// StaticRange is unrolled at compile time.
type Source interface {
	domain() (Domain, error)
}

// FieldSource iterates over every element index of a field.
type FieldSource struct{ Field *field.Field }

// RangeSource iterates over [Begin, End) in parallel.
type RangeSource struct{ Begin, End int }

// StaticRange unrolls [Begin, End) into one code path per value. The body
// sees each value as a compile-time constant.
type StaticRange struct{ Begin, End int }

func OverField(f *field.Field) FieldSource { return FieldSource{Field: f} }

func OverRange(begin, end int) RangeSource { return RangeSource{Begin: begin, End: end} }

func Static(begin, end int) StaticRange { return StaticRange{Begin: begin, End: end} }

// DomainKind tells backends how to schedule a kernel.
type DomainKind uint8

const (
	FieldDomain DomainKind = iota
	RangeDomain
	StaticDomain
)

func (k DomainKind) String() string {
	switch k {
	case FieldDomain:
		return "field"
	case RangeDomain:
		return "range"
	default:
		return "static"
	}
}

// Domain is a kernel's iteration space, fixed at compile time. Size counts
// work items: domain indices for runtime domains and unrolled paths for
// static ones.
type Domain struct {
	Kind    DomainKind
	Size    int
	shape   []int
	strides []int
	begin   int
}

// Shape returns the index extents of a runtime domain.
func (d Domain) Shape() []int { return slices.Clone(d.shape) }

func (d Domain) dims() int {
	if d.Kind == StaticDomain {
		return 0
	}
	return len(d.shape)
}

// index writes the multi-index of work item n into idx.
func (d Domain) index(n int, idx []int) {
	switch d.Kind {
	case RangeDomain:
		idx[0] = d.begin + n
	case FieldDomain:
		for k, s := range d.strides {
			idx[k] = n / s
			n %= s
		}
	}
}

func (s FieldSource) domain() (Domain, error) {
	if s.Field == nil || !s.Field.Placed() {
		return Domain{}, errorf("iterate field", "%w", field.ErrNotPlaced)
	}
	shape := s.Field.Shape()
	if len(shape) == 0 {
		// A single-element field iterates once over an empty index.
		return Domain{Kind: FieldDomain, Size: 1}, nil
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return Domain{Kind: FieldDomain, Size: stride, shape: shape, strides: strides}, nil
}

func (s RangeSource) domain() (Domain, error) {
	if s.End < s.Begin {
		return Domain{}, errorf("iterate range", "[%d, %d): %w", s.Begin, s.End, linalg.ErrBadShape)
	}
	return Domain{Kind: RangeDomain, Size: s.End - s.Begin, shape: []int{s.End - s.Begin}, begin: s.Begin}, nil
}

func (s StaticRange) domain() (Domain, error) {
	if s.End < s.Begin {
		return Domain{}, errorf("static range", "[%d, %d): %w", s.Begin, s.End, linalg.ErrBadShape)
	}
	return Domain{Kind: StaticDomain, Size: s.End - s.Begin, begin: s.Begin}, nil
}

// Index is the domain index seen by a kernel body. For runtime sources it
// is read from the frame during execution; for a StaticRange it is the
// constant of the path being built.
type Index struct {
	dims   int
	static bool
	value  int
}

// Dims is the number of index axes.
func (i Index) Dims() int { return i.dims }

// Static returns the compile-time value of a static index.
func (i Index) Static() (int, bool) { return i.value, i.static }

// Axis returns component k of the index as a scalar i32 expression.
func (i Index) Axis(k int) Expr { return axisExpr{ix: i, axis: k} }

// axes expands the index for field addressing.
func (i Index) axes() []Expr {
	out := make([]Expr, i.dims)
	for k := range i.dims {
		out[k] = i.Axis(k)
	}
	return out
}

func (i Index) lower(c *checker) (value, error) {
	if i.dims != 1 {
		return value{}, errorf("index", "%d-axis index used as a scalar: %w", i.dims, linalg.ErrShapeMismatch)
	}
	return i.Axis(0).lower(c)
}

type axisExpr struct {
	ix   Index
	axis int
}

func (a axisExpr) lower(c *checker) (value, error) {
	if a.axis < 0 || a.axis >= a.ix.dims {
		return value{}, errorf("index axis", "axis %d of %d: %w", a.axis, a.ix.dims, linalg.ErrIndexOutOfRange)
	}
	if a.ix.static {
		return constant(linalg.Scalar(dtype.I32, float64(a.ix.value)), true), nil
	}
	axis := a.axis
	return value{
		typ: Type{Rows: 1, Cols: 1, DType: dtype.I32},
		eval: func(fr *Frame) (linalg.Mat, error) {
			return linalg.Scalar(dtype.I32, float64(fr.idx[axis])), nil
		},
	}, nil
}

func (s FieldSource) String() string { return fmt.Sprintf("field %s", s.Field) }
func (s RangeSource) String() string { return fmt.Sprintf("range [%d, %d)", s.Begin, s.End) }
func (s StaticRange) String() string { return fmt.Sprintf("static [%d, %d)", s.Begin, s.End) }
