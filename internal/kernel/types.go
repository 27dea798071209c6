package kernel

import (
	"fmt"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/linalg"
)

// Type is the static type of an expression. Untyped values come from
// literal constants; like Go's untyped constants they take the dtype of the
// other operand or destination. An untyped value has DType I32 when it is
// integral and F64 when it is floating point.
type Type struct {
	Rows, Cols int
	DType      dtype.DType
	Untyped    bool
}

func (t Type) IsScalar() bool { return t.Rows == 1 && t.Cols == 1 }

func (t Type) String() string {
	dt := t.DType.String()
	if t.Untyped {
		if t.DType == dtype.I32 {
			dt = "untyped int"
		} else {
			dt = "untyped float"
		}
	}
	if t.IsScalar() {
		return dt
	}
	return fmt.Sprintf("%dx%d %s", t.Rows, t.Cols, dt)
}

func elemType(e field.ElemType) Type {
	return Type{Rows: e.Rows, Cols: e.Cols, DType: e.DType}
}

// unify picks the dtype of a binary operation.
func unify(op string, a, b Type) (dtype.DType, bool, error) {
	switch {
	case a.Untyped && b.Untyped:
		if a.DType.IsFloat() || b.DType.IsFloat() {
			return dtype.F64, true, nil
		}
		return dtype.I32, true, nil
	case a.Untyped:
		dt, err := adopt(op, a, b.DType)
		return dt, false, err
	case b.Untyped:
		dt, err := adopt(op, b, a.DType)
		return dt, false, err
	case a.DType != b.DType:
		return dtype.Invalid, false, errorf(op, "%v and %v: %w", a, b, ErrDTypeMismatch)
	default:
		return a.DType, false, nil
	}
}

// adopt gives an untyped value the concrete dtype dt. Floating constants
// cannot become integers.
func adopt(op string, t Type, dt dtype.DType) (dtype.DType, error) {
	if t.Untyped && t.DType.IsFloat() && !dt.IsFloat() {
		return dtype.Invalid, errorf(op, "%v used as %v: %w", t, dt, ErrDTypeMismatch)
	}
	return dt, nil
}

// concrete resolves an untyped type to its default dtype.
func concrete(t Type, def dtype.DType) Type {
	if !t.Untyped {
		return t
	}
	if t.DType.IsFloat() {
		t.DType = def
	}
	t.Untyped = false
	return t
}

// broadcast returns the result shape of an elementwise operation.
func broadcast(op string, a, b Type) (int, int, error) {
	switch {
	case a.Rows == b.Rows && a.Cols == b.Cols:
		return a.Rows, a.Cols, nil
	case a.IsScalar():
		return b.Rows, b.Cols, nil
	case b.IsScalar():
		return a.Rows, a.Cols, nil
	default:
		return 0, 0, errorf(op, "%v and %v: %w", a, b, linalg.ErrShapeMismatch)
	}
}
