package kernel

import (
	"fmt"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/linalg"
)

// Expr is a per-element expression. Expressions are built with the
// constructors in this package and only type-checked when the kernel is
// compiled.
type Expr interface {
	lower(c *checker) (value, error)
}

type evalFn func(fr *Frame) (linalg.Mat, error)

// value is a lowered expression: its static type, its evaluator and, for
// compile-time constants, the constant itself.
type value struct {
	typ   Type
	eval  evalFn
	konst *linalg.Mat
}

func constant(m linalg.Mat, untyped bool) value {
	t := Type{Rows: m.R, Cols: m.C, DType: m.DType, Untyped: untyped}
	return value{
		typ:   t,
		eval:  func(*Frame) (linalg.Mat, error) { return m, nil },
		konst: &m,
	}
}

// as converts v to dtype dt. Constants are converted once, here.
func (v value) as(dt dtype.DType) value {
	if v.typ.DType == dt && !v.typ.Untyped {
		return v
	}
	t := v.typ
	t.DType, t.Untyped = dt, false
	if v.konst != nil {
		out := constant(v.konst.Cast(dt), false)
		return out
	}
	eval := v.eval
	return value{typ: t, eval: func(fr *Frame) (linalg.Mat, error) {
		m, err := eval(fr)
		if err != nil {
			return linalg.Mat{}, err
		}
		return m.Cast(dt), nil
	}}
}

// into coerces v to the destination type dst: shapes must match exactly and
// only untyped values change dtype.
func (v value) into(op string, dst Type) (value, error) {
	if v.typ.Rows != dst.Rows || v.typ.Cols != dst.Cols {
		return value{}, errorf(op, "%v into %v: %w", v.typ, dst, linalg.ErrShapeMismatch)
	}
	if v.typ.Untyped {
		dt, err := adopt(op, v.typ, dst.DType)
		if err != nil {
			return value{}, err
		}
		return v.as(dt), nil
	}
	if v.typ.DType != dst.DType {
		return value{}, errorf(op, "%v into %v: %w", v.typ, dst, ErrDTypeMismatch)
	}
	return v, nil
}

// staticInt returns the compile-time integer held by v.
func (v value) staticInt(op string) (int, error) {
	if v.konst == nil || !v.typ.IsScalar() || v.typ.DType.IsFloat() {
		return 0, errorf(op, "%v: %w", v.typ, ErrNotStatic)
	}
	return int(v.konst.Value()), nil
}

// Int is an untyped integer constant.
func Int(v int) Expr { return constExpr{m: linalg.Scalar(dtype.I32, float64(v))} }

// Float is an untyped floating-point constant.
func Float(v float64) Expr { return constExpr{m: linalg.Scalar(dtype.F64, v)} }

// Literal is an untyped floating-point matrix constant given by rows.
func Literal(rows ...[]float64) Expr {
	m, err := linalg.FromRows(dtype.F64, rows...)
	if err != nil {
		return badExpr{op: "literal", err: err}
	}
	return constExpr{m: m}
}

// LiteralInt is an untyped integer matrix constant given by rows.
func LiteralInt(rows ...[]int) Expr {
	fr := make([][]float64, len(rows))
	for i, row := range rows {
		fr[i] = make([]float64, len(row))
		for j, v := range row {
			fr[i][j] = float64(v)
		}
	}
	m, err := linalg.FromRows(dtype.I32, fr...)
	if err != nil {
		return badExpr{op: "literal", err: err}
	}
	return constExpr{m: m}
}

// Const wraps a concrete matrix value as a typed constant.
func Const(m linalg.Mat) Expr { return typedConst{m: m} }

type constExpr struct{ m linalg.Mat }

func (e constExpr) lower(*checker) (value, error) { return constant(e.m, true), nil }

type typedConst struct{ m linalg.Mat }

func (e typedConst) lower(*checker) (value, error) {
	if _, err := linalg.New(e.m.DType, e.m.R, e.m.C); err != nil {
		return value{}, errorf("constant", "%w", err)
	}
	return constant(e.m, false), nil
}

type badExpr struct {
	op  string
	err error
}

func (e badExpr) lower(*checker) (value, error) { return value{}, errorf(e.op, "%w", e.err) }

// Ref addresses one element of a field inside a kernel body. As an Expr
// it loads the element.
type Ref struct {
	f   *field.Field
	idx []Expr
}

// At addresses the element of f at idx. An Index whose axis count matches
// the field may be passed alone.
func At(f *field.Field, idx ...Expr) Ref {
	if len(idx) == 1 {
		if ix, ok := idx[0].(Index); ok && f != nil && ix.dims == f.Dims() && ix.dims != 1 {
			idx = ix.axes()
		}
	}
	return Ref{f: f, idx: idx}
}

func (r Ref) lower(c *checker) (value, error) {
	addr, err := c.address("load", r)
	if err != nil {
		return value{}, err
	}
	return value{typ: elemType(addr.elem), eval: addr.load}, nil
}

type entryExpr struct {
	x    Expr
	r, c int
}

// Entry reads entry (r, c) of a matrix expression. r and c are static.
func Entry(x Expr, r, c int) Expr { return entryExpr{x: x, r: r, c: c} }

// Component reads component i of a vector expression.
func Component(x Expr, i int) Expr { return entryExpr{x: x, r: i, c: 0} }

func (e entryExpr) lower(c *checker) (value, error) {
	v, err := e.x.lower(c)
	if err != nil {
		return value{}, err
	}
	if e.r < 0 || e.r >= v.typ.Rows || e.c < 0 || e.c >= v.typ.Cols {
		return value{}, errorf("entry", "(%d,%d) of %v: %w", e.r, e.c, v.typ, linalg.ErrIndexOutOfRange)
	}
	t := v.typ
	t.Rows, t.Cols = 1, 1
	r, col := e.r, e.c
	if v.konst != nil {
		x, _ := v.konst.At(r, col)
		return constant(linalg.Scalar(v.konst.DType, x), t.Untyped), nil
	}
	eval := v.eval
	return value{typ: t, eval: func(fr *Frame) (linalg.Mat, error) {
		m, err := eval(fr)
		if err != nil {
			return linalg.Mat{}, err
		}
		x, err := m.At(r, col)
		if err != nil {
			return linalg.Mat{}, err
		}
		return linalg.Scalar(m.DType, x), nil
	}}, nil
}

type binOp uint8

const (
	opAdd binOp = iota
	opSub
	opMul
	opMatMul
)

var binOpNames = [...]string{opAdd: "add", opSub: "sub", opMul: "mul", opMatMul: "matmul"}

func (op binOp) String() string { return binOpNames[op] }

type binExpr struct {
	op   binOp
	a, b Expr
}

// Add is elementwise a + b; scalars broadcast against matrices.
func Add(a, b Expr) Expr { return binExpr{op: opAdd, a: a, b: b} }

// Sub is elementwise a - b; scalars broadcast against matrices.
func Sub(a, b Expr) Expr { return binExpr{op: opSub, a: a, b: b} }

// Mul is the elementwise product; scalars broadcast against matrices.
func Mul(a, b Expr) Expr { return binExpr{op: opMul, a: a, b: b} }

// MatMul is the matrix product a·b.
func MatMul(a, b Expr) Expr { return binExpr{op: opMatMul, a: a, b: b} }

func (e binExpr) lower(c *checker) (value, error) {
	a, err := e.a.lower(c)
	if err != nil {
		return value{}, err
	}
	b, err := e.b.lower(c)
	if err != nil {
		return value{}, err
	}
	return binary(e.op, a, b)
}

func binary(op binOp, a, b value) (value, error) {
	name := op.String()
	dt, untyped, err := unify(name, a.typ, b.typ)
	if err != nil {
		return value{}, err
	}
	var rows, cols int
	if op == opMatMul {
		if a.typ.Cols != b.typ.Rows {
			return value{}, errorf(name, "%v by %v: %w", a.typ, b.typ, linalg.ErrShapeMismatch)
		}
		rows, cols = a.typ.Rows, b.typ.Cols
	} else {
		rows, cols, err = broadcast(name, a.typ, b.typ)
		if err != nil {
			return value{}, err
		}
	}
	if !untyped {
		a, b = a.as(dt), b.as(dt)
	}

	var fn func(x, y linalg.Mat) (linalg.Mat, error)
	switch op {
	case opAdd:
		fn = linalg.Add
	case opSub:
		fn = linalg.Sub
	case opMul:
		fn = linalg.Mul
	default:
		fn = linalg.MatMul
	}
	ea, eb := a.eval, b.eval
	return value{
		typ: Type{Rows: rows, Cols: cols, DType: dt, Untyped: untyped},
		eval: func(fr *Frame) (linalg.Mat, error) {
			x, err := ea(fr)
			if err != nil {
				return linalg.Mat{}, err
			}
			y, err := eb(fr)
			if err != nil {
				return linalg.Mat{}, err
			}
			return fn(x, y)
		},
	}, nil
}

type unaryOp uint8

const (
	opTranspose unaryOp = iota
	opInverse
	opNeg
	opAny
	opAll
)

type unaryExpr struct {
	op unaryOp
	x  Expr
}

// Transpose swaps rows and columns.
func Transpose(x Expr) Expr { return unaryExpr{op: opTranspose, x: x} }

// Inverse inverts a square float matrix of size 1 to 4.
func Inverse(x Expr) Expr { return unaryExpr{op: opInverse, x: x} }

// Neg negates every entry.
func Neg(x Expr) Expr { return unaryExpr{op: opNeg, x: x} }

// Any is the i32 scalar 1 when some entry of x is nonzero, else 0.
func Any(x Expr) Expr { return unaryExpr{op: opAny, x: x} }

// All is the i32 scalar 1 when every entry of x is nonzero, else 0.
func All(x Expr) Expr { return unaryExpr{op: opAll, x: x} }

func (e unaryExpr) lower(c *checker) (value, error) {
	v, err := e.x.lower(c)
	if err != nil {
		return value{}, err
	}
	eval := v.eval
	apply := func(t Type, fn func(m linalg.Mat) (linalg.Mat, error)) value {
		return value{typ: t, eval: func(fr *Frame) (linalg.Mat, error) {
			m, err := eval(fr)
			if err != nil {
				return linalg.Mat{}, err
			}
			return fn(m)
		}}
	}

	switch e.op {
	case opTranspose:
		t := v.typ
		t.Rows, t.Cols = t.Cols, t.Rows
		return apply(t, func(m linalg.Mat) (linalg.Mat, error) { return linalg.Transpose(m), nil }), nil
	case opNeg:
		return apply(v.typ, func(m linalg.Mat) (linalg.Mat, error) { return linalg.Neg(m), nil }), nil
	case opAny, opAll:
		reduce := linalg.Any
		if e.op == opAll {
			reduce = linalg.All
		}
		t := Type{Rows: 1, Cols: 1, DType: dtype.I32}
		return apply(t, func(m linalg.Mat) (linalg.Mat, error) {
			return linalg.Scalar(dtype.I32, float64(reduce(m))), nil
		}), nil
	default:
		v, err = c.floatSquare("inverse", v)
		if err != nil {
			return value{}, err
		}
		eval = v.eval
		return apply(v.typ, linalg.Inverse), nil
	}
}

type castExpr struct {
	x  Expr
	dt dtype.DType
}

// Cast converts x to dt. Converting floats to i32 truncates toward zero.
func Cast(x Expr, dt dtype.DType) Expr { return castExpr{x: x, dt: dt} }

func (e castExpr) lower(c *checker) (value, error) {
	v, err := e.x.lower(c)
	if err != nil {
		return value{}, err
	}
	if !e.dt.Valid() {
		return value{}, errorf("cast", "%v: %w", e.dt, linalg.ErrDType)
	}
	return v.as(e.dt), nil
}

type unitExpr struct {
	dim  int
	axis Expr
}

// Unit is the dim-component untyped integer vector with 1 at axis. The
// axis must be static: a constant or the index of a StaticRange.
func Unit(dim int, axis Expr) Expr { return unitExpr{dim: dim, axis: axis} }

func (e unitExpr) lower(c *checker) (value, error) {
	a, err := e.axis.lower(c)
	if err != nil {
		return value{}, err
	}
	axis, err := a.staticInt("unit")
	if err != nil {
		return value{}, err
	}
	m, err := linalg.Unit(dtype.I32, e.dim, axis)
	if err != nil {
		return value{}, errorf("unit", "%w", err)
	}
	return constant(m, true), nil
}

type stackExpr struct {
	cols  bool
	parts []Expr
}

// Vector builds a column vector from scalar expressions.
func Vector(parts ...Expr) Expr { return stackExpr{parts: parts} }

// Rows builds a matrix whose i-th row is the i-th vector expression.
func Rows(vs ...Expr) Expr { return stackExpr{parts: vs} }

// Cols builds a matrix whose j-th column is the j-th vector expression.
func Cols(vs ...Expr) Expr { return stackExpr{cols: true, parts: vs} }

func (e stackExpr) lower(c *checker) (value, error) {
	if len(e.parts) == 0 || len(e.parts) > linalg.MaxDim {
		return value{}, errorf("construct", "%d parts: %w", len(e.parts), linalg.ErrBadShape)
	}
	vals := make([]value, len(e.parts))
	for i, p := range e.parts {
		v, err := p.lower(c)
		if err != nil {
			return value{}, err
		}
		if v.typ.Cols != 1 {
			return value{}, errorf("construct", "part %d is %v, want a vector or scalar: %w", i, v.typ, linalg.ErrShapeMismatch)
		}
		if i > 0 && v.typ.Rows != vals[0].typ.Rows {
			return value{}, errorf("construct", "part %d is %v, want %d components: %w", i, v.typ, vals[0].typ.Rows, linalg.ErrShapeMismatch)
		}
		vals[i] = v
	}

	t := vals[0].typ
	for _, v := range vals[1:] {
		dt, untyped, err := unify("construct", t, v.typ)
		if err != nil {
			return value{}, err
		}
		t.DType, t.Untyped = dt, untyped
	}
	if !t.Untyped {
		for i := range vals {
			vals[i] = vals[i].as(t.DType)
		}
	}
	n := vals[0].typ.Rows
	if e.cols {
		t.Rows, t.Cols = n, len(vals)
	} else {
		t.Rows, t.Cols = len(vals), n
	}
	if t.Rows > linalg.MaxDim || t.Cols > linalg.MaxDim {
		return value{}, errorf("construct", "%dx%d: %w", t.Rows, t.Cols, linalg.ErrBadShape)
	}

	evals := make([]evalFn, len(vals))
	for i, v := range vals {
		evals[i] = v.eval
	}
	stack := linalg.StackRows
	if e.cols {
		stack = linalg.StackCols
	}
	return value{typ: t, eval: func(fr *Frame) (linalg.Mat, error) {
		var parts [linalg.MaxDim]linalg.Mat
		for i, ev := range evals {
			m, err := ev(fr)
			if err != nil {
				return linalg.Mat{}, err
			}
			parts[i] = m
		}
		return stack(parts[:len(evals)]...)
	}}, nil
}

// Var is a local variable declared with Body.Let. As an Expr it reads the
// current value of the local.
type Var struct{ l *local }

type local struct {
	name     string
	body     *Body
	typ      Type
	slot     int
	declared bool
}

func (v Var) lower(c *checker) (value, error) {
	if err := c.owns("read "+v.name(), v); err != nil {
		return value{}, err
	}
	slot := v.l.slot
	return value{typ: v.l.typ, eval: func(fr *Frame) (linalg.Mat, error) {
		return fr.locals[slot], nil
	}}, nil
}

func (v Var) name() string {
	if v.l == nil {
		return "<nil>"
	}
	return fmt.Sprintf("local %q", v.l.name)
}
