package kernel

import "github.com/timguo/taichi/internal/linalg"

// Target is the left-hand side of an assignment: a field element (Ref) or
// a local (Var).
type Target interface {
	Expr
	target()
}

func (Ref) target() {}
func (Var) target() {}

// Body collects the statements of one kernel code path. Statements run in
// order for every domain index.
type Body struct {
	stmts  []stmt
	locals []*local
}

type execFn func(fr *Frame) error

type stmt interface {
	lowerStmt(c *checker) (execFn, error)
}

// Let declares a local initialised to x. Untyped values take their default
// dtype here: integers become i32, floats the kernel's default float.
func (b *Body) Let(name string, x Expr) Var {
	l := b.declare(name)
	b.stmts = append(b.stmts, letStmt{l: l, x: x})
	return Var{l: l}
}

func (b *Body) declare(name string) *local {
	l := &local{name: name, body: b, slot: len(b.locals)}
	b.locals = append(b.locals, l)
	return l
}

// Store assigns x to t. x must have t's shape; typed values must also have
// its dtype.
func (b *Body) Store(t Target, x Expr) {
	b.stmts = append(b.stmts, storeStmt{t: t, x: x})
}

// StoreEntry assigns the scalar x to entry (r, c) of t.
func (b *Body) StoreEntry(t Target, r, c int, x Expr) {
	b.stmts = append(b.stmts, storeStmt{t: t, x: x, entry: true, r: r, c: c})
}

// AddAssign performs t = t + x.
func (b *Body) AddAssign(t Target, x Expr) {
	b.stmts = append(b.stmts, updateStmt{t: t, op: opAdd, x: x})
}

// SubAssign performs t = t - x.
func (b *Body) SubAssign(t Target, x Expr) {
	b.stmts = append(b.stmts, updateStmt{t: t, op: opSub, x: x})
}

// PolarDecompose declares two locals holding the rotation and the
// symmetric factor of the square float matrix x.
func (b *Body) PolarDecompose(x Expr) (r, s Var) {
	lr, ls := b.declare("polar.r"), b.declare("polar.s")
	b.stmts = append(b.stmts, polarStmt{x: x, r: lr, s: ls})
	return Var{l: lr}, Var{l: ls}
}

type letStmt struct {
	l *local
	x Expr
}

func (s letStmt) lowerStmt(c *checker) (execFn, error) {
	v, err := s.x.lower(c)
	if err != nil {
		return nil, err
	}
	t := concrete(v.typ, c.opts.DefaultFloat)
	v = v.as(t.DType)
	s.l.typ, s.l.declared = t, true
	slot, eval := s.l.slot, v.eval
	return func(fr *Frame) error {
		m, err := eval(fr)
		if err != nil {
			return err
		}
		fr.locals[slot] = m
		return nil
	}, nil
}

type storeStmt struct {
	t     Target
	x     Expr
	entry bool
	r, c  int
}

func (s storeStmt) lowerStmt(c *checker) (execFn, error) {
	dst, err := c.bind("store", s.t)
	if err != nil {
		return nil, err
	}
	v, err := s.x.lower(c)
	if err != nil {
		return nil, err
	}
	if !s.entry {
		v, err = v.into("store", dst.typ)
		if err != nil {
			return nil, err
		}
		eval, store := v.eval, dst.store
		return func(fr *Frame) error {
			m, err := eval(fr)
			if err != nil {
				return err
			}
			return store(fr, m)
		}, nil
	}

	if s.r < 0 || s.r >= dst.typ.Rows || s.c < 0 || s.c >= dst.typ.Cols {
		return nil, errorf("store entry", "(%d,%d) of %v: %w", s.r, s.c, dst.typ, linalg.ErrIndexOutOfRange)
	}
	v, err = v.into("store entry", Type{Rows: 1, Cols: 1, DType: dst.typ.DType})
	if err != nil {
		return nil, err
	}
	eval, load, store := v.eval, dst.load, dst.store
	r, col := s.r, s.c
	return func(fr *Frame) error {
		x, err := eval(fr)
		if err != nil {
			return err
		}
		m, err := load(fr)
		if err != nil {
			return err
		}
		if err := m.Set(r, col, x.Value()); err != nil {
			return err
		}
		return store(fr, m)
	}, nil
}

type updateStmt struct {
	t  Target
	op binOp
	x  Expr
}

func (s updateStmt) lowerStmt(c *checker) (execFn, error) {
	dst, err := c.bind(s.op.String()+" assign", s.t)
	if err != nil {
		return nil, err
	}
	x, err := s.x.lower(c)
	if err != nil {
		return nil, err
	}
	cur := value{typ: dst.typ, eval: dst.load}
	sum, err := binary(s.op, cur, x)
	if err != nil {
		return nil, err
	}
	sum, err = sum.into(s.op.String()+" assign", dst.typ)
	if err != nil {
		return nil, err
	}
	eval, store := sum.eval, dst.store
	return func(fr *Frame) error {
		m, err := eval(fr)
		if err != nil {
			return err
		}
		return store(fr, m)
	}, nil
}

type polarStmt struct {
	x    Expr
	r, s *local
}

func (p polarStmt) lowerStmt(c *checker) (execFn, error) {
	v, err := p.x.lower(c)
	if err != nil {
		return nil, err
	}
	v, err = c.floatSquare("polar decompose", v)
	if err != nil {
		return nil, err
	}
	p.r.typ, p.r.declared = v.typ, true
	p.s.typ, p.s.declared = v.typ, true
	eval, rs, ss := v.eval, p.r.slot, p.s.slot
	return func(fr *Frame) error {
		m, err := eval(fr)
		if err != nil {
			return err
		}
		r, s, err := linalg.PolarDecompose(m)
		if err != nil {
			return err
		}
		fr.locals[rs], fr.locals[ss] = r, s
		return nil
	}, nil
}

// binding is a lowered assignment target.
type binding struct {
	typ   Type
	load  evalFn
	store func(fr *Frame, m linalg.Mat) error
}

func (c *checker) bind(op string, t Target) (binding, error) {
	switch t := t.(type) {
	case Ref:
		addr, err := c.address(op, t)
		if err != nil {
			return binding{}, err
		}
		return binding{typ: elemType(addr.elem), load: addr.load, store: addr.store}, nil
	case Var:
		if err := c.owns(op+" "+t.name(), t); err != nil {
			return binding{}, err
		}
		slot := t.l.slot
		return binding{
			typ: t.l.typ,
			load: func(fr *Frame) (linalg.Mat, error) {
				return fr.locals[slot], nil
			},
			store: func(fr *Frame, m linalg.Mat) error {
				fr.locals[slot] = m
				return nil
			},
		}, nil
	default:
		return binding{}, errorf(op, "target %T: %w", t, ErrInvalidTarget)
	}
}

// floatSquare checks that v can be inverted or decomposed. Untyped values
// take the default float.
func (c *checker) floatSquare(op string, v value) (value, error) {
	if v.typ.Rows != v.typ.Cols {
		return value{}, errorf(op, "%v is not square: %w", v.typ, linalg.ErrShapeMismatch)
	}
	if v.typ.Untyped {
		return v.as(c.opts.DefaultFloat), nil
	}
	if !v.typ.DType.IsFloat() {
		return value{}, errorf(op, "%v: %w", v.typ, linalg.ErrDType)
	}
	return v, nil
}
