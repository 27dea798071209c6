// Package kernel compiles per-element kernel bodies into executable code
// paths. A kernel is described by a Def: an iteration Source and a build
// function that records statements on a Body. Compile type-checks every
// statement and lowers it to closures; shape and dtype violations surface
// as a *CompileError before any launch.
package kernel

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/linalg"
)

// MaxAxes bounds the number of index axes a kernel can address.
const MaxAxes = 8

// Options control type resolution.
type Options struct {
	// DefaultFloat is the dtype untyped float values take when nothing
	// else fixes it. Defaults to f32.
	DefaultFloat dtype.DType
}

// Def is an uncompiled kernel.
type Def struct {
	Name   string
	Source Source
	build  func(b *Body, i Index)
}

// New defines a kernel named name that runs build's statements for every
// index of src.
func New(name string, src Source, build func(b *Body, i Index)) *Def {
	return &Def{Name: name, Source: src, build: build}
}

// Compiled is a type-checked kernel ready for dispatch. It is immutable and
// safe to execute from many goroutines, each with its own Frame.
type Compiled struct {
	ID     uuid.UUID
	Name   string
	Domain Domain

	paths  []execFn
	fields []*field.Field
	locals int
}

// Fields lists every field the kernel reads or writes. Frame stores are
// indexed in this order.
func (k *Compiled) Fields() []*field.Field { return k.fields }

// Static reports whether the kernel was unrolled over a StaticRange.
func (k *Compiled) Static() bool { return k.Domain.Kind == StaticDomain }

// Size is the number of work items per launch.
func (k *Compiled) Size() int { return k.Domain.Size }

func (k *Compiled) String() string {
	return fmt.Sprintf("%s[%v x%d]", k.Name, k.Domain.Kind, k.Domain.Size)
}

// Compile type-checks d and lowers it.
func Compile(d *Def, opts Options) (*Compiled, error) {
	if opts.DefaultFloat == dtype.Invalid {
		opts.DefaultFloat = dtype.F32
	}
	if !opts.DefaultFloat.IsFloat() {
		return nil, &CompileError{Kernel: d.Name, Op: "options", Err: fmt.Errorf("default float %v: %w", opts.DefaultFloat, linalg.ErrDType)}
	}
	if d.build == nil || d.Source == nil {
		return nil, &CompileError{Kernel: d.Name, Op: "define", Err: ErrInvalidTarget}
	}
	dom, err := d.Source.domain()
	if err != nil {
		return nil, wrap(d.Name, err)
	}
	if dom.dims() > MaxAxes {
		return nil, &CompileError{Kernel: d.Name, Op: "iterate", Err: fmt.Errorf("%d axes: %w", dom.dims(), linalg.ErrBadShape)}
	}

	c := &checker{opts: opts, slots: make(map[*field.Field]int)}
	k := &Compiled{ID: uuid.New(), Name: d.Name, Domain: dom}

	var indices []Index
	if dom.Kind == StaticDomain {
		for v := dom.begin; v < dom.begin+dom.Size; v++ {
			indices = append(indices, Index{dims: 1, static: true, value: v})
		}
	} else {
		indices = []Index{{dims: dom.dims()}}
	}

	for _, ix := range indices {
		b := &Body{}
		d.build(b, ix)
		c.body = b
		path, err := c.lowerBody(b)
		if err != nil {
			return nil, wrap(d.Name, err)
		}
		k.paths = append(k.paths, path)
		k.locals = max(k.locals, len(b.locals))
	}
	k.fields = c.fields
	return k, nil
}

func wrap(kernel string, err error) error {
	var oe *opError
	if errors.As(err, &oe) {
		return &CompileError{Kernel: kernel, Op: oe.op, Err: oe.err}
	}
	return &CompileError{Kernel: kernel, Op: "compile", Err: err}
}

// Exec runs work item n on fr. Runtime domains write the item's index into
// the frame first; static kernels run path n.
func (k *Compiled) Exec(fr *Frame, n int) error {
	path := k.paths[0]
	if k.Domain.Kind == StaticDomain {
		path = k.paths[n]
	} else {
		k.Domain.index(n, fr.idx)
	}
	if err := path(fr); err != nil {
		return fmt.Errorf("kernel %q item %d: %w", k.Name, n, err)
	}
	return nil
}

// Frame is the per-goroutine execution state of a kernel: the current
// index, the locals, and the field storage captured for the launch.
type Frame struct {
	idx    []int
	locals []linalg.Mat
	stores []field.Storage
	buf    [linalg.MaxDim * linalg.MaxDim]float64
}

// NewFrame returns a frame bound to stores, which must hold the storage of
// Fields() in order. Frames share stores but nothing else.
func (k *Compiled) NewFrame(stores []field.Storage) (*Frame, error) {
	if len(stores) != len(k.fields) {
		return nil, fmt.Errorf("kernel %q: %d stores for %d fields: %w", k.Name, len(stores), len(k.fields), linalg.ErrShapeMismatch)
	}
	return &Frame{
		idx:    make([]int, max(k.Domain.dims(), 1)),
		locals: make([]linalg.Mat, k.locals),
		stores: stores,
	}, nil
}

func (fr *Frame) load(slot, off int, e field.ElemType) (linalg.Mat, error) {
	n := e.Len()
	fr.stores[slot].Load(off, fr.buf[:n])
	return linalg.FromSlice(e.DType, e.Rows, e.Cols, fr.buf[:n])
}

func (fr *Frame) store(slot, off int, m linalg.Mat) {
	n := m.Len()
	m.CopyTo(fr.buf[:n])
	fr.stores[slot].Store(off, fr.buf[:n])
}

// checker carries compile state shared by every code path of a kernel.
type checker struct {
	opts   Options
	body   *Body
	slots  map[*field.Field]int
	fields []*field.Field
}

func (c *checker) lowerBody(b *Body) (execFn, error) {
	fns := make([]execFn, 0, len(b.stmts))
	for _, s := range b.stmts {
		fn, err := s.lowerStmt(c)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return func(fr *Frame) error {
		for _, fn := range fns {
			if err := fn(fr); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func (c *checker) slot(f *field.Field) int {
	if s, ok := c.slots[f]; ok {
		return s
	}
	s := len(c.fields)
	c.slots[f] = s
	c.fields = append(c.fields, f)
	return s
}

// owns rejects locals that were declared by another body or read before
// their declaration was lowered.
func (c *checker) owns(op string, v Var) error {
	if v.l == nil || v.l.body != c.body {
		return errorf(op, "%w", ErrForeignLocal)
	}
	if !v.l.declared {
		return errorf(op, "used before its value is known: %w", ErrForeignLocal)
	}
	return nil
}

// address is a lowered field element reference.
type address struct {
	elem   field.ElemType
	offset func(fr *Frame) (int, error)
	load   evalFn
	store  func(fr *Frame, m linalg.Mat) error
}

func (c *checker) address(op string, r Ref) (address, error) {
	f := r.f
	if f == nil || !f.Placed() {
		return address{}, errorf(op, "%w", field.ErrNotPlaced)
	}
	if len(r.idx) != f.Dims() {
		return address{}, errorf(op, "%d indices for %s: %w", len(r.idx), f, field.ErrIndexOutOfRange)
	}
	if f.Dims() > MaxAxes {
		return address{}, errorf(op, "%s: %w", f, linalg.ErrBadShape)
	}

	evals := make([]evalFn, len(r.idx))
	static := true
	var konst [MaxAxes]int
	for k, x := range r.idx {
		v, err := x.lower(c)
		if err != nil {
			return address{}, err
		}
		if !v.typ.IsScalar() || v.typ.DType != dtype.I32 {
			return address{}, errorf(op, "index %d of %s is %v: %w", k, f, v.typ, ErrDTypeMismatch)
		}
		evals[k] = v.eval
		if v.konst != nil {
			konst[k] = int(v.konst.Value())
		} else {
			static = false
		}
	}

	var offset func(fr *Frame) (int, error)
	if static {
		off, err := f.Offset(konst[:len(evals)])
		if err != nil {
			return address{}, errorf(op, "%w", err)
		}
		offset = func(*Frame) (int, error) { return off, nil }
	} else {
		offset = func(fr *Frame) (int, error) {
			var ix [MaxAxes]int
			for k, ev := range evals {
				m, err := ev(fr)
				if err != nil {
					return 0, err
				}
				ix[k] = int(m.Value())
			}
			return f.Offset(ix[:len(evals)])
		}
	}

	slot, elem := c.slot(f), f.Elem()
	return address{
		elem:   elem,
		offset: offset,
		load: func(fr *Frame) (linalg.Mat, error) {
			off, err := offset(fr)
			if err != nil {
				return linalg.Mat{}, err
			}
			return fr.load(slot, off, elem)
		},
		store: func(fr *Frame, m linalg.Mat) error {
			off, err := offset(fr)
			if err != nil {
				return err
			}
			fr.store(slot, off, m)
			return nil
		},
	}, nil
}
