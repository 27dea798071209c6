package selftest

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/engine"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/hostbuf"
	"github.com/timguo/taichi/internal/kernel"
)

var floatTypes = []dtype.DType{dtype.F32, dtype.F64}

// inverseTolerance matches a seven-decimal comparison.
const inverseTolerance = 1.5e-7

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// transpose replaces a 3x3 matrix with its transpose in place.
func transpose(ctx context.Context, e *engine.Engine, c *checker) error {
	const dim = 3
	m, err := field.New("m", nil, field.Matrix(dim, dim, dtype.F32))
	if err != nil {
		return err
	}
	for i := range dim {
		for j := range dim {
			if err := m.SetEntry(i, j, float64(i*2+j*7)); err != nil {
				return err
			}
		}
	}
	err = e.Run(ctx, "transpose", kernel.OverField(m), func(b *kernel.Body, i kernel.Index) {
		t := b.Let("mat", kernel.Transpose(kernel.At(m, i)))
		b.Store(kernel.At(m, i), t)
	})
	if err != nil {
		return err
	}
	for i := range dim {
		for j := range dim {
			got, err := m.Entry(j, i)
			if err != nil {
				return err
			}
			c.exact(fmt.Sprintf("m[%d,%d]", j, i), got, float64(i*2+j*7))
		}
	}
	return nil
}

func polar(dim int, dt dtype.DType) func(context.Context, *engine.Engine, *checker) error {
	return func(ctx context.Context, e *engine.Engine, c *checker) error {
		elem := field.Matrix(dim, dim, dt)
		m, r, s := field.Declare("m", elem), field.Declare("r", elem), field.Declare("s", elem)
		id, skew := field.Declare("I", elem), field.Declare("D", elem)
		if err := field.Root().Place(m, r, s, id, skew); err != nil {
			return err
		}

		v := func(i, j int) float64 { return float64(i*2 + j*7 + int(boolf(i == j))*3) }
		for i := range dim {
			for j := range dim {
				if err := m.SetEntry(i, j, v(i, j)); err != nil {
					return err
				}
			}
		}

		err := e.Run(ctx, "polar", kernel.OverField(m), func(b *kernel.Body, i kernel.Index) {
			rot, sym := b.PolarDecompose(kernel.At(m, i))
			b.Store(kernel.At(r, i), rot)
			b.Store(kernel.At(s, i), sym)
			b.Store(kernel.At(m, i), kernel.MatMul(rot, sym))
			b.Store(kernel.At(id, i), kernel.MatMul(rot, kernel.Transpose(rot)))
			b.Store(kernel.At(skew, i), kernel.Sub(sym, kernel.Transpose(sym)))
		})
		if err != nil {
			return err
		}

		tol := dt.Tolerance()
		for i := range dim {
			for j := range dim {
				for _, chk := range []struct {
					what string
					f    *field.Field
					want float64
				}{
					{"R*S", m, v(i, j)},
					{"R*Rt", id, boolf(i == j)},
					{"S-St", skew, 0},
				} {
					got, err := chk.f.Entry(i, j)
					if err != nil {
						return err
					}
					c.near(fmt.Sprintf("(%s)[%d,%d]", chk.what, i, j), got, chk.want, tol)
				}
			}
		}
		return nil
	}
}

// matrixUpdate runs entry assignment, assignment and compound update over
// a 16-element field of which only the first 10 are initialised.
func matrixUpdate(ctx context.Context, e *engine.Engine, c *checker) error {
	x := field.Declare("x", field.Matrix(2, 2, dtype.I32))
	if err := field.Root().Dense(16).Place(x); err != nil {
		return err
	}
	for i := range 10 {
		if err := x.SetEntry(0, 0, float64(i), i); err != nil {
			return err
		}
	}

	err := e.Run(ctx, "inc", kernel.OverField(x), func(b *kernel.Body, i kernel.Index) {
		delta := b.Let("delta", kernel.LiteralInt([]int{3, 0}, []int{0, 0}))
		xi := kernel.At(x, i)
		b.StoreEntry(xi, 1, 1, kernel.Add(kernel.Entry(xi, 0, 0), kernel.Int(1)))
		b.Store(xi, kernel.Add(xi, delta))
		b.AddAssign(xi, delta)
	})
	if err != nil {
		return err
	}

	for i := range 16 {
		base := 0
		if i < 10 {
			base = i
		}
		got, err := x.Entry(0, 0, i)
		if err != nil {
			return err
		}
		c.exact(fmt.Sprintf("x[%d][0,0]", i), got, float64(6+base))
		if got, err = x.Entry(1, 1, i); err != nil {
			return err
		}
		c.exact(fmt.Sprintf("x[%d][1,1]", i), got, float64(1+base))
	}
	return nil
}

func inverse(n int) func(context.Context, *engine.Engine, *checker) error {
	return func(ctx context.Context, e *engine.Engine, c *checker) error {
		m, err := field.New("m", nil, field.Matrix(n, n, dtype.F32))
		if err != nil {
			return err
		}
		data := make([]float32, n*n)
		oracle := mat.NewDense(n, n, nil)
		for i := range n {
			for j := range n {
				v := float32(i*j + i*3 + j + 1 + int(boolf(i == j))*4)
				data[i*n+j] = v
				oracle.Set(i, j, float64(v))
			}
		}
		var want mat.Dense
		if err := want.Inverse(oracle); err != nil {
			return fmt.Errorf("reference inverse: %w", err)
		}

		buf, err := hostbuf.Of([]int{n, n}, data)
		if err != nil {
			return err
		}
		if err := e.FromHost(m, buf); err != nil {
			return err
		}
		err = e.Run(ctx, "invert", kernel.OverField(m), func(b *kernel.Body, i kernel.Index) {
			b.Store(kernel.At(m, i), kernel.Inverse(kernel.At(m, i)))
		})
		if err != nil {
			return err
		}

		out, err := e.ToHost(m)
		if err != nil {
			return err
		}
		got := out.Float64s()
		for i := range n {
			for j := range n {
				c.near(fmt.Sprintf("inv[%d,%d]", i, j), got[i*n+j], want.At(i, j), inverseTolerance)
			}
		}
		return nil
	}
}

// unitVectors fills a vector field through a static range.
func unitVectors(ctx context.Context, e *engine.Engine, c *checker) error {
	a, err := field.New("a", []int{3}, field.Vector(3, dtype.I32))
	if err != nil {
		return err
	}
	err = e.Run(ctx, "fill", kernel.Static(0, 3), func(b *kernel.Body, i kernel.Index) {
		b.Store(kernel.At(a, i), kernel.Unit(3, i))
	})
	if err != nil {
		return err
	}
	for i := range 3 {
		for j := range 3 {
			got, err := a.Entry(j, 0, i)
			if err != nil {
				return err
			}
			c.exact(fmt.Sprintf("a[%d][%d]", i, j), got, boolf(i == j))
		}
	}
	return nil
}

// matrixFromVectors builds matrices by rows and by columns. Its locals are
// untyped floats, so the fields use the engine's default float.
func matrixFromVectors(ctx context.Context, e *engine.Engine, c *checker) error {
	elem := field.Matrix(3, 3, e.Config().DefaultFloat)
	var ms [4]*field.Field
	for k := range ms {
		f, err := field.New(fmt.Sprintf("m%d", k+1), []int{3}, elem)
		if err != nil {
			return err
		}
		ms[k] = f
	}
	vec := func(x, y, z float64) kernel.Expr {
		return kernel.Vector(kernel.Float(x), kernel.Float(y), kernel.Float(z))
	}

	err := e.Run(ctx, "fill", kernel.OverRange(0, 3), func(b *kernel.Body, i kernel.Index) {
		a := b.Let("a", vec(1, 4, 7))
		v := b.Let("b", vec(2, 5, 8))
		w := b.Let("c", vec(3, 6, 9))
		b.Store(kernel.At(ms[0], i), kernel.Rows(a, v, w))
		b.Store(kernel.At(ms[1], i), kernel.Cols(a, v, w))
		b.Store(kernel.At(ms[2], i), kernel.Literal([]float64{1, 4, 7}, []float64{2, 5, 8}, []float64{3, 6, 9}))
		b.Store(kernel.At(ms[3], i), kernel.Cols(vec(1, 4, 7), vec(2, 5, 8), vec(3, 6, 9)))
	})
	if err != nil {
		return err
	}

	for k := range 3 {
		for j := range 3 {
			for i := range 3 {
				want := float64(i + 3*j + 1)
				for n, f := range ms {
					r, col := i, j
					if n%2 == 1 {
						r, col = j, i
					}
					got, err := f.Entry(r, col, k)
					if err != nil {
						return err
					}
					c.exact(fmt.Sprintf("%s[%d][%d,%d]", f.Name, k, r, col), got, want)
				}
			}
		}
	}
	return nil
}

func anyAll(ctx context.Context, e *engine.Engine, c *checker) error {
	a, err := field.New("a", nil, field.Matrix(2, 2, dtype.I32))
	if err != nil {
		return err
	}
	b, err := field.New("b", nil, field.Scalar(dtype.I32))
	if err != nil {
		return err
	}
	reduce := func(name string, fn func(kernel.Expr) kernel.Expr) (*kernel.Compiled, error) {
		return e.Compile(name, kernel.OverField(b), func(body *kernel.Body, i kernel.Index) {
			body.Store(kernel.At(b, i), fn(kernel.At(a, i)))
		})
	}
	funcAny, err := reduce("func_any", kernel.Any)
	if err != nil {
		return err
	}
	funcAll, err := reduce("func_all", kernel.All)
	if err != nil {
		return err
	}

	for i := range 2 {
		for j := range 2 {
			for _, set := range []struct {
				r, c int
				v    int
			}{{0, 0, i}, {1, 0, j}, {1, 1, i}, {0, 1, j}} {
				if err := a.SetEntry(set.r, set.c, float64(set.v)); err != nil {
					return err
				}
			}

			if err := e.Launch(ctx, funcAny); err != nil {
				return err
			}
			got, err := b.Value()
			if err != nil {
				return err
			}
			c.exact(fmt.Sprintf("any(i=%d, j=%d)", i, j), got, boolf(i == 1 || j == 1))

			if err := e.Launch(ctx, funcAll); err != nil {
				return err
			}
			if got, err = b.Value(); err != nil {
				return err
			}
			c.exact(fmt.Sprintf("all(i=%d, j=%d)", i, j), got, boolf(i == 1 && j == 1))
		}
	}
	return nil
}
