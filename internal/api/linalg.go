package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/kernel"
	"github.com/timguo/taichi/internal/linalg"
)

// LinalgRequest carries one matrix, row by row.
type LinalgRequest struct {
	DType  string      `json:"dtype,omitempty"`
	Matrix [][]float64 `json:"matrix"`
}

// LinalgResponse holds the named outputs of an operation. Matrices are
// row-major; any and all return a 1x1 matrix.
type LinalgResponse struct {
	Op      string                 `json:"op"`
	DType   string                 `json:"dtype"`
	Outputs map[string][][]float64 `json:"outputs"`
}

// linalgOps maps an operation to the fields its kernel writes. Outputs
// without an expression are the polar factors.
var linalgOps = map[string]func(in linalg.Mat) []output{
	"transpose": func(in linalg.Mat) []output {
		return []output{{name: "result", elem: field.Matrix(in.C, in.R, in.DType), expr: kernel.Transpose}}
	},
	"inverse": func(in linalg.Mat) []output {
		return []output{{name: "result", elem: field.Matrix(in.R, in.C, in.DType), expr: kernel.Inverse}}
	},
	"any": func(in linalg.Mat) []output {
		return []output{{name: "result", elem: field.Scalar(dtype.I32), expr: kernel.Any}}
	},
	"all": func(in linalg.Mat) []output {
		return []output{{name: "result", elem: field.Scalar(dtype.I32), expr: kernel.All}}
	},
	"polar": func(in linalg.Mat) []output {
		return []output{
			{name: "r", elem: field.Matrix(in.R, in.C, in.DType), polar: 0},
			{name: "s", elem: field.Matrix(in.R, in.C, in.DType), polar: 1},
		}
	},
}

type output struct {
	name  string
	elem  field.ElemType
	expr  func(kernel.Expr) kernel.Expr
	polar int
}

func (s *Server) handleLinalg(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "engine not configured", "", "")
	}
	op := c.Param("op")
	plan, ok := linalgOps[op]
	if !ok {
		return writeNotFound(c, fmt.Sprintf("unknown operation %q", op))
	}
	req, err := decodeJSON[LinalgRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	in, err := req.matrix(s.engine.Config().DefaultFloat)
	if err != nil {
		return writeFailure(c, err)
	}
	got, err := s.evaluate(c.Request().Context(), op, in, plan(in))
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, LinalgResponse{Op: op, DType: in.DType.String(), Outputs: got})
}

func (r LinalgRequest) matrix(def dtype.DType) (linalg.Mat, error) {
	dt := def
	if r.DType != "" {
		parsed, err := dtype.Parse(r.DType)
		if err != nil {
			return linalg.Mat{}, newInvalidRequest(err.Error())
		}
		dt = parsed
	}
	if len(r.Matrix) == 0 {
		return linalg.Mat{}, newInvalidRequest("matrix is required")
	}
	return linalg.FromRows(dt, r.Matrix...)
}

// evaluate places the input in a single-element field and runs one kernel
// that writes every output field.
func (s *Server) evaluate(ctx context.Context, op string, in linalg.Mat, outs []output) (map[string][][]float64, error) {
	src, err := field.New("in", nil, field.Matrix(in.R, in.C, in.DType))
	if err != nil {
		return nil, err
	}
	if err := src.Set(in); err != nil {
		return nil, err
	}
	dst := make([]*field.Field, len(outs))
	for i, o := range outs {
		if dst[i], err = field.New(o.name, nil, o.elem); err != nil {
			return nil, err
		}
	}

	err = s.engine.Run(ctx, "linalg."+op, kernel.OverField(src), func(b *kernel.Body, _ kernel.Index) {
		x := kernel.At(src)
		if outs[0].expr == nil {
			r, sym := b.PolarDecompose(x)
			factors := []kernel.Var{r, sym}
			for i, o := range outs {
				b.Store(kernel.At(dst[i]), factors[o.polar])
			}
			return
		}
		for i, o := range outs {
			b.Store(kernel.At(dst[i]), o.expr(x))
		}
	})
	if err != nil {
		return nil, err
	}

	got := make(map[string][][]float64, len(outs))
	for i, o := range outs {
		m, err := dst[i].At()
		if err != nil {
			return nil, err
		}
		got[o.name] = rows(m)
	}
	return got, nil
}

func rows(m linalg.Mat) [][]float64 {
	data := m.Data()
	out := make([][]float64, m.R)
	for i := range out {
		out[i] = data[i*m.C : (i+1)*m.C]
	}
	return out
}
