package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/timguo/taichi/internal/engine"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/kernel"
	"github.com/timguo/taichi/internal/logger"
	"github.com/timguo/taichi/internal/version"
	"github.com/timguo/taichi/pkg/snapshot"
)

func exportCmd() *cli.Command {
	var (
		out   string
		count int64
	)

	return &cli.Command{
		Name:  "export",
		Usage: "Run the demo kernels and write their fields to a snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "snapshot path",
				Value:       "demo.snapshot",
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "count",
				Aliases:     []string{"n"},
				Usage:       "number of matrices in each field",
				Value:       16,
				Destination: &count,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			e, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			start := time.Now()
			fields, err := demoFields(ctx, e, int(count))
			if err != nil {
				return err
			}
			meta := map[string]string{
				"arch":          e.Arch(),
				"default_float": e.Config().DefaultFloat.String(),
				"count":         strconv.FormatInt(count, 10),
				"version":       version.String(),
			}
			if err := snapshot.Create(out, meta, fields...); err != nil {
				return err
			}
			log.Info("snapshot written", "path", out, "fields", len(fields), "took", time.Since(start))
			return nil
		},
	}
}

// demoFields fills x[i] = [[1+i, i], [i, 1+i]] and derives the inverse and
// polar factors of each matrix. rrt holds R*R^T, which should be identity.
func demoFields(ctx context.Context, e *engine.Engine, n int) ([]*field.Field, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", n)
	}
	dt := e.Config().DefaultFloat
	mat := field.Matrix(2, 2, dt)
	x := field.Declare("x", mat)
	inv := field.Declare("inverse", mat)
	r := field.Declare("rotation", mat)
	s := field.Declare("stretch", mat)
	rrt := field.Declare("rrt", mat)
	if err := field.Root().Dense(n).Place(x, inv, r, s, rrt); err != nil {
		return nil, err
	}

	err := e.Run(ctx, "demo.fill", kernel.OverField(x), func(b *kernel.Body, i kernel.Index) {
		b.Store(kernel.At(x, i), kernel.Literal([]float64{1, 0}, []float64{0, 1}))
		b.AddAssign(kernel.At(x, i), kernel.Cast(i, dt))
	})
	if err != nil {
		return nil, err
	}
	err = e.Run(ctx, "demo.factor", kernel.OverField(x), func(b *kernel.Body, i kernel.Index) {
		m := b.Let("m", kernel.At(x, i))
		b.Store(kernel.At(inv, i), kernel.Inverse(m))
		rot, sym := b.PolarDecompose(m)
		b.Store(kernel.At(r, i), rot)
		b.Store(kernel.At(s, i), sym)
		b.Store(kernel.At(rrt, i), kernel.MatMul(rot, kernel.Transpose(rot)))
	})
	if err != nil {
		return nil, err
	}
	return []*field.Field{x, inv, r, s, rrt}, nil
}
