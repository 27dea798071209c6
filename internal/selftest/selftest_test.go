package selftest

import (
	"context"
	"errors"
	"testing"

	"github.com/timguo/taichi/internal/backend"
	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/engine"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/logger"
)

func TestScenariosPassOnEveryArch(t *testing.T) {
	t.Parallel()
	for _, arch := range []string{backend.CPU, backend.Parallel} {
		for _, dt := range floatTypes {
			e, err := engine.New(engine.Config{Arch: arch, DefaultFloat: dt, Workers: 4}, logger.Discard())
			if err != nil {
				t.Fatalf("engine.New: %v", err)
			}
			results, err := Run(context.Background(), e)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(results) != len(Names()) {
				t.Fatalf("%d results for %d scenarios", len(results), len(Names()))
			}
			for _, r := range results {
				if !r.Passed || r.Arch != arch {
					t.Errorf("%s/%v %s: passed=%v arch=%s max_error=%g err=%v", arch, dt, r.Name, r.Passed, r.Arch, r.MaxError, r.Err)
				}
			}
			_ = e.Close()
		}
	}
}

func TestRunSelected(t *testing.T) {
	t.Parallel()
	e, err := engine.New(engine.Config{Arch: "cpu", DefaultFloat: dtype.F32}, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer e.Close()

	results, err := Run(context.Background(), e, "inverse-4", "any-all")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 || results[0].Name != "inverse-4" || results[1].Name != "any-all" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].MaxError > inverseTolerance {
		t.Fatalf("inverse max error %g", results[0].MaxError)
	}
	if _, err := Run(context.Background(), e, "nope"); err == nil {
		t.Fatal("expected unknown scenario error")
	}
}

func TestCheckerRecordsFirstMismatch(t *testing.T) {
	t.Parallel()
	c := &checker{}
	c.near("a", 1.0, 1.0+1e-9, 1e-6)
	c.exact("b", 2, 3)
	c.exact("c", 5, 9)
	if !errors.Is(c.err, ErrMismatch) || c.maxErr != 4 {
		t.Fatalf("err=%v max=%g", c.err, c.maxErr)
	}
	if got := c.err.Error(); got[:1] != "b" {
		t.Fatalf("first mismatch not kept: %s", got)
	}
}

func TestScenarioReportsFieldReadErrors(t *testing.T) {
	t.Parallel()
	e, err := engine.New(engine.Config{Arch: "cpu", DefaultFloat: dtype.F32}, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer e.Close()

	s := Scenario{Name: "out-of-range", run: func(ctx context.Context, e *engine.Engine, c *checker) error {
		f, err := field.New("v", []int{2}, field.Vector(3, dtype.F32))
		if err != nil {
			return err
		}
		got, err := f.Entry(4, 0, 1)
		if err != nil {
			return err
		}
		c.exact("v[1][4]", got, 0)
		return nil
	}}
	r := s.Run(context.Background(), e)
	if r.Passed || r.Err == nil || r.Message == "" {
		t.Fatalf("result = %+v", r)
	}
}

func TestOneByOneInversePasses(t *testing.T) {
	t.Parallel()
	for _, arch := range []string{backend.CPU, backend.Parallel} {
		e, err := engine.New(engine.Config{Arch: arch, DefaultFloat: dtype.F32}, nil)
		if err != nil {
			t.Fatalf("engine.New: %v", err)
		}
		results, err := Run(context.Background(), e, "inverse-1")
		_ = e.Close()
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(results) != 1 || !results[0].Passed {
			t.Fatalf("%s: %+v", arch, results)
		}
	}
}
