// Package selftest holds the built-in verification scenarios. Each scenario
// allocates its own fields, runs kernels on an engine and compares the
// results with closed-form values.
package selftest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/timguo/taichi/internal/engine"
)

// ErrMismatch reports a result outside the scenario tolerance.
var ErrMismatch = errors.New("selftest: result mismatch")

type Result struct {
	Name     string        `json:"name"`
	Arch     string        `json:"arch"`
	Passed   bool          `json:"passed"`
	MaxError float64       `json:"max_error"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
	Message  string        `json:"error,omitempty"`
}

// Scenario is one named check.
type Scenario struct {
	Name string
	run  func(ctx context.Context, e *engine.Engine, c *checker) error
}

// Scenarios returns every built-in scenario in a stable order.
func Scenarios() []Scenario {
	out := []Scenario{
		{Name: "transpose", run: transpose},
	}
	for _, dim := range []int{2, 3} {
		for _, dt := range floatTypes {
			out = append(out, Scenario{Name: fmt.Sprintf("polar-%d-%v", dim, dt), run: polar(dim, dt)})
		}
	}
	out = append(out, Scenario{Name: "matrix-update", run: matrixUpdate})
	for n := 1; n <= 4; n++ {
		out = append(out, Scenario{Name: fmt.Sprintf("inverse-%d", n), run: inverse(n)})
	}
	out = append(out,
		Scenario{Name: "unit-vectors", run: unitVectors},
		Scenario{Name: "matrix-from-vectors", run: matrixFromVectors},
		Scenario{Name: "any-all", run: anyAll},
	)
	return out
}

// Names lists the scenario names.
func Names() []string {
	var names []string
	for _, s := range Scenarios() {
		names = append(names, s.Name)
	}
	return names
}

// Run executes the named scenarios (all when names is empty) on e and
// returns one result per scenario.
func Run(ctx context.Context, e *engine.Engine, names ...string) ([]Result, error) {
	all := Scenarios()
	selected := all
	if len(names) > 0 {
		selected = nil
		for _, name := range names {
			i := slices.IndexFunc(all, func(s Scenario) bool { return s.Name == name })
			if i < 0 {
				return nil, fmt.Errorf("unknown scenario %q", name)
			}
			selected = append(selected, all[i])
		}
	}

	results := make([]Result, 0, len(selected))
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, s.Run(ctx, e))
	}
	return results, nil
}

// Run executes s on e.
func (s Scenario) Run(ctx context.Context, e *engine.Engine) Result {
	c := &checker{}
	start := time.Now()
	err := s.run(ctx, e, c)
	if err == nil {
		err = c.err
	}
	r := Result{
		Name:     s.Name,
		Arch:     e.Arch(),
		Passed:   err == nil,
		MaxError: c.maxErr,
		Duration: time.Since(start),
		Err:      err,
	}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// checker tracks the largest deviation seen and the first mismatch.
type checker struct {
	maxErr float64
	err    error
}

func (c *checker) near(what string, got, want, tol float64) {
	d := math.Abs(got - want)
	if math.IsNaN(d) {
		d = math.Inf(1)
	}
	c.maxErr = max(c.maxErr, d)
	if d > tol && c.err == nil {
		c.err = fmt.Errorf("%s = %g, want %g (tolerance %g): %w", what, got, want, tol, ErrMismatch)
	}
}

func (c *checker) exact(what string, got, want float64) {
	c.near(what, got, want, 0)
}
