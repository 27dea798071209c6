package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrCompile matches every *CompileError.
	ErrCompile = errors.New("kernel: compile error")
	// ErrDTypeMismatch marks operands or destinations whose dtypes disagree.
	ErrDTypeMismatch = errors.New("kernel: dtype mismatch")
	// ErrNotStatic marks a value that must be known at compile time but is not.
	ErrNotStatic = errors.New("kernel: value is not static")
	// ErrForeignLocal marks a local used outside the body that declared it.
	ErrForeignLocal = errors.New("kernel: local belongs to another body")
	// ErrInvalidTarget marks an assignment without a field element or local.
	ErrInvalidTarget = errors.New("kernel: invalid assignment target")
)

// CompileError reports a static shape or dtype violation found before any
// launch. Err carries the underlying cause (a linalg or kernel sentinel).
type CompileError struct {
	Kernel string
	Op     string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile kernel %q: %s: %v", e.Kernel, e.Op, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) Is(target error) bool { return target == ErrCompile }

// opError attaches an operation name to a cause; the checker turns it into
// a CompileError carrying the kernel name.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

func errorf(op string, format string, args ...any) error {
	return &opError{op: op, err: fmt.Errorf(format, args...)}
}
