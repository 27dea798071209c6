package linalg

import "errors"

// Sentinels shared by every layer that handles matrix values. Callers match
// them with errors.Is; wrapping with context is expected.
var (
	ErrBadShape        = errors.New("linalg: invalid matrix shape")
	ErrIndexOutOfRange = errors.New("linalg: index out of range")
	ErrShapeMismatch   = errors.New("linalg: shape mismatch")
	ErrDType           = errors.New("linalg: unsupported dtype")
	ErrSingularMatrix  = errors.New("linalg: singular matrix")
	ErrConvergence     = errors.New("linalg: iteration did not converge")
)
