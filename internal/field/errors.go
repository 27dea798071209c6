package field

import (
	"errors"

	"github.com/timguo/taichi/internal/linalg"
)

// Index and shape errors are the linalg sentinels so a single errors.Is
// check works whether the failure came from a field or a matrix value.
var (
	ErrBadShape        = linalg.ErrBadShape
	ErrIndexOutOfRange = linalg.ErrIndexOutOfRange
	ErrShapeMismatch   = linalg.ErrShapeMismatch

	ErrNotPlaced     = errors.New("field: not placed in a layout")
	ErrAlreadyPlaced = errors.New("field: already placed")
)
