// Package dtype describes the scalar element types a field or matrix value
// can carry.
package dtype

import (
	"fmt"
	"math"
	"strings"
)

// DType is the scalar encoding of field elements and matrix entries.
type DType uint8

const (
	Invalid DType = iota
	I32
	F32
	F64
)

// Parse converts a dtype name ("i32", "f32", "f64") to a DType.
func Parse(name string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "i32", "int32":
		return I32, nil
	case "f32", "float32":
		return F32, nil
	case "f64", "float64":
		return F64, nil
	default:
		return Invalid, fmt.Errorf("unknown dtype %q (expected i32, f32, or f64)", name)
	}
}

func (dt DType) String() string {
	switch dt {
	case I32:
		return "i32"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "invalid"
	}
}

// Size returns the byte size of one scalar.
func (dt DType) Size() int {
	switch dt {
	case I32, F32:
		return 4
	case F64:
		return 8
	default:
		return 0
	}
}

func (dt DType) Valid() bool { return dt == I32 || dt == F32 || dt == F64 }

func (dt DType) IsFloat() bool { return dt == F32 || dt == F64 }

// Round quantises a float64 working value to the precision of dt.
// I32 truncates toward zero like an int32 conversion.
func (dt DType) Round(v float64) float64 {
	switch dt {
	case I32:
		return float64(int32(v))
	case F32:
		return float64(float32(v))
	default:
		return v
	}
}

// Epsilon is the machine epsilon of dt. Integers report the float64 epsilon
// since integer math never runs through the tolerance paths.
func (dt DType) Epsilon() float64 {
	if dt == F32 {
		return float64(math.Nextafter32(1, 2) - 1)
	}
	return math.Nextafter(1, 2) - 1
}

// Tolerance is the absolute error allowed for the orthogonality and symmetry
// checks of a polar decomposition.
func (dt DType) Tolerance() float64 {
	if dt == F32 {
		return 5e-5
	}
	return 1e-12
}

// InverseTolerance is the absolute error allowed for M·inverse(M) == I.
func (dt DType) InverseTolerance() float64 {
	if dt == F32 {
		return 1e-5
	}
	return 1e-10
}

// MarshalText lets dtypes appear by name in YAML and JSON documents.
func (dt DType) MarshalText() ([]byte, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("invalid dtype %d", uint8(dt))
	}
	return []byte(dt.String()), nil
}

func (dt *DType) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}
