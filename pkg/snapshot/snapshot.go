// Package snapshot stores field contents in a single file: an 8-byte
// little-endian header length, a JSON header describing every field, then
// the raw little-endian data of each field in header order.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
)

const (
	Format  = "taichi-snapshot"
	Version = 1

	// headerAlign pads the JSON header so field data starts 8-byte aligned.
	headerAlign = 8
	// maxHeader bounds the header length accepted by Open.
	maxHeader = 64 << 20
)

var (
	ErrCorruptFile  = errors.New("snapshot: corrupt file")
	ErrNotFound     = errors.New("snapshot: field not found")
	ErrIncompatible = errors.New("snapshot: field does not match snapshot entry")
)

// Entry describes one stored field.
type Entry struct {
	Name  string      `json:"name"`
	DType dtype.DType `json:"dtype"`
	// Shape is the field shape; Elem is the element's rows and cols.
	Shape []int          `json:"shape"`
	Elem  [2]int         `json:"elem"`
	Kind  field.ElemKind `json:"kind"`
	// Offsets are byte offsets [begin, end) relative to the data section.
	Offsets [2]int64 `json:"data_offsets"`
}

// ElemType is the element type of the stored field.
func (e Entry) ElemType() field.ElemType {
	return field.ElemType{DType: e.DType, Rows: e.Elem[0], Cols: e.Elem[1], Kind: e.Kind}
}

// Count is the number of scalars stored for the entry.
func (e Entry) Count() int {
	n := e.Elem[0] * e.Elem[1]
	for _, d := range e.Shape {
		n *= d
	}
	return n
}

func (e Entry) validate(dataLen int64) error {
	if !e.ElemType().Valid() {
		return fmt.Errorf("%w: field %q has %v element %v %v", ErrCorruptFile, e.Name, e.Kind, e.Elem, e.DType)
	}
	for _, d := range e.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: field %q has extent %d", ErrCorruptFile, e.Name, d)
		}
	}
	begin, end := e.Offsets[0], e.Offsets[1]
	if begin < 0 || end < begin || end > dataLen {
		return fmt.Errorf("%w: field %q offsets %v outside %d data bytes", ErrCorruptFile, e.Name, e.Offsets, dataLen)
	}
	if end-begin != int64(e.Count()*e.DType.Size()) {
		return fmt.Errorf("%w: field %q holds %d bytes for %d values", ErrCorruptFile, e.Name, end-begin, e.Count())
	}
	return nil
}

type header struct {
	Format   string            `json:"format"`
	Version  int               `json:"version"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Fields   []Entry           `json:"fields"`
}
