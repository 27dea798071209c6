package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/hostbuf"
)

// File is an opened snapshot. Field data is decoded lazily from the
// mapped file.
type File struct {
	Path     string
	Metadata map[string]string
	Entries  []Entry

	data    []byte
	body    []byte
	mmapped bool
}

// Open maps a snapshot read-only and validates its header. If mmap is
// unavailable it falls back to reading the whole file. The returned file
// must be closed to release the mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 8 || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: size %d", ErrCorruptFile, size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		sf, parseErr := parse(path, data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return sf, nil
	}

	data = make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, size64), data); err != nil {
		return nil, err
	}
	return parse(path, data, false)
}

// Decode parses a snapshot held in memory.
func Decode(data []byte) (*File, error) {
	return parse("", data, false)
}

func parse(path string, data []byte, mmapped bool) (*File, error) {
	if len(data) < 8 {
		return nil, ErrCorruptFile
	}
	hlen := binary.LittleEndian.Uint64(data[:8])
	if hlen > maxHeader || hlen > uint64(len(data)-8) {
		return nil, fmt.Errorf("%w: header length %d", ErrCorruptFile, hlen)
	}
	var hdr header
	if err := json.Unmarshal(data[8:8+hlen], &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptFile, err)
	}
	if hdr.Format != Format {
		return nil, fmt.Errorf("%w: format %q", ErrCorruptFile, hdr.Format)
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptFile, hdr.Version)
	}

	body := data[8+hlen:]
	names := make(map[string]bool, len(hdr.Fields))
	for _, e := range hdr.Fields {
		if names[e.Name] {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrCorruptFile, e.Name)
		}
		names[e.Name] = true
		if err := e.validate(int64(len(body))); err != nil {
			return nil, err
		}
	}
	return &File{
		Path:     path,
		Metadata: hdr.Metadata,
		Entries:  hdr.Fields,
		data:     data,
		body:     body,
		mmapped:  mmapped,
	}, nil
}

// Close releases the mapping.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data, f.body, f.mmapped = nil, nil, false
	return err
}

// Entry looks up a stored field by name.
func (f *File) Entry(name string) (Entry, bool) {
	i := slices.IndexFunc(f.Entries, func(e Entry) bool { return e.Name == name })
	if i < 0 {
		return Entry{}, false
	}
	return f.Entries[i], true
}

// Buffer decodes a stored field into a host buffer shaped like the field
// it was taken from.
func (f *File) Buffer(name string) (hostbuf.Buffer, error) {
	e, ok := f.Entry(name)
	if !ok {
		return hostbuf.Buffer{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if f.body == nil {
		return hostbuf.Buffer{}, fmt.Errorf("snapshot %s is closed", f.Path)
	}
	raw := f.body[e.Offsets[0]:e.Offsets[1]]
	shape := append(slices.Clone(e.Shape), e.ElemType().ElemShape()...)

	n := e.Count()
	switch e.DType {
	case dtype.I32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return hostbuf.Of(shape, out)
	case dtype.F32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return hostbuf.Of(shape, out)
	default:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return hostbuf.Of(shape, out)
	}
}

// Restore loads the entry named after fld into it. The field's dtype,
// element shape and shape must match the stored entry.
func (f *File) Restore(fld *field.Field) error {
	e, ok := f.Entry(fld.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, fld.Name)
	}
	if fld.Elem() != e.ElemType() || !slices.Equal(fld.Shape(), e.Shape) {
		return fmt.Errorf("%w: %s vs %s%v:%v", ErrIncompatible, fld, e.Name, e.Shape, e.ElemType())
	}
	buf, err := f.Buffer(e.Name)
	if err != nil {
		return err
	}
	return hostbuf.FromHost(fld, buf)
}

// Field allocates a new placed field holding the stored entry.
func (f *File) Field(name string) (*field.Field, error) {
	e, ok := f.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	fld, err := field.New(e.Name, e.Shape, e.ElemType())
	if err != nil {
		return nil, err
	}
	if err := f.Restore(fld); err != nil {
		return nil, err
	}
	return fld, nil
}
