package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/hostbuf"
)

// Write snapshots fields into w. Each field is read under its lock, so the
// stored contents never include a partially executed launch.
func Write(w io.Writer, meta map[string]string, fields ...*field.Field) error {
	hdr := header{Format: Format, Version: Version, Metadata: meta}
	bufs := make([]hostbuf.Buffer, len(fields))
	seen := make(map[string]bool, len(fields))
	var off int64
	for i, f := range fields {
		if seen[f.Name] {
			return fmt.Errorf("snapshot: duplicate field name %q", f.Name)
		}
		seen[f.Name] = true

		buf, err := hostbuf.ToHost(f)
		if err != nil {
			return err
		}
		bufs[i] = buf
		elem := f.Elem()
		size := int64(buf.Len() * elem.DType.Size())
		hdr.Fields = append(hdr.Fields, Entry{
			Name:    f.Name,
			DType:   elem.DType,
			Shape:   f.Shape(),
			Elem:    [2]int{elem.Rows, elem.Cols},
			Kind:    elem.Kind,
			Offsets: [2]int64{off, off + size},
		})
		off += size
	}

	js, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("encode snapshot header: %w", err)
	}
	for (8+len(js))%headerAlign != 0 {
		js = append(js, ' ')
	}

	bw := bufio.NewWriter(w)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(js)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := bw.Write(js); err != nil {
		return err
	}
	for _, buf := range bufs {
		if err := writeData(bw, buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeData encodes buf little-endian. w is buffered by the caller.
func writeData(w io.Writer, buf hostbuf.Buffer) error {
	var tmp [8]byte
	var err error
	switch data := buf.Data.(type) {
	case []int32:
		for _, v := range data {
			binary.LittleEndian.PutUint32(tmp[:4], uint32(v))
			if _, err = w.Write(tmp[:4]); err != nil {
				return err
			}
		}
	case []float32:
		for _, v := range data {
			binary.LittleEndian.PutUint32(tmp[:4], math.Float32bits(v))
			if _, err = w.Write(tmp[:4]); err != nil {
				return err
			}
		}
	case []float64:
		for _, v := range data {
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
			if _, err = w.Write(tmp[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Create writes a snapshot to path atomically: the data goes to a
// temporary file in the same directory which is then renamed.
func Create(path string, meta map[string]string, fields ...*field.Field) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = Write(tmp, meta, fields...); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
