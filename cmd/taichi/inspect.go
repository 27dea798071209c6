package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/timguo/taichi/pkg/snapshot"
)

type inspectReport struct {
	Path     string            `json:"path"`
	Format   string            `json:"format"`
	Version  int               `json:"version"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Fields   []snapshot.Entry  `json:"fields"`
}

func inspectCmd() *cli.Command {
	var (
		asJSON bool
		values []string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Describe the fields stored in a snapshot",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the header as JSON",
				Destination: &asJSON,
			},
			&cli.StringSliceFlag{
				Name:        "values",
				Usage:       "print the contents of a stored field (repeatable)",
				Destination: &values,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("usage: taichi inspect [--json] [--values name] <path>")
			}
			f, err := snapshot.Open(cmd.Args().First())
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			return inspect(os.Stdout, f, asJSON, values)
		},
	}
}

func inspect(w io.Writer, f *snapshot.File, asJSON bool, values []string) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(inspectReport{
			Path:     f.Path,
			Format:   snapshot.Format,
			Version:  snapshot.Version,
			Metadata: f.Metadata,
			Fields:   f.Entries,
		})
	}

	_, _ = fmt.Fprintf(w, "File: %s\n", f.Path)
	_, _ = fmt.Fprintf(w, "%s v%d | fields=%d\n", snapshot.Format, snapshot.Version, len(f.Entries))
	keys := make([]string, 0, len(f.Metadata))
	for k := range f.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", k, f.Metadata[k])
	}
	_, _ = fmt.Fprintln(w)
	for _, e := range f.Entries {
		_, _ = fmt.Fprintf(w, "%-12s %-4v shape=%v elem=%dx%d bytes=%d\n",
			e.Name, e.DType, e.Shape, e.Elem[0], e.Elem[1], e.Offsets[1]-e.Offsets[0])
	}

	for _, name := range values {
		fld, err := f.Field(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "\n%s:\n", fld)
		idx := make([]int, fld.Dims())
		for n := range fld.Count() {
			fld.Unravel(n, idx)
			m, err := fld.At(idx...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "  [%s] %v\n", joinInts(idx), m)
		}
	}
	return nil
}

func joinInts(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
