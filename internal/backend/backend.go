// Package backend dispatches compiled kernels over their iteration domain.
// The cpu architecture is the sequential reference; parallel partitions the
// domain across a pool of worker lanes.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/kernel"
)

const (
	CPU      = "cpu"
	Parallel = "parallel"
	Auto     = "auto"
)

// Backend runs compiled kernels. Launch blocks until every domain index
// has executed or the first error ends the launch.
type Backend interface {
	Name() string
	// Residency is the copy of field data the backend's lanes work on.
	Residency() field.Residency
	Launch(ctx context.Context, k *kernel.Compiled) error
	Close() error
}

func Normalize(name string) (string, error) {
	arch := strings.ToLower(strings.TrimSpace(name))
	if arch == "" {
		return Auto, nil
	}
	switch arch {
	case CPU, Parallel, Auto:
		return arch, nil
	case "gpu", "accelerator":
		return Parallel, nil
	default:
		return "", fmt.Errorf("unknown arch %q (expected auto, cpu, or parallel)", arch)
	}
}

// Resolve normalizes name and maps auto to a concrete architecture.
func Resolve(name string) (string, error) {
	arch, err := Normalize(name)
	if err != nil {
		return "", err
	}
	if arch == Auto {
		return Parallel, nil
	}
	return arch, nil
}

// New returns the backend for arch. workers <= 0 uses GOMAXPROCS lanes.
func New(arch string, workers int) (Backend, error) {
	arch, err := Resolve(arch)
	if err != nil {
		return nil, err
	}
	if arch == CPU {
		return NewSerial(), nil
	}
	return NewPool(workers), nil
}
