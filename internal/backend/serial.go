package backend

import (
	"context"

	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/kernel"
)

// Serial is the sequential reference architecture. It runs every domain
// index in order on the calling goroutine, against host storage.
type Serial struct{}

func NewSerial() *Serial {
	return &Serial{}
}

func (s *Serial) Name() string { return CPU }

func (s *Serial) Residency() field.Residency { return field.Host }

// Launch runs k to completion. ctx is only consulted before the first
// index; a launch that has started is not interrupted.
func (s *Serial) Launch(ctx context.Context, k *kernel.Compiled) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stores, release, err := acquire(k, field.Host)
	if err != nil {
		return err
	}
	defer release()

	fr, err := k.NewFrame(stores)
	if err != nil {
		return err
	}
	return runItems(k, fr, 0, k.Size(), nil)
}

func (s *Serial) Close() error { return nil }
