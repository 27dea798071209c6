package backend

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/kernel"
)

// acquire locks every field of k in serial order and makes res the
// authoritative residency for the whole launch. release unlocks them.
func acquire(k *kernel.Compiled, res field.Residency) (stores []field.Storage, release func(), err error) {
	fields := k.Fields()
	order := slices.Clone(fields)
	slices.SortFunc(order, func(a, b *field.Field) int { return cmp.Compare(a.Serial(), b.Serial()) })

	locked := 0
	release = func() {
		for _, f := range order[:locked] {
			f.Unlock()
		}
	}
	for _, f := range order {
		f.Lock()
		locked++
	}

	stores = make([]field.Storage, len(fields))
	for i, f := range fields {
		st, err := f.StorageFor(res)
		if err != nil {
			release()
			return nil, nil, err
		}
		stores[i] = st
	}
	return stores, release, nil
}

// runItems executes items [begin, end) of k on one frame. A non-nil stop
// is polled every 64 items. A panic inside the kernel ends the lane and is
// returned as an error.
func runItems(k *kernel.Compiled, fr *kernel.Frame, begin, end int, stop func() bool) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = laneError(k, rec)
		}
	}()
	for n := begin; n < end; n++ {
		if stop != nil && n&63 == 0 && stop() {
			return nil
		}
		if err := k.Exec(fr, n); err != nil {
			return err
		}
	}
	return nil
}

func laneError(k *kernel.Compiled, rec any) error {
	if recErr, ok := rec.(error); ok {
		return fmt.Errorf("kernel %q lane failed: %w", k.Name, recErr)
	}
	return fmt.Errorf("kernel %q lane failed: %v", k.Name, rec)
}
