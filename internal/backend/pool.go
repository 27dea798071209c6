package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/kernel"
)

var ErrClosed = errors.New("backend: pool is closed")

// minChunk keeps tiny domains from being spread over more lanes than is
// worth the channel traffic.
const minChunk = 16

type launch struct {
	k      *kernel.Compiled
	stores []field.Storage
	wg     sync.WaitGroup
	failed atomic.Bool
	once   sync.Once
	err    error
}

func (l *launch) fail(err error) {
	l.once.Do(func() {
		l.err = err
		l.failed.Store(true)
	})
}

func (l *launch) stopped() bool {
	return l.failed.Load()
}

type chunk struct {
	l          *launch
	begin, end int
}

// Pool is the parallel architecture: a fixed set of worker lanes shared by
// every launch. Each launch splits its domain into contiguous chunks; every
// lane runs its chunk on a private frame against the device mirror of the
// captured fields.
type Pool struct {
	size  int
	tasks chan chunk

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size worker lanes. size <= 0 uses GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = Lanes()
	}
	p := &Pool{
		size:  size,
		tasks: make(chan chunk, size*2),
	}
	for w := 0; w < size; w++ {
		go func() {
			for c := range p.tasks {
				c.run()
			}
		}()
	}
	return p
}

func (c chunk) run() {
	defer c.l.wg.Done()
	if c.l.stopped() {
		return
	}
	fr, err := c.l.k.NewFrame(c.l.stores)
	if err != nil {
		c.l.fail(err)
		return
	}
	if err := runItems(c.l.k, fr, c.begin, c.end, c.l.stopped); err != nil {
		c.l.fail(err)
	}
}

func (p *Pool) Name() string { return Parallel }

func (p *Pool) Residency() field.Residency { return field.Device }

// Size is the number of worker lanes.
func (p *Pool) Size() int { return p.size }

// Launch partitions k's domain over the lanes and waits for all of them.
// The first error wins; remaining lanes stop at their next check. ctx is
// only consulted before any chunk is queued. Static kernels run their
// unrolled paths on a single lane.
func (p *Pool) Launch(ctx context.Context, k *kernel.Compiled) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stores, release, err := acquire(k, field.Device)
	if err != nil {
		return err
	}
	defer release()

	size := k.Size()
	lanes := p.size
	if k.Static() {
		lanes = 1
	}
	lanes = max(min(lanes, (size+minChunk-1)/minChunk), 1)
	step := (size + lanes - 1) / lanes

	l := &launch{k: k, stores: stores}
	for begin := 0; begin < size; begin += step {
		l.wg.Add(1)
		p.tasks <- chunk{l: l, begin: begin, end: min(begin+step, size)}
	}
	l.wg.Wait()
	return l.err
}

// Close stops the worker lanes after in-flight launches finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.tasks)
	return nil
}
