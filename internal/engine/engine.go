// Package engine ties fields, the kernel compiler and the backends together
// behind one explicitly configured value. There is no global runtime state:
// every Engine owns its backend and configuration.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timguo/taichi/internal/backend"
	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/field"
	"github.com/timguo/taichi/internal/hostbuf"
	"github.com/timguo/taichi/internal/kernel"
	"github.com/timguo/taichi/internal/logger"
)

type Config struct {
	// Arch selects the backend: cpu, parallel or auto.
	Arch string
	// DefaultFloat is the dtype of untyped float values in kernels.
	DefaultFloat dtype.DType
	// Workers is the parallel lane count; 0 uses GOMAXPROCS.
	Workers int
}

func DefaultConfig() Config {
	return Config{Arch: backend.Auto, DefaultFloat: dtype.F32}
}

func (c Config) validate() error {
	if _, err := backend.Normalize(c.Arch); err != nil {
		return err
	}
	if !c.DefaultFloat.IsFloat() {
		return fmt.Errorf("default float must be f32 or f64, got %v", c.DefaultFloat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

type Engine struct {
	cfg Config
	log logger.Logger

	mu      sync.RWMutex
	backend backend.Backend
}

func New(cfg Config, log logger.Logger) (*Engine, error) {
	if cfg.DefaultFloat == dtype.Invalid {
		cfg.DefaultFloat = dtype.F32
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	b, err := backend.New(cfg.Arch, cfg.Workers)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, log: log.With("component", "engine"), backend: b}
	e.log.Debug("engine ready", "arch", b.Name(), "default_float", cfg.DefaultFloat, "workers", cfg.Workers)
	return e, nil
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Arch is the name of the active backend.
func (e *Engine) Arch() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backend.Name()
}

// SetArch switches the backend. Fields keep their contents: the next
// launch synchronises them into the residency of the new backend.
func (e *Engine) SetArch(name string) error {
	b, err := backend.New(name, e.cfg.Workers)
	if err != nil {
		return err
	}
	e.mu.Lock()
	old := e.backend
	e.backend = b
	e.cfg.Arch = name
	e.mu.Unlock()

	if old.Name() != b.Name() {
		e.log.Info("arch switched", "from", old.Name(), "to", b.Name())
	}
	return old.Close()
}

// Compile compiles a kernel with the engine's default float.
func (e *Engine) Compile(name string, src kernel.Source, build func(b *kernel.Body, i kernel.Index)) (*kernel.Compiled, error) {
	k, err := kernel.Compile(kernel.New(name, src, build), kernel.Options{DefaultFloat: e.cfg.DefaultFloat})
	if err != nil {
		e.log.Debug("compile failed", "kernel", name, "err", err)
		return nil, err
	}
	return k, nil
}

// Launch runs k on the active backend and blocks until it completes. An
// arch switch waits for in-flight launches.
func (e *Engine) Launch(ctx context.Context, k *kernel.Compiled) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b := e.backend

	start := time.Now()
	err := b.Launch(ctx, k)
	if err != nil {
		e.log.Debug("launch failed", "kernel", k.Name, "arch", b.Name(), "err", err)
		return err
	}
	e.log.Debug("launch", "kernel", k.Name, "arch", b.Name(), "domain", k.Domain.Kind, "size", k.Size(), "took", time.Since(start))
	return nil
}

// Run compiles and launches a kernel once.
func (e *Engine) Run(ctx context.Context, name string, src kernel.Source, build func(b *kernel.Body, i kernel.Index)) error {
	k, err := e.Compile(name, src, build)
	if err != nil {
		return err
	}
	return e.Launch(ctx, k)
}

// FromHost copies buf into f.
func (e *Engine) FromHost(f *field.Field, buf hostbuf.Buffer) error {
	return hostbuf.FromHost(f, buf)
}

// ToHost snapshots f. The snapshot reflects only completed launches.
func (e *Engine) ToHost(f *field.Field) (hostbuf.Buffer, error) {
	return hostbuf.ToHost(f)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Close()
}
