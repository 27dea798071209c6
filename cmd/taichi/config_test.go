package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/timguo/taichi/internal/dtype"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Arch != "" || cfg.Workers != nil {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("reads values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "arch: cpu\ndefault_float: f64\nworkers: 3\nlog_format: json\nserver_address: 0.0.0.0:9000\nmax_check_runs: 5\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := loadConfig(path)
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Arch != "cpu" || cfg.DefaultFloat != "f64" || cfg.Workers == nil || *cfg.Workers != 3 {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.ServerAddress != "0.0.0.0:9000" || cfg.MaxCheckRuns == nil || *cfg.MaxCheckRuns != 5 {
			t.Fatalf("unexpected server config: %+v", cfg)
		}
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("workers: [1,"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := loadConfig(path); err == nil {
			t.Fatalf("expected parse error")
		}
	})
}

func TestApplyConfigRespectsExplicitFlags(t *testing.T) {
	workers := int64(6)
	cfg := Config{Arch: "cpu", DefaultFloat: "f64", Workers: &workers, LogLevel: "warn"}
	o := options{arch: "parallel", defaultFloat: "f32", logLevel: "info", logFormat: "pretty"}

	set := map[string]bool{"arch": true}
	applyConfig(func(name string) bool { return set[name] }, cfg, &o)

	if o.arch != "parallel" {
		t.Fatalf("explicit --arch overridden: %q", o.arch)
	}
	if o.defaultFloat != "f64" || o.workers != 6 || o.logLevel != "warn" || o.logFormat != "pretty" {
		t.Fatalf("unexpected options: %+v", o)
	}

	ecfg, err := o.engineConfig()
	if err != nil {
		t.Fatalf("engineConfig: %v", err)
	}
	if ecfg.Arch != "parallel" || ecfg.DefaultFloat != dtype.F64 || ecfg.Workers != 6 {
		t.Fatalf("unexpected engine config: %+v", ecfg)
	}
	if o.level() != slog.LevelWarn {
		t.Fatalf("level = %v", o.level())
	}
	o.debug = true
	if o.level() != slog.LevelDebug {
		t.Fatalf("--debug level = %v", o.level())
	}
}

func TestApplyServeConfig(t *testing.T) {
	runs := int64(9)
	cfg := Config{ServerAddress: ":9999", MaxCheckRuns: &runs}
	addr, maxRuns := "127.0.0.1:8080", int64(64)

	applyServeConfig(func(name string) bool { return name == "addr" }, cfg, &addr, &maxRuns)
	if addr != "127.0.0.1:8080" || maxRuns != 9 {
		t.Fatalf("addr=%q maxRuns=%d", addr, maxRuns)
	}
}

func TestEngineConfigRejectsBadFloat(t *testing.T) {
	o := options{arch: "cpu", defaultFloat: "f16"}
	if _, err := o.engineConfig(); err == nil {
		t.Fatalf("expected error for f16")
	}
}
