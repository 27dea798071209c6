package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the taichi configuration file
// (~/.config/taichi/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	Arch         string `yaml:"arch"`
	DefaultFloat string `yaml:"default_float"`
	Workers      *int64 `yaml:"workers"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
	MaxCheckRuns  *int64 `yaml:"max_check_runs"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "taichi", "config.yaml")
}

// loadConfig reads the config file. A missing file yields a zero Config.
func loadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig applies config file values to o when the corresponding flag
// was not explicitly set.
func applyConfig(isSet func(name string) bool, cfg Config, o *options) {
	if cfg.Arch != "" && !isSet("arch") {
		o.arch = cfg.Arch
	}
	if cfg.DefaultFloat != "" && !isSet("default-float") {
		o.defaultFloat = cfg.DefaultFloat
	}
	if cfg.Workers != nil && !isSet("workers") {
		o.workers = *cfg.Workers
	}
	if cfg.LogLevel != "" && !isSet("log-level") {
		o.logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !isSet("log-format") {
		o.logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(isSet func(name string) bool, cfg Config, addr *string, maxRuns *int64) {
	if cfg.ServerAddress != "" && !isSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxCheckRuns != nil && !isSet("max-check-runs") {
		*maxRuns = *cfg.MaxCheckRuns
	}
}
