package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/engine"
	"github.com/timguo/taichi/internal/logger"
)

// options holds the flags shared by every subcommand.
type options struct {
	logLevel     string
	logFormat    string
	debug        bool
	arch         string
	defaultFloat string
	workers      int64
	configPath   string

	// file is the config file read by setup.
	file Config
}

var global options

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &global.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &global.logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &global.debug,
		},
	}
}

func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "arch",
			Usage:       "execution architecture (auto, cpu, parallel)",
			Value:       "auto",
			Sources:     cli.EnvVars("TAICHI_ARCH"),
			Destination: &global.arch,
		},
		&cli.StringFlag{
			Name:        "default-float",
			Usage:       "dtype of untyped float values in kernels (f32, f64)",
			Value:       "f32",
			Destination: &global.defaultFloat,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "parallel lanes (0 uses GOMAXPROCS)",
			Destination: &global.workers,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Destination: &global.configPath,
		},
	}
}

func (o options) level() slog.Level {
	if o.debug {
		return slog.LevelDebug
	}
	return logger.ParseLevel(o.logLevel)
}

func (o options) engineConfig() (engine.Config, error) {
	dt, err := dtype.Parse(o.defaultFloat)
	if err != nil {
		return engine.Config{}, fmt.Errorf("--default-float: %w", err)
	}
	return engine.Config{Arch: o.arch, DefaultFloat: dt, Workers: int(o.workers)}, nil
}

// setup merges the config file into the flags and returns the logger and
// engine configuration every subcommand starts from.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, engine.Config, error) {
	cfg, err := loadConfig(global.configPath)
	if err != nil {
		return ctx, engine.Config{}, err
	}
	applyConfig(cmd.IsSet, cfg, &global)
	global.file = cfg

	log, err := logger.ForFormat(global.logFormat, os.Stderr, global.level())
	if err != nil {
		return ctx, engine.Config{}, err
	}
	ecfg, err := global.engineConfig()
	if err != nil {
		return ctx, engine.Config{}, err
	}
	return logger.WithContext(ctx, log), ecfg, nil
}

// newEngine builds an engine from ctx's logger.
func newEngine(ctx context.Context, cfg engine.Config) (*engine.Engine, error) {
	return engine.New(cfg, logger.FromContext(ctx))
}
