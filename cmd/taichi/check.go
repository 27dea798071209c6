package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/timguo/taichi/internal/backend"
	"github.com/timguo/taichi/internal/logger"
	"github.com/timguo/taichi/internal/selftest"
)

func checkCmd() *cli.Command {
	var (
		scenarios []string
		allArchs  bool
		asJSON    bool
		list      bool
	)

	return &cli.Command{
		Name:  "check",
		Usage: "Run the built-in verification scenarios",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "scenario",
				Aliases:     []string{"s"},
				Usage:       "scenario to run (repeatable; default all)",
				Destination: &scenarios,
			},
			&cli.BoolFlag{
				Name:        "all-archs",
				Usage:       "run every scenario on each architecture",
				Destination: &allArchs,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "list",
				Usage:       "list scenario names and exit",
				Destination: &list,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if list {
				for _, name := range selftest.Names() {
					fmt.Println(name)
				}
				return nil
			}
			ctx, cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)

			archs := []string{cfg.Arch}
			if allArchs {
				archs = []string{backend.CPU, backend.Parallel}
			}
			log.Info("host", "features", strings.Join(backend.Features(), ","), "lanes", backend.Lanes())

			var results []selftest.Result
			for _, arch := range archs {
				cfg.Arch = arch
				e, err := newEngine(ctx, cfg)
				if err != nil {
					return err
				}
				res, err := selftest.Run(ctx, e, scenarios...)
				_ = e.Close()
				if err != nil {
					return err
				}
				results = append(results, res...)
			}
			if err := writeResults(os.Stdout, results, asJSON); err != nil {
				return err
			}
			return failures(results)
		},
	}
}

func writeResults(w io.Writer, results []selftest.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SCENARIO\tARCH\tRESULT\tMAX ERROR\tTIME")
	for _, r := range results {
		status := "ok"
		if !r.Passed {
			status = "FAIL: " + r.Message
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%.3g\t%s\n", r.Name, r.Arch, status, r.MaxError, r.Duration.Round(time.Microsecond))
	}
	return tw.Flush()
}

func failures(results []selftest.Result) error {
	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	return nil
}
