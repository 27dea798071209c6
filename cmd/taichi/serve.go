package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/timguo/taichi/internal/api"
	"github.com/timguo/taichi/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxRuns     int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the diagnostics API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-check-runs",
				Usage:       "check runs kept in memory",
				Value:       api.DefaultMaxRuns,
				Destination: &maxRuns,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			applyServeConfig(cmd.IsSet, global.file, &addr, &maxRuns)
			log := logger.FromContext(ctx)

			eng, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			server := api.NewServer(api.NewCheckStore(int(maxRuns)), eng, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "arch", eng.Arch())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
