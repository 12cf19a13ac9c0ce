package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/internal/api"
	"github.com/samcharles93/qtensor/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		noMetrics   bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the tensor REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.BoolFlag{
				Name:        "no-metrics",
				Usage:       "do not expose /metrics",
				Destination: &noMetrics,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			if sess.file.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = sess.file.ServerAddress
			}
			if sess.file.Metrics != nil && !*sess.file.Metrics && !cmd.IsSet("no-metrics") {
				noMetrics = true
			}

			opts := []api.Option{api.WithLogger(log.With("component", "api"))}
			if !noMetrics {
				opts = append(opts, api.WithGatherer(sess.registry))
			}
			server := api.NewServer(api.NewTensorStore(), sess.disp, opts...)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "metrics", !noMetrics)
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
