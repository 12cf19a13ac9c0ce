package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/internal/backend"
	"github.com/samcharles93/qtensor/internal/config"
	"github.com/samcharles93/qtensor/internal/logger"
)

// session holds what setup resolves once for every command.
type session struct {
	file     config.Config
	dispatch backend.Config
	registry *prometheus.Registry
	disp     *backend.Dispatcher
}

var sess session

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	file, err := config.Load(path)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	applyConfig(cmd, file)

	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log := logger.Setup(os.Stderr, format, level)
	ctx = logger.WithContext(ctx, log)

	kind, err := backend.ParseKind(backendName)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	dc := file.Dispatch(backend.DefaultConfig())
	if cmd.IsSet("threads") && threads > 0 {
		dc.Threads = int(threads)
	}
	if cmd.IsSet("backend") || file.Backend != "" {
		dc.Backend = kind
	}
	if cmd.IsSet("parallel-threshold") && parallelThreshold > 0 {
		dc.ParallelThreshold = int(parallelThreshold)
	}

	reg := prometheus.NewRegistry()
	sess = session{
		file:     file,
		dispatch: dc,
		registry: reg,
		disp: backend.New(dc,
			backend.WithLogger(log.With("component", "dispatch")),
			backend.WithMetrics(backend.NewMetrics(reg)),
		),
	}
	if path != "" {
		log.Debug("configuration resolved", "config", path, "threads", dc.Threads, "backend", dc.Backend.String())
	}
	return ctx, nil
}

// applyConfig applies config file defaults to global flags that were not
// explicitly set.
func applyConfig(cmd *cli.Command, cfg config.Config) {
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.Backend != "" && !cmd.IsSet("backend") {
		backendName = cfg.Backend
	}
}

func teardown(ctx context.Context, cmd *cli.Command) error {
	if sess.disp == nil {
		return nil
	}
	return sess.disp.Close()
}

// resolveKind parses a per-command backend flag; empty defers to the
// dispatcher default.
func resolveKind(name string) (backend.Kind, error) {
	k, err := backend.ParseKind(name)
	if err != nil {
		return backend.Auto, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return k, nil
}
