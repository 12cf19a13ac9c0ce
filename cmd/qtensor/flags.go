package main

import "github.com/urfave/cli/v3"

var (
	configPath        string
	logLevel          string
	logFormat         string
	debug             bool
	threads           int64
	backendName       string
	parallelThreshold int64
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default ~/.config/qtensor/config.yaml)",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Aliases:     []string{"t"},
			Usage:       "worker threads (default $QTENSOR_NUM_THREADS or the CPU count)",
			Destination: &threads,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "default backend (auto, scalar, simd, parallel)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.Int64Flag{
			Name:        "parallel-threshold",
			Usage:       "minimum blocks before auto picks the parallel backend",
			Destination: &parallelThreshold,
		},
	}
}

func formatFlag(dst *string, value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "format",
		Aliases:     []string{"f"},
		Usage:       "block format (f32, f16, bf16, q4_0, q4_1, q5_0, q5_1, q8_0, q8_1, q4_k, q6_k, q8_k)",
		Value:       value,
		Destination: dst,
	}
}
