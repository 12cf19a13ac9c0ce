package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/internal/backend"
	"github.com/samcharles93/qtensor/internal/logger"
	"github.com/samcharles93/qtensor/pkg/quant"
)

type benchResult struct {
	Backend   backend.Kind `json:"backend"`
	Precision string       `json:"precision"`
	Iters     int          `json:"iterations"`
	NsPerOp   float64      `json:"ns_per_op"`
	MBPerSec  float64      `json:"mb_per_s"`
}

type benchReport struct {
	RunID   string        `json:"run_id"`
	Format  quant.Format  `json:"format"`
	Shape   []int         `json:"shape"`
	Threads int           `json:"threads"`
	Results []benchResult `json:"results"`
}

func benchCmd() *cli.Command {
	var (
		format    string
		shapeSpec string
		iters     int64
		warmup    int64
		seed      int64
		kindName  string
		asJSON    bool
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Measure dequantization throughput per backend",
		Flags: []cli.Flag{
			formatFlag(&format, "q8_0"),
			&cli.StringFlag{
				Name:        "shape",
				Aliases:     []string{"s"},
				Usage:       "tensor shape",
				Value:       "64x128",
				Destination: &shapeSpec,
			},
			&cli.Int64Flag{
				Name:        "iters",
				Aliases:     []string{"n"},
				Usage:       "iterations per measurement",
				Value:       1000,
				Destination: &iters,
			},
			&cli.Int64Flag{
				Name:        "warmup",
				Usage:       "untimed iterations before each measurement",
				Value:       10,
				Destination: &warmup,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       42,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "with",
				Usage:       "only measure this backend (default: every available one)",
				Destination: &kindName,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			f, err := quant.ParseFormat(format)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			shape, err := parseShape(shapeSpec)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if iters <= 0 {
				return cli.Exit("error: --iters must be positive", 1)
			}
			n, err := shape.Elements()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			t, err := quant.Quantize(randomValues(n, uint64(seed)), shape, f)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize: %v", err), 1)
			}

			caps := sess.disp.Capabilities()
			kinds := caps.Backends()
			if kindName != "" {
				k, err := resolveKind(kindName)
				if err != nil {
					return err
				}
				if err := caps.Check(k); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				kinds = []backend.Kind{k}
			}

			report := benchReport{
				RunID:   uuid.NewString(),
				Format:  f,
				Shape:   shape,
				Threads: caps.Threads,
			}
			log.Info("benchmark starting", "run_id", report.RunID, "format", f.String(), "shape", shape.String(), "iters", iters)

			for _, k := range kinds {
				for _, prec := range []string{"f32", "f16"} {
					res, err := runDequantBench(t, k, prec, int(warmup), int(iters))
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %s/%s: %v", k, prec, err), 1)
					}
					report.Results = append(report.Results, res)
				}
			}

			if asJSON {
				js, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(js))
				return nil
			}

			fmt.Printf("=== dequant_%s %s ===\n", f, shape)
			fmt.Printf("Run:        %s\n", report.RunID)
			fmt.Printf("Threads:    %d\n", caps.Threads)
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Features:   %v\n\n", caps.Features())
			fmt.Printf("%-10s %-5s %10s %14s %12s\n", "backend", "prec", "iters", "ns/op", "MB/s")
			for _, r := range report.Results {
				fmt.Printf("%-10s %-5s %10d %14.1f %12.1f\n", r.Backend, r.Precision, r.Iters, r.NsPerOp, r.MBPerSec)
			}
			return nil
		},
	}
}

// runDequantBench times iters full decodes followed by one Sync, the way a
// device benchmark waits for queued work before stopping the clock.
func runDequantBench(t *quant.Tensor, k backend.Kind, prec string, warmup, iters int) (benchResult, error) {
	decode := func() error {
		if prec == "f16" {
			_, err := sess.disp.DequantizeF16(t, k)
			return err
		}
		_, err := sess.disp.Dequantize(t, k)
		return err
	}
	for range warmup {
		if err := decode(); err != nil {
			return benchResult{}, err
		}
	}
	start := time.Now()
	for range iters {
		if err := decode(); err != nil {
			return benchResult{}, err
		}
	}
	if err := sess.disp.Sync(); err != nil {
		return benchResult{}, err
	}
	elapsed := time.Since(start)

	nsPerOp := float64(elapsed.Nanoseconds()) / float64(iters)
	return benchResult{
		Backend:   k,
		Precision: prec,
		Iters:     iters,
		NsPerOp:   nsPerOp,
		MBPerSec:  float64(t.Size()) / nsPerOp * 1e3,
	}, nil
}
