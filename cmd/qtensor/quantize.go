package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/internal/logger"
	"github.com/samcharles93/qtensor/pkg/qtf"
	"github.com/samcharles93/qtensor/pkg/quant"
)

func quantizeCmd() *cli.Command {
	var (
		inPath    string
		outPath   string
		name      string
		shapeSpec string
		format    string
		random    bool
		seed      int64
		kindName  string
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize float32 values into a .qtf file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "in",
				Aliases:     []string{"i"},
				Usage:       "input values (.json array or raw little-endian float32)",
				Destination: &inPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .qtf path",
				Required:    true,
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "tensor name stored in the file",
				Value:       "tensor",
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "shape",
				Aliases:     []string{"s"},
				Usage:       "tensor shape, e.g. 64x128 (defaults to a flat vector)",
				Destination: &shapeSpec,
			},
			formatFlag(&format, "q8_0"),
			&cli.BoolFlag{
				Name:        "random",
				Usage:       "quantize standard-normal values instead of --in",
				Destination: &random,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "seed for --random",
				Value:       42,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "with",
				Usage:       "backend for this call (auto, scalar, simd, parallel)",
				Destination: &kindName,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			f, err := quant.ParseFormat(format)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			kind, err := resolveKind(kindName)
			if err != nil {
				return err
			}

			var shape quant.Shape
			if shapeSpec != "" {
				if shape, err = parseShape(shapeSpec); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}

			var values []float32
			switch {
			case random:
				if shape == nil {
					return cli.Exit("error: --random needs --shape", 1)
				}
				n, _ := shape.Elements()
				values = randomValues(n, uint64(seed))
			case inPath != "":
				if values, err = readValues(inPath); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			default:
				return cli.Exit("error: one of --in or --random is required", 1)
			}
			if shape == nil {
				shape = quant.Shape{len(values)}
			}

			start := time.Now()
			t, err := sess.disp.Quantize(values, shape, f, kind)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize: %v", err), 1)
			}
			meta := map[string]string{"created_by": "qtensor quantize"}
			if err := qtf.WriteFile(outPath, meta, []qtf.Entry{{Name: name, Tensor: t}}); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", outPath, err), 1)
			}
			log.Info("quantized",
				"tensor", name,
				"format", f.String(),
				"shape", shape.String(),
				"bytes", t.Size(),
				"out", outPath,
				"elapsed", time.Since(start),
			)
			return nil
		},
	}
}
