package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/internal/logger"
	"github.com/samcharles93/qtensor/pkg/qtf"
)

func dequantizeCmd() *cli.Command {
	var (
		inPath     string
		outPath    string
		tensorName string
		precision  string
		kindName   string
	)

	return &cli.Command{
		Name:  "dequantize",
		Usage: "Decode a tensor from a .qtf file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "in",
				Aliases:     []string{"i"},
				Usage:       "input .qtf path",
				Required:    true,
				Destination: &inPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output file; .json writes an array, anything else raw little-endian values (default stdout JSON)",
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "tensor",
				Usage:       "tensor name (defaults to the first tensor)",
				Destination: &tensorName,
			},
			&cli.StringFlag{
				Name:        "precision",
				Aliases:     []string{"p"},
				Usage:       "output precision (f32, f16)",
				Value:       "f32",
				Destination: &precision,
			},
			&cli.StringFlag{
				Name:        "with",
				Usage:       "backend for this call (auto, scalar, simd, parallel)",
				Destination: &kindName,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			kind, err := resolveKind(kindName)
			if err != nil {
				return err
			}
			qf, err := qtf.Open(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %s: %v", inPath, err), 1)
			}
			defer func() { _ = qf.Close() }()

			if tensorName == "" {
				names := qf.Names()
				if len(names) == 0 {
					return cli.Exit(fmt.Sprintf("error: %s holds no tensors", inPath), 1)
				}
				tensorName = names[0]
			}
			t, err := qf.Tensor(tensorName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var (
				raw    []byte
				values any
			)
			switch strings.ToLower(precision) {
			case "f32":
				v, err := sess.disp.Dequantize(t, kind)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: dequantize: %v", err), 1)
				}
				raw, values = encodeF32(v), v
			case "f16":
				h, err := sess.disp.DequantizeF16(t, kind)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: dequantize: %v", err), 1)
				}
				wide := make([]float32, len(h))
				for i, x := range h {
					wide[i] = x.Float32()
				}
				raw, values = encodeF16(h), wide
			default:
				return cli.Exit(fmt.Sprintf("error: unknown precision %q (expected f32 or f16)", precision), 1)
			}

			if outPath == "" || strings.HasSuffix(strings.ToLower(outPath), ".json") {
				js, err := json.Marshal(values)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
				}
				if outPath == "" {
					_, err = fmt.Fprintln(os.Stdout, string(js))
					return err
				}
				raw = js
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", outPath, err), 1)
			}
			log.Info("dequantized", "tensor", tensorName, "format", t.Format().String(), "precision", precision, "out", outPath)
			return nil
		},
	}
}
