package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/internal/backend"
	"github.com/samcharles93/qtensor/internal/gguf"
	"github.com/samcharles93/qtensor/internal/logger"
	"github.com/samcharles93/qtensor/internal/safetensors"
	"github.com/samcharles93/qtensor/pkg/qtf"
	"github.com/samcharles93/qtensor/pkg/quant"
)

// importSource is the part of a foreign container import needs.
type importSource struct {
	names    []string
	metadata map[string]string
	tensor   func(name string) (*quant.Tensor, error)
	close    func() error
}

// unsupported reports errors for tensors that have no block format.
func unsupported(err error) bool {
	return errors.Is(err, gguf.ErrUnsupportedType) || errors.Is(err, safetensors.ErrUnsupportedDType)
}

func openSource(path string) (*importSource, error) {
	if strings.EqualFold(filepath.Ext(path), ".safetensors") {
		sf, err := safetensors.Open(path)
		if err != nil {
			return nil, err
		}
		meta := make(map[string]string, len(sf.Metadata))
		maps.Copy(meta, sf.Metadata)
		return &importSource{names: sf.Names(), metadata: meta, tensor: sf.Tensor, close: sf.Close}, nil
	}

	gf, err := gguf.Open(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(gf.Tensors))
	for i, ti := range gf.Tensors {
		names[i] = ti.Name
	}
	return &importSource{names: names, metadata: gguf.Metadata(gf.KV), tensor: gf.Tensor, close: gf.Close}, nil
}

// convert re-encodes t into target through the dispatcher. Tensors whose
// element count does not fill whole target blocks are returned unchanged
// with ok false.
func convert(disp *backend.Dispatcher, t *quant.Tensor, target quant.Format, kind backend.Kind) (*quant.Tensor, bool, error) {
	if t.Format() == target {
		return t, true, nil
	}
	if !quant.IsMultipleOf(t.Elements(), target.BlockSize()) {
		return t, false, nil
	}
	vals, err := disp.Dequantize(t, kind)
	if err != nil {
		return nil, false, err
	}
	out, err := disp.Quantize(vals, t.Shape(), target, kind)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func importCmd() *cli.Command {
	var (
		inPath   string
		outPath  string
		filter   string
		format   string
		kindName string
		strict   bool
	)

	return &cli.Command{
		Name:  "import",
		Usage: "Copy the tensors of a GGUF or safetensors file into a .qtf file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "in",
				Aliases:     []string{"i"},
				Usage:       "input .gguf or .safetensors path",
				Required:    true,
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
				Name:        "filter",
				Usage:       "only import tensors whose name contains this substring",
				Destination: &filter,
			},
			formatFlag(&format, ""),
			&cli.StringFlag{
				Name:        "with",
				Usage:       "backend used when re-encoding with --format",
				Destination: &kindName,
			},
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "fail on tensors that cannot be imported instead of skipping them",
				Destination: &strict,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			var target quant.Format
			requant := format != ""
			if requant {
				f, err := quant.ParseFormat(format)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				target = f
			}
			kind, err := resolveKind(kindName)
			if err != nil {
				return err
			}

			src, err := openSource(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %s: %v", inPath, err), 1)
			}
			defer func() { _ = src.close() }()

			var entries []qtf.Entry
			skipped := 0
			for _, name := range src.names {
				if filter != "" && !strings.Contains(name, filter) {
					continue
				}
				t, err := src.tensor(name)
				if unsupported(err) && !strict {
					log.Warn("skipping tensor", "tensor", name, "error", err)
					skipped++
					continue
				}
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				if requant {
					out, ok, err := convert(sess.disp, t, target, kind)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %s: %v", name, err), 1)
					}
					if !ok {
						if strict {
							return cli.Exit(fmt.Sprintf("error: %s: %d elements do not fill %s blocks", name, t.Elements(), target), 1)
						}
						log.Warn("keeping source format", "tensor", name, "format", t.Format().String(), "elements", t.Elements())
					}
					t = out
				}
				entries = append(entries, qtf.Entry{Name: name, Tensor: t})
			}
			if err := sess.disp.Sync(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			meta := src.metadata
			meta["created_by"] = "qtensor import"
			meta["source"] = inPath
			if err := qtf.WriteFile(outPath, meta, entries); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", outPath, err), 1)
			}
			log.Info("imported", "tensors", len(entries), "skipped", skipped, "out", outPath)
			return nil
		},
	}
}
