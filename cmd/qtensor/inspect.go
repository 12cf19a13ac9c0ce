package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"github.com/viterin/vek/vek32"

	"github.com/samcharles93/qtensor/internal/backend"
	"github.com/samcharles93/qtensor/pkg/qtf"
)

func inspectCmd() *cli.Command {
	var (
		asJSON    bool
		showStats bool
		filter    string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header and tensor index of a .qtf file",
		ArgsUsage: "<file.qtf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the header as JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "decode each tensor and print value statistics",
				Destination: &showStats,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only show tensors whose name contains this substring",
				Destination: &filter,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("error: inspect needs a .qtf path", 1)
			}
			stat, err := os.Stat(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat %q: %v", path, err), 1)
			}
			qf, err := qtf.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open qtf: %v", err), 1)
			}
			defer func() { _ = qf.Close() }()

			infos := slices.DeleteFunc(slices.Clone(qf.Header.Tensors), func(ti qtf.TensorInfo) bool {
				return filter != "" && !strings.Contains(ti.Name, filter)
			})

			if asJSON {
				hdr := qtf.Header{Metadata: qf.Header.Metadata, Tensors: infos}
				js, err := json.MarshalIndent(hdr, "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
				}
				fmt.Println(string(js))
				return nil
			}

			fmt.Printf("QTF Inspect: %s\n", path)
			fmt.Printf("File: %s (%s)\n", filepath.Base(path), formatBytes(uint64(stat.Size())))
			printPreamble(qf.Preamble)

			if len(qf.Header.Metadata) > 0 {
				section("Metadata")
				keys := make([]string, 0, len(qf.Header.Metadata))
				for k := range qf.Header.Metadata {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				for _, k := range keys {
					row(k, qf.Header.Metadata[k])
				}
			}

			section(fmt.Sprintf("Tensors (%d)", len(infos)))
			fmt.Printf("%-32s %-6s %-16s %12s %12s\n", "name", "format", "shape", "offset", "size")
			var total uint64
			for _, ti := range infos {
				fmt.Printf("%-32s %-6s %-16s %12d %12s\n", ti.Name, ti.Format, formatShape(ti.Shape), ti.Offset, formatBytes(ti.Size))
				total += ti.Size
			}
			row("total payload", formatBytes(total))

			if showStats {
				section("Statistics")
				fmt.Printf("%-32s %12s %12s %12s %12s\n", "name", "min", "max", "mean", "absmax")
				for _, ti := range infos {
					t, err := qf.Tensor(ti.Name)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %v", err), 1)
					}
					vals, err := sess.disp.Dequantize(t, backend.Auto)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: dequantize %s: %v", ti.Name, err), 1)
					}
					if len(vals) == 0 {
						fmt.Printf("%-32s %12s\n", ti.Name, "empty")
						continue
					}
					lo, hi := vek32.Min(vals), vek32.Max(vals)
					fmt.Printf("%-32s %12.5g %12.5g %12.5g %12.5g\n", ti.Name, lo, hi, vek32.Mean(vals), max(-lo, hi))
				}
			}
			return nil
		},
	}
}

func printPreamble(p qtf.Preamble) {
	flags := []string{}
	if p.Flags&qtf.FlagTensorDataAligned64 != 0 {
		flags = append(flags, "tensor_data_aligned64")
	}
	flagStr := "none"
	if len(flags) > 0 {
		flagStr = strings.Join(flags, ", ")
	}
	fmt.Printf("QTF Header: v%d.%d header=%dB flags=%s\n", p.Major, p.Minor, p.HeaderLen, flagStr)
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-24s %s\n", label+":", value)
}

func formatShape(shape []int) string {
	if len(shape) == 0 {
		return "[]"
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, "x") + "]"
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
