package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/pkg/quant"
)

func formatsCmd() *cli.Command {
	var showFields bool
	return &cli.Command{
		Name:  "formats",
		Usage: "List the supported block formats",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "fields",
				Usage:       "also print the byte layout of each block",
				Destination: &showFields,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("%-6s %6s %6s %6s %6s %9s %s\n", "name", "block", "bytes", "bits", "group", "symmetric", "bpw")
			for _, f := range quant.Formats() {
				d := f.Descriptor()
				fmt.Printf("%-6s %6d %6d %6d %6d %9t %.3f\n",
					d.Name, d.BlockSize, d.TypeSize, d.ElementBits, d.GroupSize, d.Symmetric,
					float64(d.TypeSize*8)/float64(d.BlockSize))
				if showFields {
					parts := make([]string, len(d.Fields))
					for i, fl := range d.Fields {
						parts[i] = fmt.Sprintf("%s[%d:%d]", fl.Name, fl.Offset, fl.Offset+fl.Size)
					}
					fmt.Printf("       %s\n", strings.Join(parts, " "))
				}
			}
			return nil
		},
	}
}

func capsCmd() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:  "caps",
		Usage: "Show detected CPU features and available backends",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			caps := sess.disp.Capabilities()
			if asJSON {
				js, err := json.MarshalIndent(map[string]any{
					"capabilities": caps,
					"backends":     caps.Backends(),
					"default":      sess.dispatch.Backend,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(js))
				return nil
			}
			fmt.Println(caps.String())
			fmt.Printf("default backend: %s\n", sess.dispatch.Backend)
			fmt.Printf("parallel threshold: %d blocks\n", sess.dispatch.ParallelThreshold)
			return nil
		},
	}
}
