package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qtensor/internal/version"
)

func versionCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print build metadata as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			if asJSON {
				js, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				fmt.Println(string(js))
				return nil
			}
			fmt.Printf("qtensor %s\n", info)
			if info.Commit != "" {
				fmt.Printf("  commit  %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				fmt.Printf("  built   %s\n", info.BuildTime)
			}
			fmt.Printf("  go      %s\n", info.GoVersion)
			return nil
		},
	}
}
