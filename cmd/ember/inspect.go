package main

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ember/internal/dtype"
	"github.com/samcharles93/ember/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		limit    int64
		filter   string
		asJSON   bool
		noShards bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a safetensors checkpoint",
		ArgsUsage: "<path>",
		Flags: append(loggingFlags(),
			&cli.Int64Flag{Name: "limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &limit},
			&cli.StringFlag{Name: "filter", Usage: "substring filter for tensor listing", Destination: &filter},
			&cli.BoolFlag{Name: "json", Usage: "emit the manifest as JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "no-shards", Usage: "skip the shard listing", Destination: &noShards},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := LoadConfig()
			applyCommonConfig(c, cfg)
			path := resolveModelPath(c.Args().First(), cfg)
			if path == "" {
				return fmt.Errorf("usage: ember inspect <path>")
			}

			cp, err := safetensors.Open(path)
			if err != nil {
				return err
			}
			defer cp.Close()

			if asJSON {
				out, err := json.MarshalIndent(cp.Manifest, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			if !noShards {
				fmt.Printf("shards: %d\n", len(cp.Paths))
				for _, p := range cp.Paths {
					fmt.Printf("  %s\n", p)
				}
			}

			var (
				shown       int64
				totalBytes  int64
				totalParams int64
				matched     int
			)
			names := cp.Manifest.Names()
			fmt.Printf("tensors: %d\n", len(names))
			for _, name := range names {
				e := cp.Manifest[name]
				totalBytes += e.ByteLen()
				if n, err := dtype.NumElements(e.Shape); err == nil {
					totalParams += int64(n)
				}
				if filter != "" && !strings.Contains(name, filter) {
					continue
				}
				matched++
				if limit > 0 && shown >= limit {
					continue
				}
				shown++
				fmt.Printf("  %-56s %-5s %-18s %d bytes\n", name, e.DType, shapeString(e.Shape), e.ByteLen())
			}
			if limit > 0 && int64(matched) > shown {
				fmt.Printf("  ... %d more (use --limit 0)\n", int64(matched)-shown)
			}
			fmt.Printf("parameters: %d\n", totalParams)
			fmt.Printf("data size:  %d bytes\n", totalBytes)
			return nil
		},
	}
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
