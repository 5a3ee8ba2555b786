package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ember/internal/dtype"
	"github.com/samcharles93/ember/internal/loader"
	"github.com/samcharles93/ember/internal/record"
)

func loadCmd() *cli.Command {
	var (
		target  string
		strict  bool
		copyAll bool
		workers int64
	)

	return &cli.Command{
		Name:      "load",
		Usage:     "Load and validate a checkpoint, then report on it",
		ArgsUsage: "<path>",
		Flags: append(loggingFlags(),
			&cli.StringFlag{Name: "target", Usage: "materialize weights as this dtype (F32, F16, BF16)", Value: "F32", Destination: &target},
			&cli.BoolFlag{Name: "strict", Usage: "treat tensors absent from the schema as errors", Destination: &strict},
			&cli.BoolFlag{Name: "copy", Usage: "copy tensors out of the file mappings", Destination: &copyAll},
			&cli.Int64Flag{Name: "workers", Usage: "concurrent tensor materialization (0 = serial)", Destination: &workers},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := LoadConfig()
			applyCommonConfig(c, cfg)
			applyLoadConfig(c, cfg, &target, &workers)
			ctx = loggerContext(ctx)

			path := resolveModelPath(c.Args().First(), cfg)
			if path == "" {
				return fmt.Errorf("usage: ember load <path>")
			}
			d, ok := dtype.Parse(strings.ToUpper(target))
			if !ok {
				return fmt.Errorf("unknown target dtype %q", target)
			}

			m, err := loader.Load(ctx, path, loader.Options{
				Target:      d,
				Strict:      strict,
				CopyTensors: copyAll,
				Workers:     int(workers),
			})
			if err != nil {
				var vErr *record.ValidationError
				if errors.As(err, &vErr) {
					for _, p := range vErr.Problems {
						fmt.Printf("problem: %v\n", p)
					}
					return fmt.Errorf("checkpoint failed validation with %d problems", len(vErr.Problems))
				}
				return err
			}
			defer m.Close()

			fmt.Printf("architecture: %s\n", m.Arch)
			fmt.Printf("layers:       %d\n", m.Params.NumHiddenLayers)
			fmt.Printf("hidden size:  %d\n", m.Params.HiddenSize)
			fmt.Printf("vocab size:   %d\n", m.Params.VocabSize)
			fmt.Printf("shards:       %d\n", len(m.Paths))
			var tensors int
			m.Weights.Walk(func(string, *record.Tensor) { tensors++ })
			fmt.Printf("tensors:      %d (as %s)\n", tensors, d)
			for _, diag := range m.Diagnostics {
				fmt.Printf("diagnostic:   %s\n", diag)
			}
			fmt.Println("ok")
			return nil
		},
	}
}
