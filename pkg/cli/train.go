package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/train"
	"github.com/urfave/cli/v3"
)

const (
	flagSamples          = "samples"
	flagSeed             = "seed"
	flagInput            = "input"
	flagOut              = "out"
	flagDescriptorFormat = "descriptor-format"
	flagTrees            = "trees"
	flagEpochs           = "epochs"
)

func newTrainCmd() *cli.Command {
	return &cli.Command{
		Name:   "train",
		Usage:  "Train fraud models and write their configurations",
		Action: cmdTrain,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagSamples,
				Usage: "Number of synthetic contracts to generate",
				Value: train.DefaultSamples,
			},
			&cli.IntFlag{
				Name:  flagSeed,
				Usage: "Seed for data generation, splitting and model fitting",
				Value: train.DefaultSeed,
			},
			&cli.StringFlag{
				Name:  flagInput,
				Usage: "Labelled CSV (is_fraud column) to train on instead of synthetic data",
			},
			&cli.StringFlag{
				Name:  flagOut,
				Usage: "Directory to write model configurations to (default: models dir)",
			},
			&cli.StringFlag{
				Name:  flagDescriptorFormat,
				Usage: "Configuration descriptor format [json, yaml]",
				Value: "json",
			},
			&cli.IntFlag{
				Name:  flagTrees,
				Usage: "Trees per forest",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  flagEpochs,
				Usage: "Neural network training epochs",
				Value: 40,
			},
		},
	}
}

func cmdTrain(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	out := cmd.String(flagOut)
	if out == "" {
		out = cfg.Config.Models.Dir
	}
	seed := uint64(cmd.Int(flagSeed))

	opts := train.DefaultOptions(out)
	opts.Samples = int(cmd.Int(flagSamples))
	opts.Seed = seed
	opts.Format = cmd.String(flagDescriptorFormat)
	opts.Rules = cfg.Config.Scoring.Rules
	opts.Priors = cfg.Config.Scoring.Priors
	opts.Forest.Trees = int(cmd.Int(flagTrees))
	opts.Forest.Seed = seed
	opts.Isolation.Trees = int(cmd.Int(flagTrees))
	opts.Isolation.Seed = seed
	opts.Network.Epochs = int(cmd.Int(flagEpochs))
	opts.Network.Seed = seed

	if p := cmd.String(flagInput); p != "" {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("opening training data: %w", err)
		}
		rows, err := contract.ReadCSV(f)
		f.Close()
		if err != nil {
			return err
		}
		if opts.Input, err = train.SamplesFromRows(rows); err != nil {
			return err
		}
	}

	rep, err := train.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("training models: %w", err)
	}
	return encode(cfg.Out, cfg.Format, rep)
}
