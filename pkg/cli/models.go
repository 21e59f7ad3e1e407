package cli

import (
	"context"

	"github.com/govai-platform/govai/pkg/service"
	"github.com/urfave/cli/v3"
)

func newModelsCmd() *cli.Command {
	return &cli.Command{
		Name:   "models",
		Usage:  "Show the model configuration the scorer would load",
		Action: cmdModels,
	}
}

func cmdModels(ctx context.Context, _ *cli.Command) error {
	cfg := getConfig(ctx)
	p := newPipeline(cfg.Config, nil, service.NoOpObserver{})
	return encode(cfg.Out, cfg.Format, newModelsResponse(p))
}
