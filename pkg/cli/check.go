package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/govai-platform/govai/pkg/net"
	"github.com/urfave/cli/v3"
)

const flagURL = "url"

func newCheckCmd() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Check the health of a running server",
		Action: cmdCheck,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagURL,
				Usage:   "Base URL of the server to check",
				Value:   "http://127.0.0.1:8080",
				Sources: cli.EnvVars("GOVAI_SERVER"),
			},
		},
	}
}

func cmdCheck(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	url := strings.TrimRight(cmd.String(flagURL), "/") + "/health"

	var h healthResponse
	if err := net.GetJSON(ctx, url, &h); err != nil {
		return fmt.Errorf("checking %s: %w", url, err)
	}
	if err := encode(cfg.Out, cfg.Format, h); err != nil {
		return err
	}
	if h.Status != statusHealthy {
		return fmt.Errorf("server is %s", h.Status)
	}
	return nil
}
