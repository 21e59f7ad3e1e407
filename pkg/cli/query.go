package cli

import (
	"context"
	"fmt"

	"github.com/govai-platform/govai/pkg/data"
	"github.com/govai-platform/govai/pkg/risk"
	"github.com/urfave/cli/v3"
)

const (
	flagLimit     = "limit"
	flagRiskLevel = "risk-level"
	flagTop       = "top"
)

func newListCmd() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List assessed contracts, largest first",
		Action: cmdList,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagRiskLevel,
				Usage: "Only list contracts at this level [LOW, MEDIUM, HIGH, CRITICAL]",
			},
			&cli.IntFlag{
				Name:  flagLimit,
				Usage: "Limits number of result returned",
				Value: data.DefaultContractLimit,
			},
		},
	}
}

func newSummaryCmd() *cli.Command {
	return &cli.Command{
		Name:   "summary",
		Usage:  "Summarize stored assessments by risk level and supplier",
		Action: cmdSummary,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagTop,
				Usage: "Number of suppliers to rank by contracted value",
				Value: data.DefaultTopSuppliers,
			},
		},
	}
}

func cmdList(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	var level risk.Level
	if v := cmd.String(flagRiskLevel); v != "" {
		l, err := risk.ParseLevel(v)
		if err != nil {
			return err
		}
		level = l
	}

	db, err := cfg.DB()
	if err != nil {
		return err
	}
	list, err := data.GetContracts(ctx, db, level, int(cmd.Int(flagLimit)))
	if err != nil {
		return fmt.Errorf("listing contracts: %w", err)
	}
	return encode(cfg.Out, cfg.Format, list)
}

func cmdSummary(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	db, err := cfg.DB()
	if err != nil {
		return err
	}
	s, err := data.GetRiskSummary(ctx, db, int(cmd.Int(flagTop)))
	if err != nil {
		return fmt.Errorf("summarizing contracts: %w", err)
	}
	return encode(cfg.Out, cfg.Format, s)
}
