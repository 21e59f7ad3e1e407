package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/govai-platform/govai/pkg/data"
	"github.com/urfave/cli/v3"
)

const flagYes = "yes"

func newResetCmd() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Delete all stored assessments and start fresh",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagYes,
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: cmdReset,
	}
}

func cmdReset(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	if !cmd.Bool(flagYes) {
		fmt.Fprintf(cfg.Out, "This will permanently delete all assessments in %s\n", data.Redact(cfg.Config.Store.DSN))
		fmt.Fprint(cfg.Out, "Are you sure? [y/N]: ")

		in := cmd.Root().Reader
		if in == nil {
			in = os.Stdin
		}
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(cfg.Out, "Aborted.")
			return nil
		}
	}

	db, err := cfg.DB()
	if err != nil {
		return err
	}
	n, err := data.DeleteAll(ctx, db)
	if err != nil {
		return fmt.Errorf("deleting assessments: %w", err)
	}

	slog.Info("store reset", "deleted", n)
	fmt.Fprintln(cfg.Out, "Reset complete.")
	return nil
}
