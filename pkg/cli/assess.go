package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/net"
	"github.com/govai-platform/govai/pkg/service"
	"github.com/urfave/cli/v3"
)

const (
	flagFile            = "file"
	flagCSV             = "csv"
	flagNumber          = "number"
	flagDescription     = "description"
	flagAmount          = "amount"
	flagSupplier        = "supplier"
	flagCountry         = "country"
	flagRegion          = "region"
	flagDepartment      = "department"
	flagProcurementType = "procurement-type"
	flagDuration        = "duration"
	flagBids            = "bids"
	flagConcurrency     = "concurrency"
	flagNoSave          = "no-save"
	flagServer          = "server"
)

func newAssessCmd() *cli.Command {
	return &cli.Command{
		Name:   "assess",
		Usage:  "Assess the fraud risk of one or more contracts",
		Action: cmdAssess,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagFile,
				Aliases: []string{"f"},
				Usage:   "JSON file with one contract or an array of contracts (- for stdin)",
			},
			&cli.StringFlag{
				Name:  flagCSV,
				Usage: "CSV file of contracts (header row required, amount column mandatory)",
			},
			&cli.StringFlag{Name: flagNumber, Usage: "Contract number"},
			&cli.StringFlag{Name: flagDescription, Usage: "Contract description"},
			&cli.FloatFlag{Name: flagAmount, Usage: "Contract amount"},
			&cli.StringFlag{Name: flagSupplier, Usage: "Supplier name"},
			&cli.StringFlag{Name: flagCountry, Usage: "Country"},
			&cli.StringFlag{Name: flagRegion, Usage: "Region"},
			&cli.StringFlag{Name: flagDepartment, Usage: "Awarding department"},
			&cli.StringFlag{Name: flagProcurementType, Usage: "Procurement method"},
			&cli.FloatFlag{Name: flagDuration, Usage: "Duration in months"},
			&cli.IntFlag{Name: flagBids, Usage: "Number of bids received"},
			&cli.IntFlag{
				Name:  flagConcurrency,
				Usage: "Maximum contracts assessed in parallel (default: from config)",
			},
			&cli.BoolFlag{
				Name:  flagNoSave,
				Usage: "Do not persist assessments",
			},
			&cli.StringFlag{
				Name:    flagServer,
				Usage:   "Score on a running server at this base URL instead of locally",
				Sources: cli.EnvVars("GOVAI_SERVER"),
			},
		},
	}
}

func cmdAssess(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	recs, single, err := readRecords(cmd)
	if err != nil {
		return err
	}

	if base := cmd.String(flagServer); base != "" {
		return assessRemote(ctx, cfg, strings.TrimRight(base, "/"), recs, single)
	}

	var repo service.Repository
	if !cmd.Bool(flagNoSave) {
		db, err := cfg.DB()
		if err != nil {
			return err
		}
		repo = newStore(db)
	}
	p := newPipeline(cfg.Config, repo, service.SlogObserver{Logger: slog.Default()})

	if single {
		a, err := p.service.Assess(ctx, recs[0])
		if err != nil {
			return fmt.Errorf("assessing contract: %w", err)
		}
		return encode(cfg.Out, cfg.Format, a)
	}

	concurrency := cfg.Config.Scoring.BatchConcurrency
	if cmd.IsSet(flagConcurrency) {
		concurrency = int(cmd.Int(flagConcurrency))
	}
	results, err := p.service.AssessBatch(ctx, recs, concurrency)
	if err != nil {
		return fmt.Errorf("assessing contracts: %w", err)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("batch assessed", "contracts", len(results), "failed", failed, "mode", p.scorer.Mode())
	return encode(cfg.Out, cfg.Format, results)
}

func assessRemote(ctx context.Context, cfg *appConfig, base string, recs []contract.Record, single bool) error {
	if single {
		var a service.Assessment
		if err := net.PostJSON(ctx, base+"/fraud-detect", recs[0], &a); err != nil {
			return fmt.Errorf("remote assessment: %w", err)
		}
		return encode(cfg.Out, cfg.Format, a)
	}
	var resp batchResponse
	if err := net.PostJSON(ctx, base+"/fraud-detect/batch", recs, &resp); err != nil {
		return fmt.Errorf("remote batch assessment: %w", err)
	}
	return encode(cfg.Out, cfg.Format, resp.Results)
}

// readRecords collects input from --csv, --file or the inline flags, in that
// order of preference. single is set when exactly one object was given
// rather than a list.
func readRecords(cmd *cli.Command) (recs []contract.Record, single bool, err error) {
	if p := cmd.String(flagCSV); p != "" {
		f, err := os.Open(p)
		if err != nil {
			return nil, false, fmt.Errorf("opening csv: %w", err)
		}
		defer f.Close()
		rows, err := contract.ReadCSV(f)
		if err != nil {
			return nil, false, err
		}
		for _, r := range rows {
			recs = append(recs, r.Record)
		}
		if len(recs) == 0 {
			return nil, false, errors.New("csv holds no contracts")
		}
		return recs, false, nil
	}

	if p := cmd.String(flagFile); p != "" {
		var r io.Reader
		if p == "-" {
			r = cmd.Root().Reader
			if r == nil {
				r = os.Stdin
			}
		} else {
			f, err := os.Open(p)
			if err != nil {
				return nil, false, fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()
			r = f
		}
		return decodeRecords(r)
	}

	if !cmd.IsSet(flagAmount) {
		return nil, false, errors.New("one of --csv, --file or --amount is required")
	}
	rec := contract.Record{
		ContractNumber:  cmd.String(flagNumber),
		Description:     cmd.String(flagDescription),
		Amount:          cmd.Float(flagAmount),
		Supplier:        cmd.String(flagSupplier),
		Country:         cmd.String(flagCountry),
		Region:          cmd.String(flagRegion),
		Department:      cmd.String(flagDepartment),
		ProcurementType: cmd.String(flagProcurementType),
	}
	if cmd.IsSet(flagDuration) {
		d := cmd.Float(flagDuration)
		rec.DurationMonths = &d
	}
	if cmd.IsSet(flagBids) {
		b := int(cmd.Int(flagBids))
		rec.BidCount = &b
	}
	return []contract.Record{rec}, true, nil
}

func decodeRecords(r io.Reader) ([]contract.Record, bool, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("reading input: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, false, errors.New("empty input")
	}
	if b[0] == '[' {
		var recs []contract.Record
		if err := json.Unmarshal(b, &recs); err != nil {
			return nil, false, fmt.Errorf("decoding contracts: %w", err)
		}
		if len(recs) == 0 {
			return nil, false, errors.New("input holds no contracts")
		}
		return recs, false, nil
	}
	var rec contract.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, fmt.Errorf("decoding contract: %w", err)
	}
	return []contract.Record{rec}, true, nil
}
