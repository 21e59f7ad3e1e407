package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/govai-platform/govai/pkg/config"
	"github.com/govai-platform/govai/pkg/data"
	"github.com/govai-platform/govai/pkg/logging"
	"github.com/govai-platform/govai/pkg/registry"
	"github.com/govai-platform/govai/pkg/scoring"
	"github.com/govai-platform/govai/pkg/service"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

const (
	flagDebug     = "debug"
	flagHome      = "home"
	flagConfig    = "config"
	flagDB        = "db"
	flagModels    = "models"
	flagFormat    = "format"
	flagLogFormat = "log-format"
)

// globalFlags are built per app so repeated runs never share parsed state.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Usage:   "Prints verbose logs (optional, default: false)",
			Sources: cli.EnvVars("GOVAI_DEBUG"),
		},
		&cli.StringFlag{
			Name:    flagHome,
			Usage:   "App directory holding config, models and data (default: $HOME/.govai)",
			Sources: cli.EnvVars("GOVAI_HOME"),
		},
		&cli.StringFlag{
			Name:    flagConfig,
			Usage:   "Path to the config file (default: <home>/config.yaml)",
			Sources: cli.EnvVars("GOVAI_CONFIG"),
		},
		&cli.StringFlag{
			Name:    flagDB,
			Usage:   "Sqlite file path or postgres:// URL of the assessment store",
			Sources: cli.EnvVars("GOVAI_DB"),
		},
		&cli.StringFlag{
			Name:    flagModels,
			Usage:   "Directory holding trained model configurations",
			Sources: cli.EnvVars("GOVAI_MODELS"),
		},
		&cli.StringFlag{
			Name:  flagFormat,
			Usage: "Output format [json, yaml]",
			Value: formatJSON,
		},
		&cli.StringFlag{
			Name:    flagLogFormat,
			Usage:   "Log format [cli, text, json] (default: from config)",
			Sources: cli.EnvVars("GOVAI_LOG_FORMAT"),
		},
	}
}

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfigKey struct{}

// appConfig is resolved once in Before and shared by all commands.
type appConfig struct {
	Home   string
	Config *config.Config
	Format string
	Out    io.Writer

	db *sql.DB
}

func getConfig(ctx context.Context) *appConfig {
	return ctx.Value(appConfigKey{}).(*appConfig)
}

// DB initializes the store on first use.
func (a *appConfig) DB() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	dsn := a.Config.Store.DSN
	if err := data.Init(dsn); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	db, err := data.GetDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *appConfig) Close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  config.AppName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Fraud-risk scoring for public procurement contracts",
		Flags:                 globalFlags(),
		Commands: []*cli.Command{
			newServerCmd(),
			newAssessCmd(),
			newListCmd(),
			newSummaryCmd(),
			newModelsCmd(),
			newTrainCmd(),
			newCheckCmd(),
			newResetCmd(),
		},
		Before: before,
		After: func(ctx context.Context, _ *cli.Command) error {
			if cfg, ok := ctx.Value(appConfigKey{}).(*appConfig); ok {
				cfg.Close()
			}
			return nil
		},
	}
}

func before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	home := cmd.String(flagHome)
	if home == "" {
		h, created, err := config.GetOrCreateHomeDir(config.AppName)
		if err != nil {
			return ctx, fmt.Errorf("resolving home dir: %w", err)
		}
		if created {
			slog.Debug("created home dir", "path", h)
		}
		home = h
	}

	var (
		c   *config.Config
		err error
	)
	if p := cmd.String(flagConfig); p != "" {
		c, err = config.Load(p, home)
	} else {
		c, err = config.ReadOrCreate(home)
	}
	if err != nil {
		return ctx, fmt.Errorf("loading config: %w", err)
	}

	if v := cmd.String(flagDB); v != "" {
		c.Store.DSN = v
	}
	if v := cmd.String(flagModels); v != "" {
		c.Models.Dir = v
	}
	if v := cmd.String(flagLogFormat); v != "" {
		c.Log.Format = v
	}
	if cmd.Bool(flagDebug) {
		c.Log.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return ctx, fmt.Errorf("invalid config: %w", err)
	}
	slog.SetDefault(logging.NewLogger(os.Stderr, c.Log.Format, c.Log.Level))

	format := formatJSON
	if f := cmd.String(flagFormat); f == formatYAML || f == "yml" {
		format = formatYAML
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	return context.WithValue(ctx, appConfigKey{}, &appConfig{
		Home:   home,
		Config: c,
		Format: format,
		Out:    out,
	}), nil
}

// pipeline is the scoring stack built from the loaded model configuration.
type pipeline struct {
	registry *registry.Registry
	scorer   *scoring.Scorer
	service  *service.Service
}

// newPipeline loads the registry once. A missing configuration is not an
// error; the scorer runs in heuristic mode.
func newPipeline(c *config.Config, repo service.Repository, obs service.Observer) *pipeline {
	reg, err := registry.Load(c.Models.Dir)
	if err != nil {
		slog.Debug("registry empty", "error", err)
	}
	scorer := scoring.New(reg, c.Scoring.Rules)

	opts := []service.Option{
		service.WithPriors(c.Scoring.Priors),
		service.WithObserver(obs),
	}
	if repo != nil {
		opts = append(opts, service.WithRepository(repo))
	}
	return &pipeline{
		registry: reg,
		scorer:   scorer,
		service:  service.New(scorer, opts...),
	}
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
