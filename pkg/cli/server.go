package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/govai-platform/govai/pkg/data"
	"github.com/govai-platform/govai/pkg/logging"
	"github.com/govai-platform/govai/pkg/metrics"
	"github.com/govai-platform/govai/pkg/middleware"
	"github.com/govai-platform/govai/pkg/service"
	"github.com/urfave/cli/v3"
)

const serverMaxHeaderBytes = 20

const (
	flagPort    = "port"
	flagAddress = "address"
)

func newServerCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start the scoring HTTP server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    flagPort,
				Usage:   "Port on which the server will listen (default: from config)",
				Sources: cli.EnvVars("GOVAI_PORT"),
			},
			&cli.StringFlag{
				Name:    flagAddress,
				Usage:   "Address on which the server will listen (default: from config)",
				Sources: cli.EnvVars("GOVAI_ADDRESS"),
			},
		},
	}
}

// routerDeps is everything the HTTP surface needs.
type routerDeps struct {
	pipeline    *pipeline
	db          *sql.DB
	metrics     *metrics.Metrics
	maxBody     int64
	concurrency int
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	sc := cfg.Config.Server
	if cmd.IsSet(flagPort) {
		sc.Port = int(cmd.Int(flagPort))
	}
	if cmd.IsSet(flagAddress) {
		sc.Address = cmd.String(flagAddress)
	}

	// the server logs JSON unless a format was chosen explicitly
	if cfg.Config.Log.Format == logging.FormatCLI && !cmd.IsSet(flagLogFormat) {
		slog.SetDefault(logging.NewLogger(os.Stderr, logging.FormatJSON, cfg.Config.Log.Level))
	}

	db, err := cfg.DB()
	if err != nil {
		return err
	}

	m := metrics.New()
	p := newPipeline(cfg.Config, newStore(db), service.MultiObserver{
		m,
		service.SlogObserver{Logger: slog.Default()},
	})
	m.SetModel(string(p.registry.Tier()), p.scorer.ModelName(), string(p.scorer.Mode()))

	s := &http.Server{
		Addr: sc.Addr(),
		Handler: makeRouter(routerDeps{
			pipeline:    p,
			db:          db,
			metrics:     m,
			maxBody:     sc.MaxBodyBytes,
			concurrency: cfg.Config.Scoring.BatchConcurrency,
		}),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server started",
		"address", fmt.Sprintf("http://%s", sc.Addr()),
		"mode", p.scorer.Mode(),
		"tier", p.registry.Tier(),
		"store", data.Redact(cfg.Config.Store.DSN))

	select {
	case <-done:
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("starting server: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func makeRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", rootHandler(d.pipeline))
	mux.HandleFunc("GET /health", healthHandler(d.pipeline, d.db))

	// Scoring API
	mux.HandleFunc("POST /fraud-detect", fraudDetectHandler(d.pipeline, d.maxBody))
	mux.HandleFunc("POST /fraud-detect/batch", fraudDetectBatchHandler(d.pipeline, d.maxBody, d.concurrency))

	// Data API
	mux.HandleFunc("GET /contracts", contractsHandler(d.db))
	mux.HandleFunc("GET /contracts/{id}", contractHandler(d.db))
	mux.HandleFunc("GET /analytics/summary", summaryHandler(d.db))
	mux.HandleFunc("GET /models", modelsHandler(d.pipeline))

	mux.Handle("GET /metrics", d.metrics.Handler())

	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Observe(d.metrics.ObserveRequest),
	)
}
