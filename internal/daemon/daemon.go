package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fundbridge/fundbridge/internal/api"
	"github.com/fundbridge/fundbridge/internal/app/ledger"
	"github.com/fundbridge/fundbridge/internal/app/report"
	"github.com/fundbridge/fundbridge/internal/domain"
	"github.com/fundbridge/fundbridge/internal/infra/memstore"
	"github.com/fundbridge/fundbridge/internal/infra/observability"
	"github.com/fundbridge/fundbridge/internal/infra/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App is a fully wired fundbridge instance.
type App struct {
	Config  Config
	Log     *slog.Logger
	Store   domain.LedgerStore
	Tracer  *observability.Tracer
	Ledger  *ledger.Service
	Reports *report.Generator
}

// Open wires the store, tracer, ledger service and report generator.
func Open(cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var store domain.LedgerStore
	switch cfg.Storage.Driver {
	case DriverMemory:
		store = memstore.New()
	case DriverSQLite, "":
		db, err := sqlite.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open ledger store: %w", err)
		}
		logger.Debug("ledger store opened", "driver", DriverSQLite, "path", db.Path())
		store = db
	default:
		return nil, fmt.Errorf("open ledger store: unknown driver %q", cfg.Storage.Driver)
	}

	var tracer *observability.Tracer
	if cfg.API.Traces {
		tracer = observability.NewTracer(observability.TracerConfig{
			Enabled:  true,
			MaxSpans: cfg.API.MaxSpans,
		})
	}

	svc := ledger.New(store, ledger.Options{Tracer: tracer, Logger: logger})
	return &App{
		Config:  cfg,
		Log:     logger,
		Store:   store,
		Tracer:  tracer,
		Ledger:  svc,
		Reports: report.NewGenerator(svc, nil),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Handler builds the HTTP handler for this app.
func (a *App) Handler() http.Handler {
	format, err := report.ParseFormat(a.Config.Report.DefaultFormat)
	if err != nil {
		format = report.FormatJSON
	}
	return api.NewServer(a.Ledger, a.Reports, api.Options{
		AdminToken:     a.Config.API.AdminToken,
		RateLimitRPM:   a.Config.API.RateLimitRPM,
		MetricsEnabled: a.Config.API.Metrics,
		ReportFormat:   format,
		ReportLimit:    a.Config.Report.DefaultLimit,
		Tracer:         a.Tracer,
		Logger:         a.Log,
	}).Handler()
}

// Serve runs the HTTP server on ln until ctx is cancelled, then shuts it
// down gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if a.Config.API.AdminToken == "" {
		a.Log.Warn("no admin token configured; admin endpoints will refuse every request")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("fundbridge listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *App) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.API.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.API.Addr(), err)
	}
	return a.Serve(ctx, ln)
}
