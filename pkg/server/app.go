package server

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"MicroTrader/internal/service/finnhub"
	"MicroTrader/internal/usecase"
	"MicroTrader/pkg/config"
	xhttp "MicroTrader/pkg/http"
	pkgkafka "MicroTrader/pkg/kafka"
	applogger "MicroTrader/pkg/logger"
)

// App encapsulates the entire application lifecycle: the decision loop, the
// optional quote stream and archive consumer, and the ops HTTP server.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	cycle      *usecase.Cycle
	quotes     *finnhub.QuoteStream
	consumer   *pkgkafka.Consumer
	httpServer *xhttp.Server
}

// New creates a new App. quotes and consumer may be nil when their
// integrations are disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	cycle *usecase.Cycle,
	quotes *finnhub.QuoteStream,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		cycle:      cycle,
		quotes:     quotes,
		consumer:   consumer,
		httpServer: httpServer,
	}
}

// Run starts every component and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with an explicit lifetime.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if a.quotes != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.quotes.Run(ctx); err != nil {
				a.log.Error("quote stream error", applogger.Error(err))
			}
		}()
		a.log.Info("quote stream started")
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started")
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.log.Info("decision loop started",
			applogger.Strings("universe", a.cfg.Engine.Universe),
			applogger.Duration("interval", a.cfg.Engine.CycleInterval),
			applogger.Bool("dry_run", a.cfg.Engine.DryRun))
		if err := a.cycle.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("decision loop stopped", applogger.Error(err))
		}
	}()

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	wg.Wait()
	return a.shutdown()
}

// shutdown stops the servers; clients are closed by the DI cleanup.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
