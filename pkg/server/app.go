package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeSync/internal/middleware"
	"TradeSync/internal/services/model"
	"TradeSync/pkg/config"
	xhttp "TradeSync/pkg/http"
	applogger "TradeSync/pkg/logger"
	"TradeSync/pkg/queue"
)

// Resources are the process-scoped clients closed on shutdown, in order.
// Nil entries are skipped.
type Resources struct {
	Closers []NamedCloser
}

// NamedCloser pairs a closer with a name for shutdown logging.
type NamedCloser struct {
	Name   string
	Closer io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	queue      queue.Queue
	jobs       []queue.Job
	registry   *model.Registry
	pipeline   *middleware.EventPipeline
	resources  Resources
}

// New creates a new App instance with all dependencies. pipeline may be nil
// when no event sink is configured.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	q queue.Queue,
	jobs []queue.Job,
	registry *model.Registry,
	pipeline *middleware.EventPipeline,
	resources Resources,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		queue:      q,
		jobs:       jobs,
		registry:   registry,
		pipeline:   pipeline,
		resources:  resources,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(context.Background())
}

// Start loads the default model and starts the background workers and the
// HTTP server without blocking.
func (a *App) Start(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	h, err := a.registry.Load(loadCtx, a.cfg.Models.DefaultVersion)
	if err != nil {
		// Inference degrades to the rule-based strategy until a model is trained.
		a.log.Error("default model load failed",
			applogger.String("version", a.cfg.Models.DefaultVersion),
			applogger.Error(err))
	} else {
		a.log.Info("model loaded",
			applogger.String("version", h.Version),
			applogger.String("source", h.Metadata.Source))
	}
	if _, err := a.registry.Restore(loadCtx); err != nil {
		a.log.Error("model restore failed", applogger.Error(err))
	}

	if a.pipeline != nil {
		a.pipeline.Start()
	}

	for _, job := range a.jobs {
		a.queue.RegisterJob(job)
	}
	if err := a.queue.Start(); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http: %w", err)
	}

	a.log.Info("tradesync started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("version", a.cfg.Version),
		applogger.Int("port", a.cfg.Server.Port))
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if err := a.queue.Stop(ctx); err != nil {
		a.log.Warn("queue stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.pipeline != nil {
		if err := a.pipeline.Stop(ctx); err != nil {
			a.log.Warn("event pipeline stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	// The collector flushes through the Kafka producer, which is closed below.
	a.log.DetachCollector()

	for _, c := range a.resources.Closers {
		if c.Closer == nil {
			continue
		}
		if err := c.Closer.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
