// Package app wires the engine together: store, broker, worker pools,
// fanout hub, sweeper, and the operational HTTP endpoints.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkwellhq/inkwell/internal/blob"
	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/fanout"
	"github.com/inkwellhq/inkwell/internal/jobs"
	"github.com/inkwellhq/inkwell/internal/mail"
	"github.com/inkwellhq/inkwell/internal/obs"
	"github.com/inkwellhq/inkwell/internal/service"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/internal/store/drivers/sqlite"
	"github.com/inkwellhq/inkwell/pkg/ratex"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application holds the running engine and all of its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	blobs blob.Store
	hub   *fanout.Hub

	broker      *jobs.Broker
	emailPool   *jobs.Pool
	cleanupPool *jobs.Pool
	sweeper     *service.Sweeper

	Users         *service.UserService
	Organizations *service.OrganizationService
	Invites       *service.InviteService
	Studio        *service.StudioService

	server *http.Server
}

// New builds a fully wired Application from cfg.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "inkwell",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	obs.Init()

	db, err := sqlite.NewStore(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	app.db = db

	app.blobs = blob.NewMemory(cfg.BlobBaseURL, []byte(cfg.BlobSecret))
	app.hub = fanout.New(fanout.NewHS256Verifier([]byte(cfg.FanoutSecret), cfg.FanoutIssuer), app.logger)
	app.broker = jobs.NewBroker(db)

	app.initServices()
	app.initPools()
	app.initHTTP()

	return app, nil
}

func (app *Application) initServices() {
	joinRate := ratex.NewLimiter(ratex.Config{
		RequestsPerWindow: app.cfg.JoinRatePerMinute,
		Window:            time.Minute,
	})

	app.Organizations = service.NewOrganizationService(app.db, app.hub, joinRate)
	app.Invites = service.NewInviteService(app.db, app.broker, app.hub, app.cfg.BaseURL)
	app.Users = service.NewUserService(app.db, app.broker, app.cfg.BaseURL)
	app.Studio = service.NewStudioService(app.db, app.blobs, app.broker, app.hub, app.Organizations)

	app.sweeper = service.NewSweeper(service.SweeperConfig{
		Interval: app.cfg.SweepInterval,
		MaxAge:   app.cfg.TempMaxAge,
	}, app.db, app.blobs, app.logger)
}

func (app *Application) initPools() {
	sender := &mail.SMTP{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		User:     app.cfg.SMTPUser,
		Password: app.cfg.SMTPPassword,
		FromName: app.cfg.SMTPFromName,
	}

	app.emailPool = jobs.NewPool(jobs.PoolConfig{
		Queue:        domain.QueueEmail,
		Concurrency:  app.cfg.EmailConcurrency,
		PollInterval: app.cfg.JobPollInterval,
		LeaseTTL:     app.cfg.JobLeaseTTL,
	}, app.db, jobs.NewEmailHandler(sender), app.logger)

	app.cleanupPool = jobs.NewPool(jobs.PoolConfig{
		Queue:        domain.QueueFileCleanup,
		Concurrency:  app.cfg.CleanupConcurrency,
		PollInterval: app.cfg.JobPollInterval,
		LeaseTTL:     app.cfg.JobLeaseTTL,
	}, app.db, jobs.NewCleanupHandler(app.db, app.blobs, app.logger), app.logger)
}

func (app *Application) initHTTP() {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", obs.Handler())

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.hub.Start()
	app.emailPool.Start()
	app.cleanupPool.Start()
	app.sweeper.Start()

	app.logger.Info("inkwell starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops intake first, then the background machinery, then the
// database. Pools finish their in-flight jobs before returning.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down inkwell...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.sweeper.Stop()
	app.cleanupPool.Stop()
	app.emailPool.Stop()
	app.hub.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("inkwell stopped")
	return nil
}
