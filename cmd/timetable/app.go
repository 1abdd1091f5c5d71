package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/config"
	httptransport "github.com/example/room-timetable/internal/http"
	"github.com/example/room-timetable/internal/jobs"
	"github.com/example/room-timetable/internal/lock"
	"github.com/example/room-timetable/internal/notification"
	"github.com/example/room-timetable/internal/persistence/postgres"
	"github.com/example/room-timetable/internal/persistence/sqlite"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/storage"
	"github.com/example/room-timetable/internal/timetable"
)

// app holds the wired process components.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	policy  application.Policy
	backend storage.Backend

	handler  http.Handler
	runner   *jobs.MaterializationRunner
	notifier *notification.WorkerPool

	closers []func() error
}

// newApp opens storage, builds the services and the HTTP handler. The
// notification workers run until ctx is cancelled.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("booking policy: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, policy: policy}

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	a.closers = append(a.closers, closeBackend)

	locker, err := openLocker(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer, ok := locker.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	a.notifier = notification.NewWorkerPool(
		cfg.Notification.Workers,
		cfg.Notification.QueueSize,
		notification.LogSender{Logger: logger},
		logger,
	)
	a.notifier.Start(ctx)

	ports := storage.New(backend, policy.Location)
	idGen := uuid.NewString
	now := time.Now

	engine := recurrence.NewEngine(policy.Location)
	timetableService := application.NewTimetableService(ports, ports, ports, ports, timetable.NewMerger(engine), logger)
	admissionService := application.NewAdmissionService(ports, ports, timetableService, a.notifier, policy, idGen, now, logger)
	templateService := application.NewTemplateService(ports, ports, ports, ports, ports, engine, idGen, now, logger)
	materializationService := application.NewMaterializationService(ports, ports, ports, ports, timetableService, policy, idGen, now, logger)

	var cache *httptransport.ResponseCache
	if cfg.HTTPServer.CacheTTL > 0 {
		cache = httptransport.NewResponseCache(cfg.HTTPServer.CacheTTL)
	}

	a.runner = jobs.NewMaterializationRunner(
		cacheFlushingJob{job: materializationService, cache: cache},
		locker,
		cfg.Jobs.Interval,
		cfg.Jobs.LockTTL,
		logger,
	)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Timetable: httptransport.NewTimetableHandler(timetableService, engine, logger),
		Bookings:  httptransport.NewBookingHandler(admissionService, templateService, logger),
		Templates: httptransport.NewTemplateHandler(templateService, policy.Location, logger),
		Jobs:      httptransport.NewJobHandler(a.runner, logger),
		Logger:    logger,
		RateLimit: cfg.HTTPServer.RateLimit,
		RateBurst: cfg.HTTPServer.RateBurst,
		Cache:     cache,
	})

	return a, nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Backend, func() error, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.Storage.PostgresDSN}, logger)
		if err != nil {
			return storage.Backend{}, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return storage.Backend{}, nil, fmt.Errorf("postgres: migrate: %w", err)
		}
		return storage.Backend{
			Rooms:      store,
			Profiles:   store,
			Bookings:   store,
			Templates:  store,
			Exceptions: store,
		}, store.Close, nil
	default:
		store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.Storage.SQLitePath), logger)
		if err != nil {
			return storage.Backend{}, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return storage.Backend{}, nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
		return storage.Backend{
			Rooms:      store.Rooms,
			Profiles:   store.Profiles,
			Bookings:   store.Bookings,
			Templates:  store.Templates,
			Exceptions: store.Exceptions,
		}, store.Close, nil
	}
}

// openLocker uses Redis when an address is configured so that only one
// replica materializes at a time.
func openLocker(cfg config.Config, logger *slog.Logger) (lock.Locker, error) {
	if cfg.Redis.Address == "" {
		return lock.NewLocalLock(), nil
	}
	locker, err := lock.NewRedisLock(cfg.Redis.Address)
	if err != nil {
		return nil, err
	}
	logger.Info("using redis materialization lock", "address", cfg.Redis.Address)
	return locker, nil
}

// serve runs the HTTP server and, when enabled, the materialization loop
// until ctx is cancelled or one of them fails.
func (a *app) serve(ctx context.Context) error {
	server := httptransport.NewServer(a.cfg.HTTPServer.Address, a.handler, a.cfg.HTTPServer.Timeout, a.cfg.HTTPServer.IdleTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("timetable API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPServer.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	if a.cfg.Jobs.Enabled {
		g.Go(func() error {
			return a.runner.Start(gctx)
		})
	}

	return g.Wait()
}

// Close releases storage and lock connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// cacheFlushingJob drops cached timetables after a run that created
// bookings, so readers do not wait for the cache TTL.
type cacheFlushingJob struct {
	job   jobs.Materializer
	cache *httptransport.ResponseCache
}

func (j cacheFlushingJob) Run(ctx context.Context) (application.MaterializationReport, error) {
	report, err := j.job.Run(ctx)
	if j.cache != nil && report.Created > 0 {
		j.cache.Flush()
	}
	return report, err
}
