package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/biomatch/internal/adapters/codec"
	"github.com/okian/biomatch/internal/adapters/http/api"
	"github.com/okian/biomatch/internal/adapters/http/swagger"
	"github.com/okian/biomatch/internal/adapters/provider"
	"github.com/okian/biomatch/internal/adapters/repository"
	service "github.com/okian/biomatch/internal/app"
	"github.com/okian/biomatch/internal/config"
	"github.com/okian/biomatch/internal/domain/decision"
	"github.com/okian/biomatch/internal/domain/signature"
	"github.com/okian/biomatch/pkg/logger"
	"github.com/okian/biomatch/pkg/metrics"
)

// HTTP server timeout constants. Verification runs two provider calls and a
// full gallery scan, so the write timeout is wider than a plain CRUD API.
const (
	readTimeout               = 30 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// application holds everything main starts and must stop.
type application struct {
	cfg     *config.Config
	store   repository.Store
	svc     *service.Service
	handler http.Handler
}

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logs: " + err.Error() + "\n")
		}
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "biomatch exited with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithFile(cfg.LogFile),
	); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	log := logger.Get()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close(context.Background())

	// Workers outlive the signal so Stop can drain queued attendance.
	if err := app.svc.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, app)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newApplication builds the store, extractors, service and HTTP routes from
// cfg. The service is not started.
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*application, error) {
		store.Close()
		return nil, err
	}

	if cfg.EncryptionKey == config.DefaultEncryptionKey {
		log.Warn(ctx, "using the development encryption key; set BIOMATCH_ENCRYPTION_KEY in production")
	}
	templates, err := codec.New(cfg.EncryptionKey)
	if err != nil {
		return fail(fmt.Errorf("template codec: %w", err))
	}

	inference, err := provider.New(cfg.ProviderURL,
		provider.WithTimeout(time.Duration(cfg.ProviderTimeoutMS)*time.Millisecond),
		provider.WithLogger(log.Named("provider")),
	)
	if err != nil {
		return fail(fmt.Errorf("inference provider: %w", err))
	}

	policy := decision.DefaultPolicy()
	if cfg.PolicyProfile != "" {
		if policy, err = decision.LoadProfile(cfg.PolicyProfile); err != nil {
			return fail(fmt.Errorf("policy profile: %w", err))
		}
		log.Info(ctx, "loaded policy profile", logger.String("path", cfg.PolicyProfile))
	}

	svc := service.New(store, templates,
		signature.NewEyeBuilder(inference),
		signature.NewFingerprintBuilder(inference),
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithExtractionSlots(cfg.ExtractionSlots),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithAttendanceWorkers(cfg.AttendanceWorkers),
		service.WithBaseThreshold(cfg.BaseThreshold),
		service.WithPolicy(policy),
	)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc,
		api.WithMaxImageBytes(cfg.MaxImageBytes),
		api.WithMaxAttendanceLimit(cfg.MaxAttendanceLimit),
	).Register(ctx, mux)

	return &application{cfg: cfg, store: store, svc: svc, handler: mux}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Get().Info(ctx, "using in-memory store")
		return repository.NewMemoryStore(), nil
	}
	store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	logger.Get().Info(ctx, "using postgres store")
	return store, nil
}

// close drains the attendance pipeline before closing the store.
func (a *application) close(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := a.svc.Stop(stopCtx); err != nil {
		logger.Get().Error(ctx, "service stop failed", logger.Error(err))
	}
	a.store.Close()
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, app *application) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, app)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(ctx context.Context, app *application) {
	metrics.UpdateQueueSize(app.svc.QueueLen(ctx))
	metrics.UpdateEnrolledIdentities(app.store.Count(ctx))
}
