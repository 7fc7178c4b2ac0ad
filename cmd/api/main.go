package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zapflow_backend/internal/adapters"
	"zapflow_backend/internal/adapters/storage"
	"zapflow_backend/internal/alerting"
	"zapflow_backend/internal/automation"
	"zapflow_backend/internal/events"
	"zapflow_backend/internal/funnel"
	apphttp "zapflow_backend/internal/http"
	"zapflow_backend/internal/http/router"
	"zapflow_backend/internal/scheduler"
	"zapflow_backend/internal/sequences"
	seqsvc "zapflow_backend/internal/sequences/service"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/db"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"
	"zapflow_backend/platform/monitoring"
	"zapflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const mediaURLTTL = time.Hour

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc storage.StorageService, bucket string) {
	if err := withRetry(ctx, log, "ensure media bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	flush := monitoring.Init(cfg, log)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure
	// ========================================================================

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg, log)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	m := metrics.New(prometheus.DefaultRegisterer)
	val := validator.New()

	waClient := whatsapp.NewClient(cfg, log)
	if waClient == nil {
		log.Warn("WHATSAPP_URL not configured; message sends will fail and be retried")
	}

	// ========================================================================
	// Optional collaborators
	// ========================================================================

	procOpts := []seqsvc.ProcessorOption{seqsvc.WithEventBus(eventBus)}

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		ensureBucket(ctx, log, storageSvc, cfg.GetMinioBucketSequenceMedia())
		resolver := adapters.NewStepMediaResolver(storageSvc, cfg.GetMinioBucketSequenceMedia(), mediaURLTTL, true)
		procOpts = append(procOpts, seqsvc.WithMediaResolver(resolver))
	} else {
		log.Info("MINIO_ENDPOINT not configured; step media must be absolute URLs")
	}

	if alerter := alerting.NewSMTPAlerter(cfg, log); alerter != nil {
		procOpts = append(procOpts, seqsvc.WithFailureAlerter(alerter))
	}

	queue, closeQueue := initRedis(cfg, log, &procOpts)
	if closeQueue != nil {
		defer closeQueue()
	}

	// ========================================================================
	// Modules
	// ========================================================================

	sequencesModule := sequences.NewModule(pool, adapters.NewSequenceDispatcher(waClient), cfg, val, log, m, procOpts...)
	funnelModule := funnel.NewModule(pool, eventBus, val, log, m)

	automationModule := automation.NewModule(
		pool,
		adapters.NewAutomationDispatcher(waClient),
		adapters.NewSequenceEnroller(sequencesModule.Service()),
		log,
		m,
	)
	if queue != nil {
		automationModule.SetQueue(queue)
	}
	automationModule.RegisterHandlers(eventBus)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		Metrics:  m,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			sequencesModule,
			funnelModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetSequencesRunBudget()+10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initRedis wires the automation queue and the processor run lock when
// REDIS_URL is set. Without Redis, events run inline and runs are not
// deduplicated across instances.
func initRedis(cfg *config.Config, log *logger.Logger, procOpts *[]seqsvc.ProcessorOption) (automation.Enqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; automation events run inline")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize automation queue client", "error", err)
		return nil, nil
	}

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client for run lock", "error", err)
		return client, func() { _ = client.Close() }
	}
	*procOpts = append(*procOpts, seqsvc.WithRunLock(scheduler.NewLease(redisClient, scheduler.ProcessorLeaseKey)))

	return client, func() {
		_ = client.Close()
		_ = redisClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
