package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"zapflow_backend/internal/adapters"
	"zapflow_backend/internal/automation"
	"zapflow_backend/internal/scheduler"
	"zapflow_backend/internal/sequences"
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	flush := monitoring.Init(cfg, log)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	m := metrics.New(prometheus.DefaultRegisterer)
	waClient := whatsapp.NewClient(cfg, log)

	// Worker-side trigger engine wiring (no HTTP handlers required).
	sequencesModule := sequences.NewModule(pool, adapters.NewSequenceDispatcher(waClient), cfg, validator.New(), log, m)
	automationModule := automation.NewModule(
		pool,
		adapters.NewAutomationDispatcher(waClient),
		adapters.NewSequenceEnroller(sequencesModule.Service()),
		log,
		m,
	)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Info("component stopped", "component", name)
		}()
	}

	run("run_retention", scheduler.NewRunRetention(automationModule.Repository(), log, time.Hour, cfg.GetAutomationRunRetention()).Run)

	trigger := scheduler.NewProcessTrigger(cfg, log)
	run("process_trigger", func(ctx context.Context) {
		if err := trigger.Run(ctx); err != nil {
			log.Error("process trigger stopped", "error", err)
		}
	})

	if cfg.GetRedisURL() != "" {
		worker, err := scheduler.NewWorker(cfg, automationModule.Engine(), log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		run("automation_worker", worker.Run)
	} else {
		log.Warn("REDIS_URL not configured; automation worker disabled")
	}

	<-ctx.Done()
	wg.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
