package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"zapflow_backend/internal/automation/domain"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/monitoring"

	"github.com/hibiken/asynq"
)

const defaultWorkerConcurrency = 10

// EventProcessor runs trigger rules for one event.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event domain.Event) (domain.Report, error)
}

// Worker consumes automation events from the asynq queue.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor EventProcessor
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor EventProcessor, log *logger.Logger) (*Worker, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = defaultWorkerConcurrency
	}

	w := &Worker{
		mux:       asynq.NewServeMux(),
		processor: processor,
		log:       log.WithComponent("automation_worker"),
	}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency:  concurrency,
		Queues:       map[string]int{queueName(cfg): 1},
		Logger:       asynqLogger{w.log},
		ErrorHandler: asynq.ErrorHandlerFunc(w.reportExhausted),
	})
	w.mux.HandleFunc(TaskAutomationEvent, w.handleAutomationEvent)
	return w, nil
}

// handleAutomationEvent retries only when rules could not be loaded.
// Per-rule failures are final so successful sends are never repeated.
func (w *Worker) handleAutomationEvent(ctx context.Context, task *asynq.Task) error {
	event, err := ParseAutomationEventPayload(task)
	if err != nil {
		w.log.Error("dropping malformed automation event", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	report, err := w.processor.ProcessEvent(ctx, event)
	if err != nil {
		return err
	}
	if failed := report.Count(domain.OutcomeFailed); failed > 0 {
		w.log.Warn("automation event finished with failed rules", "eventType", event.Type(), "failed", failed)
	}
	return nil
}

// reportExhausted sends the last failed attempt of a task to Sentry.
func (w *Worker) reportExhausted(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		return
	}
	w.log.Error("automation task exhausted its retries", "task", task.Type(), "retries", retried, "error", err)
	monitoring.CaptureError(ctx, err, map[string]string{
		"component": "automation_worker",
		"task":      task.Type(),
		"retries":   strconv.Itoa(retried),
	})
}

// Run blocks until ctx is cancelled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("automation worker stopped", "error", err)
	}
}

// asynqLogger routes asynq's internal logging to slog.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
