package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"zapflow_backend/platform/config"
	"zapflow_backend/platform/httpkit"
	"zapflow_backend/platform/logger"
)

// defaultProcessTimeout matches the PROCESS_TIMEOUT default.
const defaultProcessTimeout = 90 * time.Second

// ProcessTrigger calls the pending-subscription endpoint on a cron schedule.
// Overlapping ticks are skipped while a previous call is still running.
type ProcessTrigger struct {
	cron     *cron.Cron
	url      string
	secret   string
	schedule string
	http     *http.Client
	log      *logger.Logger
}

func NewProcessTrigger(cfg config.CronConfig, log *logger.Logger) *ProcessTrigger {
	log = log.WithComponent("process_trigger")
	timeout := cfg.GetProcessTimeout()
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	return &ProcessTrigger{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log}))),
		url:      cfg.GetProcessURL(),
		secret:   cfg.GetCronSecret(),
		schedule: cfg.GetProcessSchedule(),
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Run registers the job and blocks until ctx is done.
func (t *ProcessTrigger) Run(ctx context.Context) error {
	if _, err := t.cron.AddFunc(t.schedule, func() {
		if err := t.Trigger(ctx); err != nil {
			t.log.Error("process trigger failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid process schedule %q: %w", t.schedule, err)
	}

	t.log.Info("process trigger started", "schedule", t.schedule, "url", t.url)
	t.cron.Start()
	<-ctx.Done()
	<-t.cron.Stop().Done()
	return nil
}

// Trigger performs one authenticated call. Non-2xx responses are errors.
func (t *ProcessTrigger) Trigger(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(httpkit.CronSecretHeader, t.secret)

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("call process endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("process endpoint returned %d: %s", resp.StatusCode, body)
	}
	t.log.Debug("process run finished", "summary", string(body))
	return nil
}

// cronLogger routes robfig/cron's internal logging to slog.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
