package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zapflow_backend/internal/events"
	"zapflow_backend/internal/sequences/domain"
	"zapflow_backend/internal/sequences/ports"
	"zapflow_backend/internal/sequences/repository"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"
	"zapflow_backend/platform/monitoring"
	"zapflow_backend/platform/phone"
	"zapflow_backend/platform/templating"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of processing one due subscription.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeCompleted Outcome = "completed"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeInactive  Outcome = "skipped_inactive"
	// OutcomeRaced means another run moved the subscription first.
	OutcomeRaced   Outcome = "raced"
	OutcomeErrored Outcome = "errored"
)

// ItemResult reports what happened to a single subscription.
type ItemResult struct {
	SubscriptionID uuid.UUID
	Step           int
	Outcome        Outcome
	Err            error
}

// Summary is returned by every processor run, including partial ones.
type Summary struct {
	RunID      string       `json:"runId"`
	Processed  int          `json:"processed"`
	Sent       int          `json:"sent"`
	Skipped    int          `json:"skipped"`
	Errored    int          `json:"errored"`
	DurationMs int64        `json:"durationMs"`
	Overlapped bool         `json:"overlapped,omitempty"`
	Results    []ItemResult `json:"-"`
}

func (s *Summary) add(r ItemResult) {
	s.Processed++
	switch r.Outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeErrored:
		s.Errored++
	default:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

// ProcessorConfig tunes a Processor.
type ProcessorConfig struct {
	Concurrency    int
	BatchSize      int
	RunBudget      time.Duration
	ClaimLease     time.Duration
	AlertThreshold int
	Policy         domain.Policy
	DefaultRegion  string
}

// ProcessorStore is the persistence the processor needs.
type ProcessorStore interface {
	repository.DueStore
	GetSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error)
	IncrementSentCount(ctx context.Context, stepID uuid.UUID) error
}

// Processor advances due subscriptions by one step per run.
type Processor struct {
	store      ProcessorStore
	dispatcher ports.MessageDispatcher
	media      ports.MediaResolver
	alerter    ports.FailureAlerter
	lock       ports.RunLock
	bus        events.Publisher
	metrics    *metrics.Metrics
	log        *logger.Logger
	cfg        ProcessorConfig
	now        func() time.Time
}

// ProcessorOption configures optional collaborators.
type ProcessorOption func(*Processor)

func WithMediaResolver(m ports.MediaResolver) ProcessorOption {
	return func(p *Processor) { p.media = m }
}

func WithFailureAlerter(a ports.FailureAlerter) ProcessorOption {
	return func(p *Processor) { p.alerter = a }
}

func WithRunLock(l ports.RunLock) ProcessorOption {
	return func(p *Processor) { p.lock = l }
}

func WithEventBus(b events.Publisher) ProcessorOption {
	return func(p *Processor) { p.bus = b }
}

func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithClock replaces time.Now; tests use it to drive scenarios.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(store ProcessorStore, dispatcher ports.MessageDispatcher, cfg ProcessorConfig, log *logger.Logger, opts ...ProcessorOption) *Processor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 200
	}
	if cfg.RunBudget <= 0 {
		cfg.RunBudget = 55 * time.Second
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 2 * time.Minute
	}
	p := &Processor{
		store:      store,
		dispatcher: dispatcher,
		log:        log.WithComponent("sequence_processor"),
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessPending advances every due subscription at most once. One
// subscription's failure never aborts the run. New subscriptions are not
// started after the run budget is spent; claimed leftovers are released for
// the next run. An error is returned only when nothing could be claimed.
func (p *Processor) ProcessPending(ctx context.Context) (Summary, error) {
	start := p.now()
	deadline := start.Add(p.cfg.RunBudget)
	summary := Summary{RunID: uuid.NewString()}
	ctx = logger.ContextWith(ctx, logger.RunIDKey, summary.RunID)
	runLog := p.log.WithContext(ctx)

	if p.lock != nil {
		release, acquired, err := p.lock.TryAcquire(ctx, p.cfg.RunBudget+5*time.Second)
		switch {
		case err != nil:
			runLog.Warn("processor run lock unavailable, continuing without it", "error", err)
		case !acquired:
			summary.Overlapped = true
			p.observeRun("overlapped", start)
			return summary, nil
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}

	var mu sync.Mutex
	record := func(r ItemResult) {
		mu.Lock()
		summary.add(r)
		mu.Unlock()
		if p.metrics != nil {
			p.metrics.SubscriptionsProcessed.WithLabelValues(string(r.Outcome)).Inc()
		}
	}

	steps := newStepCache(p.store)
	handled := make([]uuid.UUID, 0)
	claimedAny := false

	for {
		if ctx.Err() != nil || !p.now().Before(deadline) {
			break
		}

		now := p.now()
		batch, err := p.store.ClaimDue(ctx, now, now.Add(p.cfg.ClaimLease), p.cfg.BatchSize, handled)
		if err != nil {
			if !claimedAny {
				summary.DurationMs = p.now().Sub(start).Milliseconds()
				p.observeRun("failed", start)
				monitoring.CaptureError(ctx, err, map[string]string{"component": "sequence_processor"})
				return summary, err
			}
			runLog.Error("claim due subscriptions failed mid-run", "error", err)
			break
		}
		claimedAny = true
		if len(batch) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(p.cfg.Concurrency)
		unstarted := make([]uuid.UUID, 0)
		var leaseUntil time.Time

		for _, item := range batch {
			handled = append(handled, item.ID)
			leaseUntil = item.LeaseUntil
			if ctx.Err() != nil || !p.now().Before(deadline) {
				unstarted = append(unstarted, item.ID)
				continue
			}
			g.Go(func() error {
				record(p.processOne(ctx, item, steps))
				return nil
			})
		}
		_ = g.Wait()

		if len(unstarted) > 0 {
			runLog.Info("run budget spent, releasing claimed subscriptions", "count", len(unstarted))
			if err := p.store.ReleaseClaims(context.WithoutCancel(ctx), unstarted, leaseUntil, p.now()); err != nil {
				runLog.Error("release claimed subscriptions failed", "error", err)
			}
			break
		}
		if len(batch) < p.cfg.BatchSize {
			break
		}
	}

	summary.DurationMs = p.now().Sub(start).Milliseconds()
	p.observeRun("completed", start)
	runLog.Info("processor run finished",
		"processed", summary.Processed,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
		"durationMs", summary.DurationMs,
	)
	return summary, nil
}

func (p *Processor) processOne(ctx context.Context, item domain.DueSubscription, cache *stepCache) ItemResult {
	result := ItemResult{SubscriptionID: item.ID, Step: item.CurrentStep}
	// The final write must land even if the caller gave up mid-dispatch.
	persistCtx := context.WithoutCancel(ctx)
	log := p.log.WithContext(ctx).With("subscriptionId", item.ID, "sequenceId", item.SequenceID, "step", item.CurrentStep)

	steps, err := cache.get(ctx, item.SequenceID)
	if err != nil {
		log.Error("load sequence steps failed", "error", err)
		result.Outcome, result.Err = OutcomeErrored, err
		return result
	}

	now := p.now()
	decision := domain.Decide(item.Subscription, steps, now, p.cfg.Policy)

	switch decision.Action {
	case domain.ActionComplete:
		result.Outcome = OutcomeCompleted
		return p.settle(persistCtx, item, decision.Transition, result, log)

	case domain.ActionSkipInactive:
		result.Outcome = OutcomeInactive
		return p.settle(persistCtx, item, decision.Transition, result, log)

	case domain.ActionDefer:
		result.Outcome = OutcomeDeferred
		log.Debug("outside send window, deferring", "nextStepAt", decision.Transition.NextStepAt)
		return p.settle(persistCtx, item, decision.Transition, result, log)
	}

	res, err := p.dispatch(ctx, item, decision.Step)
	if err != nil {
		transition := domain.Failure(item.Subscription, p.now(), p.cfg.Policy, err)
		log.Warn("step dispatch failed, will retry",
			"error", err,
			"consecutiveFailures", transition.ConsecutiveFailures,
			"nextStepAt", transition.NextStepAt,
		)
		result.Outcome, result.Err = OutcomeErrored, err
		applied, applyErr := p.store.ApplyTransition(persistCtx, item.ID, item.CurrentStep, transition)
		if applyErr != nil {
			log.Error("record dispatch failure failed", "error", applyErr)
		}
		if applied {
			p.maybeAlert(persistCtx, item, transition)
		}
		return result
	}

	messageID := res.ProviderMessageID
	transition := domain.Advance(item.Subscription, steps, p.now(), &messageID)
	if err := p.store.IncrementSentCount(persistCtx, decision.Step.ID); err != nil {
		log.Warn("increment step sent count failed", "stepId", decision.Step.ID, "error", err)
	}
	result.Outcome = OutcomeSent
	return p.settle(persistCtx, item, transition, result, log)
}

// settle applies the terminal write and publishes completion when this
// write closed the subscription.
func (p *Processor) settle(ctx context.Context, item domain.DueSubscription, t domain.Transition, result ItemResult, log *slog.Logger) ItemResult {
	applied, err := p.store.ApplyTransition(ctx, item.ID, item.CurrentStep, t)
	if err != nil {
		log.Error("apply subscription transition failed", "error", err)
		result.Outcome, result.Err = OutcomeErrored, err
		return result
	}
	if !applied {
		if result.Outcome == OutcomeSent {
			log.Warn("message sent but subscription was advanced concurrently")
		}
		result.Outcome = OutcomeRaced
		return result
	}

	if t.Status == domain.StatusCompleted {
		log.Info("subscription completed")
		p.publishCompleted(ctx, item)
	}
	return result
}

func (p *Processor) dispatch(ctx context.Context, item domain.DueSubscription, step domain.Step) (ports.DispatchResult, error) {
	text, err := templating.Render(step.Content.Message, map[string]string{
		"name":       item.Contact.Name,
		"first_name": templating.FirstName(item.Contact.Name),
		"phone":      item.Contact.Phone,
		"email":      item.Contact.Email,
	})
	if err != nil {
		return ports.DispatchResult{}, fmt.Errorf("render step message: %w", err)
	}

	msg := ports.OutboundMessage{
		ConnectionID:   item.ConnectionID,
		ContactID:      item.ContactID,
		ConversationID: item.ConversationID,
		Phone:          phone.NormalizeE164(item.Contact.Phone, p.cfg.DefaultRegion),
		Text:           text,
	}
	if msg.Phone == "" {
		return ports.DispatchResult{}, errors.New("contact has no phone number")
	}
	if key := step.Content.MediaObjectKey; key != nil && *key != "" && p.media != nil {
		url, err := p.media.ResolveURL(ctx, *key)
		if err != nil {
			return ports.DispatchResult{}, fmt.Errorf("resolve step media: %w", err)
		}
		msg.MediaURL = url
	}

	started := time.Now()
	res, err := p.dispatcher.Send(ctx, msg)
	if p.metrics != nil {
		p.metrics.DispatchDuration.Observe(time.Since(started).Seconds())
	}
	return res, err
}

func (p *Processor) maybeAlert(ctx context.Context, item domain.DueSubscription, t domain.Transition) {
	if p.alerter == nil || p.cfg.AlertThreshold <= 0 || t.ConsecutiveFailures != p.cfg.AlertThreshold {
		return
	}
	alert := ports.FailureAlert{
		SubscriptionID:      item.ID,
		SequenceID:          item.SequenceID,
		ConnectionID:        item.ConnectionID,
		ContactID:           item.ContactID,
		CurrentStep:         item.CurrentStep,
		ConsecutiveFailures: t.ConsecutiveFailures,
	}
	if t.LastError != nil {
		alert.LastError = *t.LastError
	}
	if err := p.alerter.SubscriptionFailing(ctx, alert); err != nil {
		p.log.Error("send failure alert failed", "subscriptionId", item.ID, "error", err)
	}
}

func (p *Processor) publishCompleted(ctx context.Context, item domain.DueSubscription) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, events.SequenceCompleted{
		BaseEvent: events.NewBaseEvent(),
		Contact: events.Contact{
			ConnectionID:   item.ConnectionID,
			ContactID:      item.ContactID,
			ConversationID: item.ConversationID,
			Name:           item.Contact.Name,
			Phone:          item.Contact.Phone,
			Email:          item.Contact.Email,
		},
		SequenceID:     item.SequenceID,
		SubscriptionID: item.ID,
	})
}

func (p *Processor) observeRun(result string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.ProcessorRuns.WithLabelValues(result).Inc()
	p.metrics.ProcessorRunDuration.Observe(p.now().Sub(start).Seconds())
}

// stepCache memoizes step lists for the duration of one run.
type stepCache struct {
	store ProcessorStore
	mu    sync.Mutex
	steps map[uuid.UUID][]domain.Step
}

func newStepCache(store ProcessorStore) *stepCache {
	return &stepCache{store: store, steps: make(map[uuid.UUID][]domain.Step)}
}

func (c *stepCache) get(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error) {
	c.mu.Lock()
	cached, ok := c.steps[sequenceID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	steps, err := c.store.GetSteps(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.steps[sequenceID] = steps
	c.mu.Unlock()
	return steps, nil
}
