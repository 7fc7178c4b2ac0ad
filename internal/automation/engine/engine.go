// Package engine evaluates trigger rules against automation events.
package engine

import (
	"context"
	"errors"
	"fmt"

	"zapflow_backend/internal/automation/domain"
	"zapflow_backend/internal/automation/ports"
	"zapflow_backend/internal/automation/repository"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"
	"zapflow_backend/platform/monitoring"
	"zapflow_backend/platform/templating"
	"zapflow_backend/platform/textutil"

	"github.com/google/uuid"
)

const maxDetailLength = 1000

// RuleStore loads rules.
type RuleStore interface {
	ListActiveRules(ctx context.Context, connectionID uuid.UUID, eventType domain.EventType) ([]domain.Rule, error)
}

// RunRecorder persists the audit trail. Failures are logged, never returned.
type RunRecorder interface {
	RecordRun(ctx context.Context, run repository.RunRecord) error
}

// Engine runs the actions of every rule matching an event.
type Engine struct {
	rules      RuleStore
	audit      RunRecorder
	dispatcher ports.MessageDispatcher
	enroller   ports.Enroller
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func New(rules RuleStore, audit RunRecorder, dispatcher ports.MessageDispatcher, enroller ports.Enroller, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		rules:      rules,
		audit:      audit,
		dispatcher: dispatcher,
		enroller:   enroller,
		metrics:    m,
		log:        log.WithComponent("trigger_engine"),
	}
}

// ProcessEvent executes every active matching rule in definition order.
// A failing rule is reported and the remaining rules still run. The error
// is non-nil only when the rules could not be loaded.
func (e *Engine) ProcessEvent(ctx context.Context, event domain.Event) (domain.Report, error) {
	report := domain.Report{EventType: event.Type(), Results: make([]domain.RuleResult, 0)}
	subject := event.About()

	rules, err := e.rules.ListActiveRules(ctx, subject.ConnectionID, event.Type())
	if err != nil {
		return report, fmt.Errorf("load trigger rules: %w", err)
	}

	for _, rule := range rules {
		if !rule.Matches(event) {
			continue
		}
		result := e.execute(ctx, rule, event)
		report.Results = append(report.Results, result)
		e.record(ctx, rule, event, result)
	}

	e.log.WithContext(ctx).Info("automation event processed",
		"eventType", event.Type(),
		"contactId", subject.ContactID,
		"executed", report.Count(domain.OutcomeExecuted),
		"skipped", report.Count(domain.OutcomeSkipped),
		"failed", report.Count(domain.OutcomeFailed),
	)
	return report, nil
}

func (e *Engine) execute(ctx context.Context, rule domain.Rule, event domain.Event) (result domain.RuleResult) {
	result = domain.RuleResult{RuleID: rule.ID, RuleName: rule.Name, Action: rule.Action}
	defer func() {
		if r := recover(); r != nil {
			result.Outcome = domain.OutcomeFailed
			result.Detail = textutil.Truncate(fmt.Sprintf("panic: %v", r), maxDetailLength)
			monitoring.CaptureError(ctx, fmt.Errorf("trigger rule panic: %v", r), map[string]string{"ruleId": rule.ID.String()})
		}
	}()

	var err error
	switch rule.Action {
	case domain.ActionSendMessage:
		result.Detail, err = e.sendMessage(ctx, rule, event)
	case domain.ActionEnrollSequence:
		result.Detail, err = e.enroll(ctx, rule, event)
		if errors.Is(err, ports.ErrAlreadyEnrolled) {
			result.Outcome = domain.OutcomeSkipped
			result.Detail = "contact already enrolled"
			return result
		}
	default:
		err = fmt.Errorf("unsupported action %q", rule.Action)
	}

	if err != nil {
		result.Outcome = domain.OutcomeFailed
		result.Detail = textutil.Truncate(err.Error(), maxDetailLength)
		e.log.Warn("trigger rule failed", "ruleId", rule.ID, "action", rule.Action, "error", err)
		return result
	}
	result.Outcome = domain.OutcomeExecuted
	return result
}

func (e *Engine) sendMessage(ctx context.Context, rule domain.Rule, event domain.Event) (string, error) {
	if e.dispatcher == nil {
		return "", errors.New("message dispatcher not configured")
	}
	if rule.MessageTemplate == nil {
		return "", errors.New("rule has no message template")
	}
	subject := event.About()
	if subject.Phone == "" {
		return "", errors.New("contact has no phone number")
	}

	vars := domain.Variables(event)
	vars["first_name"] = templating.FirstName(subject.Name)
	text, err := templating.Render(*rule.MessageTemplate, vars)
	if err != nil {
		return "", err
	}

	messageID, err := e.dispatcher.SendMessage(ctx, ports.OutboundMessage{
		ConnectionID:   subject.ConnectionID,
		ContactID:      subject.ContactID,
		ConversationID: subject.ConversationID,
		Phone:          subject.Phone,
		Text:           text,
	})
	if err != nil {
		return "", err
	}
	if messageID == "" {
		return "message sent", nil
	}
	return "message " + messageID, nil
}

func (e *Engine) enroll(ctx context.Context, rule domain.Rule, event domain.Event) (string, error) {
	if e.enroller == nil {
		return "", errors.New("enroller not configured")
	}
	if rule.TargetSequenceID == nil {
		return "", errors.New("rule has no target sequence")
	}
	subject := event.About()
	subID, err := e.enroller.Enroll(ctx, ports.EnrollRequest{
		ConnectionID:   subject.ConnectionID,
		SequenceID:     *rule.TargetSequenceID,
		ContactID:      subject.ContactID,
		ConversationID: subject.ConversationID,
	})
	if err != nil {
		return "", err
	}
	return "subscription " + subID.String(), nil
}

func (e *Engine) record(ctx context.Context, rule domain.Rule, event domain.Event, result domain.RuleResult) {
	if e.metrics != nil {
		e.metrics.TriggerRuleOutcomes.WithLabelValues(string(event.Type()), string(result.Outcome)).Inc()
	}
	if e.audit == nil {
		return
	}
	err := e.audit.RecordRun(context.WithoutCancel(ctx), repository.RunRecord{
		RuleID:       rule.ID,
		ConnectionID: rule.ConnectionID,
		EventType:    event.Type(),
		ContactID:    event.About().ContactID,
		Outcome:      result.Outcome,
		Detail:       result.Detail,
	})
	if err != nil {
		e.log.Error("record automation run failed", "ruleId", rule.ID, "error", err)
	}
}
