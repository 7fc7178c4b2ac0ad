package domain

import (
	"time"

	"zapflow_backend/platform/textutil"
)

// Action is what the processor must do with a due subscription.
type Action int

const (
	// ActionComplete closes a subscription whose steps are exhausted.
	ActionComplete Action = iota
	// ActionSkipInactive advances past a disabled step without sending.
	ActionSkipInactive
	// ActionDefer moves next_step_at to the next send-window opening.
	ActionDefer
	// ActionDispatch sends the current step.
	ActionDispatch
)

func (a Action) String() string {
	switch a {
	case ActionComplete:
		return "complete"
	case ActionSkipInactive:
		return "skip_inactive"
	case ActionDefer:
		return "defer"
	case ActionDispatch:
		return "dispatch"
	default:
		return "unknown"
	}
}

// Policy carries the processor settings the rules depend on.
type Policy struct {
	Location     *time.Location
	Tolerance    time.Duration
	RetryBackoff time.Duration
}

// Decision is the outcome of evaluating one due subscription. Transition
// is ready to persist for every action except ActionDispatch, whose
// transition depends on the send result.
type Decision struct {
	Action     Action
	Step       Step
	Transition Transition
}

const maxErrorLength = 500

// Decide evaluates a due subscription against its sequence's steps.
// Inactive steps are skipped before the send window is consulted, so a
// disabled step never holds a subscription until its window opens.
func Decide(sub Subscription, steps []Step, now time.Time, p Policy) Decision {
	if sub.CurrentStep >= len(steps) {
		return Decision{Action: ActionComplete, Transition: completed(sub, now)}
	}

	step := steps[sub.CurrentStep]
	if !step.IsActive {
		return Decision{Action: ActionSkipInactive, Step: step, Transition: Advance(sub, steps, now, nil)}
	}

	window := WindowFor(step)
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	if !window.Allows(now, loc, p.Tolerance) {
		next := window.NextOpening(now, loc)
		t := unchanged(sub)
		t.NextStepAt = &next
		return Decision{Action: ActionDefer, Step: step, Transition: t}
	}

	return Decision{Action: ActionDispatch, Step: step}
}

// Advance moves past the current step. next_step_at becomes now plus the
// following step's delay; passing the last step completes the subscription.
func Advance(sub Subscription, steps []Step, now time.Time, messageID *string) Transition {
	next := sub.CurrentStep + 1
	if next >= len(steps) {
		t := completed(sub, now)
		t.CurrentStep = next
		if messageID != nil {
			t.LastMessageID = messageID
		}
		return t
	}

	at := now.Add(steps[next].Delay())
	t := Transition{
		CurrentStep:   next,
		Status:        StatusActive,
		NextStepAt:    &at,
		LastMessageID: sub.LastMessageID,
	}
	if messageID != nil {
		t.LastMessageID = messageID
	}
	return t
}

// Failure keeps the subscription on the same step and retries after the
// backoff. The status stays open; only an operator cancels it.
func Failure(sub Subscription, now time.Time, p Policy, cause error) Transition {
	backoff := p.RetryBackoff
	if backoff <= 0 {
		backoff = 5 * time.Minute
	}
	at := now.Add(backoff)
	msg := textutil.Truncate(cause.Error(), maxErrorLength)
	t := unchanged(sub)
	t.NextStepAt = &at
	t.ConsecutiveFailures = sub.ConsecutiveFailures + 1
	t.LastError = &msg
	return t
}

func completed(sub Subscription, now time.Time) Transition {
	return Transition{
		CurrentStep:   sub.CurrentStep,
		Status:        StatusCompleted,
		CompletedAt:   &now,
		LastMessageID: sub.LastMessageID,
	}
}

func unchanged(sub Subscription) Transition {
	return Transition{
		CurrentStep:         sub.CurrentStep,
		Status:              sub.Status,
		NextStepAt:          sub.NextStepAt,
		CompletedAt:         sub.CompletedAt,
		ConsecutiveFailures: sub.ConsecutiveFailures,
		LastError:           sub.LastError,
		LastMessageID:       sub.LastMessageID,
	}
}
