package domain

import "github.com/google/uuid"

// Outcome is how one rule fared against an event.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// RuleResult is one entry of a Report.
type RuleResult struct {
	RuleID   uuid.UUID  `json:"ruleId"`
	RuleName string     `json:"ruleName"`
	Action   ActionType `json:"action"`
	Outcome  Outcome    `json:"outcome"`
	Detail   string     `json:"detail,omitempty"`
}

// Report lists the outcome of every matching rule in definition order.
type Report struct {
	EventType EventType    `json:"eventType"`
	Results   []RuleResult `json:"results"`
}

// Count returns how many results have outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}
