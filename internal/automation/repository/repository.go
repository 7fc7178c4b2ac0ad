package repository

import (
	"context"
	"time"

	"zapflow_backend/internal/automation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRecord is one automation_runs audit row.
type RunRecord struct {
	RuleID       uuid.UUID
	ConnectionID uuid.UUID
	EventType    domain.EventType
	ContactID    uuid.UUID
	Outcome      domain.Outcome
	Detail       string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveRules returns the connection's active rules for eventType in
// definition order.
func (r *Repository) ListActiveRules(ctx context.Context, connectionID uuid.UUID, eventType domain.EventType) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, connection_id, name, event_type, condition_to_stage, condition_from_stage,
			condition_sequence_id, action_type, message_template, target_sequence_id, is_active, created_at
		FROM trigger_rules
		WHERE connection_id = $1 AND event_type = $2 AND is_active
		ORDER BY created_at ASC, id ASC
	`, connectionID, string(eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.Rule, 0)
	for rows.Next() {
		var (
			rule      domain.Rule
			eventName string
			action    string
		)
		if err := rows.Scan(&rule.ID, &rule.ConnectionID, &rule.Name, &eventName,
			&rule.Condition.ToStage, &rule.Condition.FromStage, &rule.Condition.SequenceID,
			&action, &rule.MessageTemplate, &rule.TargetSequenceID, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rule.EventType = domain.EventType(eventName)
		rule.Action = domain.ActionType(action)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// RecordRun appends an audit row.
func (r *Repository) RecordRun(ctx context.Context, run RunRecord) error {
	var contactID *uuid.UUID
	if run.ContactID != uuid.Nil {
		contactID = &run.ContactID
	}
	var detail *string
	if run.Detail != "" {
		detail = &run.Detail
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO automation_runs (id, rule_id, connection_id, event_type, contact_id, outcome, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), run.RuleID, run.ConnectionID, string(run.EventType), contactID, string(run.Outcome), detail)
	return err
}

// DeleteRunsBefore prunes audit rows created before the cutoff.
func (r *Repository) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM automation_runs WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
