package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zapflow_backend/internal/sequences/domain"
	"zapflow_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyEnrolled = errors.New("contact already has an open subscription for this sequence")
	ErrStepSetMismatch = errors.New("step ids do not match the sequence's steps")
	// ErrNotOpen is returned when cancelling a subscription that already terminated.
	ErrNotOpen = errors.New("subscription is not open")
)

const openSubscriptionIndex = "uq_sequence_subscriptions_open"

const subscriptionColumns = `s.id, s.sequence_id, s.contact_id, s.connection_id, s.conversation_id,
	s.current_step, s.status, s.started_at, s.next_step_at, s.completed_at,
	s.consecutive_failures, s.last_error, s.last_message_id`

type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetSequence(ctx context.Context, connectionID, sequenceID uuid.UUID) (domain.Sequence, error) {
	var seq domain.Sequence
	err := r.pool.QueryRow(ctx, `
		SELECT id, connection_id, name, is_active, created_at, updated_at
		FROM sequences
		WHERE id = $1 AND connection_id = $2
	`, sequenceID, connectionID).Scan(&seq.ID, &seq.ConnectionID, &seq.Name, &seq.IsActive, &seq.CreatedAt, &seq.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Sequence{}, ErrNotFound
	}
	if err != nil {
		return domain.Sequence{}, err
	}

	steps, err := r.GetSteps(ctx, seq.ID)
	if err != nil {
		return domain.Sequence{}, err
	}
	seq.Steps = steps
	return seq, nil
}

func (r *Repository) GetSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sequence_id, order_index, message, media_object_key, delay_value, delay_unit,
			send_time, send_days, is_active, sent_count, click_count
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY order_index ASC
	`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]domain.Step, 0)
	for rows.Next() {
		var step domain.Step
		var unit string
		if err := rows.Scan(
			&step.ID, &step.SequenceID, &step.OrderIndex, &step.Content.Message, &step.Content.MediaObjectKey,
			&step.DelayValue, &unit, &step.SendTime, &step.SendDays, &step.IsActive, &step.SentCount, &step.ClickCount,
		); err != nil {
			return nil, err
		}
		step.DelayUnit = domain.DelayUnit(unit)
		steps = append(steps, step)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return steps, nil
}

// ReorderSteps assigns order_index = position in orderedStepIDs. The
// unique (sequence_id, order_index) constraint is deferred, so the batch
// may pass through transient duplicates.
func (r *Repository) ReorderSteps(ctx context.Context, sequenceID uuid.UUID, orderedStepIDs []uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM sequence_steps WHERE sequence_id = $1
		`, sequenceID).Scan(&count); err != nil {
			return err
		}
		if count != len(orderedStepIDs) {
			return ErrStepSetMismatch
		}

		indexes := make([]int32, len(orderedStepIDs))
		for i := range orderedStepIDs {
			indexes[i] = int32(i)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE sequence_steps st
			SET order_index = u.order_index, updated_at = now()
			FROM unnest($2::uuid[], $3::int[]) AS u(id, order_index)
			WHERE st.id = u.id AND st.sequence_id = $1
		`, sequenceID, orderedStepIDs, indexes)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) != len(orderedStepIDs) {
			return ErrStepSetMismatch
		}

		_, err = tx.Exec(ctx, `UPDATE sequences SET updated_at = now() WHERE id = $1`, sequenceID)
		return err
	})
}

func (r *Repository) IncrementSentCount(ctx context.Context, stepID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sequence_steps SET sent_count = sent_count + 1 WHERE id = $1
	`, stepID)
	return err
}

func (r *Repository) ContactExists(ctx context.Context, connectionID, contactID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM contacts WHERE id = $1 AND connection_id = $2)
	`, contactID, connectionID).Scan(&exists)
	return exists, err
}

func (r *Repository) GetOpenSubscription(ctx context.Context, contactID, sequenceID uuid.UUID) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM sequence_subscriptions s
		WHERE s.contact_id = $1 AND s.sequence_id = $2 AND s.status IN ('active', 'pending')
		LIMIT 1
	`, contactID, sequenceID)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *Repository) CreateSubscription(ctx context.Context, sub domain.Subscription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sequence_subscriptions
			(id, sequence_id, contact_id, connection_id, conversation_id, current_step, status, started_at, next_step_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sub.ID, sub.SequenceID, sub.ContactID, sub.ConnectionID, sub.ConversationID,
		sub.CurrentStep, string(sub.Status), sub.StartedAt, sub.NextStepAt)
	if db.IsUniqueViolation(err, openSubscriptionIndex) {
		return ErrAlreadyEnrolled
	}
	return err
}

func (r *Repository) GetSubscription(ctx context.Context, connectionID, subscriptionID uuid.UUID) (domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM sequence_subscriptions s
		WHERE s.id = $1 AND s.connection_id = $2
	`, subscriptionID, connectionID)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, ErrNotFound
	}
	return sub, err
}

func (r *Repository) ListSubscriptions(ctx context.Context, connectionID, sequenceID uuid.UUID) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM sequence_subscriptions s
		WHERE s.connection_id = $1 AND s.sequence_id = $2
		ORDER BY s.started_at DESC
		LIMIT 500
	`, connectionID, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) CancelSubscription(ctx context.Context, connectionID, subscriptionID uuid.UUID, at time.Time) (domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sequence_subscriptions s
		SET status = 'cancelled', completed_at = $3, next_step_at = NULL, updated_at = now()
		WHERE s.id = $1 AND s.connection_id = $2 AND s.status IN ('active', 'pending')
		RETURNING `+subscriptionColumns,
		subscriptionID, connectionID, at)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetSubscription(ctx, connectionID, subscriptionID); getErr != nil {
			return domain.Subscription{}, getErr
		}
		return domain.Subscription{}, ErrNotOpen
	}
	return sub, err
}

func (r *Repository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int, exclude []uuid.UUID) ([]domain.DueSubscription, error) {
	if limit < 1 {
		limit = 200
	}
	if exclude == nil {
		exclude = []uuid.UUID{}
	}
	// timestamptz keeps microseconds; ReleaseClaims matches on this value.
	leaseUntil = leaseUntil.Truncate(time.Microsecond)

	var claimed []domain.DueSubscription
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH due AS (
				SELECT s.id
				FROM sequence_subscriptions s
				JOIN sequences q ON q.id = s.sequence_id
				WHERE s.status IN ('active', 'pending')
					AND s.next_step_at <= $1
					AND q.is_active
					AND NOT (s.id = ANY($4::uuid[]))
				ORDER BY s.next_step_at ASC
				LIMIT $3
				FOR UPDATE OF s SKIP LOCKED
			)
			UPDATE sequence_subscriptions s
			SET next_step_at = $2, updated_at = now()
			FROM due, contacts c
			WHERE s.id = due.id AND c.id = s.contact_id
			RETURNING `+subscriptionColumns+`, c.name, c.phone_number, COALESCE(c.email, '')
		`, now, leaseUntil, limit, exclude)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var item domain.DueSubscription
			var status string
			if err := rows.Scan(
				&item.ID, &item.SequenceID, &item.ContactID, &item.ConnectionID, &item.ConversationID,
				&item.CurrentStep, &status, &item.StartedAt, &item.NextStepAt, &item.CompletedAt,
				&item.ConsecutiveFailures, &item.LastError, &item.LastMessageID,
				&item.Contact.Name, &item.Contact.Phone, &item.Contact.Email,
			); err != nil {
				return err
			}
			item.Status = domain.Status(status)
			item.LeaseUntil = leaseUntil
			claimed = append(claimed, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("claim due subscriptions: %w", err)
	}
	return claimed, nil
}

func (r *Repository) ApplyTransition(ctx context.Context, subscriptionID uuid.UUID, expectedStep int, t domain.Transition) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_subscriptions
		SET current_step = $3,
			status = $4,
			next_step_at = $5,
			completed_at = $6,
			consecutive_failures = $7,
			last_error = $8,
			last_message_id = $9,
			updated_at = now()
		WHERE id = $1 AND current_step = $2 AND status IN ('active', 'pending')
	`, subscriptionID, expectedStep, t.CurrentStep, string(t.Status), t.NextStepAt, t.CompletedAt,
		t.ConsecutiveFailures, t.LastError, t.LastMessageID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ReleaseClaims(ctx context.Context, ids []uuid.UUID, leaseUntil, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE sequence_subscriptions
		SET next_step_at = $3, updated_at = now()
		WHERE id = ANY($1::uuid[]) AND next_step_at = $2 AND status IN ('active', 'pending')
	`, ids, leaseUntil, now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var sub domain.Subscription
	var status string
	err := row.Scan(
		&sub.ID, &sub.SequenceID, &sub.ContactID, &sub.ConnectionID, &sub.ConversationID,
		&sub.CurrentStep, &status, &sub.StartedAt, &sub.NextStepAt, &sub.CompletedAt,
		&sub.ConsecutiveFailures, &sub.LastError, &sub.LastMessageID,
	)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.Status = domain.Status(status)
	return sub, nil
}
