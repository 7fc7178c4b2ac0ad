package repository

import (
	"context"
	"errors"
	"slices"

	"zapflow_backend/internal/funnel/domain"
	"zapflow_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConcurrentMove means the card changed stage between the first read
	// and the stage locks being granted.
	ErrConcurrentMove = errors.New("card was moved concurrently")
)

const cardColumns = `c.id, c.connection_id, c.contact_id, c.conversation_id, c.title, c.stage,
	c.position, c.last_activity_at, ct.name, ct.phone_number, COALESCE(ct.email, '')`

type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) ApplyMove(ctx context.Context, in domain.MoveInput) (domain.Plan, error) {
	var plan domain.Plan
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := getCard(ctx, tx, in.ConnectionID, in.CardID, false)
		if err != nil {
			return err
		}

		stages := []string{current.Stage, in.ToStage}
		slices.Sort(stages)
		stages = slices.Compact(stages)
		for _, stage := range stages {
			if _, err := tx.Exec(ctx,
				`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
				"funnel:"+in.ConnectionID.String()+":"+stage,
			); err != nil {
				return err
			}
		}

		moved, err := getCard(ctx, tx, in.ConnectionID, in.CardID, true)
		if err != nil {
			return err
		}
		if moved.Stage != current.Stage {
			return ErrConcurrentMove
		}

		target, err := listStage(ctx, tx, in.ConnectionID, in.ToStage)
		if err != nil {
			return err
		}
		var source []domain.Card
		if moved.Stage != in.ToStage {
			if source, err = listStage(ctx, tx, in.ConnectionID, moved.Stage); err != nil {
				return err
			}
		}

		plan = domain.Reorder(moved, target, source, in.ToStage, in.NewIndex)
		if err := writePositions(ctx, tx, in.ConnectionID, plan.Updates); err != nil {
			return err
		}

		if !plan.StageChanged() {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO stage_history (id, connection_id, entity_type, entity_id, from_stage, to_stage, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), in.ConnectionID, domain.EntityTypeCard, moved.ID, plan.FromStage, plan.ToStage, in.Notes)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE funnel_cards SET last_activity_at = now() WHERE id = $1
		`, moved.ID)
		return err
	})
	if err != nil {
		return domain.Plan{}, err
	}
	return plan, nil
}

func writePositions(ctx context.Context, tx pgx.Tx, connectionID uuid.UUID, updates []domain.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(updates))
	stages := make([]string, len(updates))
	positions := make([]int32, len(updates))
	for i, u := range updates {
		ids[i] = u.CardID
		stages[i] = u.Stage
		positions[i] = int32(u.Position)
	}

	_, err := tx.Exec(ctx, `
		UPDATE funnel_cards c
		SET stage = u.stage, position = u.position, updated_at = now()
		FROM unnest($2::uuid[], $3::text[], $4::int[]) AS u(id, stage, position)
		WHERE c.id = u.id AND c.connection_id = $1
	`, connectionID, ids, stages, positions)
	return err
}

func (r *Repository) GetCard(ctx context.Context, connectionID, cardID uuid.UUID) (domain.Card, error) {
	return getCard(ctx, r.pool, connectionID, cardID, false)
}

func (r *Repository) ListStage(ctx context.Context, connectionID uuid.UUID, stage string) ([]domain.Card, error) {
	return listStage(ctx, r.pool, connectionID, stage)
}

func (r *Repository) ListHistory(ctx context.Context, connectionID, cardID uuid.UUID) ([]domain.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, connection_id, entity_type, entity_id, from_stage, to_stage, notes, created_at
		FROM stage_history
		WHERE connection_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at ASC
	`, connectionID, domain.EntityTypeCard, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.ConnectionID, &h.EntityType, &h.EntityID,
			&h.FromStage, &h.ToStage, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func getCard(ctx context.Context, q queryer, connectionID, cardID uuid.UUID, forUpdate bool) (domain.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM funnel_cards c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE c.id = $1 AND c.connection_id = $2`
	if forUpdate {
		query += ` FOR UPDATE OF c`
	}

	card, err := scanCard(q.QueryRow(ctx, query, cardID, connectionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Card{}, ErrNotFound
	}
	return card, err
}

func listStage(ctx context.Context, q queryer, connectionID uuid.UUID, stage string) ([]domain.Card, error) {
	rows, err := q.Query(ctx, `
		SELECT `+cardColumns+`
		FROM funnel_cards c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE c.connection_id = $1 AND c.stage = $2
		ORDER BY c.position ASC NULLS LAST, c.last_activity_at DESC, c.id
	`, connectionID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]domain.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		c        domain.Card
		position *int32
	)
	err := row.Scan(&c.ID, &c.ConnectionID, &c.ContactID, &c.ConversationID, &c.Title, &c.Stage,
		&position, &c.LastActivityAt, &c.ContactName, &c.ContactPhone, &c.ContactEmail)
	if err != nil {
		return domain.Card{}, err
	}
	if position != nil {
		p := int(*position)
		c.Position = &p
	}
	return c, nil
}
