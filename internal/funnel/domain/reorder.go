package domain

import (
	"github.com/google/uuid"
)

// MoveInput is a drag-and-drop request for one card.
type MoveInput struct {
	ConnectionID uuid.UUID
	CardID       uuid.UUID
	ToStage      string
	NewIndex     int
	Notes        *string
}

// PositionUpdate is one row of the batched position write.
type PositionUpdate struct {
	CardID   uuid.UUID
	Stage    string
	Position int
}

// Plan is the outcome of reconciling a move.
type Plan struct {
	Card      Card
	FromStage string
	ToStage   string
	Index     int
	// Updates holds only cards whose stage or position changes.
	Updates []PositionUpdate
}

// StageChanged reports whether the move crossed stages.
func (p Plan) StageChanged() bool {
	return p.FromStage != p.ToStage
}

// Reorder places moved at newIndex in the target column and renumbers it
// densely from 0. target and source must be in board order (SortForBoard).
// target may contain moved on a same-stage move. On a cross-stage move the
// source column is repacked without the moved card. newIndex is clamped to
// [0, len(target without moved)].
func Reorder(moved Card, target, source []Card, toStage string, newIndex int) Plan {
	column := without(target, moved.ID)
	index := clamp(newIndex, 0, len(column))

	column = append(column, Card{})
	copy(column[index+1:], column[index:])
	column[index] = moved

	plan := Plan{
		FromStage: moved.Stage,
		ToStage:   toStage,
		Index:     index,
	}
	plan.Updates = appendChanged(plan.Updates, column, toStage)

	if plan.StageChanged() {
		plan.Updates = appendChanged(plan.Updates, without(source, moved.ID), moved.Stage)
	}

	pos := index
	plan.Card = moved
	plan.Card.Stage = toStage
	plan.Card.Position = &pos
	return plan
}

func appendChanged(updates []PositionUpdate, column []Card, stage string) []PositionUpdate {
	for i, card := range column {
		if card.Stage == stage && card.Position != nil && *card.Position == i {
			continue
		}
		updates = append(updates, PositionUpdate{CardID: card.ID, Stage: stage, Position: i})
	}
	return updates
}

func without(cards []Card, id uuid.UUID) []Card {
	out := make([]Card, 0, len(cards)+1)
	for _, c := range cards {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
