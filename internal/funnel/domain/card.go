// Package domain holds the funnel board model and the pure position
// reconciliation used by drag-and-drop moves.
package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityTypeCard is the stage_history entity_type for funnel cards.
const EntityTypeCard = "funnel_card"

// Card is a contact's card on a connection's Kanban funnel. Position is nil
// for legacy cards that were never reconciled.
type Card struct {
	ID             uuid.UUID
	ConnectionID   uuid.UUID
	ContactID      uuid.UUID
	ConversationID *uuid.UUID
	Title          string
	Stage          string
	Position       *int
	LastActivityAt time.Time

	ContactName  string
	ContactPhone string
	ContactEmail string
}

// HistoryEntry is one append-only stage change record.
type HistoryEntry struct {
	ID           uuid.UUID
	ConnectionID uuid.UUID
	EntityType   string
	EntityID     uuid.UUID
	FromStage    string
	ToStage      string
	Notes        *string
	CreatedAt    time.Time
}

// Terminal classifies stages that close a deal.
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalWon
	TerminalLost
)

var (
	wonStages  = map[string]struct{}{"ganho": {}, "won": {}}
	lostStages = map[string]struct{}{"perdido": {}, "lost": {}}
)

// TerminalOf reports whether stage is a won or lost stage, ignoring case.
func TerminalOf(stage string) Terminal {
	key := strings.ToLower(strings.TrimSpace(stage))
	if _, ok := wonStages[key]; ok {
		return TerminalWon
	}
	if _, ok := lostStages[key]; ok {
		return TerminalLost
	}
	return TerminalNone
}

// SortForBoard orders cards the way a stage column is read: position
// ascending with unpositioned cards last, then most recent activity first.
func SortForBoard(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		switch {
		case a.Position != nil && b.Position == nil:
			return true
		case a.Position == nil && b.Position != nil:
			return false
		case a.Position != nil && b.Position != nil && *a.Position != *b.Position:
			return *a.Position < *b.Position
		}
		return a.LastActivityAt.After(b.LastActivityAt)
	})
}
