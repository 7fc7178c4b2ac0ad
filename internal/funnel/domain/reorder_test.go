package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func card(name, stage string, pos *int, activity time.Time) Card {
	return Card{ID: uuid.New(), Title: name, Stage: stage, Position: pos, LastActivityAt: activity}
}

// apply returns the board after the plan's updates, keyed by stage in
// position order.
func apply(cards []Card, plan Plan) map[string][]string {
	byID := make(map[uuid.UUID]*Card, len(cards))
	for i := range cards {
		byID[cards[i].ID] = &cards[i]
	}
	for _, u := range plan.Updates {
		c := byID[u.CardID]
		c.Stage = u.Stage
		c.Position = intPtr(u.Position)
	}
	board := map[string][]Card{}
	for _, c := range cards {
		board[c.Stage] = append(board[c.Stage], c)
	}
	out := map[string][]string{}
	for stage, column := range board {
		SortForBoard(column)
		for _, c := range column {
			out[stage] = append(out[stage], c.Title)
		}
	}
	return out
}

func assertContiguous(t *testing.T, cards []Card, plan Plan, stages ...string) {
	t.Helper()
	byID := map[uuid.UUID]Card{}
	for _, c := range cards {
		byID[c.ID] = c
	}
	for _, u := range plan.Updates {
		c := byID[u.CardID]
		c.Stage = u.Stage
		c.Position = intPtr(u.Position)
		byID[u.CardID] = c
	}
	for _, stage := range stages {
		seen := map[int]bool{}
		n := 0
		for _, c := range byID {
			if c.Stage != stage {
				continue
			}
			n++
			require.NotNil(t, c.Position, "card %s in %s has no position", c.Title, stage)
			seen[*c.Position] = true
		}
		for i := 0; i < n; i++ {
			assert.True(t, seen[i], "stage %s missing position %d", stage, i)
		}
	}
}

func TestReorderMovesCardAcrossStages(t *testing.T) {
	now := time.Now()
	a := card("A", "novo", intPtr(0), now)
	b := card("B", "novo", intPtr(1), now)
	c := card("C", "novo", intPtr(2), now)
	d := card("D", "ganho", intPtr(0), now)
	e := card("E", "ganho", intPtr(1), now)
	all := []Card{a, b, c, d, e}

	plan := Reorder(b, []Card{d, e}, []Card{a, b, c}, "ganho", 1)

	assert.True(t, plan.StageChanged())
	assert.Equal(t, "novo", plan.FromStage)
	assert.Equal(t, "ganho", plan.ToStage)
	assert.Equal(t, 1, plan.Index)
	assert.Equal(t, "ganho", plan.Card.Stage)
	assert.Equal(t, 1, *plan.Card.Position)

	board := apply(all, plan)
	assert.Equal(t, []string{"D", "B", "E"}, board["ganho"])
	assert.Equal(t, []string{"A", "C"}, board["novo"])
	assert.Len(t, plan.Updates, 3, "only B, E and C change")
	assertContiguous(t, []Card{a, b, c, d, e}, plan, "novo", "ganho")
}

func TestReorderWithinStage(t *testing.T) {
	now := time.Now()
	a := card("A", "novo", intPtr(0), now)
	b := card("B", "novo", intPtr(1), now)
	c := card("C", "novo", intPtr(2), now)

	plan := Reorder(a, []Card{a, b, c}, nil, "novo", 2)

	assert.False(t, plan.StageChanged())
	board := apply([]Card{a, b, c}, plan)
	assert.Equal(t, []string{"B", "C", "A"}, board["novo"])
	assertContiguous(t, []Card{a, b, c}, plan, "novo")
}

func TestReorderToSamePositionIsNoop(t *testing.T) {
	now := time.Now()
	a := card("A", "novo", intPtr(0), now)
	b := card("B", "novo", intPtr(1), now)

	plan := Reorder(b, []Card{a, b}, nil, "novo", 1)
	assert.Empty(t, plan.Updates)
}

func TestReorderClampsIndex(t *testing.T) {
	now := time.Now()
	a := card("A", "novo", intPtr(0), now)
	b := card("B", "novo", intPtr(1), now)
	x := card("X", "contato", intPtr(0), now)

	plan := Reorder(x, []Card{a, b}, []Card{x}, "novo", 99)
	assert.Equal(t, 2, plan.Index)
	assert.Equal(t, []string{"A", "B", "X"}, apply([]Card{a, b, x}, plan)["novo"])

	plan = Reorder(x, []Card{a, b}, []Card{x}, "novo", -4)
	assert.Equal(t, 0, plan.Index)
}

func TestReorderNormalizesLegacyPositions(t *testing.T) {
	now := time.Now()
	// Unpositioned cards sort after positioned ones, newest activity first.
	old := card("old", "novo", nil, now.Add(-time.Hour))
	recent := card("recent", "novo", nil, now)
	first := card("first", "novo", intPtr(5), now.Add(-24*time.Hour))
	moved := card("M", "contato", intPtr(0), now)

	target := []Card{old, recent, first}
	SortForBoard(target)
	require.Equal(t, []string{"first", "recent", "old"}, []string{target[0].Title, target[1].Title, target[2].Title})

	plan := Reorder(moved, target, []Card{moved}, "novo", 1)
	all := []Card{old, recent, first, moved}
	assert.Equal(t, []string{"first", "M", "recent", "old"}, apply(all, plan)["novo"])
	assertContiguous(t, []Card{old, recent, first, moved}, plan, "novo", "contato")
}

func TestTerminalOf(t *testing.T) {
	assert.Equal(t, TerminalWon, TerminalOf("ganho"))
	assert.Equal(t, TerminalWon, TerminalOf(" Won "))
	assert.Equal(t, TerminalLost, TerminalOf("PERDIDO"))
	assert.Equal(t, TerminalLost, TerminalOf("lost"))
	assert.Equal(t, TerminalNone, TerminalOf("novo"))
	assert.Equal(t, TerminalNone, TerminalOf(""))
}
