package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"zapflow_backend/internal/events"
	"zapflow_backend/internal/funnel/domain"
	"zapflow_backend/internal/funnel/repository"
	"zapflow_backend/platform/apperr"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBoard struct {
	mu      sync.Mutex
	cards   map[uuid.UUID]*domain.Card
	history []domain.HistoryEntry
}

func newMemBoard() *memBoard {
	return &memBoard{cards: map[uuid.UUID]*domain.Card{}}
}

func (m *memBoard) add(connectionID uuid.UUID, title, stage string, position int) uuid.UUID {
	pos := position
	c := &domain.Card{
		ID:             uuid.New(),
		ConnectionID:   connectionID,
		ContactID:      uuid.New(),
		Title:          title,
		Stage:          stage,
		Position:       &pos,
		LastActivityAt: time.Now(),
		ContactName:    title + " Contact",
		ContactPhone:   "+5511999990000",
	}
	m.cards[c.ID] = c
	return c.ID
}

func (m *memBoard) column(connectionID uuid.UUID, stage string) []domain.Card {
	out := make([]domain.Card, 0)
	for _, c := range m.cards {
		if c.ConnectionID == connectionID && c.Stage == stage {
			out = append(out, *c)
		}
	}
	domain.SortForBoard(out)
	return out
}

func (m *memBoard) titles(connectionID uuid.UUID, stage string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for _, c := range m.column(connectionID, stage) {
		out = append(out, c.Title)
	}
	return out
}

func (m *memBoard) ApplyMove(_ context.Context, in domain.MoveInput) (domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved, ok := m.cards[in.CardID]
	if !ok || moved.ConnectionID != in.ConnectionID {
		return domain.Plan{}, repository.ErrNotFound
	}
	var source []domain.Card
	if moved.Stage != in.ToStage {
		source = m.column(in.ConnectionID, moved.Stage)
	}
	plan := domain.Reorder(*moved, m.column(in.ConnectionID, in.ToStage), source, in.ToStage, in.NewIndex)
	for _, u := range plan.Updates {
		pos := u.Position
		m.cards[u.CardID].Stage = u.Stage
		m.cards[u.CardID].Position = &pos
	}
	if plan.StageChanged() {
		m.history = append(m.history, domain.HistoryEntry{
			ID:           uuid.New(),
			ConnectionID: in.ConnectionID,
			EntityType:   domain.EntityTypeCard,
			EntityID:     moved.ID,
			FromStage:    plan.FromStage,
			ToStage:      plan.ToStage,
			Notes:        in.Notes,
			CreatedAt:    time.Now(),
		})
	}
	return plan, nil
}

func (m *memBoard) GetCard(_ context.Context, connectionID, cardID uuid.UUID) (domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardID]
	if !ok || c.ConnectionID != connectionID {
		return domain.Card{}, repository.ErrNotFound
	}
	return *c, nil
}

func (m *memBoard) ListStage(_ context.Context, connectionID uuid.UUID, stage string) ([]domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.column(connectionID, stage), nil
}

func (m *memBoard) ListHistory(_ context.Context, connectionID, cardID uuid.UUID) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.HistoryEntry, 0)
	for _, h := range m.history {
		if h.ConnectionID == connectionID && h.EntityID == cardID {
			out = append(out, h)
		}
	}
	return out, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

func newTestService(t *testing.T) (*Service, *memBoard, *recordingBus, *metrics.Metrics) {
	t.Helper()
	board := newMemBoard()
	bus := &recordingBus{}
	m := metrics.New(prometheus.NewRegistry())
	return New(board, bus, logger.Nop(), m), board, bus, m
}

func TestMoveCardNovoToGanho(t *testing.T) {
	svc, board, bus, m := newTestService(t)
	conn := uuid.New()
	board.add(conn, "A", "novo", 0)
	b := board.add(conn, "B", "novo", 1)
	board.add(conn, "C", "novo", 2)
	board.add(conn, "D", "ganho", 0)
	board.add(conn, "E", "ganho", 1)
	notes := "fechou contrato"

	res, err := svc.MoveCard(context.Background(), domain.MoveInput{
		ConnectionID: conn, CardID: b, ToStage: "ganho", NewIndex: 1, Notes: &notes,
	})
	require.NoError(t, err)

	assert.True(t, res.StageChanged)
	assert.Equal(t, "novo", res.FromStage)
	assert.Equal(t, "ganho", res.ToStage)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, []string{"D", "B", "E"}, board.titles(conn, "ganho"))
	assert.Equal(t, []string{"A", "C"}, board.titles(conn, "novo"))

	history, err := svc.History(context.Background(), conn, b)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "novo", history[0].FromStage)
	assert.Equal(t, "ganho", history[0].ToStage)
	require.NotNil(t, history[0].Notes)
	assert.Equal(t, notes, *history[0].Notes)

	assert.Equal(t, []string{"funnel.card.stage_changed", "funnel.deal.won"}, bus.names())
	changed, ok := bus.published[0].(events.FunnelStageChanged)
	require.True(t, ok)
	assert.Equal(t, b, changed.CardID)
	assert.Equal(t, "B Contact", changed.Name)
	assert.Equal(t, conn, changed.ConnectionID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FunnelMoves.WithLabelValues("cross_stage")))
}

func TestMoveCardToLostStagePublishesDealLost(t *testing.T) {
	svc, board, bus, _ := newTestService(t)
	conn := uuid.New()
	a := board.add(conn, "A", "proposta", 0)

	_, err := svc.MoveCard(context.Background(), domain.MoveInput{ConnectionID: conn, CardID: a, ToStage: "Perdido"})
	require.NoError(t, err)
	assert.Equal(t, []string{"funnel.card.stage_changed", "funnel.deal.lost"}, bus.names())
}

func TestMoveCardWithinStageWritesNoHistoryOrEvents(t *testing.T) {
	svc, board, bus, m := newTestService(t)
	conn := uuid.New()
	a := board.add(conn, "A", "novo", 0)
	board.add(conn, "B", "novo", 1)
	board.add(conn, "C", "novo", 2)

	res, err := svc.MoveCard(context.Background(), domain.MoveInput{ConnectionID: conn, CardID: a, ToStage: "novo", NewIndex: 10})
	require.NoError(t, err)

	assert.False(t, res.StageChanged)
	assert.Equal(t, 2, res.Position)
	assert.Equal(t, []string{"B", "C", "A"}, board.titles(conn, "novo"))
	history, err := svc.History(context.Background(), conn, a)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, bus.names())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FunnelMoves.WithLabelValues("same_stage")))
}

func TestMoveCardKeepsPositionsContiguousAcrossManyMoves(t *testing.T) {
	svc, board, _, _ := newTestService(t)
	conn := uuid.New()
	stages := []string{"novo", "contato", "proposta"}
	ids := make([]uuid.UUID, 0)
	for i := 0; i < 9; i++ {
		ids = append(ids, board.add(conn, string(rune('A'+i)), stages[i%3], i/3))
	}

	for i, id := range ids {
		_, err := svc.MoveCard(context.Background(), domain.MoveInput{
			ConnectionID: conn, CardID: id, ToStage: stages[(i+1)%3], NewIndex: i % 4,
		})
		require.NoError(t, err)
	}

	total := 0
	for _, stage := range stages {
		cards, err := svc.ListStage(context.Background(), conn, stage)
		require.NoError(t, err)
		for i, c := range cards {
			require.NotNil(t, c.Position)
			assert.Equal(t, i, *c.Position, "stage %s", stage)
		}
		total += len(cards)
	}
	assert.Equal(t, len(ids), total)
}

func TestMoveCardErrors(t *testing.T) {
	svc, board, _, _ := newTestService(t)
	conn := uuid.New()
	a := board.add(conn, "A", "novo", 0)

	_, err := svc.MoveCard(context.Background(), domain.MoveInput{ConnectionID: conn, CardID: a, ToStage: "  "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.MoveCard(context.Background(), domain.MoveInput{ConnectionID: conn, CardID: uuid.New(), ToStage: "ganho"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.MoveCard(context.Background(), domain.MoveInput{ConnectionID: uuid.New(), CardID: a, ToStage: "ganho"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "cards of another connection are invisible")
}
