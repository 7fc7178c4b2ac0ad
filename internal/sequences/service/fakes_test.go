package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"zapflow_backend/internal/sequences/domain"
	"zapflow_backend/internal/sequences/ports"
	"zapflow_backend/internal/sequences/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the pgx repository with the same
// claim and conditional-write semantics.
type memStore struct {
	mu        sync.Mutex
	sequences map[uuid.UUID]domain.Sequence
	contacts  map[uuid.UUID]domain.Contact
	subs      map[uuid.UUID]*domain.Subscription
	sentCount map[uuid.UUID]int
	claimErr  error
	released  []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		sequences: make(map[uuid.UUID]domain.Sequence),
		contacts:  make(map[uuid.UUID]domain.Contact),
		subs:      make(map[uuid.UUID]*domain.Subscription),
		sentCount: make(map[uuid.UUID]int),
	}
}

func (m *memStore) addSequence(connectionID uuid.UUID, active bool, steps ...domain.Step) domain.Sequence {
	seq := domain.Sequence{ID: uuid.New(), ConnectionID: connectionID, Name: "drip", IsActive: active}
	for i := range steps {
		if steps[i].ID == uuid.Nil {
			steps[i].ID = uuid.New()
		}
		steps[i].SequenceID = seq.ID
		steps[i].OrderIndex = i
	}
	seq.Steps = steps
	m.mu.Lock()
	m.sequences[seq.ID] = seq
	m.mu.Unlock()
	return seq
}

func (m *memStore) addContact(name, phone string) uuid.UUID {
	id := uuid.New()
	m.mu.Lock()
	m.contacts[id] = domain.Contact{Name: name, Phone: phone}
	m.mu.Unlock()
	return id
}

func (m *memStore) sub(id uuid.UUID) domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.subs[id]
}

func (m *memStore) openCount(contactID, sequenceID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.ContactID == contactID && s.SequenceID == sequenceID && s.Status.IsOpen() {
			n++
		}
	}
	return n
}

func (m *memStore) GetSequence(_ context.Context, connectionID, sequenceID uuid.UUID) (domain.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.sequences[sequenceID]
	if !ok || seq.ConnectionID != connectionID {
		return domain.Sequence{}, repository.ErrNotFound
	}
	seq.Steps = append([]domain.Step(nil), seq.Steps...)
	return seq, nil
}

func (m *memStore) GetSteps(_ context.Context, sequenceID uuid.UUID) ([]domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := append([]domain.Step(nil), m.sequences[sequenceID].Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].OrderIndex < steps[j].OrderIndex })
	return steps, nil
}

func (m *memStore) ReorderSteps(_ context.Context, sequenceID uuid.UUID, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.sequences[sequenceID]
	pos := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	for i := range seq.Steps {
		idx, ok := pos[seq.Steps[i].ID]
		if !ok {
			return repository.ErrStepSetMismatch
		}
		seq.Steps[i].OrderIndex = idx
	}
	sort.Slice(seq.Steps, func(i, j int) bool { return seq.Steps[i].OrderIndex < seq.Steps[j].OrderIndex })
	m.sequences[sequenceID] = seq
	return nil
}

func (m *memStore) IncrementSentCount(_ context.Context, stepID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentCount[stepID]++
	return nil
}

func (m *memStore) ContactExists(_ context.Context, _, contactID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.contacts[contactID]
	return ok, nil
}

func (m *memStore) GetOpenSubscription(_ context.Context, contactID, sequenceID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ContactID == contactID && s.SequenceID == sequenceID && s.Status.IsOpen() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateSubscription(_ context.Context, sub domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ContactID == sub.ContactID && s.SequenceID == sub.SequenceID && s.Status.IsOpen() {
			return repository.ErrAlreadyEnrolled
		}
	}
	cp := sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *memStore) GetSubscription(_ context.Context, connectionID, id uuid.UUID) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.ConnectionID != connectionID {
		return domain.Subscription{}, repository.ErrNotFound
	}
	return *s, nil
}

func (m *memStore) ListSubscriptions(_ context.Context, connectionID, sequenceID uuid.UUID) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Subscription, 0)
	for _, s := range m.subs {
		if s.ConnectionID == connectionID && s.SequenceID == sequenceID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) CancelSubscription(_ context.Context, connectionID, id uuid.UUID, at time.Time) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.ConnectionID != connectionID {
		return domain.Subscription{}, repository.ErrNotFound
	}
	if !s.Status.IsOpen() {
		return domain.Subscription{}, repository.ErrNotOpen
	}
	s.Status = domain.StatusCancelled
	s.CompletedAt = &at
	s.NextStepAt = nil
	return *s, nil
}

func (m *memStore) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int, exclude []uuid.UUID) ([]domain.DueSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	due := make([]*domain.Subscription, 0)
	for _, s := range m.subs {
		if skip[s.ID] || !s.Status.IsOpen() || s.NextStepAt == nil || s.NextStepAt.After(now) {
			continue
		}
		if !m.sequences[s.SequenceID].IsActive {
			continue
		}
		due = append(due, s)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextStepAt.Before(*due[j].NextStepAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.DueSubscription, 0, len(due))
	for _, s := range due {
		lease := leaseUntil
		s.NextStepAt = &lease
		out = append(out, domain.DueSubscription{Subscription: *s, Contact: m.contacts[s.ContactID], LeaseUntil: leaseUntil})
	}
	return out, nil
}

func (m *memStore) ApplyTransition(_ context.Context, id uuid.UUID, expectedStep int, t domain.Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.CurrentStep != expectedStep || !s.Status.IsOpen() {
		return false, nil
	}
	s.CurrentStep = t.CurrentStep
	s.Status = t.Status
	s.NextStepAt = t.NextStepAt
	s.CompletedAt = t.CompletedAt
	s.ConsecutiveFailures = t.ConsecutiveFailures
	s.LastError = t.LastError
	s.LastMessageID = t.LastMessageID
	return true, nil
}

func (m *memStore) ReleaseClaims(_ context.Context, ids []uuid.UUID, leaseUntil, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if s, ok := m.subs[id]; ok && s.NextStepAt != nil && s.NextStepAt.Equal(leaseUntil) {
			at := now
			s.NextStepAt = &at
			m.released = append(m.released, id)
		}
	}
	return nil
}

// recordingDispatcher records sends and can fail per phone number.
type recordingDispatcher struct {
	mu       sync.Mutex
	sent     []ports.OutboundMessage
	failFor  map[string]error
	delay    time.Duration
	onSend   func(ports.OutboundMessage)
	sequence int
}

func (d *recordingDispatcher) Send(ctx context.Context, msg ports.OutboundMessage) (ports.DispatchResult, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return ports.DispatchResult{}, ctx.Err()
		}
	}
	if d.onSend != nil {
		d.onSend(msg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failFor[msg.Phone]; ok {
		return ports.DispatchResult{}, err
	}
	d.sent = append(d.sent, msg)
	d.sequence++
	return ports.DispatchResult{ProviderMessageID: uuid.NewString()}, nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []ports.FailureAlert
}

func (a *recordingAlerter) SubscriptionFailing(_ context.Context, alert ports.FailureAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

type stubLock struct {
	acquired bool
	err      error
	released bool
}

func (l *stubLock) TryAcquire(context.Context, time.Duration) (func(context.Context), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func(context.Context) { l.released = true }, true, nil
}

// fakeClock is a settable clock shared by the service under test.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var errGatewayDown = errors.New("gateway unavailable")
