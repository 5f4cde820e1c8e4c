package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memRepo struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*OutboxEvent
	fetchErr error
	markErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{events: make(map[uuid.UUID]*OutboxEvent)}
}

func (r *memRepo) add(eventType string, createdAt time.Time) OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := OutboxEvent{
		ID:        uuid.New(),
		AuctionID: uuid.New(),
		EventType: eventType,
		Payload:   json.RawMessage(`{"ok":true}`),
		CreatedAt: createdAt,
	}
	r.events[ev.ID] = &ev
	return ev
}

func (r *memRepo) FetchUnsent(_ context.Context, limit int) ([]OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	var out []OutboxEvent
	for _, ev := range r.events {
		if ev.SentAt == nil {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) FetchByID(_ context.Context, id uuid.UUID) (*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	ev, ok := r.events[id]
	if !ok || ev.SentAt != nil {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *memRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	if ev, ok := r.events[id]; ok {
		now := time.Now()
		ev.SentAt = &now
	}
	return nil
}

func (r *memRepo) CountPending(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.SentAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) sent(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	return ok && ev.SentAt != nil
}

// recordingPublisher fails the first failures[id] attempts for an event
type recordingPublisher struct {
	mu        sync.Mutex
	published []uuid.UUID
	attempts  map[uuid.UUID]int
	failures  map[uuid.UUID]int
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{attempts: map[uuid.UUID]int{}, failures: map[uuid.UUID]int{}}
}

func (p *recordingPublisher) failFirst(id uuid.UUID, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[id] = n
}

func (p *recordingPublisher) Publish(_ context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[event.ID]++
	if p.attempts[event.ID] <= p.failures[event.ID] {
		return errors.New("nats unavailable")
	}
	p.published = append(p.published, event.ID)
	return nil
}

func (p *recordingPublisher) publishedIDs() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.published...)
}

func (p *recordingPublisher) attemptsFor(id uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[id]
}
