package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickEvent struct {
	auctionID uuid.UUID
	remaining int
	expired   bool
}

type recordingHandler struct {
	mu          sync.Mutex
	events      chan tickEvent
	panicOnTick map[uuid.UUID]bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		events:      make(chan tickEvent, 128),
		panicOnTick: make(map[uuid.UUID]bool),
	}
}

func (h *recordingHandler) OnTick(_ context.Context, auctionID uuid.UUID, remaining int) {
	h.events <- tickEvent{auctionID: auctionID, remaining: remaining}
	h.mu.Lock()
	boom := h.panicOnTick[auctionID]
	h.mu.Unlock()
	if boom {
		panic("broadcast transport down")
	}
}

func (h *recordingHandler) OnExpire(_ context.Context, auctionID uuid.UUID) {
	h.events <- tickEvent{auctionID: auctionID, expired: true}
}

func (h *recordingHandler) next(t *testing.T) tickEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for countdown callback")
		return tickEvent{}
	}
}

func (h *recordingHandler) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected callback: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngine_TicksDownAndExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	e := NewEngine(clock, h, 10)
	defer e.Shutdown()

	id := uuid.New()
	e.Start(id, 3)
	assert.Equal(t, 3, e.Remaining(id))
	assert.True(t, e.Running(id))

	clock.Advance(time.Second)
	assert.Equal(t, tickEvent{auctionID: id, remaining: 2}, h.next(t))
	clock.Advance(time.Second)
	assert.Equal(t, tickEvent{auctionID: id, remaining: 1}, h.next(t))
	clock.Advance(time.Second)
	assert.Equal(t, tickEvent{auctionID: id, remaining: 0}, h.next(t))
	assert.Equal(t, tickEvent{auctionID: id, expired: true}, h.next(t))

	assert.False(t, e.Running(id))
	assert.Equal(t, 0, e.Remaining(id))

	clock.Advance(5 * time.Second)
	h.assertQuiet(t)
}

func TestEngine_ResetKeepsCadence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	e := NewEngine(clock, h, 10)
	defer e.Shutdown()

	id := uuid.New()
	e.Start(id, 10)
	for want := 9; want >= 1; want-- {
		clock.Advance(time.Second)
		require.Equal(t, want, h.next(t).remaining)
	}

	e.Reset(id, 10)
	assert.Equal(t, 10, e.Remaining(id))

	clock.Advance(time.Second)
	assert.Equal(t, tickEvent{auctionID: id, remaining: 9}, h.next(t))
}

func TestEngine_ResetWithoutTimerStarts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	e := NewEngine(clock, h, 7)
	defer e.Shutdown()

	id := uuid.New()
	e.Reset(id, 0)
	assert.True(t, e.Running(id))
	assert.Equal(t, 7, e.Remaining(id))
}

func TestEngine_StartReplacesExisting(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	e := NewEngine(clock, h, 10)
	defer e.Shutdown()

	id := uuid.New()
	e.Start(id, 5)
	e.Start(id, 8)

	clock.Advance(time.Second)
	assert.Equal(t, tickEvent{auctionID: id, remaining: 7}, h.next(t))
	h.assertQuiet(t)
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	e := NewEngine(clock, h, 10)
	defer e.Shutdown()

	id := uuid.New()
	assert.NotPanics(t, func() { e.Stop(id) })

	e.Start(id, 3)
	e.Stop(id)
	assert.NotPanics(t, func() { e.Stop(id) })

	clock.Advance(10 * time.Second)
	h.assertQuiet(t)
	assert.Empty(t, e.AllRemaining())
}

func TestEngine_PanickingTickIsIsolated(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	e := NewEngine(clock, h, 10)
	defer e.Shutdown()

	broken := uuid.New()
	healthy := uuid.New()
	h.panicOnTick[broken] = true

	e.Start(broken, 5)
	e.Start(healthy, 5)

	seen := map[uuid.UUID]int{}
	for i := 0; i < 2; i++ {
		clock.Advance(time.Second)
		for j := 0; j < 2; j++ {
			ev := h.next(t)
			seen[ev.auctionID] = ev.remaining
		}
	}

	// both keep counting even though one handler panics on every tick
	assert.Equal(t, 3, seen[broken])
	assert.Equal(t, 3, seen[healthy])
	assert.Equal(t, map[uuid.UUID]int{broken: 3, healthy: 3}, e.AllRemaining())
}

func TestEngine_ShutdownStopsEverything(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newRecordingHandler()
	e := NewEngine(clock, h, 10)

	e.Start(uuid.New(), 5)
	e.Start(uuid.New(), 5)
	require.Len(t, e.AllRemaining(), 2)

	e.Shutdown()
	assert.Empty(t, e.AllRemaining())

	clock.Advance(3 * time.Second)
	h.assertQuiet(t)
}
