package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLease struct {
	mu        sync.Mutex
	holder    map[string]string
	refreshes int
	err       error
}

func newFakeLease() *fakeLease {
	return &fakeLease{holder: map[string]string{}}
}

func (f *fakeLease) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, taken := f.holder[key]; taken {
		return redis.NewBoolResult(false, nil)
	}
	f.holder[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLease) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if script == refreshScript {
		f.refreshes++
	}
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	if f.holder[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	if script == releaseScript {
		delete(f.holder, keys[0])
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeLease) take(key, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holder[key] = token
}

func (f *fakeLease) free(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.holder, key)
}

func (f *fakeLease) owner(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holder[key]
}

func (f *fakeLease) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeLease) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestRuntimeLease_AcquireAndRelease(t *testing.T) {
	lease := newFakeLease()
	rl := NewRuntimeLease(lease, clockwork.NewFakeClock(), 10*time.Second)

	require.NoError(t, rl.Acquire(context.Background()))
	assert.Equal(t, rl.token, lease.owner(rl.key))

	rl.Release()
	assert.Empty(t, lease.owner(rl.key))
}

func TestRuntimeLease_StandbyWaitsForOwner(t *testing.T) {
	lease := newFakeLease()
	clock := clockwork.NewFakeClock()
	rl := NewRuntimeLease(lease, clock, 10*time.Second)
	lease.take(rl.key, "other-runtime")

	acquired := make(chan error, 1)
	go func() { acquired <- rl.Acquire(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	select {
	case <-acquired:
		t.Fatal("lease acquired while another runtime owns it")
	default:
	}

	// the owner stops; the standby takes over on its next attempt
	lease.free(rl.key)
	clock.Advance(rl.retry)

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("standby did not take over")
	}
	assert.Equal(t, rl.token, lease.owner(rl.key))
}

func TestRuntimeLease_AcquireErrors(t *testing.T) {
	lease := newFakeLease()
	lease.setErr(errors.New("redis down"))
	rl := NewRuntimeLease(lease, clockwork.NewFakeClock(), time.Second)
	assert.ErrorContains(t, rl.Acquire(context.Background()), "redis down")

	lease.setErr(nil)
	lease.take(rl.key, "other-runtime")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.Acquire(ctx), context.Canceled)
}

func TestRuntimeLease_KeepDetectsTakeover(t *testing.T) {
	lease := newFakeLease()
	clock := clockwork.NewFakeClock()
	rl := NewRuntimeLease(lease, clock, 9*time.Second)
	require.NoError(t, rl.Acquire(context.Background()))

	kept := make(chan error, 1)
	go func() { kept <- rl.Keep(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return lease.refreshCount() == 1 }, time.Second, time.Millisecond)

	lease.take(rl.key, "other-runtime")
	clock.Advance(3 * time.Second)

	select {
	case err := <-kept:
		assert.ErrorIs(t, err, ErrLeaseLost)
	case <-time.After(2 * time.Second):
		t.Fatal("takeover not detected")
	}
}

func TestRuntimeLease_KeepGivesUpAfterTTLWithoutRefresh(t *testing.T) {
	lease := newFakeLease()
	clock := clockwork.NewFakeClock()
	rl := NewRuntimeLease(lease, clock, 9*time.Second)
	require.NoError(t, rl.Acquire(context.Background()))
	lease.setErr(errors.New("connection reset"))

	kept := make(chan error, 1)
	go func() { kept <- rl.Keep(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	for i := 1; i <= 2; i++ {
		clock.Advance(3 * time.Second)
		require.Eventually(t, func() bool { return lease.refreshCount() == i }, time.Second, time.Millisecond)
	}
	select {
	case <-kept:
		t.Fatal("gave up before the ttl elapsed")
	default:
	}

	clock.Advance(3 * time.Second)
	select {
	case err := <-kept:
		assert.ErrorIs(t, err, ErrLeaseLost)
	case <-time.After(2 * time.Second):
		t.Fatal("expired lease not reported")
	}
}

func TestRuntimeLease_KeepStopsOnCancel(t *testing.T) {
	lease := newFakeLease()
	rl := NewRuntimeLease(lease, clockwork.NewFakeClock(), time.Second)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rl.Keep(ctx))
}
