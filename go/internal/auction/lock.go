package auction

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker serializes mutating operations per auction.
type Locker interface {
	// Lock blocks until the auction's critical section is held or ctx is done.
	Lock(ctx context.Context, auctionID uuid.UUID) (unlock func(), err error)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once nobody waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*keyedEntry
}

// NewKeyedMutex creates an empty keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[uuid.UUID]*keyedEntry)}
}

// Lock implements Locker.
func (k *KeyedMutex) Lock(ctx context.Context, auctionID uuid.UUID) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[auctionID]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[auctionID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(auctionID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(auctionID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(auctionID uuid.UUID, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, auctionID)
	}
}

// Len returns how many auctions currently have holders or waiters.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
