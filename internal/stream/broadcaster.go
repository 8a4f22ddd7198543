// Package stream fans transaction snapshots out to connected clients.
//
// Every mutation re-broadcasts the household's full transaction list, so
// a client that misses an event is corrected by the next one. The
// snapshot-over-delta model keeps the two phones trivially convergent.
package stream

import (
	"sync"

	"livein/internal/core"
)

// Snapshot is one broadcast unit: the complete transaction list of a
// household at a point in time.
type Snapshot struct {
	HouseholdID  string             `json:"household_id"`
	Transactions []core.Transaction `json:"transactions"`
}

// Broadcaster tracks subscribers per household and pushes snapshots to
// them. Slow subscribers are skipped, not blocked on; the next snapshot
// supersedes anything they missed.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Snapshot]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[chan Snapshot]struct{}),
	}
}

// Subscribe registers a listener for a household. The returned cancel
// function must be called when the client disconnects.
func (b *Broadcaster) Subscribe(householdID string) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)

	b.mu.Lock()
	subs, ok := b.subscribers[householdID]
	if !ok {
		subs = make(map[chan Snapshot]struct{})
		b.subscribers[householdID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subscribers[householdID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subscribers, householdID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers a snapshot to every subscriber of the household.
func (b *Broadcaster) Broadcast(householdID string, transactions []core.Transaction) {
	snap := Snapshot{HouseholdID: householdID, Transactions: transactions}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[householdID] {
		select {
		case ch <- snap:
		default:
			// Buffer full. Drop; the subscriber will catch up on the
			// next broadcast.
		}
	}
}

// SubscriberCount reports active listeners for a household.
func (b *Broadcaster) SubscriberCount(householdID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[householdID])
}
