package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBus_EmitReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var received []Event

	for i := 0; i < 3; i++ {
		bus.Subscribe(EventTypeChallengeResolved, func(ctx context.Context, e Event) {
			mu.Lock()
			received = append(received, e)
			mu.Unlock()
		})
	}

	bus.Emit(context.Background(), ChallengeResolvedEvent{ChallengeID: 7, Winner: "alice", Loser: "bob", Amount: 50})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	})
}

func TestBus_EmitIgnoresOtherEventTypes(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(EventTypeBalanceChange, func(ctx context.Context, e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	bus.Emit(context.Background(), FlipPlacedEvent{Username: "alice", Amount: 10})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestTransactionalBus_FlushEmitsPending(t *testing.T) {
	bus := NewBus()
	txBus := NewTransactionalBus(bus)

	var mu sync.Mutex
	var received []Event
	bus.Subscribe(EventTypeChallengeCreated, func(ctx context.Context, e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	txBus.Publish(ChallengeCreatedEvent{ChallengeID: 1, Challenger: "alice", Challenged: "bob", Amount: 25})
	txBus.Publish(ChallengeCreatedEvent{ChallengeID: 2, Challenger: "carol", Challenged: "dave", Amount: 10})

	// Nothing reaches the real bus before commit
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, received)
	mu.Unlock()

	txBus.Flush(context.Background())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})
}

func TestTransactionalBus_DiscardDropsPending(t *testing.T) {
	bus := NewBus()
	txBus := NewTransactionalBus(bus)

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(EventTypeChallengeCancelled, func(ctx context.Context, e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	txBus.Publish(ChallengeCancelledEvent{ChallengeID: 3, Challenger: "alice", Amount: 25, Reason: "expired"})
	txBus.Discard()
	txBus.Flush(context.Background())

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}
