package events

import (
	"context"
	"sync"

	"cybot/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange         EventType = "balance_change"
	EventTypeAccountCreated        EventType = "account_created"
	EventTypeFlipPlaced            EventType = "flip_placed"
	EventTypeChallengeCreated      EventType = "challenge_created"
	EventTypeChallengeResolved     EventType = "challenge_resolved"
	EventTypeChallengeCancelled    EventType = "challenge_cancelled"
	EventTypeConnectionStateChange EventType = "connection_state_change"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	Username     string
	OldBalance   int64
	NewBalance   int64
	EntryType    models.EntryType
	ChangeAmount int64
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// AccountCreatedEvent represents a new account being seeded
type AccountCreatedEvent struct {
	Username       string
	InitialBalance int64
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// FlipPlacedEvent represents a completed flip against the house
type FlipPlacedEvent struct {
	Username string
	FlipID   int64
	Amount   int64
	Won      bool
	Payout   int64
}

func (e FlipPlacedEvent) Type() EventType {
	return EventTypeFlipPlaced
}

// ChallengeCreatedEvent represents a new pending challenge with escrowed stake
type ChallengeCreatedEvent struct {
	ChallengeID int64
	Challenger  string
	Challenged  string
	Amount      int64
}

func (e ChallengeCreatedEvent) Type() EventType {
	return EventTypeChallengeCreated
}

// ChallengeResolvedEvent represents a challenge that completed with a winner
type ChallengeResolvedEvent struct {
	ChallengeID int64
	Winner      string
	Loser       string
	Amount      int64
	Result      models.CoinSide
}

func (e ChallengeResolvedEvent) Type() EventType {
	return EventTypeChallengeResolved
}

// ChallengeCancelledEvent represents a challenge cancelled with escrow refunded
type ChallengeCancelledEvent struct {
	ChallengeID int64
	Challenger  string
	Amount      int64
	Reason      string
}

func (e ChallengeCancelledEvent) Type() EventType {
	return EventTypeChallengeCancelled
}

// ConnectionStateChangeEvent represents a room connection state transition
type ConnectionStateChangeEvent struct {
	From string
	To   string
}

func (e ConnectionStateChangeEvent) Type() EventType {
	return EventTypeConnectionStateChange
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes an event to all registered handlers asynchronously
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// TransactionalBus stashes events published during a unit of work and only
// forwards them to the real bus after the transaction commits. Rolled-back
// work must never leak events.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

// NewTransactionalBus creates a transactional bus backed by the given bus
func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish queues an event until Flush
func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events. Called after a successful commit. Events
// are emitted on a background context so they outlive the transaction context.
func (b *TransactionalBus) Flush(ctx context.Context) {
	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops pending events. Called after rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
