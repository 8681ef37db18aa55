package service

import (
	"context"
	"time"

	"cybot/events"
	"cybot/models"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByUsername retrieves an account by username, nil when absent
	GetByUsername(ctx context.Context, username string) (*models.Account, error)

	// Create creates a new account with the initial balance
	Create(ctx context.Context, username string, initialBalance int64) (*models.Account, error)

	// AddBalance credits an account atomically
	AddBalance(ctx context.Context, username string, amount int64) error

	// DeductBalance debits an account atomically, failing on insufficient funds
	DeductBalance(ctx context.Context, username string, amount int64) error

	// GetTopBalances returns the highest-balance accounts
	GetTopBalances(ctx context.Context, limit int) ([]*models.Account, error)
}

// ChallengeRepository defines the interface for coin-flip challenge data access
type ChallengeRepository interface {
	// Create inserts a new pending challenge
	Create(ctx context.Context, challenge *models.Challenge) error

	// GetByID retrieves a challenge by ID, nil when absent
	GetByID(ctx context.Context, id int64) (*models.Challenge, error)

	// GetPendingByChallenger returns the challenger's outstanding pending challenge
	GetPendingByChallenger(ctx context.Context, challenger string) (*models.Challenge, error)

	// ClaimPendingByChallenged atomically claims a pending unexpired challenge
	// for acceptance; nil when nothing could be claimed
	ClaimPendingByChallenged(ctx context.Context, challenged string, choice models.CoinSide, now time.Time) (*models.Challenge, error)

	// ClaimPendingForCancel atomically claims a pending challenge for
	// cancellation; nil when another path already claimed it
	ClaimPendingForCancel(ctx context.Context, id int64) (*models.Challenge, error)

	// MarkCompleted records the flip outcome on an accepting challenge
	MarkCompleted(ctx context.Context, id int64, result models.CoinSide, winner string) error

	// MarkCancelled cancels an accepting challenge
	MarkCancelled(ctx context.Context, id int64) error

	// GetExpiredPending returns pending challenges past their TTL
	GetExpiredPending(ctx context.Context, now time.Time) ([]*models.Challenge, error)

	// GetStats returns challenge statistics for a user
	GetStats(ctx context.Context, username string) (*models.ChallengeStats, error)
}

// LedgerRepository defines the interface for the balance-change ledger
type LedgerRepository interface {
	// Record creates a new ledger entry
	Record(ctx context.Context, entry *models.LedgerEntry) error

	// GetByUser returns recent ledger entries for a user
	GetByUser(ctx context.Context, username string, limit int) ([]*models.LedgerEntry, error)
}

// FlipRepository defines the interface for house-flip records
type FlipRepository interface {
	// Create records a completed house flip
	Create(ctx context.Context, flip *models.Flip) error

	// GetStats returns flip statistics for a user
	GetStats(ctx context.Context, username string) (*models.FlipStats, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// AccountService defines the interface for account operations
type AccountService interface {
	// GetOrCreateAccount retrieves an account or seeds a new one
	GetOrCreateAccount(ctx context.Context, username string) (*models.Account, error)

	// Transfer moves amount from one account to another
	Transfer(ctx context.Context, from, to string, amount int64) error
}

// CoinFlipService defines the interface for coin-flip operations
type CoinFlipService interface {
	// CreateChallenge escrows the challenger's stake and opens a pending
	// challenge against the target
	CreateChallenge(ctx context.Context, challenger, target string, amount int64) (*models.Challenge, error)

	// HandleChallengeResponse claims the responder's pending challenge,
	// stakes their side and resolves the flip
	HandleChallengeResponse(ctx context.Context, actor string, choice models.CoinSide) (*models.ChallengeResult, error)

	// FlipVsHouse runs a single flip against the house
	FlipVsHouse(ctx context.Context, actor string, amount int64) (*models.FlipResult, error)

	// ExpireChallenge cancels a pending challenge past its TTL and refunds
	// the escrow, exactly once
	ExpireChallenge(ctx context.Context, challengeID int64) error

	// SweepExpired cancels every expired pending challenge; recovers timers
	// lost to a restart
	SweepExpired(ctx context.Context) error

	// Close stops all outstanding TTL timers
	Close()
}

// StatsService defines the interface for statistics operations
type StatsService interface {
	// GetScoreboard returns the top accounts with their flip statistics
	GetScoreboard(ctx context.Context, limit int) ([]*models.ScoreboardEntry, error)

	// GetUserStats returns detailed statistics for a single user
	GetUserStats(ctx context.Context, username string) (*models.UserStats, error)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	AccountRepository() AccountRepository
	ChallengeRepository() ChallengeRepository
	LedgerRepository() LedgerRepository
	FlipRepository() FlipRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
