package models

import (
	"time"
)

// ChallengeStatus represents the lifecycle state of a coin-flip challenge
type ChallengeStatus string

const (
	ChallengeStatusPending   ChallengeStatus = "pending"
	ChallengeStatusAccepting ChallengeStatus = "accepting"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusCancelled ChallengeStatus = "cancelled"
)

// CoinSide is one of the two outcomes of a flip
type CoinSide string

const (
	CoinSideHeads CoinSide = "heads"
	CoinSideTails CoinSide = "tails"
)

// Opposite returns the other side of the coin
func (s CoinSide) Opposite() CoinSide {
	if s == CoinSideHeads {
		return CoinSideTails
	}
	return CoinSideHeads
}

// ParseCoinSide converts a chat word into a coin side
func ParseCoinSide(word string) (CoinSide, bool) {
	switch word {
	case "heads", "head", "h":
		return CoinSideHeads, true
	case "tails", "tail", "t":
		return CoinSideTails, true
	}
	return "", false
}

// Challenge represents a two-party coin-flip wager. The challenger's stake is
// escrowed at creation time, so resolution can never fail for insufficient
// challenger funds.
type Challenge struct {
	ID               int64           `db:"id"`
	Challenger       string          `db:"challenger"`
	Challenged       string          `db:"challenged"`
	Amount           int64           `db:"amount"`
	Status           ChallengeStatus `db:"status"`
	ChallengerChoice *CoinSide       `db:"challenger_choice"`
	ChallengedChoice *CoinSide       `db:"challenged_choice"`
	Result           *CoinSide       `db:"result"`
	Winner           *string         `db:"winner"`
	CreatedAt        time.Time       `db:"created_at"`
	ExpiresAt        time.Time       `db:"expires_at"`
	ResolvedAt       *time.Time      `db:"resolved_at"`
}

// IsParticipant checks if a user is involved in the challenge
func (c *Challenge) IsParticipant(username string) bool {
	return c.Challenger == username || c.Challenged == username
}

// Opponent returns the other participant for a given username
func (c *Challenge) Opponent(username string) string {
	if c.Challenger == username {
		return c.Challenged
	}
	if c.Challenged == username {
		return c.Challenger
	}
	return ""
}

// Expired reports whether the challenge TTL has passed at the given instant
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeResult represents the outcome of a resolved challenge
type ChallengeResult struct {
	Challenge *Challenge
	Result    CoinSide
	Winner    string
	Loser     string
	Payout    int64
}
