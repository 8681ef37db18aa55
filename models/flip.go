package models

import (
	"time"
)

// Flip represents a single coin flip against the house
type Flip struct {
	ID            int64     `db:"id"`
	Username      string    `db:"username"`
	Amount        int64     `db:"amount"`
	Choice        CoinSide  `db:"choice"`
	Result        CoinSide  `db:"result"`
	Won           bool      `db:"won"`
	LedgerEntryID *int64    `db:"ledger_entry_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// FlipResult represents the outcome of a house flip returned to the dispatcher
type FlipResult struct {
	Won        bool
	Amount     int64
	Payout     int64
	Result     CoinSide
	NewBalance int64
}
