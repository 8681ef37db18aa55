package models

import (
	"time"
)

// EntryType categorizes a ledger entry
type EntryType string

const (
	EntryTypeSeed       EntryType = "seed"
	EntryTypeFlipEscrow EntryType = "flip_escrow"
	EntryTypeFlipStake  EntryType = "flip_stake"
	EntryTypeFlipPayout EntryType = "flip_payout"
	EntryTypeFlipRefund EntryType = "flip_refund"
	EntryTypeHouseWin   EntryType = "house_win"
	EntryTypeHouseLoss  EntryType = "house_loss"
	EntryTypeTransfer   EntryType = "transfer"
)

// LedgerEntry is an immutable record of a single balance change. Every
// economy mutation writes one in the same transaction that moves the money.
type LedgerEntry struct {
	ID            int64          `db:"id"`
	Username      string         `db:"username"`
	BalanceBefore int64          `db:"balance_before"`
	BalanceAfter  int64          `db:"balance_after"`
	ChangeAmount  int64          `db:"change_amount"`
	EntryType     EntryType      `db:"entry_type"`
	Metadata      map[string]any `db:"metadata"`
	RelatedID     *int64         `db:"related_id"`
	CreatedAt     time.Time      `db:"created_at"`
}
