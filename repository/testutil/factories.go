package testutil

import (
	"time"

	"cybot/models"
)

// CreateTestAccount creates a test account with default values
func CreateTestAccount(username string) *models.Account {
	now := time.Now()
	return &models.Account{
		Username:  username,
		Balance:   1000,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTestChallenge creates a pending challenge with a future expiry
func CreateTestChallenge(challenger, challenged string, amount int64) *models.Challenge {
	return &models.Challenge{
		Challenger: challenger,
		Challenged: challenged,
		Amount:     amount,
		Status:     models.ChallengeStatusPending,
		ExpiresAt:  time.Now().Add(30 * time.Second),
	}
}

// CreateExpiredTestChallenge creates a pending challenge already past its TTL
func CreateExpiredTestChallenge(challenger, challenged string, amount int64) *models.Challenge {
	c := CreateTestChallenge(challenger, challenged, amount)
	c.ExpiresAt = time.Now().Add(-time.Minute)
	return c
}

// CreateTestLedgerEntry creates a ledger entry with default values
func CreateTestLedgerEntry(username string, entryType models.EntryType) *models.LedgerEntry {
	return &models.LedgerEntry{
		Username:      username,
		BalanceBefore: 1000,
		BalanceAfter:  900,
		ChangeAmount:  -100,
		EntryType:     entryType,
		Metadata: map[string]any{
			"test": true,
		},
	}
}
