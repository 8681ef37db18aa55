package repository

import (
	"context"
	"testing"

	"cybot/models"
	"cybot/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRepository_RecordAndGetByUser(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLedgerRepository(testDB.DB)
	accountRepo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	_, err := accountRepo.Create(ctx, "alice", 1000)
	require.NoError(t, err)

	entry := testutil.CreateTestLedgerEntry("alice", models.EntryTypeFlipEscrow)
	relatedID := int64(7)
	entry.RelatedID = &relatedID
	require.NoError(t, repo.Record(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	second := testutil.CreateTestLedgerEntry("alice", models.EntryTypeFlipRefund)
	second.BalanceBefore = 900
	second.BalanceAfter = 1000
	second.ChangeAmount = 100
	require.NoError(t, repo.Record(ctx, second))

	entries, err := repo.GetByUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Most recent first
	assert.Equal(t, models.EntryTypeFlipRefund, entries[0].EntryType)
	assert.Equal(t, models.EntryTypeFlipEscrow, entries[1].EntryType)
	require.NotNil(t, entries[1].RelatedID)
	assert.Equal(t, int64(7), *entries[1].RelatedID)
	assert.Equal(t, map[string]any{"test": true}, entries[1].Metadata)
}

func TestLedgerRepository_GetByUserRespectsLimit(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLedgerRepository(testDB.DB)
	accountRepo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	_, err := accountRepo.Create(ctx, "bob", 1000)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, testutil.CreateTestLedgerEntry("bob", models.EntryTypeTransfer)))
	}

	entries, err := repo.GetByUser(ctx, "bob", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	none, err := repo.GetByUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
