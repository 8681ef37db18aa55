package repository

import (
	"context"
	"testing"

	"cybot/models"
	"cybot/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFlipTest(t *testing.T) (*FlipRepository, *LedgerRepository, context.Context) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewFlipRepository(testDB.DB)
	ledgerRepo := NewLedgerRepository(testDB.DB)
	accountRepo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	_, err := accountRepo.Create(ctx, "alice", 1000)
	require.NoError(t, err)

	return repo, ledgerRepo, ctx
}

func TestFlipRepository_Create(t *testing.T) {
	repo, ledgerRepo, ctx := setupFlipTest(t)

	entry := testutil.CreateTestLedgerEntry("alice", models.EntryTypeHouseLoss)
	require.NoError(t, ledgerRepo.Record(ctx, entry))

	flip := &models.Flip{
		Username:      "alice",
		Amount:        100,
		Choice:        models.CoinSideHeads,
		Result:        models.CoinSideTails,
		Won:           false,
		LedgerEntryID: &entry.ID,
	}
	require.NoError(t, repo.Create(ctx, flip))
	assert.NotZero(t, flip.ID)
	assert.False(t, flip.CreatedAt.IsZero())
}

func TestFlipRepository_GetStats(t *testing.T) {
	repo, _, ctx := setupFlipTest(t)

	flips := []*models.Flip{
		{Username: "alice", Amount: 100, Choice: models.CoinSideHeads, Result: models.CoinSideHeads, Won: true},
		{Username: "alice", Amount: 50, Choice: models.CoinSideTails, Result: models.CoinSideHeads, Won: false},
		{Username: "alice", Amount: 200, Choice: models.CoinSideHeads, Result: models.CoinSideHeads, Won: true},
	}
	for _, f := range flips {
		require.NoError(t, repo.Create(ctx, f))
	}

	stats, err := repo.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalFlips)
	assert.Equal(t, int64(2), stats.TotalWins)
	assert.Equal(t, int64(1), stats.TotalLosses)
	assert.Equal(t, int64(350), stats.TotalWagered)
	assert.Equal(t, int64(250), stats.NetProfit)
	assert.Equal(t, int64(200), stats.BiggestWin)
	assert.Equal(t, int64(50), stats.BiggestLoss)
	assert.InDelta(t, 66.6, stats.WinRate(), 0.1)
}

func TestFlipRepository_GetStatsNoFlips(t *testing.T) {
	repo, _, ctx := setupFlipTest(t)

	stats, err := repo.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalFlips)
	assert.Equal(t, float64(0), stats.WinRate())
}
