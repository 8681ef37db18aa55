package service

import (
	"context"
	"testing"

	"cybot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockedStatsService() (StatsService, *MockAccountRepository, *MockChallengeRepository, *MockFlipRepository) {
	accountRepo := new(MockAccountRepository)
	challengeRepo := new(MockChallengeRepository)
	flipRepo := new(MockFlipRepository)

	uow := new(MockUnitOfWork)
	uow.SetRepositories(accountRepo, challengeRepo, nil, flipRepo)
	uow.On("Begin", mock.Anything).Return(nil)
	uow.On("Commit").Return(nil)
	uow.On("Rollback").Return(nil)

	factory := new(MockUnitOfWorkFactory)
	factory.On("Create").Return(uow)

	return NewStatsService(factory), accountRepo, challengeRepo, flipRepo
}

func TestStatsService_GetScoreboard(t *testing.T) {
	svc, accountRepo, _, flipRepo := newMockedStatsService()
	ctx := context.Background()

	accountRepo.On("GetTopBalances", ctx, 2).Return([]*models.Account{
		{Username: "alice", Balance: 900},
		{Username: "bob", Balance: 400},
	}, nil)
	flipRepo.On("GetStats", ctx, "alice").Return(&models.FlipStats{TotalFlips: 4, TotalWins: 3}, nil)
	flipRepo.On("GetStats", ctx, "bob").Return(&models.FlipStats{}, nil)

	entries, err := svc.GetScoreboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, int64(900), entries[0].Balance)
	assert.Equal(t, int64(3), entries[0].TotalWins)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "bob", entries[1].Username)
}

func TestStatsService_GetScoreboard_DefaultLimit(t *testing.T) {
	svc, accountRepo, _, _ := newMockedStatsService()
	ctx := context.Background()

	accountRepo.On("GetTopBalances", ctx, 10).Return([]*models.Account{}, nil)

	entries, err := svc.GetScoreboard(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	accountRepo.AssertCalled(t, "GetTopBalances", ctx, 10)
}

func TestStatsService_GetUserStats(t *testing.T) {
	svc, accountRepo, challengeRepo, flipRepo := newMockedStatsService()
	ctx := context.Background()

	accountRepo.On("GetByUsername", ctx, "alice").Return(&models.Account{Username: "alice", Balance: 750}, nil)
	flipRepo.On("GetStats", ctx, "alice").Return(&models.FlipStats{TotalFlips: 2, TotalWins: 1}, nil)
	challengeRepo.On("GetStats", ctx, "alice").Return(&models.ChallengeStats{TotalChallenges: 3, TotalWon: 2}, nil)

	stats, err := svc.GetUserStats(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(750), stats.Account.Balance)
	assert.Equal(t, int64(2), stats.Flips.TotalFlips)
	assert.Equal(t, int64(2), stats.Challenges.TotalWon)
}

func TestStatsService_GetUserStats_UnknownUser(t *testing.T) {
	svc, accountRepo, _, _ := newMockedStatsService()
	ctx := context.Background()

	accountRepo.On("GetByUsername", ctx, "ghost").Return(nil, nil)

	stats, err := svc.GetUserStats(ctx, "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Nil(t, stats)
}
