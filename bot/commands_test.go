package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"cybot/events"
	"cybot/models"
	"cybot/service"
	"cybot/telemetry"
)

type mockAccountService struct {
	mock.Mock
}

func (m *mockAccountService) GetOrCreateAccount(ctx context.Context, username string) (*models.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *mockAccountService) Transfer(ctx context.Context, from, to string, amount int64) error {
	args := m.Called(ctx, from, to, amount)
	return args.Error(0)
}

type mockCoinFlipService struct {
	mock.Mock
}

func (m *mockCoinFlipService) CreateChallenge(ctx context.Context, challenger, target string, amount int64) (*models.Challenge, error) {
	args := m.Called(ctx, challenger, target, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Challenge), args.Error(1)
}

func (m *mockCoinFlipService) HandleChallengeResponse(ctx context.Context, actor string, choice models.CoinSide) (*models.ChallengeResult, error) {
	args := m.Called(ctx, actor, choice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChallengeResult), args.Error(1)
}

func (m *mockCoinFlipService) FlipVsHouse(ctx context.Context, actor string, amount int64) (*models.FlipResult, error) {
	args := m.Called(ctx, actor, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FlipResult), args.Error(1)
}

func (m *mockCoinFlipService) ExpireChallenge(ctx context.Context, challengeID int64) error {
	args := m.Called(ctx, challengeID)
	return args.Error(0)
}

func (m *mockCoinFlipService) SweepExpired(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockCoinFlipService) Close() {
	m.Called()
}

type mockStatsService struct {
	mock.Mock
}

func (m *mockStatsService) GetScoreboard(ctx context.Context, limit int) ([]*models.ScoreboardEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ScoreboardEntry), args.Error(1)
}

func (m *mockStatsService) GetUserStats(ctx context.Context, username string) (*models.UserStats, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserStats), args.Error(1)
}

func newTestBot() (*Bot, *mockAccountService, *mockCoinFlipService, *mockStatsService) {
	telemetry.Init()

	accounts := new(mockAccountService)
	flips := new(mockCoinFlipService)
	stats := new(mockStatsService)

	b := New(Config{
		Username: "cybot",
		Channel:  "testroom",
	}, nil, accounts, flips, stats, events.NewBus())
	return b, accounts, flips, stats
}

func TestDispatch_Balance(t *testing.T) {
	b, accounts, _, _ := newTestBot()
	ctx := context.Background()

	accounts.On("GetOrCreateAccount", ctx, "alice").Return(&models.Account{Username: "alice", Balance: 120}, nil)

	reply := b.dispatch(ctx, "alice", "balance")
	assert.Equal(t, "alice: you have 120 coins", reply)
}

func TestDispatch_Flip(t *testing.T) {
	b, accounts, flips, _ := newTestBot()
	ctx := context.Background()

	accounts.On("GetOrCreateAccount", ctx, "alice").Return(&models.Account{Username: "alice", Balance: 120}, nil)
	flips.On("FlipVsHouse", ctx, "alice", int64(40)).Return(&models.FlipResult{
		Won:        true,
		Amount:     40,
		Payout:     40,
		Result:     models.CoinSideHeads,
		NewBalance: 160,
	}, nil)

	reply := b.dispatch(ctx, "alice", "flip 40")
	assert.Equal(t, "alice: heads! you won 40 coins, balance 160", reply)
}

func TestDispatch_Flip_InsufficientFunds(t *testing.T) {
	b, accounts, flips, _ := newTestBot()
	ctx := context.Background()

	accounts.On("GetOrCreateAccount", ctx, "alice").Return(&models.Account{Username: "alice"}, nil)
	flips.On("FlipVsHouse", ctx, "alice", int64(40)).Return(nil, service.ErrInsufficientFunds)

	reply := b.dispatch(ctx, "alice", "flip 40")
	assert.Equal(t, "alice: you can't afford that", reply)
}

func TestDispatch_Flip_Usage(t *testing.T) {
	b, _, _, _ := newTestBot()
	ctx := context.Background()

	assert.Contains(t, b.dispatch(ctx, "alice", "flip"), "usage")
	assert.Contains(t, b.dispatch(ctx, "alice", "flip banana"), "not a number")
	assert.Contains(t, b.dispatch(ctx, "alice", "flip -5"), "positive")
}

func TestDispatch_Challenge(t *testing.T) {
	b, accounts, flips, _ := newTestBot()
	ctx := context.Background()

	accounts.On("GetOrCreateAccount", ctx, "alice").Return(&models.Account{Username: "alice"}, nil)
	accounts.On("GetOrCreateAccount", ctx, "bob").Return(&models.Account{Username: "bob"}, nil)
	flips.On("CreateChallenge", ctx, "alice", "bob", int64(50)).Return(&models.Challenge{
		ID:         1,
		Challenger: "alice",
		Challenged: "bob",
		Amount:     50,
		Status:     models.ChallengeStatusPending,
		ExpiresAt:  time.Now().Add(30 * time.Second),
	}, nil)

	reply := b.dispatch(ctx, "alice", "challenge bob 50")
	assert.Contains(t, reply, "alice challenges bob")
	assert.Contains(t, reply, "50 coins")
}

func TestDispatch_Challenge_Outstanding(t *testing.T) {
	b, accounts, flips, _ := newTestBot()
	ctx := context.Background()

	accounts.On("GetOrCreateAccount", ctx, mock.Anything).Return(&models.Account{}, nil)
	flips.On("CreateChallenge", ctx, "alice", "bob", int64(50)).Return(nil, service.ErrChallengeOutstanding)

	reply := b.dispatch(ctx, "alice", "challenge bob 50")
	assert.Contains(t, reply, "pending challenge")
}

func TestDispatch_Heads(t *testing.T) {
	b, _, flips, _ := newTestBot()
	ctx := context.Background()

	flips.On("HandleChallengeResponse", ctx, "bob", models.CoinSideHeads).Return(&models.ChallengeResult{
		Result: models.CoinSideHeads,
		Winner: "bob",
		Loser:  "alice",
		Payout: 100,
	}, nil)

	reply := b.dispatch(ctx, "bob", "heads")
	assert.Equal(t, "the coin lands heads! bob takes 100 coins from alice", reply)
}

func TestDispatch_Tails_NoPendingChallenge(t *testing.T) {
	b, _, flips, _ := newTestBot()
	ctx := context.Background()

	flips.On("HandleChallengeResponse", ctx, "bob", models.CoinSideTails).Return(nil, service.ErrNoPendingChallenge)

	reply := b.dispatch(ctx, "bob", "tails")
	assert.Contains(t, reply, "nobody is challenging you")
}

func TestDispatch_Give(t *testing.T) {
	b, accounts, _, _ := newTestBot()
	ctx := context.Background()

	accounts.On("GetOrCreateAccount", ctx, mock.Anything).Return(&models.Account{}, nil)
	accounts.On("Transfer", ctx, "alice", "bob", int64(25)).Return(nil)

	reply := b.dispatch(ctx, "alice", "give bob 25")
	assert.Equal(t, "alice gives 25 coins to bob", reply)
}

func TestDispatch_Scoreboard(t *testing.T) {
	b, _, _, stats := newTestBot()
	ctx := context.Background()

	stats.On("GetScoreboard", ctx, 5).Return([]*models.ScoreboardEntry{
		{Rank: 1, Username: "alice", Balance: 900},
		{Rank: 2, Username: "bob", Balance: 400},
	}, nil)

	reply := b.dispatch(ctx, "carol", "scoreboard")
	assert.Equal(t, "top balances: #1 alice (900), #2 bob (400)", reply)
}

func TestDispatch_UnknownCommandIsSilent(t *testing.T) {
	b, _, _, _ := newTestBot()

	assert.Empty(t, b.dispatch(context.Background(), "alice", "dance"))
	assert.Empty(t, b.dispatch(context.Background(), "alice", ""))
}
