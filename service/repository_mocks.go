package service

import (
	"context"
	"time"

	"cybot/events"
	"cybot/models"

	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, username string, initialBalance int64) (*models.Account, error) {
	args := m.Called(ctx, username, initialBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) AddBalance(ctx context.Context, username string, amount int64) error {
	args := m.Called(ctx, username, amount)
	return args.Error(0)
}

func (m *MockAccountRepository) DeductBalance(ctx context.Context, username string, amount int64) error {
	args := m.Called(ctx, username, amount)
	return args.Error(0)
}

func (m *MockAccountRepository) GetTopBalances(ctx context.Context, limit int) ([]*models.Account, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

// MockChallengeRepository is a mock implementation of ChallengeRepository
type MockChallengeRepository struct {
	mock.Mock
}

func (m *MockChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *MockChallengeRepository) GetByID(ctx context.Context, id int64) (*models.Challenge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Challenge), args.Error(1)
}

func (m *MockChallengeRepository) GetPendingByChallenger(ctx context.Context, challenger string) (*models.Challenge, error) {
	args := m.Called(ctx, challenger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Challenge), args.Error(1)
}

func (m *MockChallengeRepository) ClaimPendingByChallenged(ctx context.Context, challenged string, choice models.CoinSide, now time.Time) (*models.Challenge, error) {
	args := m.Called(ctx, challenged, choice, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Challenge), args.Error(1)
}

func (m *MockChallengeRepository) ClaimPendingForCancel(ctx context.Context, id int64) (*models.Challenge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Challenge), args.Error(1)
}

func (m *MockChallengeRepository) MarkCompleted(ctx context.Context, id int64, result models.CoinSide, winner string) error {
	args := m.Called(ctx, id, result, winner)
	return args.Error(0)
}

func (m *MockChallengeRepository) MarkCancelled(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockChallengeRepository) GetExpiredPending(ctx context.Context, now time.Time) ([]*models.Challenge, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Challenge), args.Error(1)
}

func (m *MockChallengeRepository) GetStats(ctx context.Context, username string) (*models.ChallengeStats, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChallengeStats), args.Error(1)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByUser(ctx context.Context, username string, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, username, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

// MockFlipRepository is a mock implementation of FlipRepository
type MockFlipRepository struct {
	mock.Mock
}

func (m *MockFlipRepository) Create(ctx context.Context, flip *models.Flip) error {
	args := m.Called(ctx, flip)
	return args.Error(0)
}

func (m *MockFlipRepository) GetStats(ctx context.Context, username string) (*models.FlipStats, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FlipStats), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return whatever SetRepositories installed, so tests wire concrete repo
// mocks once instead of stubbing each getter.
type MockUnitOfWork struct {
	mock.Mock

	accountRepo   AccountRepository
	challengeRepo ChallengeRepository
	ledgerRepo    LedgerRepository
	flipRepo      FlipRepository
	eventBus      EventPublisher
}

// SetRepositories installs the repositories returned by the getters. Nil is
// allowed for repositories the test never touches.
func (m *MockUnitOfWork) SetRepositories(account AccountRepository, challenge ChallengeRepository, ledger LedgerRepository, flip FlipRepository) {
	m.accountRepo = account
	m.challengeRepo = challenge
	m.ledgerRepo = ledger
	m.flipRepo = flip
	if m.eventBus == nil {
		m.eventBus = &noopPublisher{}
	}
}

// SetEventBus overrides the default no-op publisher
func (m *MockUnitOfWork) SetEventBus(bus EventPublisher) {
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository {
	return m.accountRepo
}

func (m *MockUnitOfWork) ChallengeRepository() ChallengeRepository {
	return m.challengeRepo
}

func (m *MockUnitOfWork) LedgerRepository() LedgerRepository {
	return m.ledgerRepo
}

func (m *MockUnitOfWork) FlipRepository() FlipRepository {
	return m.flipRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

type noopPublisher struct{}

func (p *noopPublisher) Publish(event events.Event) {}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
