package service

import (
	"context"
	"testing"

	"cybot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAccountService_GetOrCreateAccount_Existing(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockAccountRepo := new(MockAccountRepository)
	mockLedgerRepo := new(MockLedgerRepository)

	mockUoW.SetRepositories(mockAccountRepo, nil, mockLedgerRepo, nil)

	svc := NewAccountService(mockFactory, 1000)

	existing := &models.Account{Username: "alice", Balance: 250}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockAccountRepo.On("GetByUsername", ctx, "alice").Return(existing, nil)

	account, err := svc.GetOrCreateAccount(ctx, "Alice")

	assert.NoError(t, err)
	assert.Equal(t, existing, account)
	mockAccountRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountService_GetOrCreateAccount_SeedsNewAccount(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockAccountRepo := new(MockAccountRepository)
	mockLedgerRepo := new(MockLedgerRepository)

	mockUoW.SetRepositories(mockAccountRepo, nil, mockLedgerRepo, nil)

	svc := NewAccountService(mockFactory, 1000)

	created := &models.Account{Username: "alice", Balance: 1000}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockAccountRepo.On("GetByUsername", ctx, "alice").Return(nil, nil)
	mockAccountRepo.On("Create", ctx, "alice", int64(1000)).Return(created, nil)

	mockLedgerRepo.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Username == "alice" &&
			e.BalanceBefore == 0 &&
			e.BalanceAfter == 1000 &&
			e.EntryType == models.EntryTypeSeed
	})).Return(nil)

	account, err := svc.GetOrCreateAccount(ctx, "ALICE")

	assert.NoError(t, err)
	assert.Equal(t, created, account)

	mockUoW.AssertExpectations(t)
	mockAccountRepo.AssertExpectations(t)
	mockLedgerRepo.AssertExpectations(t)
}

func TestAccountService_Transfer(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockAccountRepo := new(MockAccountRepository)
	mockLedgerRepo := new(MockLedgerRepository)

	mockUoW.SetRepositories(mockAccountRepo, nil, mockLedgerRepo, nil)

	svc := NewAccountService(mockFactory, 1000)

	sender := &models.Account{Username: "alice", Balance: 100}
	recipient := &models.Account{Username: "bob", Balance: 50}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockAccountRepo.On("GetByUsername", ctx, "alice").Return(sender, nil)
	mockAccountRepo.On("GetByUsername", ctx, "bob").Return(recipient, nil)
	mockAccountRepo.On("DeductBalance", ctx, "alice", int64(30)).Return(nil)
	mockAccountRepo.On("AddBalance", ctx, "bob", int64(30)).Return(nil)
	mockLedgerRepo.On("Record", ctx, mock.AnythingOfType("*models.LedgerEntry")).Return(nil)

	err := svc.Transfer(ctx, "alice", "bob", 30)

	assert.NoError(t, err)
	mockLedgerRepo.AssertNumberOfCalls(t, "Record", 2)
	mockUoW.AssertExpectations(t)
	mockAccountRepo.AssertExpectations(t)
}

func TestAccountService_Transfer_Validation(t *testing.T) {
	svc := NewAccountService(new(MockUnitOfWorkFactory), 1000)
	ctx := context.Background()

	assert.Error(t, svc.Transfer(ctx, "alice", "alice", 30))
	assert.Error(t, svc.Transfer(ctx, "alice", "bob", 0))
	assert.Error(t, svc.Transfer(ctx, "alice", "bob", -5))
}
