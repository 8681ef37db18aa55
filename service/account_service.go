package service

import (
	"context"
	"fmt"

	"cybot/events"
	"cybot/models"

	log "github.com/sirupsen/logrus"
)

type accountService struct {
	uowFactory      UnitOfWorkFactory
	startingBalance int64
}

// NewAccountService creates a new account service. New accounts are seeded
// with startingBalance coins.
func NewAccountService(uowFactory UnitOfWorkFactory, startingBalance int64) AccountService {
	return &accountService{
		uowFactory:      uowFactory,
		startingBalance: startingBalance,
	}
}

// GetOrCreateAccount retrieves an account, creating and seeding it first if
// the user has never been seen.
func (s *accountService) GetOrCreateAccount(ctx context.Context, username string) (*models.Account, error) {
	username = models.NormalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account != nil {
		return account, nil
	}

	account, err = uow.AccountRepository().Create(ctx, username, s.startingBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	seedEntry := &models.LedgerEntry{
		Username:      username,
		BalanceBefore: 0,
		BalanceAfter:  s.startingBalance,
		ChangeAmount:  s.startingBalance,
		EntryType:     models.EntryTypeSeed,
	}
	if err := uow.LedgerRepository().Record(ctx, seedEntry); err != nil {
		return nil, fmt.Errorf("failed to record seed entry: %w", err)
	}

	uow.EventBus().Publish(events.AccountCreatedEvent{
		Username:       username,
		InitialBalance: s.startingBalance,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"username": username,
		"balance":  s.startingBalance,
	}).Info("Seeded new account")

	return account, nil
}

// Transfer moves amount from one account to another atomically.
func (s *accountService) Transfer(ctx context.Context, from, to string, amount int64) error {
	from = models.NormalizeUsername(from)
	to = models.NormalizeUsername(to)

	if from == to {
		return fmt.Errorf("cannot transfer to yourself")
	}
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	fromAcct, err := uow.AccountRepository().GetByUsername(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to get sender account: %w", err)
	}
	if fromAcct == nil {
		return ErrAccountNotFound
	}

	toAcct, err := uow.AccountRepository().GetByUsername(ctx, to)
	if err != nil {
		return fmt.Errorf("failed to get recipient account: %w", err)
	}
	if toAcct == nil {
		return fmt.Errorf("recipient %w", ErrAccountNotFound)
	}

	if err := uow.AccountRepository().DeductBalance(ctx, from, amount); err != nil {
		return fmt.Errorf("failed to debit sender: %w", err)
	}
	if err := uow.AccountRepository().AddBalance(ctx, to, amount); err != nil {
		return fmt.Errorf("failed to credit recipient: %w", err)
	}

	debitEntry := &models.LedgerEntry{
		Username:      from,
		BalanceBefore: fromAcct.Balance,
		BalanceAfter:  fromAcct.Balance - amount,
		ChangeAmount:  -amount,
		EntryType:     models.EntryTypeTransfer,
		Metadata: map[string]any{
			"to": to,
		},
	}
	if err := uow.LedgerRepository().Record(ctx, debitEntry); err != nil {
		return fmt.Errorf("failed to record transfer debit: %w", err)
	}

	creditEntry := &models.LedgerEntry{
		Username:      to,
		BalanceBefore: toAcct.Balance,
		BalanceAfter:  toAcct.Balance + amount,
		ChangeAmount:  amount,
		EntryType:     models.EntryTypeTransfer,
		Metadata: map[string]any{
			"from": from,
		},
	}
	if err := uow.LedgerRepository().Record(ctx, creditEntry); err != nil {
		return fmt.Errorf("failed to record transfer credit: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		Username:     from,
		OldBalance:   fromAcct.Balance,
		NewBalance:   fromAcct.Balance - amount,
		EntryType:    models.EntryTypeTransfer,
		ChangeAmount: -amount,
	})
	uow.EventBus().Publish(events.BalanceChangeEvent{
		Username:     to,
		OldBalance:   toAcct.Balance,
		NewBalance:   toAcct.Balance + amount,
		EntryType:    models.EntryTypeTransfer,
		ChangeAmount: amount,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
