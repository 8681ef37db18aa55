package repository

import (
	"context"
	"fmt"

	"cybot/database"
	"cybot/models"
	"cybot/service"

	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the service.AccountRepository interface
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository bound to a transaction
func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

// GetByUsername retrieves an account by its normalized username.
// Returns nil without error when no account exists.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `
		SELECT username, balance, created_at, updated_at
		FROM accounts
		WHERE username = $1
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, models.NormalizeUsername(username)).Scan(
		&account.Username,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %q: %w", username, err)
	}

	return &account, nil
}

// Create creates a new account with the initial balance
func (r *AccountRepository) Create(ctx context.Context, username string, initialBalance int64) (*models.Account, error) {
	query := `
		INSERT INTO accounts (username, balance)
		VALUES ($1, $2)
		RETURNING username, balance, created_at, updated_at
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, models.NormalizeUsername(username), initialBalance).Scan(
		&account.Username,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create account %q: %w", username, err)
	}

	return &account, nil
}

// AddBalance credits an account atomically
func (r *AccountRepository) AddBalance(ctx context.Context, username string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE username = $2
	`

	result, err := r.q.Exec(ctx, query, amount, models.NormalizeUsername(username))
	if err != nil {
		return fmt.Errorf("failed to add balance for %q: %w", username, err)
	}

	if result.RowsAffected() == 0 {
		return service.ErrAccountNotFound
	}

	return nil
}

// DeductBalance debits an account atomically. The WHERE clause guards against
// underflow; zero rows affected means the funds were gone by write time.
func (r *AccountRepository) DeductBalance(ctx context.Context, username string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE username = $2 AND balance >= $1
	`

	result, err := r.q.Exec(ctx, query, amount, models.NormalizeUsername(username))
	if err != nil {
		return fmt.Errorf("failed to deduct balance for %q: %w", username, err)
	}

	if result.RowsAffected() == 0 {
		account, err := r.GetByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if account == nil {
			return service.ErrAccountNotFound
		}
		return fmt.Errorf("%w: have %d, need %d", service.ErrInsufficientFunds, account.Balance, amount)
	}

	return nil
}

// GetTopBalances returns the highest-balance accounts, richest first
func (r *AccountRepository) GetTopBalances(ctx context.Context, limit int) ([]*models.Account, error) {
	query := `
		SELECT username, balance, created_at, updated_at
		FROM accounts
		WHERE balance > 0
		ORDER BY balance DESC, username ASC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top balances: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		err := rows.Scan(
			&account.Username,
			&account.Balance,
			&account.CreatedAt,
			&account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}
