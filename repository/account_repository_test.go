package repository

import (
	"context"
	"sync"
	"testing"

	"cybot/repository/testutil"
	"cybot/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_CreateAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	account, err := repo.Create(ctx, "alice", 1000)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, int64(1000), account.Balance)
	assert.False(t, account.CreatedAt.IsZero())

	fetched, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, int64(1000), fetched.Balance)

	missing, err := repo.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAccountRepository_DeductBalance(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice", 100)
	require.NoError(t, err)

	t.Run("sufficient funds", func(t *testing.T) {
		require.NoError(t, repo.DeductBalance(ctx, "alice", 60))

		account, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(40), account.Balance)
	})

	t.Run("insufficient funds leaves balance untouched", func(t *testing.T) {
		err := repo.DeductBalance(ctx, "alice", 100)
		assert.ErrorIs(t, err, service.ErrInsufficientFunds)

		account, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(40), account.Balance)
	})

	t.Run("unknown account", func(t *testing.T) {
		err := repo.DeductBalance(ctx, "nobody", 10)
		assert.ErrorIs(t, err, service.ErrAccountNotFound)
	})
}

func TestAccountRepository_ConcurrentDeductsCannotDoubleSpend(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	// Balance covers exactly one of the two concurrent deductions
	_, err := repo.Create(ctx, "alice", 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.DeductBalance(ctx, "alice", 75)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, service.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 1, succeeded)

	account, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(25), account.Balance)
}

func TestAccountRepository_AddBalance(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice", 100)
	require.NoError(t, err)

	require.NoError(t, repo.AddBalance(ctx, "alice", 50))

	account, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(150), account.Balance)

	assert.ErrorIs(t, repo.AddBalance(ctx, "nobody", 50), service.ErrAccountNotFound)
}

func TestAccountRepository_GetTopBalances(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	for _, a := range []struct {
		name    string
		balance int64
	}{
		{"alice", 300},
		{"bob", 900},
		{"carol", 600},
	} {
		_, err := repo.Create(ctx, a.name, a.balance)
		require.NoError(t, err)
	}

	top, err := repo.GetTopBalances(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].Username)
	assert.Equal(t, "carol", top[1].Username)
}
