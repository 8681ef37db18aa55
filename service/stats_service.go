package service

import (
	"context"
	"fmt"

	"cybot/models"
)

type statsService struct {
	uowFactory UnitOfWorkFactory
}

// NewStatsService creates a new stats service
func NewStatsService(uowFactory UnitOfWorkFactory) StatsService {
	return &statsService{uowFactory: uowFactory}
}

// GetScoreboard returns the top accounts by balance with their flip statistics.
func (s *statsService) GetScoreboard(ctx context.Context, limit int) ([]*models.ScoreboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	accounts, err := uow.AccountRepository().GetTopBalances(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top balances: %w", err)
	}

	entries := make([]*models.ScoreboardEntry, 0, len(accounts))
	for i, acct := range accounts {
		stats, err := uow.FlipRepository().GetStats(ctx, acct.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to get flip stats for %s: %w", acct.Username, err)
		}

		entries = append(entries, &models.ScoreboardEntry{
			Rank:      i + 1,
			Username:  acct.Username,
			Balance:   acct.Balance,
			FlipStats: *stats,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return entries, nil
}

// GetUserStats returns detailed flip and challenge statistics for one user.
func (s *statsService) GetUserStats(ctx context.Context, username string) (*models.UserStats, error) {
	username = models.NormalizeUsername(username)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	flipStats, err := uow.FlipRepository().GetStats(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get flip stats: %w", err)
	}

	challengeStats, err := uow.ChallengeRepository().GetStats(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge stats: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.UserStats{
		Account:    account,
		Flips:      flipStats,
		Challenges: challengeStats,
	}, nil
}
