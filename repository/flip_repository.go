package repository

import (
	"context"
	"fmt"

	"cybot/database"
	"cybot/models"
)

// FlipRepository implements the service.FlipRepository interface
type FlipRepository struct {
	q queryable
}

// NewFlipRepository creates a new flip repository
func NewFlipRepository(db *database.DB) *FlipRepository {
	return &FlipRepository{q: db.Pool}
}

// newFlipRepositoryWithTx creates a new flip repository bound to a transaction
func newFlipRepositoryWithTx(tx queryable) *FlipRepository {
	return &FlipRepository{q: tx}
}

// Create records a completed house flip
func (r *FlipRepository) Create(ctx context.Context, flip *models.Flip) error {
	query := `
		INSERT INTO flips (username, amount, choice, result, won, ledger_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		flip.Username,
		flip.Amount,
		flip.Choice,
		flip.Result,
		flip.Won,
		flip.LedgerEntryID,
	).Scan(&flip.ID, &flip.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create flip record: %w", err)
	}

	return nil
}

// GetStats returns flip statistics for a user
func (r *FlipRepository) GetStats(ctx context.Context, username string) (*models.FlipStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE won),
			COUNT(*) FILTER (WHERE NOT won),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(CASE WHEN won THEN amount ELSE -amount END), 0),
			COALESCE(MAX(amount) FILTER (WHERE won), 0),
			COALESCE(MAX(amount) FILTER (WHERE NOT won), 0)
		FROM flips
		WHERE username = $1
	`

	var stats models.FlipStats
	err := r.q.QueryRow(ctx, query, username).Scan(
		&stats.TotalFlips,
		&stats.TotalWins,
		&stats.TotalLosses,
		&stats.TotalWagered,
		&stats.NetProfit,
		&stats.BiggestWin,
		&stats.BiggestLoss,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get flip stats for %q: %w", username, err)
	}

	return &stats, nil
}
