package repository

import (
	"context"
	"fmt"
	"time"

	"cybot/database"
	"cybot/models"

	"github.com/jackc/pgx/v5"
)

// ChallengeRepository implements the service.ChallengeRepository interface
type ChallengeRepository struct {
	q queryable
}

// NewChallengeRepository creates a new challenge repository
func NewChallengeRepository(db *database.DB) *ChallengeRepository {
	return &ChallengeRepository{q: db.Pool}
}

// newChallengeRepositoryWithTx creates a new challenge repository bound to a transaction
func newChallengeRepositoryWithTx(tx queryable) *ChallengeRepository {
	return &ChallengeRepository{q: tx}
}

const challengeColumns = `
	id, challenger, challenged, amount, status,
	challenger_choice, challenged_choice, result, winner,
	created_at, expires_at, resolved_at
`

func scanChallenge(row pgx.Row) (*models.Challenge, error) {
	var c models.Challenge
	err := row.Scan(
		&c.ID,
		&c.Challenger,
		&c.Challenged,
		&c.Amount,
		&c.Status,
		&c.ChallengerChoice,
		&c.ChallengedChoice,
		&c.Result,
		&c.Winner,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new pending challenge
func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	query := `
		INSERT INTO challenges (challenger, challenged, amount, status, challenger_choice, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		challenge.Challenger,
		challenge.Challenged,
		challenge.Amount,
		challenge.Status,
		challenge.ChallengerChoice,
		challenge.ExpiresAt,
	).Scan(&challenge.ID, &challenge.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	return nil
}

// GetByID retrieves a challenge by its ID. Returns nil when not found.
func (r *ChallengeRepository) GetByID(ctx context.Context, id int64) (*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`

	challenge, err := scanChallenge(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge %d: %w", id, err)
	}

	return challenge, nil
}

// GetPendingByChallenger returns the challenger's outstanding pending
// challenge, or nil when there is none.
func (r *ChallengeRepository) GetPendingByChallenger(ctx context.Context, challenger string) (*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE challenger = $1 AND status = 'pending'`

	challenge, err := scanChallenge(r.q.QueryRow(ctx, query, challenger))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending challenge for %q: %w", challenger, err)
	}

	return challenge, nil
}

// ClaimPendingByChallenged atomically moves the challenged user's pending,
// unexpired challenge to accepting and records their choice. Exactly one of
// two racing claimers (or the expiry canceller) can win this update; the
// losers see nil. This is the compare-and-swap that prevents double-accepts.
func (r *ChallengeRepository) ClaimPendingByChallenged(ctx context.Context, challenged string, choice models.CoinSide, now time.Time) (*models.Challenge, error) {
	query := `
		UPDATE challenges
		SET status = 'accepting',
		    challenged_choice = $2,
		    challenger_choice = CASE WHEN $2 = 'heads' THEN 'tails' ELSE 'heads' END
		WHERE id = (
			SELECT id FROM challenges
			WHERE challenged = $1 AND status = 'pending' AND expires_at > $3
			ORDER BY created_at ASC
			LIMIT 1
		) AND status = 'pending'
		RETURNING ` + challengeColumns

	challenge, err := scanChallenge(r.q.QueryRow(ctx, query, challenged, choice, now))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending challenge for %q: %w", challenged, err)
	}

	return challenge, nil
}

// ClaimPendingForCancel atomically moves a specific pending challenge to
// cancelled. Returns nil when the challenge was already claimed by an accept
// (or cancelled before), so a raced expiry never refunds twice.
func (r *ChallengeRepository) ClaimPendingForCancel(ctx context.Context, id int64) (*models.Challenge, error) {
	query := `
		UPDATE challenges
		SET status = 'cancelled', resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + challengeColumns

	challenge, err := scanChallenge(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim challenge %d for cancel: %w", id, err)
	}

	return challenge, nil
}

// MarkCompleted records the flip outcome on an accepting challenge
func (r *ChallengeRepository) MarkCompleted(ctx context.Context, id int64, result models.CoinSide, winner string) error {
	query := `
		UPDATE challenges
		SET status = 'completed', result = $2, winner = $3, resolved_at = NOW()
		WHERE id = $1 AND status = 'accepting'
	`

	tag, err := r.q.Exec(ctx, query, id, result, winner)
	if err != nil {
		return fmt.Errorf("failed to complete challenge %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("challenge %d was not in accepting state", id)
	}

	return nil
}

// MarkCancelled moves an accepting challenge to cancelled. Used when the
// accepting party turns out to have insufficient funds at accept time.
func (r *ChallengeRepository) MarkCancelled(ctx context.Context, id int64) error {
	query := `
		UPDATE challenges
		SET status = 'cancelled', resolved_at = NOW()
		WHERE id = $1 AND status = 'accepting'
	`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel challenge %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("challenge %d was not in accepting state", id)
	}

	return nil
}

// GetExpiredPending returns pending challenges whose TTL has passed. The
// periodic sweep uses this to catch timers lost to a process restart.
func (r *ChallengeRepository) GetExpiredPending(ctx context.Context, now time.Time) ([]*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE status = 'pending' AND expires_at <= $1`

	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*models.Challenge
	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, challenge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate challenges: %w", err)
	}

	return challenges, nil
}

// GetStats returns challenge statistics for a user
func (r *ChallengeRepository) GetStats(ctx context.Context, username string) (*models.ChallengeStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'completed' AND winner = $1),
			COUNT(*) FILTER (WHERE status = 'completed' AND winner <> $1),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed' AND winner = $1), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed' AND winner <> $1), 0)
		FROM challenges
		WHERE challenger = $1 OR challenged = $1
	`

	var stats models.ChallengeStats
	err := r.q.QueryRow(ctx, query, username).Scan(
		&stats.TotalChallenges,
		&stats.TotalWon,
		&stats.TotalLost,
		&stats.TotalCancelled,
		&stats.AmountWon,
		&stats.AmountLost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge stats for %q: %w", username, err)
	}

	return &stats, nil
}
