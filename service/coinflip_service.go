package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"cybot/events"
	"cybot/models"

	log "github.com/sirupsen/logrus"
)

type coinFlipService struct {
	uowFactory UnitOfWorkFactory
	ttl        time.Duration

	// flipCoin is swappable so tests can force an outcome
	flipCoin func() models.CoinSide

	// TTL timers keyed by challenge ID. Explicit handles, so cancellation
	// always stops the timer belonging to that challenge and nothing else.
	mu     sync.Mutex
	timers map[int64]*time.Timer
	closed bool
}

// NewCoinFlipService creates a new coin-flip service. Challenges auto-cancel
// after ttl when unanswered.
func NewCoinFlipService(uowFactory UnitOfWorkFactory, ttl time.Duration) CoinFlipService {
	return &coinFlipService{
		uowFactory: uowFactory,
		ttl:        ttl,
		flipCoin:   fairCoin,
		timers:     make(map[int64]*time.Timer),
	}
}

func fairCoin() models.CoinSide {
	if rand.Intn(2) == 0 {
		return models.CoinSideHeads
	}
	return models.CoinSideTails
}

// CreateChallenge escrows the challenger's stake and opens a pending challenge.
// The debit happens at creation time, so the payout transaction can never fail
// for insufficient challenger funds.
func (s *coinFlipService) CreateChallenge(ctx context.Context, challenger, target string, amount int64) (*models.Challenge, error) {
	challenger = models.NormalizeUsername(challenger)
	target = models.NormalizeUsername(target)

	if challenger == target {
		return nil, fmt.Errorf("cannot challenge yourself")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("challenge amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	existing, err := uow.ChallengeRepository().GetPendingByChallenger(ctx, challenger)
	if err != nil {
		return nil, fmt.Errorf("failed to check outstanding challenges: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w (against %s for %d)", ErrChallengeOutstanding, existing.Challenged, existing.Amount)
	}

	challengerAcct, err := uow.AccountRepository().GetByUsername(ctx, challenger)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenger account: %w", err)
	}
	if challengerAcct == nil {
		return nil, ErrAccountNotFound
	}
	if challengerAcct.Balance < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, challengerAcct.Balance, amount)
	}

	targetAcct, err := uow.AccountRepository().GetByUsername(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get target account: %w", err)
	}
	if targetAcct == nil {
		return nil, fmt.Errorf("target %w", ErrAccountNotFound)
	}
	if targetAcct.Balance < amount {
		return nil, fmt.Errorf("target %w: they have %d, need %d", ErrInsufficientFunds, targetAcct.Balance, amount)
	}

	// Escrow. The conditional update re-checks the balance at write time;
	// zero rows affected means a concurrent operation got there first.
	if err := uow.AccountRepository().DeductBalance(ctx, challenger, amount); err != nil {
		return nil, fmt.Errorf("failed to escrow stake: %w", err)
	}

	challenge := &models.Challenge{
		Challenger: challenger,
		Challenged: target,
		Amount:     amount,
		Status:     models.ChallengeStatusPending,
		ExpiresAt:  time.Now().Add(s.ttl),
	}
	if err := uow.ChallengeRepository().Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	escrowEntry := &models.LedgerEntry{
		Username:      challenger,
		BalanceBefore: challengerAcct.Balance,
		BalanceAfter:  challengerAcct.Balance - amount,
		ChangeAmount:  -amount,
		EntryType:     models.EntryTypeFlipEscrow,
		Metadata: map[string]any{
			"challenge_id": challenge.ID,
			"opponent":     target,
			"amount":       amount,
		},
		RelatedID: &challenge.ID,
	}
	if err := uow.LedgerRepository().Record(ctx, escrowEntry); err != nil {
		return nil, fmt.Errorf("failed to record escrow: %w", err)
	}

	uow.EventBus().Publish(events.ChallengeCreatedEvent{
		ChallengeID: challenge.ID,
		Challenger:  challenger,
		Challenged:  target,
		Amount:      amount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.scheduleExpiry(challenge.ID, time.Until(challenge.ExpiresAt))

	return challenge, nil
}

// HandleChallengeResponse claims the responder's pending challenge and
// resolves it. The claim is a conditional update, so a double response or a
// raced expiry leaves exactly one winner of the claim.
func (s *coinFlipService) HandleChallengeResponse(ctx context.Context, actor string, choice models.CoinSide) (*models.ChallengeResult, error) {
	actor = models.NormalizeUsername(actor)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	challenge, err := uow.ChallengeRepository().ClaimPendingByChallenged(ctx, actor, choice, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim challenge: %w", err)
	}
	if challenge == nil {
		return nil, ErrNoPendingChallenge
	}

	responderAcct, err := uow.AccountRepository().GetByUsername(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to get responder account: %w", err)
	}
	if responderAcct == nil {
		return nil, ErrAccountNotFound
	}

	// Stake the responder. Their balance may have changed since the
	// challenge was created, so this can legitimately fail.
	if err := uow.AccountRepository().DeductBalance(ctx, actor, challenge.Amount); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return nil, s.cancelAndRefund(ctx, uow, challenge, "responder has insufficient funds")
		}
		return nil, fmt.Errorf("failed to stake responder: %w", err)
	}

	stakeEntry := &models.LedgerEntry{
		Username:      actor,
		BalanceBefore: responderAcct.Balance,
		BalanceAfter:  responderAcct.Balance - challenge.Amount,
		ChangeAmount:  -challenge.Amount,
		EntryType:     models.EntryTypeFlipStake,
		Metadata: map[string]any{
			"challenge_id": challenge.ID,
			"opponent":     challenge.Challenger,
			"choice":       choice,
		},
		RelatedID: &challenge.ID,
	}
	if err := uow.LedgerRepository().Record(ctx, stakeEntry); err != nil {
		return nil, fmt.Errorf("failed to record stake: %w", err)
	}

	result := s.flipCoin()
	winner := challenge.Challenger
	loser := actor
	if choice == result {
		winner = actor
		loser = challenge.Challenger
	}
	payout := 2 * challenge.Amount

	winnerAcct, err := uow.AccountRepository().GetByUsername(ctx, winner)
	if err != nil {
		return nil, fmt.Errorf("failed to get winner account: %w", err)
	}

	if err := uow.AccountRepository().AddBalance(ctx, winner, payout); err != nil {
		return nil, fmt.Errorf("failed to pay winner: %w", err)
	}

	payoutEntry := &models.LedgerEntry{
		Username:      winner,
		BalanceBefore: winnerAcct.Balance,
		BalanceAfter:  winnerAcct.Balance + payout,
		ChangeAmount:  payout,
		EntryType:     models.EntryTypeFlipPayout,
		Metadata: map[string]any{
			"challenge_id": challenge.ID,
			"opponent":     loser,
			"result":       result,
		},
		RelatedID: &challenge.ID,
	}
	if err := uow.LedgerRepository().Record(ctx, payoutEntry); err != nil {
		return nil, fmt.Errorf("failed to record payout: %w", err)
	}

	if err := uow.ChallengeRepository().MarkCompleted(ctx, challenge.ID, result, winner); err != nil {
		return nil, fmt.Errorf("failed to complete challenge: %w", err)
	}

	uow.EventBus().Publish(events.ChallengeResolvedEvent{
		ChallengeID: challenge.ID,
		Winner:      winner,
		Loser:       loser,
		Amount:      challenge.Amount,
		Result:      result,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.cancelExpiry(challenge.ID)

	challengerChoice := choice.Opposite()
	challenge.Status = models.ChallengeStatusCompleted
	challenge.ChallengedChoice = &choice
	challenge.ChallengerChoice = &challengerChoice
	challenge.Result = &result
	challenge.Winner = &winner

	return &models.ChallengeResult{
		Challenge: challenge,
		Result:    result,
		Winner:    winner,
		Loser:     loser,
		Payout:    payout,
	}, nil
}

// cancelAndRefund cancels an already-claimed challenge and refunds the
// escrowed stake inside the caller's transaction. It returns the error the
// caller should surface; the refund is only reportable once the commit here
// succeeded.
func (s *coinFlipService) cancelAndRefund(ctx context.Context, uow UnitOfWork, challenge *models.Challenge, reason string) error {
	if err := uow.ChallengeRepository().MarkCancelled(ctx, challenge.ID); err != nil {
		return fmt.Errorf("failed to cancel challenge: %w", err)
	}

	if err := s.refundEscrow(ctx, uow, challenge, reason); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	s.cancelExpiry(challenge.ID)

	log.WithFields(log.Fields{
		"challengeID": challenge.ID,
		"challenger":  challenge.Challenger,
		"challenged":  challenge.Challenged,
		"amount":      challenge.Amount,
		"reason":      reason,
	}).Info("Challenge cancelled, escrow refunded")

	return fmt.Errorf("%w, challenge cancelled and stake refunded", ErrInsufficientFunds)
}

// refundEscrow returns the challenger's escrowed stake within the caller's
// transaction and records the matching ledger entry and event.
func (s *coinFlipService) refundEscrow(ctx context.Context, uow UnitOfWork, challenge *models.Challenge, reason string) error {
	challengerAcct, err := uow.AccountRepository().GetByUsername(ctx, challenge.Challenger)
	if err != nil {
		return fmt.Errorf("failed to get challenger account: %w", err)
	}
	if challengerAcct == nil {
		return fmt.Errorf("challenger %w", ErrAccountNotFound)
	}

	if err := uow.AccountRepository().AddBalance(ctx, challenge.Challenger, challenge.Amount); err != nil {
		return fmt.Errorf("failed to refund escrow: %w", err)
	}

	refundEntry := &models.LedgerEntry{
		Username:      challenge.Challenger,
		BalanceBefore: challengerAcct.Balance,
		BalanceAfter:  challengerAcct.Balance + challenge.Amount,
		ChangeAmount:  challenge.Amount,
		EntryType:     models.EntryTypeFlipRefund,
		Metadata: map[string]any{
			"challenge_id": challenge.ID,
			"reason":       reason,
		},
		RelatedID: &challenge.ID,
	}
	if err := uow.LedgerRepository().Record(ctx, refundEntry); err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}

	uow.EventBus().Publish(events.ChallengeCancelledEvent{
		ChallengeID: challenge.ID,
		Challenger:  challenge.Challenger,
		Amount:      challenge.Amount,
		Reason:      reason,
	})

	return nil
}

// FlipVsHouse runs a single flip against the house. Stake is only deducted on
// a loss and winnings only credited on a win, both as single conditional
// mutations, so a mid-flight balance change can fail the flip but never
// corrupt it.
func (s *coinFlipService) FlipVsHouse(ctx context.Context, actor string, amount int64) (*models.FlipResult, error) {
	actor = models.NormalizeUsername(actor)

	if amount <= 0 {
		return nil, fmt.Errorf("flip amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	acct, err := uow.AccountRepository().GetByUsername(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if acct.Balance < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, acct.Balance, amount)
	}

	choice := s.flipCoin()
	result := s.flipCoin()
	won := choice == result

	var newBalance, changeAmount int64
	var entryType models.EntryType

	if won {
		newBalance = acct.Balance + amount
		changeAmount = amount
		entryType = models.EntryTypeHouseWin

		if err := uow.AccountRepository().AddBalance(ctx, actor, amount); err != nil {
			return nil, fmt.Errorf("failed to add winnings: %w", err)
		}
	} else {
		newBalance = acct.Balance - amount
		changeAmount = -amount
		entryType = models.EntryTypeHouseLoss

		if err := uow.AccountRepository().DeductBalance(ctx, actor, amount); err != nil {
			return nil, fmt.Errorf("failed to deduct stake: %w", err)
		}
	}

	entry := &models.LedgerEntry{
		Username:      actor,
		BalanceBefore: acct.Balance,
		BalanceAfter:  newBalance,
		ChangeAmount:  changeAmount,
		EntryType:     entryType,
		Metadata: map[string]any{
			"amount": amount,
			"choice": choice,
			"result": result,
			"won":    won,
		},
	}
	if err := uow.LedgerRepository().Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record balance change: %w", err)
	}

	flip := &models.Flip{
		Username:      actor,
		Amount:        amount,
		Choice:        choice,
		Result:        result,
		Won:           won,
		LedgerEntryID: &entry.ID,
	}
	if err := uow.FlipRepository().Create(ctx, flip); err != nil {
		return nil, fmt.Errorf("failed to create flip record: %w", err)
	}

	uow.EventBus().Publish(events.FlipPlacedEvent{
		Username: actor,
		FlipID:   flip.ID,
		Amount:   amount,
		Won:      won,
		Payout:   changeAmount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.FlipResult{
		Won:        won,
		Amount:     amount,
		Payout:     changeAmount,
		Result:     result,
		NewBalance: newBalance,
	}, nil
}

// ExpireChallenge cancels a pending challenge past its TTL and refunds the
// escrow. The conditional claim makes this a no-op when an accept raced the
// timer, so the refund can never happen twice.
func (s *coinFlipService) ExpireChallenge(ctx context.Context, challengeID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	challenge, err := uow.ChallengeRepository().ClaimPendingForCancel(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("failed to claim challenge for expiry: %w", err)
	}
	if challenge == nil {
		// Already accepted or cancelled; nothing to refund.
		return nil
	}

	if err := s.refundEscrow(ctx, uow, challenge, "expired"); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit expiry: %w", err)
	}

	s.cancelExpiry(challengeID)

	log.WithFields(log.Fields{
		"challengeID": challengeID,
		"challenger":  challenge.Challenger,
		"amount":      challenge.Amount,
	}).Info("Challenge expired, escrow refunded")

	return nil
}

// SweepExpired cancels every expired pending challenge. It backs up the
// per-challenge timers against process restarts.
func (s *coinFlipService) SweepExpired(ctx context.Context) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	expired, err := uow.ChallengeRepository().GetExpiredPending(ctx, time.Now())
	uow.Rollback()
	if err != nil {
		return fmt.Errorf("failed to list expired challenges: %w", err)
	}

	for _, challenge := range expired {
		if err := s.ExpireChallenge(ctx, challenge.ID); err != nil {
			log.WithError(err).WithField("challengeID", challenge.ID).Error("Failed to expire challenge")
		}
	}

	return nil
}

func (s *coinFlipService) scheduleExpiry(challengeID int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if t, ok := s.timers[challengeID]; ok {
		t.Stop()
	}
	s.timers[challengeID] = time.AfterFunc(d, func() {
		if err := s.ExpireChallenge(context.Background(), challengeID); err != nil {
			log.WithError(err).WithField("challengeID", challengeID).Error("Challenge expiry failed")
		}
	})
}

func (s *coinFlipService) cancelExpiry(challengeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[challengeID]; ok {
		t.Stop()
		delete(s.timers, challengeID)
	}
}

// Close stops all outstanding TTL timers
func (s *coinFlipService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
