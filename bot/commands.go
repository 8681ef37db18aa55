package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"cybot/models"
	"cybot/service"
	"cybot/telemetry"
)

// dispatch parses a chat command and returns the reply to send, or "" for
// silence. Errors surfaced to chat are generic; full context goes to the log.
func (b *Bot) dispatch(ctx context.Context, actor, input string) string {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return ""
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "balance":
		return b.handleBalance(ctx, actor)
	case "flip":
		return b.handleFlip(ctx, actor, args)
	case "challenge":
		return b.handleChallenge(ctx, actor, args)
	case "heads":
		return b.handleChallengeResponse(ctx, actor, models.CoinSideHeads)
	case "tails":
		return b.handleChallengeResponse(ctx, actor, models.CoinSideTails)
	case "give":
		return b.handleGive(ctx, actor, args)
	case "scoreboard":
		return b.handleScoreboard(ctx)
	case "stats":
		return b.handleStats(ctx, actor, args)
	default:
		return ""
	}
}

func (b *Bot) handleBalance(ctx context.Context, actor string) string {
	account, err := b.accountService.GetOrCreateAccount(ctx, actor)
	if err != nil {
		log.WithError(err).WithField("actor", actor).Error("Balance lookup failed")
		return fmt.Sprintf("%s: something broke, try again later", actor)
	}
	return fmt.Sprintf("%s: you have %d coins", actor, account.Balance)
}

func (b *Bot) handleFlip(ctx context.Context, actor string, args []string) string {
	if len(args) != 1 {
		return fmt.Sprintf("%s: usage: %sflip <amount>", actor, b.config.CommandPrefix)
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return fmt.Sprintf("%s: %v", actor, err)
	}

	if _, err := b.accountService.GetOrCreateAccount(ctx, actor); err != nil {
		log.WithError(err).WithField("actor", actor).Error("Account lookup failed")
		return fmt.Sprintf("%s: something broke, try again later", actor)
	}

	result, err := b.coinFlipService.FlipVsHouse(ctx, actor, amount)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientFunds) {
			return fmt.Sprintf("%s: you can't afford that", actor)
		}
		log.WithError(err).WithFields(log.Fields{"actor": actor, "amount": amount}).Error("House flip failed")
		return fmt.Sprintf("%s: something broke, nothing was wagered", actor)
	}

	telemetry.FlipsTotal.Inc()

	if result.Won {
		return fmt.Sprintf("%s: %s! you won %d coins, balance %d", actor, result.Result, result.Payout, result.NewBalance)
	}
	return fmt.Sprintf("%s: %s! you lost %d coins, balance %d", actor, result.Result, amount, result.NewBalance)
}

func (b *Bot) handleChallenge(ctx context.Context, actor string, args []string) string {
	if len(args) != 2 {
		return fmt.Sprintf("%s: usage: %schallenge <user> <amount>", actor, b.config.CommandPrefix)
	}
	target := args[0]
	amount, err := parseAmount(args[1])
	if err != nil {
		return fmt.Sprintf("%s: %v", actor, err)
	}

	// Both sides need accounts before money can move
	if _, err := b.accountService.GetOrCreateAccount(ctx, actor); err != nil {
		log.WithError(err).WithField("actor", actor).Error("Account lookup failed")
		return fmt.Sprintf("%s: something broke, try again later", actor)
	}
	if _, err := b.accountService.GetOrCreateAccount(ctx, target); err != nil {
		log.WithError(err).WithField("target", target).Error("Account lookup failed")
		return fmt.Sprintf("%s: something broke, try again later", actor)
	}

	challenge, err := b.coinFlipService.CreateChallenge(ctx, actor, target, amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientFunds):
			return fmt.Sprintf("%s: someone can't afford that (%v)", actor, err)
		case errors.Is(err, service.ErrChallengeOutstanding):
			return fmt.Sprintf("%s: you already have a pending challenge", actor)
		default:
			log.WithError(err).WithFields(log.Fields{"actor": actor, "target": target, "amount": amount}).Error("Challenge creation failed")
			return fmt.Sprintf("%s: something broke, nothing was wagered", actor)
		}
	}

	telemetry.ChallengesCreated.Inc()

	return fmt.Sprintf("%s challenges %s to a coin flip for %d coins! %s, answer with %sheads or %stails",
		challenge.Challenger, challenge.Challenged, challenge.Amount,
		challenge.Challenged, b.config.CommandPrefix, b.config.CommandPrefix)
}

func (b *Bot) handleChallengeResponse(ctx context.Context, actor string, choice models.CoinSide) string {
	result, err := b.coinFlipService.HandleChallengeResponse(ctx, actor, choice)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoPendingChallenge):
			return fmt.Sprintf("%s: nobody is challenging you right now", actor)
		case errors.Is(err, service.ErrInsufficientFunds):
			// Only reported after the refund committed
			telemetry.ChallengesExpired.Inc()
			return fmt.Sprintf("%s: you can't cover the stake, challenge cancelled and refunded", actor)
		default:
			log.WithError(err).WithField("actor", actor).Error("Challenge response failed")
			return fmt.Sprintf("%s: something broke, the challenge still stands", actor)
		}
	}

	telemetry.ChallengesResolved.Inc()

	return fmt.Sprintf("the coin lands %s! %s takes %d coins from %s",
		result.Result, result.Winner, result.Payout, result.Loser)
}

func (b *Bot) handleGive(ctx context.Context, actor string, args []string) string {
	if len(args) != 2 {
		return fmt.Sprintf("%s: usage: %sgive <user> <amount>", actor, b.config.CommandPrefix)
	}
	target := args[0]
	amount, err := parseAmount(args[1])
	if err != nil {
		return fmt.Sprintf("%s: %v", actor, err)
	}

	if _, err := b.accountService.GetOrCreateAccount(ctx, actor); err != nil {
		log.WithError(err).Error("Account lookup failed")
		return fmt.Sprintf("%s: something broke, try again later", actor)
	}
	if _, err := b.accountService.GetOrCreateAccount(ctx, target); err != nil {
		log.WithError(err).Error("Account lookup failed")
		return fmt.Sprintf("%s: something broke, try again later", actor)
	}

	if err := b.accountService.Transfer(ctx, actor, target, amount); err != nil {
		if errors.Is(err, service.ErrInsufficientFunds) {
			return fmt.Sprintf("%s: you can't afford that", actor)
		}
		log.WithError(err).WithFields(log.Fields{"actor": actor, "target": target, "amount": amount}).Error("Transfer failed")
		return fmt.Sprintf("%s: something broke, nothing was transferred", actor)
	}

	return fmt.Sprintf("%s gives %d coins to %s", actor, amount, target)
}

func (b *Bot) handleScoreboard(ctx context.Context) string {
	entries, err := b.statsService.GetScoreboard(ctx, 5)
	if err != nil {
		log.WithError(err).Error("Scoreboard lookup failed")
		return "scoreboard is unavailable right now"
	}
	if len(entries) == 0 {
		return "nobody has any coins yet"
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("#%d %s (%d)", e.Rank, e.Username, e.Balance))
	}
	return "top balances: " + strings.Join(parts, ", ")
}

func (b *Bot) handleStats(ctx context.Context, actor string, args []string) string {
	target := actor
	if len(args) > 0 {
		target = args[0]
	}

	stats, err := b.statsService.GetUserStats(ctx, target)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return fmt.Sprintf("%s: never heard of %s", actor, target)
		}
		log.WithError(err).WithField("target", target).Error("Stats lookup failed")
		return fmt.Sprintf("%s: something broke, try again later", actor)
	}

	return fmt.Sprintf("%s: %d coins, %d flips (%.0f%% won), challenges %d won / %d lost",
		stats.Account.Username, stats.Account.Balance,
		stats.Flips.TotalFlips, stats.Flips.WinRate(),
		stats.Challenges.TotalWon, stats.Challenges.TotalLost)
}

// parseAmount parses a positive coin amount from a command argument
func parseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
