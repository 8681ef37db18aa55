package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"cybot/bot"
	"cybot/config"
	"cybot/connection"
	"cybot/database"
	"cybot/events"
	"cybot/repository"
	"cybot/service"
	"cybot/telemetry"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting cybot...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize event bus and unit of work factory
	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize services
	accountService := service.NewAccountService(uowFactory, cfg.StartingBalance)
	coinFlipService := service.NewCoinFlipService(uowFactory, cfg.ChallengeTTL)
	statsService := service.NewStatsService(uowFactory)

	// Challenges that were pending when the process last died have no timers;
	// sweep them now and then every minute as a backstop.
	if err := coinFlipService.SweepExpired(ctx); err != nil {
		log.WithError(err).Error("Initial expired-challenge sweep failed")
	}
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		if err := coinFlipService.SweepExpired(context.Background()); err != nil {
			log.WithError(err).Error("Expired-challenge sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule challenge sweeper: %w", err)
	}
	sweeper.Start()

	// Metrics endpoint
	telemetry.Init()
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			log.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Initialize room connection
	conn := connection.NewConnection(connection.Config{
		Room:                 cfg.Room,
		ServerConfigURL:      cfg.ServerConfigURL,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		MinAttemptInterval:   cfg.MinAttemptInterval,
		ConnectTimeout:       cfg.ConnectTimeout,
		JoinTimeout:          cfg.JoinTimeout,
		LoginTimeout:         cfg.LoginTimeout,
	})

	// Initialize the bot
	chatBot := bot.New(bot.Config{
		Username: cfg.BotUsername,
		Password: cfg.BotPassword,
		Channel:  cfg.Room,
	}, conn, accountService, coinFlipService, statsService, eventBus)

	if err := chatBot.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	// Wait for context cancellation
	log.WithField("environment", cfg.Environment).Info("Bot is running")
	<-ctx.Done()

	// Cleanup resources
	log.Info("Shutting down bot...")

	chatBot.Stop()
	sweeper.Stop()
	coinFlipService.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Info("Shutdown completed")
	}

	return nil
}
