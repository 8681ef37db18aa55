package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"cybot/connection"
	"cybot/events"
	"cybot/service"
	"cybot/telemetry"
)

// Config holds bot configuration
type Config struct {
	Username      string
	Password      string
	Channel       string
	CommandPrefix string
}

// Bot glues the room connection to the economy services: it parses chat
// commands, invokes the services and replies in chat.
type Bot struct {
	config          Config
	conn            *connection.Connection
	accountService  service.AccountService
	coinFlipService service.CoinFlipService
	statsService    service.StatsService
	eventBus        *events.Bus

	offs []func()
}

// chatMessage is the room's chat event payload
type chatMessage struct {
	Username string `json:"username"`
	Msg      string `json:"msg"`
	Time     int64  `json:"time"`
}

// New creates a new bot
func New(config Config, conn *connection.Connection, accountService service.AccountService, coinFlipService service.CoinFlipService, statsService service.StatsService, eventBus *events.Bus) *Bot {
	if config.CommandPrefix == "" {
		config.CommandPrefix = "!"
	}
	return &Bot{
		config:          config,
		conn:            conn,
		accountService:  accountService,
		coinFlipService: coinFlipService,
		statsService:    statsService,
		eventBus:        eventBus,
	}
}

// Start connects to the room, joins the channel, logs in and begins handling
// chat commands. Reconnects re-run the join/login sequence because every
// reconnect is a fresh session.
func (b *Bot) Start(ctx context.Context) error {
	telemetry.Init()

	b.offs = append(b.offs,
		b.conn.On("chatMsg", b.handleChatEvent),
		b.conn.On(connection.EventConnected, func(any) {
			telemetry.SetConnectionUp(true)
			// Every session, first connect or reconnect, needs its own
			// join + login
			go b.establishSession(context.Background())
		}),
		b.conn.On(connection.EventDisconnected, func(any) {
			telemetry.SetConnectionUp(false)
		}),
		b.conn.On(connection.EventStateChange, func(data any) {
			sc, ok := data.(connection.StateChange)
			if !ok {
				return
			}
			if sc.To == connection.StateReconnecting {
				telemetry.ReconnectAttempts.Inc()
			}
			b.eventBus.Emit(context.Background(), events.ConnectionStateChangeEvent{
				From: string(sc.From),
				To:   string(sc.To),
			})
		}),
		b.conn.On(connection.EventReconnectFailed, func(data any) {
			log.WithField("attempts", data).Error("Room connection lost for good")
		}),
	)

	// Make sure the bot's own account exists before it handles anyone's money
	if _, err := b.accountService.GetOrCreateAccount(ctx, b.config.Username); err != nil {
		return fmt.Errorf("failed to ensure bot account: %w", err)
	}

	return b.conn.Connect(ctx)
}

// establishSession joins the channel and authenticates on a fresh session
func (b *Bot) establishSession(ctx context.Context) {
	joinCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := b.conn.JoinChannel(joinCtx, b.config.Channel); err != nil {
		log.WithError(err).WithField("channel", b.config.Channel).Error("Failed to join channel")
		return
	}

	if b.config.Password != "" {
		if err := b.conn.Login(joinCtx, b.config.Username, b.config.Password); err != nil {
			log.WithError(err).WithField("username", b.config.Username).Error("Failed to log in")
		}
	}
}

// Stop unsubscribes the bot and closes the connection
func (b *Bot) Stop() {
	for _, off := range b.offs {
		off()
	}
	b.offs = nil

	if err := b.conn.Disconnect(); err != nil {
		log.WithError(err).Error("Failed to disconnect")
	}
}

func (b *Bot) handleChatEvent(data any) {
	raw, ok := data.(json.RawMessage)
	if !ok {
		return
	}

	var msg chatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.WithError(err).Debug("Malformed chat message")
		return
	}

	telemetry.ChatMessagesSeen.Inc()

	// Never react to our own messages
	if strings.EqualFold(msg.Username, b.config.Username) {
		return
	}
	if !strings.HasPrefix(msg.Msg, b.config.CommandPrefix) {
		return
	}

	start := time.Now()
	reply := b.dispatch(context.Background(), msg.Username, strings.TrimPrefix(msg.Msg, b.config.CommandPrefix))
	telemetry.CommandDuration.Observe(time.Since(start).Seconds())

	if reply != "" {
		b.say(reply)
	}
}

func (b *Bot) say(msg string) {
	if err := b.conn.SendChatMessage(msg); err != nil {
		log.WithError(err).Error("Failed to send chat message")
		return
	}
	telemetry.ChatMessagesSent.Inc()
}
