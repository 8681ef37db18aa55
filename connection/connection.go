package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"cybot/telemetry"
)

// State is the connection lifecycle state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Events emitted to consumers, alongside the forwarded room events
const (
	EventStateChange     = "stateChange"
	EventConnected       = "connected"
	EventDisconnected    = "disconnected"
	EventReconnectFailed = "reconnectFailed"
)

// StateChange is the payload of every stateChange event
type StateChange struct {
	From State
	To   State
}

var (
	ErrAlreadyConnected     = errors.New("already connected or connecting")
	ErrAttemptTooSoon       = errors.New("connection attempt too soon after previous attempt")
	ErrNotConnected         = errors.New("not connected")
	ErrChannelNeedsPassword = errors.New("channel requires a password")
	ErrLoginFailed          = errors.New("login failed")
)

// forwardedEvents are room events re-emitted to consumers as-is. A reconnect
// is a fresh session; consumers must re-fetch authoritative state (userlist)
// rather than assume continuity across a disconnected event.
var forwardedEvents = []string{
	"chatMsg",
	"pm",
	"userlist",
	"usercount",
	"addUser",
	"userLeave",
	"rank",
	"setPermissions",
	"channelOpts",
	"needPassword",
	"login",
	"loginError",
}

const (
	defaultMaxReconnectAttempts = 10
	defaultReconnectBaseDelay   = time.Second
	defaultMinAttemptInterval   = 2 * time.Second
	defaultConnectTimeout       = 30 * time.Second
	defaultJoinTimeout          = 10 * time.Second
	defaultLoginTimeout         = 10 * time.Second

	maxReconnectDelay = 5 * time.Minute
	maxBaseDelay      = 60 * time.Second
)

// Config holds the connection parameters
type Config struct {
	Room            string
	ServerConfigURL string

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	MinAttemptInterval   time.Duration
	ConnectTimeout       time.Duration
	JoinTimeout          time.Duration
	LoginTimeout         time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if c.MinAttemptInterval == 0 {
		c.MinAttemptInterval = defaultMinAttemptInterval
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = defaultJoinTimeout
	}
	if c.LoginTimeout == 0 {
		c.LoginTimeout = defaultLoginTimeout
	}
}

// Connection maintains exactly one live link to a remote room, recovering
// from drops with bounded jittered backoff. Consumers subscribe once on the
// connection; transport listeners are torn down and rebuilt on every
// reconnect so a forwarded event is delivered exactly once per remote
// emission no matter how many reconnect cycles have happened.
type Connection struct {
	cfg     Config
	emitter *Emitter

	newTransport   func() Transport
	fetchSocketURL func(ctx context.Context, baseURL, room string) (string, error)
	jitter         func(time.Duration) time.Duration

	mu                sync.Mutex
	state             State
	transport         Transport
	sessionID         string
	authenticated     bool
	reconnectAttempts int
	baseDelay         time.Duration
	lastAttempt       time.Time
	reconnectTimer    *time.Timer
}

// NewConnection creates a connection for the configured room. It does not
// dial until Connect is called.
func NewConnection(cfg Config) *Connection {
	cfg.applyDefaults()
	return &Connection{
		cfg:            cfg,
		emitter:        NewEmitter(),
		newTransport:   NewWebsocketTransport,
		fetchSocketURL: FetchSocketURL,
		jitter:         defaultJitter,
		state:          StateDisconnected,
		baseDelay:      cfg.ReconnectBaseDelay,
	}
}

// defaultJitter adds up to 30% of the delay, spreading simultaneous
// reconnects from many clients.
func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)*3/10+1))
}

// backoffDelay computes the pre-jitter reconnect delay for an attempt. The
// growth factor is capped at 10x the base and the result at a hard ceiling.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	factor := math.Pow(1.5, float64(attempt-1))
	if factor > 10 {
		factor = 10
	}
	d := time.Duration(float64(base) * factor)
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}

// isRateLimitError reports whether an error message looks like the server
// rate-limiting us. Best-effort text matching; the server does not tag these
// errors in any structured way.
func isRateLimitError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "rate limit") ||
		strings.Contains(m, "too many") ||
		strings.Contains(m, "429")
}

// On subscribes to a connection or forwarded room event. The returned
// function removes the subscription.
func (c *Connection) On(event string, fn Handler) func() {
	return c.emitter.On(event, fn)
}

// State returns the current lifecycle state
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the identifier of the current session, or the empty
// string before the first successful connect. Each reconnect mints a new one.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Authenticated reports whether the current session has logged in
func (c *Connection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// transitionLocked changes state and returns the emit for the caller to run
// after releasing the lock. Handlers may call back into the connection.
func (c *Connection) transitionLocked(to State) func() {
	from := c.state
	if from == to {
		return func() {}
	}
	c.state = to
	return func() {
		c.emitter.Emit(EventStateChange, StateChange{From: from, To: to})
	}
}

// Connect establishes the link. It fails fast when a connection is already
// up or in progress, or when called again within the minimum inter-attempt
// interval. The caller decides whether to retry a failed manual connect; only
// unexpected drops enter the automatic reconnect loop.
func (c *Connection) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

func (c *Connection) connect(ctx context.Context, isReconnect bool) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	if since := time.Since(c.lastAttempt); since < c.cfg.MinAttemptInterval {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v elapsed, need %v", ErrAttemptTooSoon, since.Round(time.Millisecond), c.cfg.MinAttemptInterval)
	}
	c.lastAttempt = time.Now()
	emit := c.transitionLocked(StateConnecting)
	c.mu.Unlock()
	emit()

	err := c.attempt(ctx)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	emit = c.transitionLocked(StateDisconnected)
	c.mu.Unlock()
	emit()

	log.WithError(err).WithFields(log.Fields{
		"room":      c.cfg.Room,
		"reconnect": isReconnect,
	}).Error("Connection attempt failed")

	if isReconnect {
		c.scheduleReconnect()
	}
	return err
}

// attempt performs one full connect: endpoint lookup, dial, then a race
// between the server's connect acknowledgement and the connect timeout.
// Whichever settles first wins; the loser is a no-op.
func (c *Connection) attempt(ctx context.Context) error {
	socketURL, err := c.fetchSocketURL(ctx, c.cfg.ServerConfigURL, c.cfg.Room)
	if err != nil {
		return fmt.Errorf("failed to resolve socket endpoint: %w", err)
	}

	t := c.newTransport()
	c.setupEventHandlers(t)

	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()

	done := make(chan error, 1)
	var settled sync.Once
	settle := func(err error) {
		settled.Do(func() { done <- err })
	}

	offConnect := t.On(EventConnect, func(any) {
		settle(nil)
	})
	offError := t.On(EventConnectError, func(data any) {
		msg := payloadString(data)
		if isRateLimitError(msg) {
			c.punishRateLimit(msg)
		}
		settle(fmt.Errorf("connect error: %s", msg))
	})
	defer offConnect()
	defer offError()

	if err := t.Dial(ctx, socketURL); err != nil {
		return err
	}

	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		err = fmt.Errorf("timed out connecting to %s after %v", c.cfg.Room, c.cfg.ConnectTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		t.Close()
		return err
	}

	c.mu.Lock()
	c.reconnectAttempts = 0
	// Each session gets a fresh ID so log lines from different sessions of
	// the same room are distinguishable.
	c.sessionID = uuid.NewString()
	session := c.sessionID
	emit := c.transitionLocked(StateConnected)
	c.mu.Unlock()
	emit()
	c.emitter.Emit(EventConnected, nil)

	log.WithFields(log.Fields{
		"room":    c.cfg.Room,
		"session": session,
	}).Info("Connected")
	return nil
}

// punishRateLimit doubles the backoff base delay, capped, so the client
// self-throttles before any reconnect is scheduled.
func (c *Connection) punishRateLimit(msg string) {
	telemetry.IncRateLimitHits()

	c.mu.Lock()
	c.baseDelay *= 2
	if c.baseDelay > maxBaseDelay {
		c.baseDelay = maxBaseDelay
	}
	base := c.baseDelay
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"error":     msg,
		"baseDelay": base,
	}).Warn("Rate limited, backing off harder")
}

// setupEventHandlers attaches the connection's handlers to a transport. Every
// previously registered listener is stripped first: each reconnect creates a
// new transport, and re-registering on one that already has handlers would
// deliver every event twice.
func (c *Connection) setupEventHandlers(t Transport) {
	t.RemoveAllListeners()

	t.On(EventDisconnect, c.handleUnexpectedDisconnect)

	for _, event := range forwardedEvents {
		event := event
		t.On(event, func(data any) {
			c.emitter.Emit(event, data)
		})
	}
}

// handleUnexpectedDisconnect runs when the transport drops without an
// explicit local Disconnect. It clears auth, surfaces the drop and enters
// the reconnect loop.
func (c *Connection) handleUnexpectedDisconnect(data any) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.authenticated = false
	session := c.sessionID
	emit := c.transitionLocked(StateDisconnected)
	c.mu.Unlock()
	emit()

	log.WithFields(log.Fields{
		"room":    c.cfg.Room,
		"session": session,
		"reason":  payloadString(data),
	}).Warn("Connection dropped")

	c.emitter.Emit(EventDisconnected, data)
	c.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer. Calling it again before the
// timer fires replaces the timer rather than stacking a second one. Once the
// attempt ceiling is reached it emits a terminal reconnectFailed instead.
func (c *Connection) scheduleReconnect() {
	c.mu.Lock()

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	if c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		attempts := c.reconnectAttempts
		c.mu.Unlock()

		log.WithField("attempts", attempts).Error("Giving up reconnecting")
		c.emitter.Emit(EventReconnectFailed, attempts)
		return
	}

	c.reconnectAttempts++
	attempt := c.reconnectAttempts

	delay := c.jitter(backoffDelay(c.baseDelay, attempt))
	if delay < c.cfg.MinAttemptInterval {
		delay = c.cfg.MinAttemptInterval
	}

	emit := c.transitionLocked(StateReconnecting)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if err := c.connect(context.Background(), true); err != nil {
			log.WithError(err).WithField("attempt", attempt).Debug("Reconnect attempt failed")
		}
	})
	c.mu.Unlock()
	emit()

	log.WithFields(log.Fields{
		"attempt": attempt,
		"delay":   delay,
	}).Info("Reconnect scheduled")
}

// Disconnect tears the connection down for good: it cancels any pending
// reconnect, strips transport listeners and closes the transport. This is
// the one path that never schedules a reconnect.
func (c *Connection) Disconnect() error {
	c.mu.Lock()

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	t := c.transport
	c.transport = nil
	c.authenticated = false
	emit := c.transitionLocked(StateDisconnected)
	c.mu.Unlock()
	emit()

	if t != nil {
		t.RemoveAllListeners()
		if err := t.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}

	log.WithField("room", c.cfg.Room).Info("Disconnected")
	return nil
}

// JoinChannel joins the room's channel. The server signals success through
// the first of rank, setPermissions or channelOpts, whichever arrives first.
func (c *Connection) JoinChannel(ctx context.Context, name string) error {
	c.mu.Lock()
	t := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || t == nil {
		return ErrNotConnected
	}

	done := make(chan error, 1)
	var settled sync.Once
	settle := func(err error) {
		settled.Do(func() { done <- err })
	}

	offs := []func(){
		c.emitter.On("rank", func(any) { settle(nil) }),
		c.emitter.On("setPermissions", func(any) { settle(nil) }),
		c.emitter.On("channelOpts", func(any) { settle(nil) }),
		c.emitter.On("needPassword", func(any) { settle(ErrChannelNeedsPassword) }),
	}
	defer func() {
		for _, off := range offs {
			off()
		}
	}()

	if err := t.Emit("joinChannel", map[string]string{"name": name}); err != nil {
		return fmt.Errorf("failed to send join request: %w", err)
	}

	timer := time.NewTimer(c.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-timer.C:
		return fmt.Errorf("timed out joining channel %s after %v", name, c.cfg.JoinTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	log.WithField("channel", name).Info("Joined channel")
	return nil
}

type loginResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Name    string `json:"name"`
}

// Login authenticates the session. Auth failures are surfaced as
// ErrLoginFailed, distinct from transport errors.
func (c *Connection) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	t := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || t == nil {
		return ErrNotConnected
	}

	done := make(chan error, 1)
	var settled sync.Once
	settle := func(err error) {
		settled.Do(func() { done <- err })
	}

	offLogin := c.emitter.On("login", func(data any) {
		var resp loginResponse
		if raw, ok := data.(json.RawMessage); ok {
			if err := json.Unmarshal(raw, &resp); err != nil {
				settle(fmt.Errorf("%w: malformed login response", ErrLoginFailed))
				return
			}
		}
		if resp.Success {
			settle(nil)
		} else {
			settle(fmt.Errorf("%w: %s", ErrLoginFailed, resp.Error))
		}
	})
	offError := c.emitter.On("loginError", func(data any) {
		settle(fmt.Errorf("%w: %s", ErrLoginFailed, payloadString(data)))
	})
	defer offLogin()
	defer offError()

	if err := t.Emit("login", map[string]string{"name": username, "pw": password}); err != nil {
		return fmt.Errorf("failed to send login request: %w", err)
	}

	timer := time.NewTimer(c.cfg.LoginTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-timer.C:
		return fmt.Errorf("timed out logging in as %s after %v", username, c.cfg.LoginTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()

	log.WithField("username", username).Info("Logged in")
	return nil
}

// SendChatMessage sends a chat line to the room
func (c *Connection) SendChatMessage(msg string) error {
	c.mu.Lock()
	t := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || t == nil {
		return ErrNotConnected
	}

	return t.Emit("chatMsg", map[string]any{
		"msg":  msg,
		"meta": map[string]any{},
	})
}

// payloadString renders an event payload for error messages and logs
func payloadString(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
