// Package telemetry provides Prometheus metrics for the bot.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// Counters
	ReconnectAttempts  prometheus.Counter
	RateLimitHits      prometheus.Counter
	ChatMessagesSeen   prometheus.Counter
	ChatMessagesSent   prometheus.Counter
	FlipsTotal         prometheus.Counter
	ChallengesCreated  prometheus.Counter
	ChallengesResolved prometheus.Counter
	ChallengesExpired  prometheus.Counter

	// Gauges
	ConnectionUp prometheus.Gauge // 1=connected, 0=anything else

	// Histograms (seconds)
	CommandDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_reconnect_attempts_total", Help: "Number of reconnect attempts scheduled"})
		RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_rate_limit_hits_total", Help: "Number of rate-limit errors seen during connect"})
		ChatMessagesSeen = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_chat_messages_seen_total", Help: "Number of chat messages received from the room"})
		ChatMessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_chat_messages_sent_total", Help: "Number of chat messages sent to the room"})
		FlipsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_flips_total", Help: "Number of house coin flips executed"})
		ChallengesCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_challenges_created_total", Help: "Number of coin-flip challenges created"})
		ChallengesResolved = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_challenges_resolved_total", Help: "Number of coin-flip challenges resolved with a winner"})
		ChallengesExpired = promauto.NewCounter(prometheus.CounterOpts{Name: "cybot_challenges_expired_total", Help: "Number of coin-flip challenges cancelled or expired"})
		ConnectionUp = promauto.NewGauge(prometheus.GaugeOpts{Name: "cybot_connection_up", Help: "Room connection state connected=1 otherwise=0"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "cybot_command_duration_seconds", Help: "Chat command handling duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// IncRateLimitHits bumps the rate-limit counter, safe before Init.
func IncRateLimitHits() {
	if RateLimitHits != nil {
		RateLimitHits.Inc()
	}
}

// SetConnectionUp sets the connection gauge to 1 when connected, else 0.
func SetConnectionUp(up bool) {
	if ConnectionUp == nil {
		return
	}
	if up {
		ConnectionUp.Set(1)
	} else {
		ConnectionUp.Set(0)
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
