// Package metrics exposes Prometheus series for the chat server plus a
// cheap local mirror (Snap) for periodic log lines that would otherwise
// require scraping Prometheus in-process.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-chat-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series.
var (
	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_clients",
		Help: "Current number of logged-in (named) clients.",
	})
	PassiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_passive_clients",
		Help: "Current number of passive listeners.",
	})
	PendingLogins = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_pending_logins",
		Help: "Connections accepted but not yet past the login handshake.",
	})
	Channels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_channels",
		Help: "Current number of channels, including GLOBAL.",
	})
	OffensesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_offenses_total",
		Help: "Total offenses charged against clients for bad responses.",
	})
	KickedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_kicked_total",
		Help: "Total clients removed for reaching the offense limit.",
	})
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total chat messages processed, by kind.",
	}, []string{"kind"})
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_logins_total",
		Help: "Total login worker outcomes, by result.",
	}, []string{"result"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_malformed_frames_total",
		Help: "Total frames from active clients that failed to parse into a request.",
	})
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_tick_duration_seconds",
		Help:    "Event loop tick duration.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Message kind label constants (stable values to bound cardinality).
const (
	KindPost      = "post"
	KindSend      = "send"
	KindBroadcast = "broadcast"
)

// Login result label constants.
const (
	LoginAdmitted = "admitted"
	LoginTimeout  = "timeout"
)

// StartHTTP serves Prometheus metrics and a readiness probe.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, cheap to read for periodic log lines.
var (
	localActiveClients  uint64
	localPassiveClients uint64
	localPendingLogins  uint64
	localChannels       uint64
	localOffenses       uint64
	localKicked         uint64
	localMessages       uint64
	localLogins         uint64
	localMalformed      uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	ActiveClients  uint64
	PassiveClients uint64
	PendingLogins  uint64
	Channels       uint64
	Offenses       uint64
	Kicked         uint64
	Messages       uint64
	Logins         uint64
	Malformed      uint64
}

func Snap() Snapshot {
	return Snapshot{
		ActiveClients:  atomic.LoadUint64(&localActiveClients),
		PassiveClients: atomic.LoadUint64(&localPassiveClients),
		PendingLogins:  atomic.LoadUint64(&localPendingLogins),
		Channels:       atomic.LoadUint64(&localChannels),
		Offenses:       atomic.LoadUint64(&localOffenses),
		Kicked:         atomic.LoadUint64(&localKicked),
		Messages:       atomic.LoadUint64(&localMessages),
		Logins:         atomic.LoadUint64(&localLogins),
		Malformed:      atomic.LoadUint64(&localMalformed),
	}
}

func SetActiveClients(n int) {
	ActiveClients.Set(float64(n))
	atomic.StoreUint64(&localActiveClients, uint64(n))
}

func SetPassiveClients(n int) {
	PassiveClients.Set(float64(n))
	atomic.StoreUint64(&localPassiveClients, uint64(n))
}

func SetPendingLogins(n int) {
	PendingLogins.Set(float64(n))
	atomic.StoreUint64(&localPendingLogins, uint64(n))
}

func SetChannels(n int) {
	Channels.Set(float64(n))
	atomic.StoreUint64(&localChannels, uint64(n))
}

func IncOffense() {
	OffensesTotal.Inc()
	atomic.AddUint64(&localOffenses, 1)
}

func IncKicked() {
	KickedTotal.Inc()
	atomic.AddUint64(&localKicked, 1)
}

func IncMessage(kind string) {
	MessagesTotal.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localMessages, 1)
}

func IncLoginResult(result string) {
	LoginsTotal.WithLabelValues(result).Inc()
	atomic.AddUint64(&localLogins, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func ObserveTick(seconds float64) {
	TickDuration.Observe(seconds)
}

// InitBuildInfo sets the build info gauge (called once at startup) and
// pre-registers the login result series so the first login doesn't pay a
// registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, result := range []string{LoginAdmitted, LoginTimeout} {
		LoginsTotal.WithLabelValues(result).Add(0)
	}
	for _, kind := range []string{KindPost, KindSend, KindBroadcast} {
		MessagesTotal.WithLabelValues(kind).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
