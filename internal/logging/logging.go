package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Global structured logger. Initialized with a reasonable text handler.
var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a new logger with given level, format ("text" or "json"), and optional writer (defaults stderr).
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}

// Sometimes wraps rate.Sometimes to throttle a noisy warning site - one bad
// client hammering the server with malformed frames shouldn't flood stderr.
type Sometimes struct {
	limiter rate.Sometimes
}

// NewSometimesEvery builds a Sometimes that fires on the first call and then
// on every nth call (rate.Sometimes counts calls, not wall time, so n-1 calls
// are skipped between log lines).
func NewSometimesEvery(n int) *Sometimes {
	return &Sometimes{limiter: rate.Sometimes{Every: n}}
}

// Do runs fn at most once per n calls, silently dropping the rest.
func (s *Sometimes) Do(fn func()) { s.limiter.Do(fn) }
