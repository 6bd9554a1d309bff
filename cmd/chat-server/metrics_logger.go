package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-chat-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"active_clients", snap.ActiveClients,
					"passive_clients", snap.PassiveClients,
					"pending_logins", snap.PendingLogins,
					"channels", snap.Channels,
					"offenses", snap.Offenses,
					"kicked", snap.Kicked,
					"messages", snap.Messages,
					"logins", snap.Logins,
					"malformed", snap.Malformed,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
