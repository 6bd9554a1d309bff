package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/kstaniek/go-chat-server/internal/chatserver"
	"github.com/kstaniek/go-chat-server/internal/login"
	"github.com/kstaniek/go-chat-server/internal/metrics"
)

// Helper implementations moved to dedicated files: version.go, config.go, logger.go, metrics_logger.go, mdns.go.

func main() {
	cfg, showVersion := parseFlags()
	if cfg == nil && !showVersion {
		os.Exit(1)
	}
	if showVersion {
		fmt.Printf("chat-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	loginWorker := login.NewWorker(
		login.WithListenAddr(cfg.listenAddr),
		login.WithTick(cfg.loginTick),
		login.WithMaxAge(cfg.loginMaxAge),
		login.WithMaxNameLen(cfg.maxNameLen),
		login.WithLogger(l),
	)
	chat := chatserver.NewServer(
		chatserver.WithAdmissions(loginWorker.Admissions()),
		chatserver.WithTick(cfg.serverTick),
		chatserver.WithLogger(l),
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loginWorker.Run(ctx); err != nil {
			l.Error("login_worker_error", "error", err)
			cancel()
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := chat.Run(ctx); err != nil {
			l.Error("event_loop_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-loginWorker.Ready():
		case <-ctx.Done():
			return
		}
		portNum := portFromAddr(loginWorker.Addr())
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-loginWorker.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
		l.Info("shutdown_internal_error")
	}
	cancel()
	wg.Wait()
}

// portFromAddr extracts the numeric port from a bound "host:port" address,
// tolerating the listener having picked an ephemeral port.
func portFromAddr(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, err := strconv.Atoi(p); err == nil {
			return pn
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if pn, err := strconv.Atoi(addr[i+1:]); err == nil {
			return pn
		}
	}
	return 0
}
