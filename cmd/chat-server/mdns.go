package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_chat._tcp"

// startMDNS registers the chat service via mDNS and returns a cleanup
// function. It is safe to call even if disabled (no-op). Registration is
// retried with backoff since it races the network coming up on some hosts.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("chat-server-%s", host)
	}
	meta := []string{
		"version=" + version,
		"commit=" + commit,
	}

	var svc *zeroconf.Server
	register := func() error {
		s, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
		if err != nil {
			return fmt.Errorf("mdns register: %w", err)
		}
		svc = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(register, b); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
