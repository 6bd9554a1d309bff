package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr   string
	logFormat    string
	logLevel     string
	metricsAddr  string
	loginMaxAge  int
	loginTick    time.Duration
	serverTick   time.Duration
	maxNameLen   int
	mdnsEnable   bool
	mdnsName     string
	logMetricsEvery time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":6447", "TCP listen address for chat clients")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	loginMaxAge := flag.Int("login-max-age", 200, "Ticks a pre-login connection may stay pending before being dropped")
	loginTick := flag.Duration("login-tick", 50*time.Millisecond, "Login worker tick interval")
	serverTick := flag.Duration("server-tick", 5*time.Millisecond, "Event loop tick interval")
	maxNameLen := flag.Int("max-name-len", 32, "Maximum login name length (0 = unlimited)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of the chat service")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default chat-server-<hostname>)")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.loginMaxAge = *loginMaxAge
	cfg.loginTick = *loginTick
	cfg.serverTick = *serverTick
	cfg.maxNameLen = *maxNameLen
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.logMetricsEvery = *logMetricsEvery

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate checks value ranges only; it never touches the network.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.loginMaxAge <= 0 {
		return fmt.Errorf("login-max-age must be > 0 (got %d)", c.loginMaxAge)
	}
	if c.loginTick <= 0 {
		return fmt.Errorf("login-tick must be > 0")
	}
	if c.serverTick <= 0 {
		return fmt.Errorf("server-tick must be > 0")
	}
	if c.maxNameLen < 0 {
		return fmt.Errorf("max-name-len must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps CHAT_SERVER_* environment variables onto config
// fields unless the corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("CHAT_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CHAT_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CHAT_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CHAT_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["login-max-age"]; !ok {
		if v, ok := get("CHAT_SERVER_LOGIN_MAX_AGE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.loginMaxAge = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHAT_SERVER_LOGIN_MAX_AGE: %w", err)
			}
		}
	}
	if _, ok := set["login-tick"]; !ok {
		if v, ok := get("CHAT_SERVER_LOGIN_TICK"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.loginTick = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHAT_SERVER_LOGIN_TICK: %w", err)
			}
		}
	}
	if _, ok := set["server-tick"]; !ok {
		if v, ok := get("CHAT_SERVER_TICK"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serverTick = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHAT_SERVER_TICK: %w", err)
			}
		}
	}
	if _, ok := set["max-name-len"]; !ok {
		if v, ok := get("CHAT_SERVER_MAX_NAME_LEN"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxNameLen = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHAT_SERVER_MAX_NAME_LEN: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("CHAT_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("CHAT_SERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("CHAT_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHAT_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
