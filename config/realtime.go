package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the tunables for the real-time connection subsystem.
type Config struct {
	Endpoint                 string        // WebSocket endpoint the client dials
	MaxReconnectAttempts     int           // cap on automatic reconnection attempts
	ReconnectInterval        time.Duration // fixed delay between reconnection attempts
	ConnectTimeout           time.Duration // hard bound on connection establishment
	KeepAliveDelay           time.Duration // delay before the post-open keep-alive ping
	ImmediateCloseWindow     time.Duration // open-to-close span treated as a server reject
	ImmediateCloseRetryFloor int           // guaranteed retries after immediate closes
	ReadBufferSize           int
	WriteBufferSize          int
}

// Default returns the default real-time configuration.
func Default() *Config {
	return &Config{
		Endpoint:                 "ws://localhost:8080/realtime/ws",
		MaxReconnectAttempts:     5,
		ReconnectInterval:        2 * time.Second,
		ConnectTimeout:           10 * time.Second,
		KeepAliveDelay:           2 * time.Second,
		ImmediateCloseWindow:     3 * time.Second,
		ImmediateCloseRetryFloor: 3,
		ReadBufferSize:           1024,
		WriteBufferSize:          1024,
	}
}

// FromEnv loads configuration from environment variables.
// Falls back to defaults for any missing or malformed values.
func FromEnv() *Config {
	cfg := Default()

	if ep := os.Getenv("REALTIME_ENDPOINT"); ep != "" {
		cfg.Endpoint = ep
	}
	if v, ok := envInt("REALTIME_MAX_RECONNECT_ATTEMPTS"); ok {
		cfg.MaxReconnectAttempts = v
	}
	if v, ok := envInt("REALTIME_RECONNECT_INTERVAL_MS"); ok {
		cfg.ReconnectInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("REALTIME_CONNECT_TIMEOUT_MS"); ok {
		cfg.ConnectTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("REALTIME_KEEPALIVE_DELAY_MS"); ok {
		cfg.KeepAliveDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("REALTIME_IMMEDIATE_CLOSE_WINDOW_MS"); ok {
		cfg.ImmediateCloseWindow = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("REALTIME_IMMEDIATE_CLOSE_RETRY_FLOOR"); ok {
		cfg.ImmediateCloseRetryFloor = v
	}
	return cfg
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
