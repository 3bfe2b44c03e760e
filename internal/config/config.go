// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package config loads and validates Framewall configuration from layered
// sources: struct defaults, an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the realtime core and the photowall
// viewer binary.
type Config struct {
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Upload    UploadConfig    `koanf:"upload"`
	Cache     CacheConfig     `koanf:"cache"`
	API       APIConfig       `koanf:"api"`
	Store     StoreConfig     `koanf:"store"`
	Photowall PhotowallConfig `koanf:"photowall"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// RealtimeConfig controls the socket connection and subscription behavior.
type RealtimeConfig struct {
	// URL is the websocket endpoint, e.g. wss://api.example.com/realtime.
	URL string `koanf:"url"`

	// HandshakeTimeout bounds the authenticate round trip.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`

	// SubscribeTimeout bounds a single subscribe ack.
	SubscribeTimeout time.Duration `koanf:"subscribe_timeout"`

	// MaxConnectAttempts failures within ConnectCooldown trip the
	// fail-fast rate limit on Connect.
	MaxConnectAttempts int           `koanf:"max_connect_attempts"`
	ConnectCooldown    time.Duration `koanf:"connect_cooldown"`

	// Automatic reconnect policy after abnormal closes.
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `koanf:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `koanf:"reconnect_max_delay"`
}

// UploadConfig controls client-side upload validation and concurrency.
type UploadConfig struct {
	// MaxFileSize in bytes. Files above this are rejected per-file at
	// submission time.
	MaxFileSize int64 `koanf:"max_file_size"`

	// AllowedTypes are MIME prefixes, e.g. "image/", "video/".
	AllowedTypes []string `koanf:"allowed_types"`

	// MaxConcurrent bounds simultaneous in-flight uploads.
	MaxConcurrent int `koanf:"max_concurrent"`
}

// CacheConfig controls the reconciliation cache's staleness behavior.
type CacheConfig struct {
	// StalenessWindow is how long a bucket snapshot is trusted before a
	// read falls through to the REST collaborator.
	StalenessWindow time.Duration `koanf:"staleness_window"`

	// AutoRefreshInterval drives the photowall's background refresh.
	AutoRefreshInterval time.Duration `koanf:"auto_refresh_interval"`
}

// APIConfig controls the REST collaborator client.
type APIConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`

	// Circuit breaker settings for collaborator calls.
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerResetTimeout     time.Duration `koanf:"breaker_reset_timeout"`

	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// StoreConfig locates the local Badger state store.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// PhotowallConfig controls the read-only HTTP surface of cmd/photowall.
type PhotowallConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig mirrors logging.Config for the config file surface.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would misbehave at
// runtime. It returns the first problem found with enough context to fix it.
func (c *Config) Validate() error {
	if c.Realtime.URL == "" {
		return fmt.Errorf("realtime.url is required")
	}
	u, err := url.Parse(c.Realtime.URL)
	if err != nil {
		return fmt.Errorf("realtime.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("realtime.url must use ws:// or wss://, got %q", u.Scheme)
	}

	if c.Realtime.HandshakeTimeout <= 0 {
		return fmt.Errorf("realtime.handshake_timeout must be positive")
	}
	if c.Realtime.SubscribeTimeout <= 0 {
		return fmt.Errorf("realtime.subscribe_timeout must be positive")
	}
	if c.Realtime.MaxConnectAttempts < 1 {
		return fmt.Errorf("realtime.max_connect_attempts must be at least 1")
	}
	if c.Realtime.ConnectCooldown <= 0 {
		return fmt.Errorf("realtime.connect_cooldown must be positive")
	}
	if c.Realtime.ReconnectBaseDelay > c.Realtime.ReconnectMaxDelay {
		return fmt.Errorf("realtime.reconnect_base_delay (%s) exceeds reconnect_max_delay (%s)",
			c.Realtime.ReconnectBaseDelay, c.Realtime.ReconnectMaxDelay)
	}

	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload.max_file_size must be positive")
	}
	for _, t := range c.Upload.AllowedTypes {
		if !strings.HasSuffix(t, "/") {
			return fmt.Errorf("upload.allowed_types entries must be MIME prefixes ending in '/', got %q", t)
		}
	}

	if c.API.BaseURL != "" {
		if _, err := url.Parse(c.API.BaseURL); err != nil {
			return fmt.Errorf("api.base_url is not a valid URL: %w", err)
		}
	}
	if c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size (%d) exceeds api.max_page_size (%d)",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	return nil
}
