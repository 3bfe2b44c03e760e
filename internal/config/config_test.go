// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults error = %v", err)
	}
	if cfg.Realtime.MaxConnectAttempts != 3 {
		t.Errorf("MaxConnectAttempts = %d", cfg.Realtime.MaxConnectAttempts)
	}
	if cfg.Upload.MaxFileSize != 100<<20 {
		t.Errorf("MaxFileSize = %d", cfg.Upload.MaxFileSize)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing realtime url",
			mutate:  func(c *Config) { c.Realtime.URL = "" },
			wantSub: "realtime.url is required",
		},
		{
			name:    "http scheme on realtime url",
			mutate:  func(c *Config) { c.Realtime.URL = "http://example.com/realtime" },
			wantSub: "ws:// or wss://",
		},
		{
			name:    "zero handshake timeout",
			mutate:  func(c *Config) { c.Realtime.HandshakeTimeout = 0 },
			wantSub: "handshake_timeout",
		},
		{
			name: "reconnect base above max",
			mutate: func(c *Config) {
				c.Realtime.ReconnectBaseDelay = time.Minute
				c.Realtime.ReconnectMaxDelay = time.Second
			},
			wantSub: "reconnect_base_delay",
		},
		{
			name:    "zero max file size",
			mutate:  func(c *Config) { c.Upload.MaxFileSize = 0 },
			wantSub: "max_file_size",
		},
		{
			name:    "allowed type without slash",
			mutate:  func(c *Config) { c.Upload.AllowedTypes = []string{"image"} },
			wantSub: "allowed_types",
		},
		{
			name: "default page size above max",
			mutate: func(c *Config) {
				c.API.DefaultPageSize = 500
				c.API.MaxPageSize = 100
			},
			wantSub: "default_page_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
realtime:
  url: wss://api.example.com/realtime
  handshake_timeout: 5s
photowall:
  listen_addr: 127.0.0.1:9999
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Realtime.URL != "wss://api.example.com/realtime" {
		t.Errorf("URL = %q", cfg.Realtime.URL)
	}
	if cfg.Realtime.HandshakeTimeout != 5*time.Second {
		t.Errorf("HandshakeTimeout = %s", cfg.Realtime.HandshakeTimeout)
	}
	if cfg.Photowall.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.Photowall.ListenAddr)
	}
	// Untouched sections keep defaults.
	if cfg.Upload.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d", cfg.Upload.MaxConcurrent)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("realtime:\n  url: wss://from-file.example.com/rt\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("REALTIME_URL", "wss://from-env.example.com/rt")
	t.Setenv("UPLOAD_ALLOWED_TYPES", "image/, video/")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Realtime.URL != "wss://from-env.example.com/rt" {
		t.Errorf("URL = %q, env must win over file", cfg.Realtime.URL)
	}
	if len(cfg.Upload.AllowedTypes) != 2 || cfg.Upload.AllowedTypes[0] != "image/" {
		t.Errorf("AllowedTypes = %v", cfg.Upload.AllowedTypes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"REALTIME_URL", "realtime.url"},
		{"REALTIME_HANDSHAKE_TIMEOUT", "realtime.handshake_timeout"},
		{"UPLOAD_MAX_FILE_SIZE", "upload.max_file_size"},
		{"PHOTOWALL_LISTEN_ADDR", "photowall.listen_addr"},
		{"LOG_LEVEL", "logging.level"},
		{"API_BASE_URL", "api.base_url"},
		{"STORE_PATH", "store.path"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
