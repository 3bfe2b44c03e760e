// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/framewall/config.yaml",
	"/etc/framewall/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Thresholds match
// the behavior the web client shipped with; all of them are overridable.
func defaultConfig() *Config {
	return &Config{
		Realtime: RealtimeConfig{
			URL:                  "ws://127.0.0.1:8080/realtime",
			HandshakeTimeout:     15 * time.Second,
			SubscribeTimeout:     8 * time.Second,
			MaxConnectAttempts:   3,
			ConnectCooldown:      30 * time.Second,
			MaxReconnectAttempts: 5,
			ReconnectBaseDelay:   1 * time.Second,
			ReconnectMaxDelay:    30 * time.Second,
		},
		Upload: UploadConfig{
			MaxFileSize:   100 << 20, // 100MB
			AllowedTypes:  []string{"image/", "video/"},
			MaxConcurrent: 3,
		},
		Cache: CacheConfig{
			StalenessWindow:     30 * time.Second,
			AutoRefreshInterval: 10 * time.Second,
		},
		API: APIConfig{
			BaseURL:                 "http://127.0.0.1:8080",
			Timeout:                 30 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerResetTimeout:     60 * time.Second,
			DefaultPageSize:         20,
			MaxPageSize:             100,
		},
		Store: StoreConfig{
			Path: "/data/framewall/state",
		},
		Photowall: PhotowallConfig{
			ListenAddr:      "0.0.0.0:3900",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in values above
//  2. Config file: optional YAML (if found)
//  3. Environment variables: highest priority (REALTIME_URL -> realtime.url)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches the env override then the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when supplied as env strings.
var sliceConfigPaths = []string{
	"upload.allowed_types",
	"photowall.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for known
// slice fields. YAML-sourced values are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - REALTIME_URL                 -> realtime.url
//   - REALTIME_HANDSHAKE_TIMEOUT   -> realtime.handshake_timeout
//   - UPLOAD_MAX_FILE_SIZE         -> upload.max_file_size
//   - PHOTOWALL_LISTEN_ADDR        -> photowall.listen_addr
//   - LOG_LEVEL                    -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	// Short aliases kept for operator convenience.
	aliases := map[string]string{
		"log_level":    "logging.level",
		"log_format":   "logging.format",
		"log_caller":   "logging.caller",
		"api_base_url": "api.base_url",
		"store_path":   "store.path",
	}
	if mapped, ok := aliases[key]; ok {
		return mapped
	}

	for _, prefix := range []string{"realtime_", "upload_", "cache_", "api_", "photowall_"} {
		if strings.HasPrefix(key, prefix) {
			section := strings.TrimSuffix(prefix, "_")
			return section + "." + strings.TrimPrefix(key, prefix)
		}
	}

	// Unrecognized variables are ignored by returning an empty path.
	return ""
}
