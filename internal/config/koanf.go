// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

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

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/thessia/config.yaml",
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3005,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:      "/data/thessia.duckdb",
			MaxMemory: "2GB",
		},
		Queue: QueueConfig{
			Path:          "/data/queue",
			MaxAttempts:   10,
			Backoff:       5 * time.Second,
			LeaseDuration: 5 * time.Minute,
			GCInterval:    10 * time.Minute,
		},
		Worker: WorkerConfig{
			Enabled:      true,
			Concurrency:  2,
			PollInterval: 250 * time.Millisecond,
			JobTimeout:   2 * time.Minute,
		},
		ESI: ESIConfig{
			BaseURL:           "https://esi.evetech.net/latest",
			UserAgent:         "Thessia (https://github.com/EVE-KILL/Thessia)",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 20,
			Burst:             20,
			PageSize:          1000,
			MaxRetries:        3,
			BreakerFailures:   10,
			BreakerTimeout:    60 * time.Second,
		},
		SSO: SSOConfig{
			TokenURL: "https://login.eveonline.com/v2/oauth/token",
			Timeout:  15 * time.Second,
		},
		ZKB: ZKBConfig{
			RedisQURL:      "https://zkillredisq.stream/listen.php",
			WebSocketURL:   "wss://zkillboard.com/websocket/",
			HistoryURL:     "https://zkillboard.com/api/history",
			ReconnectDelay: 5 * time.Second,
			Timeout:        30 * time.Second,
		},
		Sources: SourcesConfig{
			RedisQEnabled:     true,
			RedisQInterval:    500 * time.Millisecond,
			FeedEnabled:       false,
			HistoryEnabled:    true,
			HistoryInterval:   time.Hour,
			HistoryDays:       7,
			UserPollEnabled:   true,
			UserPollInterval:  time.Minute,
			UserStaleAfter:    5 * time.Minute,
			TokenRefreshAhead: 5 * time.Minute,
			DelayedEnabled:    true,
			DelayedInterval:   time.Minute,
			WarsEnabled:       false,
			WarsInterval:      15 * time.Minute,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			Host:           "127.0.0.1",
			Port:           4222,
			Subject:        "killmails.enriched",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			DedupeCapacity: 50000,
			DedupeTTL:      10 * time.Minute,
		},
		Gateway: GatewayConfig{
			Enabled:          true,
			AllowedOrigins:   []string{"*"},
			ConnectRateLimit: 30,
			SendBuffer:       256,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, then validates it.
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

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
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

// sliceConfigPaths are parsed from comma-separated environment values.
var sliceConfigPaths = []string{
	"gateway.allowed_origins",
	"sources.war_ids",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
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
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"queue_path":           "queue.path",
	"queue_in_memory":      "queue.in_memory",
	"queue_max_attempts":   "queue.max_attempts",
	"queue_backoff":        "queue.backoff",
	"queue_lease_duration": "queue.lease_duration",
	"queue_sync_writes":    "queue.sync_writes",

	"worker_enabled":       "worker.enabled",
	"worker_concurrency":   "worker.concurrency",
	"worker_poll_interval": "worker.poll_interval",
	"worker_job_timeout":   "worker.job_timeout",

	"esi_base_url":            "esi.base_url",
	"esi_user_agent":          "esi.user_agent",
	"esi_timeout":             "esi.timeout",
	"esi_requests_per_second": "esi.requests_per_second",
	"esi_page_size":           "esi.page_size",

	"eve_client_id":     "sso.client_id",
	"eve_client_secret": "sso.client_secret",
	"eve_token_url":     "sso.token_url",

	"zkb_redisq_url":      "zkb.redisq_url",
	"zkb_queue_id":        "zkb.queue_id",
	"zkb_websocket_url":   "zkb.websocket_url",
	"zkb_history_url":     "zkb.history_url",
	"zkb_reconnect_delay": "zkb.reconnect_delay",

	"redisq_enabled":     "sources.redisq_enabled",
	"feed_enabled":       "sources.feed_enabled",
	"history_enabled":    "sources.history_enabled",
	"history_days":       "sources.history_days",
	"user_poll_enabled":  "sources.user_poll_enabled",
	"user_poll_interval": "sources.user_poll_interval",
	"delayed_enabled":    "sources.delayed_enabled",
	"wars_enabled":       "sources.wars_enabled",
	"war_ids":            "sources.war_ids",

	"nats_url":             "nats.url",
	"nats_embedded_server": "nats.embedded_server",
	"nats_host":            "nats.host",
	"nats_port":            "nats.port",
	"nats_subject":         "nats.subject",

	"gateway_enabled":            "gateway.enabled",
	"gateway_allowed_origins":    "gateway.allowed_origins",
	"gateway_connect_rate_limit": "gateway.connect_rate_limit",

	"token_secret": "security.token_secret",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
