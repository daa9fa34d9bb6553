// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package config loads and validates the service configuration.
//
// Configuration is layered with koanf: struct defaults, then an optional
// YAML file, then environment variables. Only environment variables listed
// in the mapping table in koanf.go are read.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	Queue    QueueConfig    `koanf:"queue"`
	Worker   WorkerConfig   `koanf:"worker"`
	ESI      ESIConfig      `koanf:"esi"`
	SSO      SSOConfig      `koanf:"sso"`
	ZKB      ZKBConfig      `koanf:"zkb"`
	Sources  SourcesConfig  `koanf:"sources"`
	NATS     NATSConfig     `koanf:"nats"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Security SecurityConfig `koanf:"security"`
}

// ServerConfig holds the HTTP listener settings for the gateway and metrics.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// QueueConfig holds the durable job queue settings.
type QueueConfig struct {
	// Path is the badger directory. Empty with InMemory false is invalid.
	Path          string        `koanf:"path"`
	InMemory      bool          `koanf:"in_memory"`
	MaxAttempts   int           `koanf:"max_attempts" validate:"min=1"`
	Backoff       time.Duration `koanf:"backoff"`
	LeaseDuration time.Duration `koanf:"lease_duration"`
	SyncWrites    bool          `koanf:"sync_writes"`
	GCInterval    time.Duration `koanf:"gc_interval"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Concurrency  int           `koanf:"concurrency" validate:"min=1,max=5"`
	PollInterval time.Duration `koanf:"poll_interval"`
	JobTimeout   time.Duration `koanf:"job_timeout"`
}

// ESIConfig holds game API client settings.
type ESIConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	UserAgent         string        `koanf:"user_agent" validate:"required"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"min=1"`
	PageSize          int           `koanf:"page_size" validate:"min=1"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout"`
}

// SSOConfig holds OAuth client credentials for token refresh.
type SSOConfig struct {
	TokenURL     string        `koanf:"token_url" validate:"required,url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	Timeout      time.Duration `koanf:"timeout"`
}

// ZKBConfig holds zKillboard endpoints.
type ZKBConfig struct {
	RedisQURL      string        `koanf:"redisq_url" validate:"required,url"`
	QueueID        string        `koanf:"queue_id"`
	WebSocketURL   string        `koanf:"websocket_url" validate:"required"`
	HistoryURL     string        `koanf:"history_url" validate:"required,url"`
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`
	Timeout        time.Duration `koanf:"timeout"`
}

// SourcesConfig toggles and tunes the source adapters.
type SourcesConfig struct {
	RedisQEnabled     bool          `koanf:"redisq_enabled"`
	RedisQInterval    time.Duration `koanf:"redisq_interval"`
	FeedEnabled       bool          `koanf:"feed_enabled"`
	HistoryEnabled    bool          `koanf:"history_enabled"`
	HistoryInterval   time.Duration `koanf:"history_interval"`
	HistoryDays       int           `koanf:"history_days" validate:"min=1"`
	UserPollEnabled   bool          `koanf:"user_poll_enabled"`
	UserPollInterval  time.Duration `koanf:"user_poll_interval"`
	UserStaleAfter    time.Duration `koanf:"user_stale_after"`
	TokenRefreshAhead time.Duration `koanf:"token_refresh_ahead"`
	DelayedEnabled    bool          `koanf:"delayed_enabled"`
	DelayedInterval   time.Duration `koanf:"delayed_interval"`
	WarsEnabled       bool          `koanf:"wars_enabled"`
	WarsInterval      time.Duration `koanf:"wars_interval"`
	WarIDs            []int64       `koanf:"war_ids"`
}

// NATSConfig holds distribution bus settings.
type NATSConfig struct {
	// URL is the NATS server URL. Ignored when EmbeddedServer is true.
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	// Subject is the single broadcast channel for enriched killmails.
	Subject        string        `koanf:"subject" validate:"required"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	DedupeCapacity int           `koanf:"dedupe_capacity" validate:"min=1"`
	DedupeTTL      time.Duration `koanf:"dedupe_ttl"`
}

// GatewayConfig holds client-facing WebSocket settings.
type GatewayConfig struct {
	Enabled        bool     `koanf:"enabled"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	// ConnectRateLimit is new connections per minute per IP.
	ConnectRateLimit int `koanf:"connect_rate_limit" validate:"min=1"`
	SendBuffer       int `koanf:"send_buffer" validate:"min=1"`
}

// SecurityConfig holds secrets.
type SecurityConfig struct {
	// TokenSecret derives the key that encrypts stored SSO tokens.
	TokenSecret string `koanf:"token_secret"`
}
