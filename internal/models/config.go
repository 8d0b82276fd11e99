package models

import "time"

// Config represents the application configuration
type Config struct {
	Backend  BackendConfig
	Cache    CacheConfig
	Realtime RealtimeConfig
	Admin    AdminConfig
}

// BackendConfig holds connection settings for the hosted backend
type BackendConfig struct {
	ProjectURL     string
	AnonKey        string
	RequestTimeout time.Duration
	AllowedHosts   []string
}

// CacheConfig holds session-cache (SQLite) settings
type CacheConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RealtimeConfig holds realtime channel and session refresh settings
type RealtimeConfig struct {
	HeartbeatInterval time.Duration
	RefreshMargin     time.Duration
	StreamsFile       string
}

// AdminConfig is the placeholder admin policy: a fixed email allowlist.
type AdminConfig struct {
	Emails []string
}
