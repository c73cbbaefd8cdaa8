// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Supabase SupabaseConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Session  SessionConfig
	AI       AIConfig
	Demo     DemoConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string // extra hosts allowed to open the session websocket
}

// StoreConfig selects the record backend used when the remote store is configured.
type StoreConfig struct {
	Backend string // "rest" or "postgres"
}

// SupabaseConfig holds the backend-as-a-service endpoint and public key.
type SupabaseConfig struct {
	URL     string
	AnonKey string
}

// DatabaseConfig holds PostgreSQL connection settings for the postgres backend.
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// CacheConfig holds Dragonfly/Redis connection settings.
type CacheConfig struct {
	URL string
}

// SessionConfig holds settings for persisting the signed-in session.
type SessionConfig struct {
	Store string // "memory", "file" or "redis"
	File  string
	Key   string
}

// AIConfig holds configuration for the summary provider.
type AIConfig struct {
	Google GoogleConfig

	// SummaryDailyTokens caps summary tokens per identity per day; 0 disables the cap.
	SummaryDailyTokens int64
}

// GoogleConfig holds Google Gemini provider settings.
type GoogleConfig struct {
	APIKey string
	Model  string
}

// DemoConfig holds settings for the fixture store used without a remote store.
type DemoConfig struct {
	FixturePath string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("LEARN_SERVER_PORT", 8080),
			Host:           envStr("LEARN_SERVER_HOST", "127.0.0.1"),
			AllowedOrigins: envList("LEARN_SERVER_ALLOWED_ORIGINS"),
		},
		Store: StoreConfig{
			Backend: envStr("LEARN_STORE_BACKEND", "rest"),
		},
		Supabase: SupabaseConfig{
			URL:     envStr("LEARN_SUPABASE_URL", ""),
			AnonKey: envStr("LEARN_SUPABASE_ANON_KEY", ""),
		},
		Database: DatabaseConfig{
			URL:         envStr("LEARN_DATABASE_URL", ""),
			MaxConns:    envInt("LEARN_DATABASE_MAX_CONNS", 10),
			MinConns:    envInt("LEARN_DATABASE_MIN_CONNS", 1),
			AutoMigrate: envBool("LEARN_DATABASE_AUTO_MIGRATE", false),
		},
		Cache: CacheConfig{
			URL: envStr("LEARN_CACHE_URL", "redis://localhost:6379"),
		},
		Session: SessionConfig{
			Store: envStr("LEARN_SESSION_STORE", "memory"),
			File:  envStr("LEARN_SESSION_FILE", ".pai-session.json"),
			Key:   envStr("LEARN_SESSION_KEY", "pai-progress:session"),
		},
		AI: AIConfig{
			Google: GoogleConfig{
				APIKey: envStr("LEARN_AI_GOOGLE_API_KEY", ""),
				Model:  envStr("LEARN_AI_GOOGLE_MODEL", "gemini-2.5-flash"),
			},
			SummaryDailyTokens: int64(envInt("LEARN_AI_SUMMARY_DAILY_TOKENS", 0)),
		},
		Demo: DemoConfig{
			FixturePath: envStr("LEARN_DEMO_FIXTURE_PATH", ""),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: envStr("LEARN_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that enum settings hold known values.
func (c *Config) Validate() error {
	if c.Store.Backend != "rest" && c.Store.Backend != "postgres" {
		return fmt.Errorf("LEARN_STORE_BACKEND must be 'rest' or 'postgres', got %q", c.Store.Backend)
	}

	if c.Store.Backend == "postgres" && c.Supabase.Configured() && c.Database.URL == "" {
		return fmt.Errorf("LEARN_DATABASE_URL is required for the postgres backend")
	}

	switch c.Session.Store {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("LEARN_SESSION_STORE must be 'memory', 'file' or 'redis', got %q", c.Session.Store)
	}

	if c.AI.SummaryDailyTokens < 0 {
		return fmt.Errorf("LEARN_AI_SUMMARY_DAILY_TOKENS must not be negative, got %d", c.AI.SummaryDailyTokens)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// Configured reports whether a usable remote endpoint and credentials are present.
// When it returns false every read and write goes to the demo fixture store.
func (s SupabaseConfig) Configured() bool {
	if s.AnonKey == "" || s.AnonKey == "placeholder" {
		return false
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	return !strings.HasPrefix(u.Hostname(), "placeholder.")
}

// HasAIProvider returns true if the summary provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.Google.APIKey != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
