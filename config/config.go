package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chat-keystore/models"
)

// ConnectionStringKeys are probed in order for the token store URL
var ConnectionStringKeys = []string{"MONGODB_URI", "DATABASE_URL"}

// Config holds all application configuration
type Config struct {
	Store  StoreConfig
	HTTP   HTTPConfig
	Cache  CacheConfig
	Cookie CookieConfig
	Log    LogConfig

	// sources backs provider env-var lookups; request-scoped values are
	// appended per call by EnvSources.
	sources []Source
}

// StoreConfig holds token store configuration
type StoreConfig struct {
	URL            string
	URLSource      string // which Source supplied URL
	UserID         string
	ConnectRetries int
	EncryptionKey  string
	AutoMigrate    bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr                  string
	CORSAllowedOrigins    string
	RequestTimeoutSeconds int
}

// CacheConfig sizes the in-process status and resolution caches
type CacheConfig struct {
	StatusSize        int
	StatusTTLSeconds  int
	ResolveSize       int
	ResolveTTLSeconds int
}

// CookieConfig controls the apiKeys fallback cookie
type CookieConfig struct {
	MaxAgeSeconds int // 0 keeps it a session cookie
	Secure        bool
}

// LogConfig controls the slog handler
type LogConfig struct {
	Format string // text or json
	Level  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	sources := []Source{ProcessEnv(), BuildTime()}
	url, from, _ := ResolveAny(ConnectionStringKeys, sources...)

	cfg := &Config{
		Store: StoreConfig{
			URL:            url,
			URLSource:      from,
			UserID:         getEnvString("DEFAULT_USER_ID", models.DefaultUserID),
			ConnectRetries: getEnvIntMin("STORE_CONNECT_RETRIES", 2, 0),
			EncryptionKey:  os.Getenv("TOKEN_ENCRYPTION_KEY"),
			AutoMigrate:    getEnvBool("AUTO_MIGRATE", false),
		},
		HTTP: HTTPConfig{
			Addr:                  getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins:    getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			RequestTimeoutSeconds: getEnvInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Cache: CacheConfig{
			StatusSize:        getEnvInt("STATUS_CACHE_SIZE", 64),
			StatusTTLSeconds:  getEnvInt("STATUS_CACHE_TTL_SECONDS", 300),
			ResolveSize:       getEnvInt("RESOLVE_CACHE_SIZE", 128),
			ResolveTTLSeconds: getEnvInt("RESOLVE_CACHE_TTL_SECONDS", 30),
		},
		Cookie: CookieConfig{
			MaxAgeSeconds: getEnvIntMin("COOKIE_MAX_AGE_SECONDS", 0, 0),
			Secure:        getEnvBool("COOKIE_SECURE", false),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnvString("LOG_FORMAT", "text")),
			Level:  strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		},
		sources: sources,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.UserID == "" {
		return fmt.Errorf("DEFAULT_USER_ID must not be empty")
	}
	if c.HTTP.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.HTTP.RequestTimeoutSeconds)
	}
	if c.Cache.StatusSize <= 0 || c.Cache.ResolveSize <= 0 {
		return fmt.Errorf("cache sizes must be positive, got status=%d resolve=%d", c.Cache.StatusSize, c.Cache.ResolveSize)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	if c.Store.URL != "" && !HasSupportedScheme(c.Store.URL) {
		return fmt.Errorf("token store URL has unsupported scheme (want postgres, mongodb or redis)")
	}
	return nil
}

// HasDatabase returns true if a token store connection string is configured
func (c *Config) HasDatabase() bool {
	return c.Store.URL != ""
}

// EnvSources returns the ordered sources consulted for provider env vars:
// process, build-time, then request-scoped values from ctx if present.
func (c *Config) EnvSources(ctx context.Context) []Source {
	out := make([]Source, 0, len(c.sources)+1)
	out = append(out, c.sources...)
	if ctx != nil {
		if req := RequestEnv(ctx); req != nil {
			out = append(out, req)
		}
	}
	return out
}

// WithSources replaces the base env sources; used by tests and embedders
func (c *Config) WithSources(sources ...Source) *Config {
	c.sources = sources
	return c
}

func (c *Config) StatusCacheTTL() time.Duration {
	return time.Duration(c.Cache.StatusTTLSeconds) * time.Second
}

func (c *Config) ResolveCacheTTL() time.Duration {
	return time.Duration(c.Cache.ResolveTTLSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeoutSeconds) * time.Second
}

// HasSupportedScheme reports whether url names a backend the store can dial
func HasSupportedScheme(url string) bool {
	for _, prefix := range []string{"postgres://", "postgresql://", "mongodb://", "mongodb+srv://", "redis://", "rediss://"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvIntMin(key string, defaultValue, minVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= minVal {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Store: StoreConfig{
			UserID:         models.DefaultUserID,
			ConnectRetries: 0,
		},
		HTTP: HTTPConfig{
			Addr:                  ":0",
			CORSAllowedOrigins:    "*",
			RequestTimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			StatusSize:        64,
			StatusTTLSeconds:  300,
			ResolveSize:       128,
			ResolveTTLSeconds: 30,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		sources: []Source{NewMapSource("test", nil)},
	}
}
