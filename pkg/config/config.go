// Package config loads the service configuration from environment
// variables, with a .env file honoured for local development.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Session SessionConfig
	Query   QueryConfig
	CORS    CORSConfig
	Cache   CacheConfig
	Events  EventsConfig
}

// ServerConfig holds server-specific configuration including port,
// environment and log output.
type ServerConfig struct {
	Port        string
	Environment string
	LogLevel    string
	LogFormat   string // "console" or "json"
}

// MongoConfig holds the document store connection settings.
type MongoConfig struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// RedisConfig holds Redis configuration including connection parameters,
// authentication, database selection, and pool size.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

// SessionConfig controls login sessions and the signed identity token.
type SessionConfig struct {
	Secret       []byte
	MaxAge       time.Duration // Session lifetime, also the token expiry
	ExpiryLead   time.Duration // Self-destruct fires at MaxAge - ExpiryLead
	CookieName   string
	BcryptCost   int
	SecureCookie bool
}

// QueryConfig bounds list queries.
type QueryConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// CORSConfig holds Cross-Origin Resource Sharing (CORS) configuration
// to control which origins can access the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// CacheConfig holds cache configuration for user lookups.
type CacheConfig struct {
	UserTTL time.Duration
	Enabled bool
}

// EventsConfig sizes the lifecycle event bus.
type EventsConfig struct {
	BufferSize int
}

// Load reads the configuration from the environment and validates it.
// SESSION_SECRET is required; everything else has a default. MONGO_URI
// defaults to a local replica set because the chat cascade needs
// transactions.
//
// A variable that is set but malformed is an error rather than silently
// replaced by its default. All such variables are reported together.
func Load() (*Config, error) {
	_ = godotenv.Load()

	e := &env{}

	config := &Config{
		Server: ServerConfig{
			Port:        e.str("PORT", "8080"),
			Environment: e.str("ENV", "development"),
			LogLevel:    e.str("LOG_LEVEL", "info"),
			LogFormat:   e.str("LOG_FORMAT", "console"),
		},
		Mongo: MongoConfig{
			URI:            e.str("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			Database:       e.str("MONGO_DB", "tweeter"),
			MaxPoolSize:    uint64(e.integer("MONGO_MAX_POOL_SIZE", 50)),
			ConnectTimeout: e.duration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Host:     e.str("REDIS_HOST", "localhost"),
			Port:     e.str("REDIS_PORT", "6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
			PoolSize: e.integer("REDIS_POOL_SIZE", 100),
		},
		Session: SessionConfig{
			Secret:       []byte(e.required("SESSION_SECRET")),
			MaxAge:       e.duration("SESSION_MAX_AGE", 24*time.Hour),
			ExpiryLead:   e.duration("SESSION_EXPIRY_LEAD", 100*time.Millisecond),
			CookieName:   e.str("SESSION_COOKIE_NAME", "session"),
			BcryptCost:   e.integer("BCRYPT_COST", 12),
		},
		Query: QueryConfig{
			DefaultLimit: e.integer("QUERY_DEFAULT_LIMIT", 100),
			MaxLimit:     e.integer("QUERY_MAX_LIMIT", 500),
		},
		CORS: CORSConfig{
			AllowedOrigins: e.list("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Cache: CacheConfig{
			UserTTL: e.duration("CACHE_USER_TTL", 5*time.Minute),
			Enabled: e.boolean("CACHE_ENABLED", true),
		},
		Events: EventsConfig{
			BufferSize: e.integer("EVENTS_BUFFER", 256),
		},
	}

	config.Session.SecureCookie = config.Server.IsProduction()

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the ranges and cross-field constraints Load cannot
// express per variable. It reports the first violation.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be a valid integer: %w", err)
	}

	if _, err := strconv.Atoi(c.Redis.Port); err != nil {
		return fmt.Errorf("redis port must be a valid integer: %w", err)
	}

	u, err := url.Parse(c.Mongo.URI)
	if err != nil {
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return fmt.Errorf("MongoDB URI must use the mongodb or mongodb+srv scheme")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("MongoDB database name is required")
	}

	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session max age must be positive")
	}
	if c.Session.ExpiryLead < 0 || c.Session.ExpiryLead >= c.Session.MaxAge {
		return fmt.Errorf("session expiry lead must be between 0 and the session max age")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.BcryptCost < 4 || c.Session.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}

	if c.Query.DefaultLimit < 1 {
		return fmt.Errorf("default query limit must be positive")
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("max query limit must not be below the default limit")
	}

	if c.Events.BufferSize < 1 {
		return fmt.Errorf("event buffer size must be positive")
	}

	return nil
}

// Address returns the Redis server address in "host:port" form.
func (c *RedisConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// IsProduction reports whether the service runs with production settings.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// env reads typed variables and collects the errors of malformed ones.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		e.errs = append(e.errs, fmt.Errorf("required environment variable %s is not set", key))
	}
	return v
}

// parsed applies parse to the variable when it is set and returns def
// otherwise, or when parse fails.
func parsed[T any](e *env, key string, def T, parse func(string) (T, error)) T {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		return def
	}
	return v
}

func (e *env) integer(key string, def int) int {
	return parsed(e, key, def, strconv.Atoi)
}

func (e *env) boolean(key string, def bool) bool {
	return parsed(e, key, def, strconv.ParseBool)
}

// duration accepts Go duration syntax such as "300ms" or "2h45m".
func (e *env) duration(key string, def time.Duration) time.Duration {
	return parsed(e, key, def, time.ParseDuration)
}

// list splits a comma-separated variable, dropping empty entries.
//
//	ALLOWED_ORIGINS=http://localhost:3000, https://tweeter.example
func (e *env) list(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
