package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request timeout (ex: 15s)
	MaxBodyBytes    int64         // max JSON/YAML request body size

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Storage
	Store       string // "redis" | "postgres" | "sqlite" | "memory"
	DatabaseDSN string // required for postgres
	SQLitePath  string // path of the SQLite database file
	AutoMigrate bool   // apply SQL migrations on startup

	// Auth
	JWTSecret       string        // HS256 signing key
	SessionTTL      time.Duration // lifetime of a session token (default: 24h)
	AuthRatePerMin  int           // login/register attempts per client per minute
	CORSOrigins     []string      // allowed CORS origins, empty = no CORS headers
	ViewTTL         time.Duration // max age of a per-user view before a query reloads it
	ViewIdle        time.Duration // views unread for this long are evicted
	GCInterval      time.Duration // interval to evict idle views and expired sessions (default: 1h)
	SeedFile        string        // optional YAML seed file imported on startup
	SeedUser        string        // email or id of the user owning seeded servers
	SeedReloadEvery time.Duration // interval to re-import the seed file (0 = only on /reload)

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisPoolSize         int           // Redis connection pool size

	// Startup connection retry, for redis and postgres
	ConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RetryMaxWait   time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	WarnThreshold  int           // warn after this many attempts

	AllowedHosts []string // optional, restrict /reload to specific Host headers
	AllowedCIDRS []string // optional, restrict ops endpoints to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("VPSINV_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("VPSINV_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("VPSINV_REQUEST_TIMEOUT", 15*time.Second),
		MaxBodyBytes:    int64(getenvInt("VPSINV_MAX_BODY_BYTES", 1<<20)),

		// Logging
		LogLevel:  getenv("VPSINV_LOG_LEVEL", "info"),
		PrettyLog: mustBool("VPSINV_PRETTY_LOG", true),

		// Storage
		Store:       strings.ToLower(getenv("VPSINV_STORE", StoreSQLite)),
		DatabaseDSN: getenv("VPSINV_DATABASE_DSN", ""),
		SQLitePath:  getenv("VPSINV_SQLITE_PATH", "/data/vpsinv.db"),
		AutoMigrate: mustBool("VPSINV_AUTO_MIGRATE", true),

		// Auth
		JWTSecret:      requireEnv("VPSINV_JWT_SECRET"),
		SessionTTL:     mustDuration("VPSINV_SESSION_TTL", 24*time.Hour),
		AuthRatePerMin: getenvInt("VPSINV_AUTH_RATE_LIMIT", 10),
		CORSOrigins:    splitAndTrim(getenv("VPSINV_CORS_ORIGINS", "")),

		// Views & background jobs
		ViewTTL:         mustDuration("VPSINV_VIEW_TTL", 5*time.Minute),
		ViewIdle:        mustDuration("VPSINV_VIEW_IDLE", time.Hour),
		GCInterval:      mustDuration("VPSINV_GC_INTERVAL", time.Hour),
		SeedFile:        getenv("VPSINV_SEED_FILE", ""), // Optional, empty = seeding disabled
		SeedUser:        getenv("VPSINV_SEED_USER", ""),
		SeedReloadEvery: mustDuration("VPSINV_SEED_RELOAD_INTERVAL", 24*time.Hour),

		// Startup connection retry
		ConnectTimeout: mustDuration("VPSINV_CONNECT_TIMEOUT", 30*time.Second),
		RetryInterval:  mustDuration("VPSINV_RETRY_INTERVAL", 2*time.Second),
		RetryMaxWait:   mustDuration("VPSINV_RETRY_MAX_WAIT", 10*time.Second),
		PingTimeout:    mustDuration("VPSINV_PING_TIMEOUT", 5*time.Second),
		WarnThreshold:  getenvInt("VPSINV_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("VPSINV_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("VPSINV_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("VPSINV_TRUST_PROXY", true),
	}

	switch cfg.Store {
	case StoreRedis:
		loadRedis(cfg)
	case StorePostgres:
		cfg.DatabaseDSN = requireEnv("VPSINV_DATABASE_DSN")
	case StoreSQLite, StoreMemory:
	default:
		panic(fmt.Sprintf("❌ FATAL: VPSINV_STORE must be one of redis, postgres, sqlite, memory (got %q)", cfg.Store))
	}

	if cfg.SeedFile != "" && cfg.SeedUser == "" {
		panic("❌ FATAL: VPSINV_SEED_USER is required when VPSINV_SEED_FILE is set")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

func loadRedis(cfg *Config) {
	cfg.RedisAddr = requireEnv("VPSINV_REDIS_ADDR")
	cfg.RedisUser = getenv("VPSINV_REDIS_USERNAME", "default")
	cfg.RedisPasswordRequired = mustBool("VPSINV_REDIS_PASSWORD_REQUIRED", true)
	cfg.RedisPassword = getenv("VPSINV_REDIS_PASSWORD", "")
	cfg.RedisDB = requireEnvInt("VPSINV_REDIS_DB")
	cfg.RedisDT = mustDuration("VPSINV_REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.RedisRT = mustDuration("VPSINV_REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.RedisWT = mustDuration("VPSINV_REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.RedisPoolSize = getenvInt("VPSINV_REDIS_POOL_SIZE", 10)

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: VPSINV_REDIS_PASSWORD is required when VPSINV_REDIS_PASSWORD_REQUIRED=true")
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	const redacted = "***REDACTED***"
	out := c
	out.JWTSecret = redacted
	if c.RedisPassword != "" {
		out.RedisPassword = redacted
	}
	if c.RedisUser != "" {
		out.RedisUser = redacted
	}
	if c.DatabaseDSN != "" {
		out.DatabaseDSN = redacted
	}
	return out
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
