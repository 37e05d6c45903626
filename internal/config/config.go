package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string // where the user is sent after linking Strava
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Identity: HS256 bearer assertions issued by the identity provider
	IdentityJWTSecret string
	IdentityJWTIssuer string // Optional: checked when set

	// Strava
	StravaClientID     string
	StravaClientSecret string
	StravaRedirectURL  string
	StravaAuthURL      string
	StravaTokenURL     string
	StravaAPIURL       string
	StravaHTTPTimeout  time.Duration
	StravaPageSize     int

	// Token encryption (base64, 32 bytes). Required in production.
	TokenEncryptionKey string

	// Link state
	LinkStateTTL     time.Duration
	LinkStateBackend string // "db" or "redis"
	RedisURL         string

	// Storage
	StorageBackend     string // "local" or "s3"
	LocalStorageDir    string
	LocalStoragePrefix string // URL path local blobs are served under
	MaxPhotoSize       int64

	// Storage - S3 compatible (MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional: for non-AWS providers
	S3PublicURL string // Optional: CDN in front of the bucket

	// Mock generator
	MockMaxCount int

	// Rate limiting (requests per window per client)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Observability (optional)
	SentryDSN      string
	MetricsEnabled bool
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "stravasync"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envRequired("APP_URL"),
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/stravasync.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"),

		// Identity
		IdentityJWTSecret: envRequired("IDENTITY_JWT_SECRET"),
		IdentityJWTIssuer: envString("IDENTITY_JWT_ISSUER", ""),

		// Strava
		StravaClientID:     envRequired("STRAVA_CLIENT_ID"),
		StravaClientSecret: envRequired("STRAVA_CLIENT_SECRET"),
		StravaRedirectURL:  envString("STRAVA_REDIRECT_URL", ""),
		StravaAuthURL:      envString("STRAVA_AUTH_URL", "https://www.strava.com/oauth/authorize"),
		StravaTokenURL:     envString("STRAVA_TOKEN_URL", "https://www.strava.com/oauth/token"),
		StravaAPIURL:       envString("STRAVA_API_URL", "https://www.strava.com/api/v3"),
		StravaHTTPTimeout:  envDuration("STRAVA_HTTP_TIMEOUT", 10*time.Second),
		StravaPageSize:     envInt("STRAVA_SYNC_PAGE_SIZE", 30),

		TokenEncryptionKey: envString("TOKEN_ENCRYPTION_KEY", ""),

		// Link state
		LinkStateTTL:     envDuration("LINK_STATE_TTL", 10*time.Minute),
		LinkStateBackend: envString("LINK_STATE_BACKEND", "db"),
		RedisURL:         envString("REDIS_URL", "redis://localhost:6379/0"),

		// Storage
		StorageBackend:     envString("STORAGE_BACKEND", "local"),
		LocalStorageDir:    envString("LOCAL_STORAGE_DIR", "./data/uploads"),
		LocalStoragePrefix: envString("LOCAL_STORAGE_PREFIX", "/uploads"),
		MaxPhotoSize:       int64(envInt("MAX_PHOTO_SIZE", 10<<20)), // 10 MB

		S3Region:    envString("S3_REGION", "us-east-1"),
		S3Bucket:    envString("S3_BUCKET", ""),
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""),
		S3PublicURL: envString("S3_PUBLIC_URL", ""),

		MockMaxCount: envInt("MOCK_MAX_COUNT", 200),

		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", time.Minute),

		// Observability
		SentryDSN:      envString("SENTRY_DSN", ""),
		MetricsEnabled: envBool("METRICS_ENABLED", true),
	}

	if cfg.StravaRedirectURL == "" {
		cfg.StravaRedirectURL = cfg.AppURL + "/strava/callback"
	}

	if cfg.StorageBackend == "s3" && cfg.S3Bucket == "" {
		slog.Error("config S3_BUCKET is required when STORAGE_BACKEND=s3")
		os.Exit(1)
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures secrets that have development fallbacks are
// configured for production deployments.
func validateProduction(cfg *Config) {
	if cfg.TokenEncryptionKey == "" {
		slog.Error("production deployment requires TOKEN_ENCRYPTION_KEY",
			"hint", "generate one with: head -c 32 /dev/urandom | base64")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Sanitized returns a copy of the config with only public fields.
// Secrets and credentials are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:           c.AppName,
		AppEnv:            c.AppEnv,
		AppURL:            c.AppURL,
		Port:              c.Port,
		DBDriver:          c.DBDriver,
		StravaClientID:    c.StravaClientID,
		StravaRedirectURL: c.StravaRedirectURL,
		StravaAPIURL:      c.StravaAPIURL,
		LinkStateBackend:  c.LinkStateBackend,
		StorageBackend:    c.StorageBackend,
		S3Endpoint:        c.S3Endpoint,
	}
}
