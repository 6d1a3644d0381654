// Package config loads the crawler's environment-variable configuration,
// using the same .env + .env.local layering as the rest of the command
// surface, centralized so every entry point shares it.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidWorkers      = errors.New("NUM_WORKERS must be at least 1")
	ErrInvalidFetchTimeout = errors.New("FETCH_TIMEOUT_S must be positive")
	ErrInvalidLinksCap     = errors.New("LINKS_PER_PAGE_CAP must be at least 1")
	ErrInvalidPerHostDelay = errors.New("PER_HOST_DELAY_MS must not be negative")
)

// StoreKind selects which backend an adapter constructs.
type StoreKind string

const (
	StoreRedis    StoreKind = "redis"
	StoreMemory   StoreKind = "memory"
	StoreSupabase StoreKind = "supabase"
)

// Config is the full set of crawl, queue, and worker knobs, sourced from
// the environment with sensible defaults for each.
type Config struct {
	QueueStoreEndpoint string
	QueueStoreKind     StoreKind
	RedisAddr          string

	ContentStoreEndpoint string
	ContentStoreDB       string
	ContentStoreKind     StoreKind
	SupabaseURL          string
	SupabaseServiceKey   string

	NumWorkers      int
	FetchTimeout    time.Duration
	LinksPerPageCap int
	PerHostDelay    time.Duration
	HTTPProxy       string
	HTTPSProxy      string

	ResponseBodyCap      int64
	TextCap              int
	HTMLCap              int
	RingBufferSize       int
	ConsecutiveFailLimit int
	CircuitCooldown      time.Duration
	IdlePollInterval     time.Duration
	VisitedTTL           time.Duration
	DrainWindow          time.Duration
}

// Default returns baseline numeric defaults before environment overrides.
func Default() *Config {
	return &Config{
		QueueStoreKind:       StoreRedis,
		RedisAddr:            "localhost:6379",
		ContentStoreKind:     StoreSupabase,
		NumWorkers:           2,
		FetchTimeout:         30 * time.Second,
		LinksPerPageCap:      20,
		ResponseBodyCap:      500 * 1024,
		TextCap:              10 * 1024,
		HTMLCap:              500 * 1024,
		RingBufferSize:       50,
		ConsecutiveFailLimit: 5,
		CircuitCooldown:      30 * time.Second,
		IdlePollInterval:     1 * time.Second,
		VisitedTTL:           24 * time.Hour,
		DrainWindow:          5 * time.Second,
	}
}

// Load layers .env, then .env.local (missing files are not an error), reads
// recognized environment variables over the defaults, and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg := Default()

	if v := os.Getenv("QUEUE_STORE_ENDPOINT"); v != "" {
		cfg.QueueStoreEndpoint = v
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("QUEUE_STORE_KIND"); v != "" {
		cfg.QueueStoreKind = StoreKind(v)
	}
	if v := os.Getenv("CONTENT_STORE_ENDPOINT"); v != "" {
		cfg.ContentStoreEndpoint = v
	}
	if v := os.Getenv("CONTENT_STORE_DB"); v != "" {
		cfg.ContentStoreDB = v
	}
	if v := os.Getenv("CONTENT_STORE_KIND"); v != "" {
		cfg.ContentStoreKind = StoreKind(v)
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.SupabaseURL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		cfg.SupabaseServiceKey = v
	}
	if v := os.Getenv("NUM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.NumWorkers = n
	}
	if v := os.Getenv("FETCH_TIMEOUT_S"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.FetchTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv("LINKS_PER_PAGE_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.LinksPerPageCap = n
	}
	if v := os.Getenv("PER_HOST_DELAY_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.PerHostDelay = time.Duration(n) * time.Millisecond
	}
	if v := os.Getenv("RESPONSE_BODY_CAP"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		cfg.ResponseBodyCap = n
	}
	if v := os.Getenv("TEXT_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.TextCap = n
	}
	if v := os.Getenv("HTML_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.HTMLCap = n
	}
	cfg.HTTPProxy = os.Getenv("HTTP_PROXY")
	cfg.HTTPSProxy = os.Getenv("HTTPS_PROXY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the pipeline relies on.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return ErrInvalidWorkers
	}
	if c.FetchTimeout <= 0 {
		return ErrInvalidFetchTimeout
	}
	if c.LinksPerPageCap < 1 {
		return ErrInvalidLinksCap
	}
	if c.PerHostDelay < 0 {
		return ErrInvalidPerHostDelay
	}
	return nil
}
