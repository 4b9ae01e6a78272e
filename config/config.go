package config

import (
	"os"
	"strconv"
	"time"

	"brleiloes/superbidworker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Supabase sink configuration
	SupabaseURL        string
	SupabaseServiceKey string

	// Source API configuration
	SiteURL   string
	APIURL    string
	PageSize  int
	MaxPages  int
	Category  string
	TimeZone  string
	PortalIDs string

	// Crawl pacing
	RequestTimeout   time.Duration
	MaxExecutionTime time.Duration
	MaxRetries       int
	PageDelayMin     time.Duration
	PageDelayMax     time.Duration
	CategoryDelayMin time.Duration
	CategoryDelayMax time.Duration
	CheckpointEvery  int

	// Local checkpoint artifacts
	OutputDir string

	// Redis configuration (optional stream publisher)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int
	PublishEnabled       bool

	// Memcache configuration (optional rate-limit guard)
	MemcacheAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStreamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	redisStreamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	pageSize, _ := strconv.Atoi(getEnv("PAGE_SIZE", "100"))
	maxPages, _ := strconv.Atoi(getEnv("MAX_PAGES", "0"))
	maxRetries, _ := strconv.Atoi(getEnv("MAX_RETRIES", "3"))
	checkpointEvery, _ := strconv.Atoi(getEnv("CHECKPOINT_EVERY", "1000"))
	requestTimeout, _ := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "45"))
	maxExecution, _ := strconv.Atoi(getEnv("MAX_EXECUTION_SECONDS", "10680"))

	return Config{
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		SiteURL:   getEnv("SUPERBID_SITE_URL", "https://exchange.superbid.net"),
		APIURL:    getEnv("SUPERBID_API_URL", "https://offer-query.superbid.net"),
		PageSize:  pageSize,
		MaxPages:  maxPages,
		Category:  getEnv("CATEGORY", ""),
		TimeZone:  getEnv("SUPERBID_TIMEZONE", "America/Sao_Paulo"),
		PortalIDs: getEnv("SUPERBID_PORTAL_IDS", "[2,15]"),

		RequestTimeout:   time.Duration(requestTimeout) * time.Second,
		MaxExecutionTime: time.Duration(maxExecution) * time.Second,
		MaxRetries:       maxRetries,
		PageDelayMin:     2 * time.Second,
		PageDelayMax:     5 * time.Second,
		CategoryDelayMin: 10 * time.Second,
		CategoryDelayMax: 20 * time.Second,
		CheckpointEvery:  checkpointEvery,

		OutputDir: getEnv("OUTPUT_DIR", "superbid_data"),

		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "auctions"),
		RedisStreamCount:     redisStreamCount,
		RedisStreamMaxLength: redisStreamMaxLen,
		PublishEnabled:       getEnv("PUBLISH_ENABLED", "false") == "true",

		MemcacheAddr: getEnv("MEMCACHE_ADDR", ""),

		Environment: getEnv("SUPERBID_ENVIRONMENT", "development"),
	}
}

// Validate checks that required configuration is present. Only missing sink
// credentials are fatal; everything else has workable defaults.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return errors.NewConfiguration("SUPABASE_URL is required", nil)
	}
	if c.SupabaseServiceKey == "" {
		return errors.NewConfiguration("SUPABASE_SERVICE_ROLE_KEY is required", nil)
	}
	if c.Category != "" {
		if _, ok := CategoryName(c.Category); !ok {
			return errors.NewConfiguration("unknown category slug: "+c.Category, nil)
		}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
