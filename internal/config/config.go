package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	JWTSecret          string
	GoogleWebClientID  string
	GoogleAPIClientID  string
	GoogleClientSecret string
	PublicBaseURL      string
	// DefaultSiteID is the site offered for internal links when the edited plugin
	// is not on a page yet.
	DefaultSiteID      int64
	RateLimitPerMinute int
	RateLimitBurst     int
	PruneInterval      time.Duration
}

// fileConfig is the optional YAML file named by CASCADE_CONFIG. It carries no
// secrets; those come from the environment only.
type fileConfig struct {
	Env           string `yaml:"env"`
	HTTPAddr      string `yaml:"http_addr"`
	PublicBaseURL string `yaml:"public_base_url"`
	DefaultSiteID int64  `yaml:"default_site_id"`
	RateLimit     struct {
		PerMinute int `yaml:"per_minute"`
		Burst     int `yaml:"burst"`
	} `yaml:"rate_limit"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

func defaults() Config {
	return Config{
		Env:                "development",
		HTTPAddr:           ":8080",
		DefaultSiteID:      1,
		RateLimitPerMinute: 120,
		RateLimitBurst:     30,
		PruneInterval:      10 * time.Minute,
	}
}

// LoadCore reads what every command needs: defaults, then the CASCADE_CONFIG file,
// then environment variables.
func LoadCore() Config {
	cfg := defaults()
	if path := os.Getenv("CASCADE_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			panic("config file: " + err.Error())
		}
	}
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.DatabaseURL = mustEnv("DATABASE_URL")
	cfg.DefaultSiteID = int64(getEnvInt("DEFAULT_SITE_ID", int(cfg.DefaultSiteID)))
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.PruneInterval = getEnvDuration("PRUNE_INTERVAL", cfg.PruneInterval)
	return cfg
}

// Load is LoadCore plus the login and token settings of the admin API.
func Load() Config {
	cfg := LoadCore()
	cfg.JWTSecret = mustEnv("JWT_SECRET")
	cfg.GoogleWebClientID = mustEnv("GOOGLE_WEB_CLIENT_ID")
	cfg.GoogleAPIClientID = mustEnv("GOOGLE_API_CLIENT_ID")
	cfg.GoogleClientSecret = mustEnv("GOOGLE_CLIENT_SECRET")
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = mustEnv("PUBLIC_BASE_URL")
	}
	return cfg
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if fc.Env != "" {
		c.Env = fc.Env
	}
	if fc.HTTPAddr != "" {
		c.HTTPAddr = fc.HTTPAddr
	}
	if fc.PublicBaseURL != "" {
		c.PublicBaseURL = fc.PublicBaseURL
	}
	if fc.DefaultSiteID > 0 {
		c.DefaultSiteID = fc.DefaultSiteID
	}
	if fc.RateLimit.PerMinute > 0 {
		c.RateLimitPerMinute = fc.RateLimit.PerMinute
	}
	if fc.RateLimit.Burst > 0 {
		c.RateLimitBurst = fc.RateLimit.Burst
	}
	if fc.PruneInterval > 0 {
		c.PruneInterval = fc.PruneInterval
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func SessionTTL() time.Duration {
	return 7 * 24 * time.Hour
}
