// Package config loads pipeline configuration from the environment (with an
// optional .env file) and the provider catalog from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the process configuration. Every field maps to one environment
// variable; defaults mirror the behaviour of an unconfigured installation.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	CacheEnabled    bool          `env:"CACHE_ENABLED,default=true"`
	CacheExpiry     time.Duration `env:"CACHE_EXPIRY,default=168h"`
	CacheBackend    string        `env:"CACHE_BACKEND,default=memory"`
	RedisURL        string        `env:"REDIS_URL,default=redis://localhost:6379/0"`
	FallbackEnabled bool          `env:"FALLBACK_ENABLED,default=true"`
	UseMocks        bool          `env:"USE_MOCKS,default=true"`

	OutputDir          string `env:"OUTPUT_DIR,default=output"`
	ResultsDatabaseURL string `env:"RESULTS_DATABASE_URL"`
	CatalogFile        string `env:"CATALOG_FILE"`

	HTTPAddr       string  `env:"HTTP_ADDR,default=:8080"`
	RateLimit      float64 `env:"RATE_LIMIT_RPS,default=10"`
	RateBurst      int     `env:"RATE_LIMIT_BURST,default=20"`
	AllowedOrigins string  `env:"ALLOWED_ORIGINS,default=*"`

	BatchSchedule string `env:"BATCH_SCHEDULE"`
	BatchFile     string `env:"BATCH_FILE"`

	ProviderRetries   int           `env:"PROVIDER_RETRIES,default=3"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT,default=30s"`
	ProviderRateLimit float64       `env:"PROVIDER_RATE_LIMIT,default=0"`

	VirtualThreads VirtualThreadsConfig
	Mockey         MockeyConfig
	Shopify        ShopifyConfig
	Printify       PrintifyConfig
	CGTrader       CGTraderConfig
	Blender        BlenderConfig
}

type VirtualThreadsConfig struct {
	APIKey  string `env:"VIRTUALTHREADS_API_KEY"`
	BaseURL string `env:"VIRTUALTHREADS_API_URL,default=https://api.virtualthreads.io/v1"`
}

type MockeyConfig struct {
	APIKey  string `env:"MOCKEY_API_KEY"`
	BaseURL string `env:"MOCKEY_API_URL,default=https://api.mockey.ai/v1"`
}

// ShopifyConfig holds admin API credentials. APIPassword is the access token
// sent as X-Shopify-Access-Token.
type ShopifyConfig struct {
	ShopName           string `env:"SHOPIFY_SHOP_NAME,default=wanderwoll-essentials"`
	APIKey             string `env:"SHOPIFY_API_KEY"`
	APIPassword        string `env:"SHOPIFY_API_PASSWORD"`
	APIVersion         string `env:"SHOPIFY_API_VERSION,default=2023-07"`
	MetafieldNamespace string `env:"SHOPIFY_METAFIELD_NAMESPACE,default=wanderwoll"`
	BaseURL            string `env:"SHOPIFY_API_URL"`
}

type PrintifyConfig struct {
	APIKey  string `env:"PRINTIFY_API_KEY"`
	ShopID  string `env:"PRINTIFY_SHOP_ID"`
	BaseURL string `env:"PRINTIFY_API_URL,default=https://api.printify.com/v1"`
}

type CGTraderConfig struct {
	AssetsDir string `env:"CGTRADER_ASSETS_DIR,default=assets/cgtrader"`
}

type BlenderConfig struct {
	Path       string `env:"BLENDER_PATH,default=blender"`
	Script     string `env:"BLENDER_SCRIPT,default=scripts/blender_automation.py"`
	MaxWorkers int    `env:"MAX_WORKERS,default=4"`
}

// Load reads .env from the working directory when present and decodes the
// environment into a Config.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit dotenv path. A missing file is not an
// error; variables already set in the environment win over the file.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envdecode cannot express as tags.
func (c *Config) Validate() error {
	switch strings.ToLower(c.CacheBackend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q (want memory or redis)", c.CacheBackend)
	}
	if c.CacheExpiry <= 0 {
		return fmt.Errorf("CACHE_EXPIRY must be positive, got %s", c.CacheExpiry)
	}
	if c.Blender.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.Blender.MaxWorkers)
	}
	if c.ProviderRetries <= 0 {
		return fmt.Errorf("PROVIDER_RETRIES must be positive, got %d", c.ProviderRetries)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// ShopifyBaseURL returns the admin API root for the configured shop.
func (s ShopifyConfig) ShopifyBaseURL() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", s.ShopName, s.APIVersion)
}
