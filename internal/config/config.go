package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/report"
)

const envPrefix = "TLDPRICING_"

const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"

	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
	CacheBackendMemory   = "memory"
)

// Config is the resolved runtime configuration.
// Values are merged in priority order: defaults, then the YAML file, then the environment.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	APIToken string

	StorageBackend string
	DatabaseURL    string
	MaxDBConns     int
	CurrencyID     int

	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	UpstreamURL     string
	UpstreamTimeout time.Duration
	UpstreamRetries uint64

	MarginType     string
	MarginValue    string
	RoundingRule   string
	CustomRounding string

	Workers        int
	SyncInterval   time.Duration
	ComparisonTerm string
	PromoTimezone  string

	LogLevel  string
	LogFormat string
}

// configFile mirrors the YAML schema of config.yaml
type configFile struct {
	Server struct {
		HTTPAddr string `yaml:"http_addr"`
		GRPCAddr string `yaml:"grpc_addr"`
		APIToken string `yaml:"api_token"`
	} `yaml:"server"`
	Storage struct {
		Backend     string `yaml:"backend"`
		DatabaseURL string `yaml:"database_url"`
		MaxConns    int    `yaml:"max_conns"`
		CurrencyID  int    `yaml:"currency_id"`
	} `yaml:"storage"`
	Cache struct {
		Backend  string `yaml:"backend"`
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"events"`
	Upstream struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Retries *int   `yaml:"retries"`
	} `yaml:"upstream"`
	Pricing struct {
		MarginType     string `yaml:"margin_type"`
		MarginValue    string `yaml:"margin_value"`
		RoundingRule   string `yaml:"rounding_rule"`
		CustomRounding string `yaml:"custom_rounding"`
		ComparisonTerm string `yaml:"comparison_term"`
		PromoTimezone  string `yaml:"promo_timezone"`
	} `yaml:"pricing"`
	Sync struct {
		Workers  int    `yaml:"workers"`
		Interval string `yaml:"interval"`
	} `yaml:"sync"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		HTTPAddr:        ":8081",
		GRPCAddr:        ":8080",
		APIToken:        "dev-token",
		StorageBackend:  StorageBackendPostgres,
		MaxDBConns:      10,
		CurrencyID:      1,
		CacheBackend:    CacheBackendPostgres,
		KafkaTopic:      "pricing.price-changes",
		UpstreamURL:     "https://api.rdash.id/api/domain-prices?currency=IDR",
		UpstreamTimeout: 30 * time.Second,
		UpstreamRetries: 3,
		MarginType:      string(domain.MarginTypePercentage),
		MarginValue:     "20",
		RoundingRule:    domain.RoundingRuleUp1000,
		CustomRounding:  "1000",
		Workers:         1,
		ComparisonTerm:  string(report.ComparisonTermEffective),
		PromoTimezone:   "UTC",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load resolves configuration from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and TLDPRICING_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := cfg.applyFile(raw); err != nil {
				return Config{}, err
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" && cfg.StorageBackend == StorageBackendPostgres {
		cfg.DatabaseURL = databaseURLFromParts()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&c.HTTPAddr, f.Server.HTTPAddr)
	setString(&c.GRPCAddr, f.Server.GRPCAddr)
	setString(&c.APIToken, f.Server.APIToken)
	setString(&c.StorageBackend, f.Storage.Backend)
	setString(&c.DatabaseURL, f.Storage.DatabaseURL)
	setInt(&c.MaxDBConns, f.Storage.MaxConns)
	setInt(&c.CurrencyID, f.Storage.CurrencyID)
	setString(&c.CacheBackend, f.Cache.Backend)
	setString(&c.RedisURL, f.Cache.RedisURL)
	if len(f.Events.KafkaBrokers) > 0 {
		c.KafkaBrokers = f.Events.KafkaBrokers
	}
	setString(&c.KafkaTopic, f.Events.KafkaTopic)
	setString(&c.UpstreamURL, f.Upstream.URL)
	if f.Upstream.Retries != nil && *f.Upstream.Retries >= 0 {
		c.UpstreamRetries = uint64(*f.Upstream.Retries)
	}
	setString(&c.MarginType, f.Pricing.MarginType)
	setString(&c.MarginValue, f.Pricing.MarginValue)
	setString(&c.RoundingRule, f.Pricing.RoundingRule)
	setString(&c.CustomRounding, f.Pricing.CustomRounding)
	setString(&c.ComparisonTerm, f.Pricing.ComparisonTerm)
	setString(&c.PromoTimezone, f.Pricing.PromoTimezone)
	setInt(&c.Workers, f.Sync.Workers)
	setString(&c.LogLevel, f.Log.Level)
	setString(&c.LogFormat, f.Log.Format)

	var errs error
	errs = multierr.Append(errs, setDuration(&c.CacheTTL, "cache.ttl", f.Cache.TTL))
	errs = multierr.Append(errs, setDuration(&c.UpstreamTimeout, "upstream.timeout", f.Upstream.Timeout))
	errs = multierr.Append(errs, setDuration(&c.SyncInterval, "sync.interval", f.Sync.Interval))
	return errs
}

func (c *Config) applyEnv() error {
	setString(&c.HTTPAddr, getenv("HTTP_ADDR"))
	setString(&c.GRPCAddr, getenv("GRPC_ADDR"))
	setString(&c.APIToken, os.Getenv("API_TOKEN"))
	setString(&c.APIToken, getenv("API_TOKEN"))
	setString(&c.StorageBackend, getenv("STORAGE_BACKEND"))
	setString(&c.DatabaseURL, os.Getenv("DB_CONN_STR"))
	setString(&c.DatabaseURL, getenv("DATABASE_URL"))
	setString(&c.CacheBackend, getenv("CACHE_BACKEND"))
	setString(&c.RedisURL, getenv("REDIS_URL"))
	if brokers := getenv("KAFKA_BROKERS"); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}
	setString(&c.KafkaTopic, getenv("KAFKA_TOPIC"))
	setString(&c.UpstreamURL, getenv("UPSTREAM_URL"))
	setString(&c.MarginType, getenv("MARGIN_TYPE"))
	setString(&c.MarginValue, getenv("MARGIN_VALUE"))
	setString(&c.RoundingRule, getenv("ROUNDING_RULE"))
	setString(&c.CustomRounding, getenv("CUSTOM_ROUNDING"))
	setString(&c.ComparisonTerm, getenv("COMPARISON_TERM"))
	setString(&c.PromoTimezone, getenv("PROMO_TIMEZONE"))
	setString(&c.LogLevel, getenv("LOG_LEVEL"))
	setString(&c.LogFormat, getenv("LOG_FORMAT"))

	var errs error
	errs = multierr.Append(errs, setEnvInt(&c.MaxDBConns, "MAX_DB_CONNS"))
	errs = multierr.Append(errs, setEnvInt(&c.CurrencyID, "CURRENCY_ID"))
	errs = multierr.Append(errs, setEnvInt(&c.Workers, "WORKERS"))
	errs = multierr.Append(errs, setDuration(&c.CacheTTL, envPrefix+"CACHE_TTL", getenv("CACHE_TTL")))
	errs = multierr.Append(errs, setDuration(&c.UpstreamTimeout, envPrefix+"UPSTREAM_TIMEOUT", getenv("UPSTREAM_TIMEOUT")))
	errs = multierr.Append(errs, setDuration(&c.SyncInterval, envPrefix+"SYNC_INTERVAL", getenv("SYNC_INTERVAL")))
	if raw := getenv("UPSTREAM_RETRIES"); raw != "" {
		retries, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, &domain.ConfigError{Field: envPrefix + "UPSTREAM_RETRIES", Value: raw, Reason: "must be a non-negative integer"})
		} else {
			c.UpstreamRetries = retries
		}
	}
	return errs
}

// Validate checks the settings that cannot fall back to a default
func (c Config) Validate() error {
	var errs error

	switch c.StorageBackend {
	case StorageBackendPostgres:
		if c.DatabaseURL == "" {
			errs = multierr.Append(errs, &domain.ConfigError{Field: "storage.database_url", Reason: "required for the postgres backend"})
		}
	case StorageBackendMemory:
	default:
		errs = multierr.Append(errs, &domain.ConfigError{Field: "storage.backend", Value: c.StorageBackend, Reason: "expected postgres or memory"})
	}

	switch c.CacheBackend {
	case CacheBackendPostgres:
		if c.StorageBackend != StorageBackendPostgres {
			errs = multierr.Append(errs, &domain.ConfigError{Field: "cache.backend", Value: c.CacheBackend, Reason: "needs the postgres storage backend"})
		}
	case CacheBackendRedis:
		if c.RedisURL == "" {
			errs = multierr.Append(errs, &domain.ConfigError{Field: "cache.redis_url", Reason: "required for the redis cache"})
		}
	case CacheBackendMemory:
	default:
		errs = multierr.Append(errs, &domain.ConfigError{Field: "cache.backend", Value: c.CacheBackend, Reason: "expected postgres, redis or memory"})
	}

	if c.UpstreamURL == "" {
		errs = multierr.Append(errs, &domain.ConfigError{Field: "upstream.url", Reason: "required"})
	}
	if c.Workers < 1 {
		errs = multierr.Append(errs, &domain.ConfigError{Field: "sync.workers", Value: strconv.Itoa(c.Workers), Reason: "must be at least 1"})
	}
	if _, err := report.ParseComparisonTerm(c.ComparisonTerm); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := time.LoadLocation(c.PromoTimezone); err != nil {
		errs = multierr.Append(errs, &domain.ConfigError{Field: "pricing.promo_timezone", Value: c.PromoTimezone, Reason: err.Error()})
	}
	return errs
}

// PricingPolicy builds the explicit policy the pipeline runs with.
// Invalid settings fall back to percentage margin or no rounding; the returned
// error lists every fallback so callers can log it and keep going.
func (c Config) PricingPolicy() (domain.PricingPolicy, error) {
	var errs error

	marginType, err := domain.ParseMarginType(c.MarginType)
	errs = multierr.Append(errs, err)

	marginValue, err := decimal.NewFromString(strings.TrimSpace(c.MarginValue))
	if err != nil {
		errs = multierr.Append(errs, &domain.ConfigError{Field: "margin value", Value: c.MarginValue, Reason: "not a number"})
		marginValue = decimal.Zero
	}

	custom := decimal.Zero
	if strings.TrimSpace(c.CustomRounding) != "" {
		custom, err = decimal.NewFromString(strings.TrimSpace(c.CustomRounding))
		if err != nil {
			errs = multierr.Append(errs, &domain.ConfigError{Field: "custom rounding", Value: c.CustomRounding, Reason: "not a number"})
			custom = decimal.Zero
		}
	}

	rounding, err := domain.ParseRoundingRule(c.RoundingRule, custom)
	errs = multierr.Append(errs, err)

	return domain.PricingPolicy{
		Margin:   domain.MarginPolicy{Type: marginType, Value: marginValue},
		Rounding: rounding,
	}, errs
}

// Location returns the zone date-only promo bounds are read in
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.PromoTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Comparison returns the configured comparison term
func (c Config) Comparison() report.ComparisonTerm {
	term, err := report.ParseComparisonTerm(c.ComparisonTerm)
	if err != nil {
		return report.ComparisonTermEffective
	}
	return term
}

// Level returns the zerolog level; unknown names mean info
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// databaseURLFromParts builds a DSN from DB_* variables (Docker friendly)
func databaseURLFromParts() string {
	host := getenvDefault("DB_HOST", "localhost")
	port := getenvDefault("DB_PORT", "5432")
	user := getenvDefault("DB_USER", "postgres")
	password := getenvDefault("DB_PASSWORD", "postgres")
	dbname := getenvDefault("DB_NAME", "tldpricing")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}

func setEnvInt(dst *int, key string) error {
	raw := getenv(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return &domain.ConfigError{Field: envPrefix + key, Value: raw, Reason: "must be an integer"}
	}
	*dst = value
	return nil
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return &domain.ConfigError{Field: field, Value: raw, Reason: "must be a duration such as 30s or 24h"}
	}
	*dst = value
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
