package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	maxFetchConcurrency = 8
	maxBatchSize        = 1000
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// FIRMS API settings.
	FIRMSAPIKey  string
	FIRMSBaseURL string
	Country      string
	Sources      []domain.Source
	FetchTimeout time.Duration
	FetchRetries int

	// Query window, in days before now (UTC).
	MinLagDays int
	MaxLagDays int

	FetchConcurrency int
	FetchDelay       time.Duration
	IngestInterval   time.Duration

	StoreDriver string
	DatabaseURL string
	BatchSize   int

	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sources, err := domain.ParseSources(sharedcfg.EnvOrDefault("FIRMS_SOURCES", "VIIRS_SNPP_NRT,VIIRS_NOAA20_NRT,MODIS_NRT,VIIRS_SNPP_SP"))
	if err != nil {
		return nil, fmt.Errorf("invalid FIRMS_SOURCES: %w", err)
	}

	fetchTimeout, err := parsePositiveDuration("FIRMS_TIMEOUT", "25s")
	if err != nil {
		return nil, err
	}
	fetchDelay, err := parseDuration("FETCH_DELAY", "500ms")
	if err != nil {
		return nil, err
	}
	interval, err := parsePositiveDuration("INGEST_INTERVAL", "10m")
	if err != nil {
		return nil, err
	}

	retries, err := parseIntInRange("FIRMS_RETRIES", 1, 0, 5)
	if err != nil {
		return nil, err
	}
	minLag, err := parseIntInRange("FIRMS_MIN_LAG_DAYS", 5, 0, 365)
	if err != nil {
		return nil, err
	}
	maxLag, err := parseIntInRange("FIRMS_MAX_LAG_DAYS", 10, 0, 365)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseIntInRange("FETCH_CONCURRENCY", 1, 1, maxFetchConcurrency)
	if err != nil {
		return nil, err
	}
	batchSize, err := parseIntInRange("BATCH_SIZE", 100, 1, maxBatchSize)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		FIRMSAPIKey:  os.Getenv("FIRMS_API_KEY"),
		FIRMSBaseURL: sharedcfg.EnvOrDefault("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov/api/country/csv/"),
		Country:      sharedcfg.EnvOrDefault("FIRMS_COUNTRY", "CHN"),
		Sources:      sources,
		FetchTimeout: fetchTimeout,
		FetchRetries: retries,

		MinLagDays: minLag,
		MaxLagDays: maxLag,

		FetchConcurrency: concurrency,
		FetchDelay:       fetchDelay,
		IngestInterval:   interval,

		StoreDriver: sharedcfg.EnvOrDefault("STORE_DRIVER", DriverSQLite),
		DatabaseURL: sharedcfg.EnvOrDefault("DATABASE_URL", "fire_monitoring.db"),
		BatchSize:   batchSize,

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "fire-points"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.FIRMSAPIKey == "" {
		return nil, errors.New("FIRMS_API_KEY is required")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("FIRMS_SOURCES must list at least one source")
	}
	if cfg.Country == "" {
		return nil, errors.New("FIRMS_COUNTRY is required")
	}
	if cfg.MaxLagDays < cfg.MinLagDays {
		return nil, errors.New("FIRMS_MAX_LAG_DAYS must not be less than FIRMS_MIN_LAG_DAYS")
	}
	if cfg.StoreDriver != DriverSQLite && cfg.StoreDriver != DriverPostgres {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// KafkaEnabled reports whether inserted points should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntInRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}
