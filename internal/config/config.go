package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// EONET API.
	EONETBaseURL    string
	EONETTimeout    time.Duration
	EONETMaxRetries int
	EONETBackoff    time.Duration
	EONETMaxBackoff time.Duration
	EONETCacheTTL   time.Duration
	EONETCacheSize  int
	EONETStatus     string

	// Storage and output.
	DataDir    string
	ChartDir   string
	SaveRaw    bool
	RunTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dashboard.
	DashboardLookback    time.Duration
	DashboardRefreshCron string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCacheTTL  time.Duration

	// Optional Kafka sink; empty brokers disables publishing.
	KafkaBrokers []string
	KafkaTopic   string

	PushgatewayURL string
}

// KafkaEnabled reports whether occurrence publishing is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EONETBaseURL:         strings.TrimRight(sharedcfg.EnvOrDefault("EONET_BASE_URL", "https://eonet.gsfc.nasa.gov/api/v3"), "/"),
		EONETStatus:          sharedcfg.EnvOrDefault("EONET_STATUS", "all"),
		DataDir:              sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		ChartDir:             sharedcfg.EnvOrDefault("CHART_DIR", "graphs"),
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		DashboardRefreshCron: os.Getenv("DASHBOARD_REFRESH_CRON"),
		KafkaBrokers:         sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:           sharedcfg.EnvOrDefault("KAFKA_TOPIC", "eonet-occurrences"),
		PushgatewayURL:       os.Getenv("PUSHGATEWAY_URL"),
		MapboxToken:          os.Getenv("MAPBOX_TOKEN"),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"EONET_TIMEOUT", "30s", &cfg.EONETTimeout},
		{"EONET_BACKOFF", "1s", &cfg.EONETBackoff},
		{"EONET_MAX_BACKOFF", "30s", &cfg.EONETMaxBackoff},
		{"EONET_CACHE_TTL", "1h", &cfg.EONETCacheTTL},
		{"RUN_TIMEOUT", "5m", &cfg.RunTimeout},
		{"DASHBOARD_LOOKBACK", "43800h", &cfg.DashboardLookback},
		{"MAPBOX_TIMEOUT", "5s", &cfg.MapboxTimeout},
		{"MAPBOX_CACHE_TTL", "24h", &cfg.MapboxCacheTTL},
	}
	for _, d := range durations {
		v, err := parsePositiveDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	if cfg.EONETMaxRetries, err = parseInt("EONET_MAX_RETRIES", 3, 0); err != nil {
		return nil, err
	}
	if cfg.EONETCacheSize, err = parseInt("EONET_CACHE_SIZE", 32, 1); err != nil {
		return nil, err
	}
	if cfg.MapboxCacheSize, err = parseInt("MAPBOX_CACHE_SIZE", 1000, 1); err != nil {
		return nil, err
	}
	if cfg.SaveRaw, err = parseBool("SAVE_RAW", true); err != nil {
		return nil, err
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	switch cfg.EONETStatus {
	case "open", "closed", "all":
	default:
		return nil, fmt.Errorf("invalid EONET_STATUS %q: want open, closed or all", cfg.EONETStatus)
	}
	if cfg.EONETMaxBackoff < cfg.EONETBackoff {
		return nil, errors.New("EONET_MAX_BACKOFF must not be less than EONET_BACKOFF")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.ChartDir == "" {
		return nil, errors.New("CHART_DIR is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s %q: must be an integer >= %d", key, s, minimum)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, s)
	}
	return b, nil
}
