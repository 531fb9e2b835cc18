package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all tool settings, populated from environment variables.
type Config struct {
	// Geocoding service.
	NominatimBaseURL   string
	GeocodeUserAgent   string
	GeocodeMinInterval time.Duration
	GeocodeTimeout     time.Duration
	GeocodeRetries     int

	// Persistent geocoding cache.
	CachePath        string
	CachePrecision   int
	CacheLockTimeout time.Duration

	// Sync pass.
	MatchThreshold time.Duration
	SyncWorkers    int

	// External metadata writer.
	ExiftoolPath string

	LogLevel  string
	LogFormat string

	// MetricsAddr enables the /metrics HTTP endpoint when non-empty.
	MetricsAddr string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	minInterval, err := envDuration("GEOCODE_MIN_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := envDuration("GEOCODE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	lockTimeout, err := envDuration("CACHE_LOCK_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	threshold, err := envDuration("MATCH_THRESHOLD", time.Hour)
	if err != nil {
		return nil, err
	}
	retries, err := envInt("GEOCODE_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	precision, err := envInt("CACHE_PRECISION", 2)
	if err != nil {
		return nil, err
	}
	workers, err := envInt("SYNC_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NominatimBaseURL:   envOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeUserAgent:   envOrDefault("GEOCODE_USER_AGENT", "phototrack/1.0 (github.com/couchcryptid/phototrack)"),
		GeocodeMinInterval: minInterval,
		GeocodeTimeout:     timeout,
		GeocodeRetries:     retries,
		CachePath:          envOrDefault("CACHE_PATH", defaultCachePath()),
		CachePrecision:     precision,
		CacheLockTimeout:   lockTimeout,
		MatchThreshold:     threshold,
		SyncWorkers:        workers,
		ExiftoolPath:       envOrDefault("EXIFTOOL_PATH", "exiftool"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "text"),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
	}

	if cfg.NominatimBaseURL == "" {
		return nil, errors.New("NOMINATIM_BASE_URL is required")
	}
	if cfg.GeocodeUserAgent == "" {
		return nil, errors.New("GEOCODE_USER_AGENT is required")
	}
	if cfg.GeocodeMinInterval <= 0 {
		return nil, errors.New("GEOCODE_MIN_INTERVAL must be positive")
	}
	if cfg.CachePrecision < 0 || cfg.CachePrecision > 6 {
		return nil, errors.New("CACHE_PRECISION must be between 0 and 6")
	}
	if cfg.MatchThreshold <= 0 {
		return nil, errors.New("MATCH_THRESHOLD must be positive")
	}
	if cfg.SyncWorkers < 1 {
		return nil, errors.New("SYNC_WORKERS must be at least 1")
	}

	return cfg, nil
}

// defaultCachePath places the cache beside the binary so concurrent runs from
// different terminals share it, falling back to the working directory.
func defaultCachePath() string {
	exe, err := os.Executable()
	if err != nil {
		return "geocoding_cache.json"
	}
	return filepath.Join(filepath.Dir(exe), "geocoding_cache.json")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
