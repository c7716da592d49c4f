package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"flight_tracks/internal/models"
)

// Config holds all configuration for the service
type Config struct {
	ListenAddr       string
	DBPath           string // empty disables the aircraft registry
	AircraftCSVPaths []string
	CSVBatchSize     int
	OpenSky          OpenSkyConfig
	Watch            WatchConfig
	Log              LogConfig
}

// OpenSkyConfig holds the remote API client settings
type OpenSkyConfig struct {
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	Username    string
	Password    string
	MaxRetries  int
	RetryDelays []time.Duration
	RateLimit   float64
	RateBurst   int
}

// WatchConfig lists aircraft whose latest track is fetched periodically
type WatchConfig struct {
	Aircraft []models.ICAO24
	Interval time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from config file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "")
	v.SetDefault("aircraft_csv_paths", []string{})
	v.SetDefault("csv_batch_size", 5000)
	v.SetDefault("opensky.base_url", "https://opensky-network.org/api")
	v.SetDefault("opensky.timeout", "5s")
	v.SetDefault("opensky.user_agent", "flight_tracks/1.0")
	v.SetDefault("opensky.username", "")
	v.SetDefault("opensky.password", "")
	v.SetDefault("opensky.max_retries", 0)
	v.SetDefault("opensky.retry_delays", []string{"500ms", "1s", "2s"})
	v.SetDefault("opensky.rate_limit", 0)
	v.SetDefault("opensky.rate_burst", 1)
	v.SetDefault("watch.aircraft", []string{})
	v.SetDefault("watch.interval", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/flight_tracks")
	v.AddConfigPath(".")

	// main sets this from the -config flag
	if configPath := os.Getenv("FLIGHT_TRACKS_CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults + env vars
	}

	v.SetEnvPrefix("FLIGHT_TRACKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	retryDelays, err := parseDurations(v.GetStringSlice("opensky.retry_delays"))
	if err != nil {
		return nil, fmt.Errorf("invalid opensky.retry_delays: %w", err)
	}

	watched, err := parseAircraft(v.GetStringSlice("watch.aircraft"))
	if err != nil {
		return nil, fmt.Errorf("invalid watch.aircraft: %w", err)
	}

	cfg := &Config{
		ListenAddr:       v.GetString("listen_addr"),
		DBPath:           v.GetString("db_path"),
		AircraftCSVPaths: v.GetStringSlice("aircraft_csv_paths"),
		CSVBatchSize:     v.GetInt("csv_batch_size"),
		OpenSky: OpenSkyConfig{
			BaseURL:     v.GetString("opensky.base_url"),
			Timeout:     v.GetDuration("opensky.timeout"),
			UserAgent:   v.GetString("opensky.user_agent"),
			Username:    v.GetString("opensky.username"),
			Password:    v.GetString("opensky.password"),
			MaxRetries:  v.GetInt("opensky.max_retries"),
			RetryDelays: retryDelays,
			RateLimit:   v.GetFloat64("opensky.rate_limit"),
			RateBurst:   v.GetInt("opensky.rate_burst"),
		},
		Watch: WatchConfig{
			Aircraft: watched,
			Interval: v.GetDuration("watch.interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseDurations also accepts a single comma separated value, which is how env vars arrive
func parseDurations(values []string) ([]time.Duration, error) {
	var out []time.Duration
	for _, raw := range splitList(values) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func parseAircraft(values []string) ([]models.ICAO24, error) {
	var out []models.ICAO24
	for _, raw := range splitList(values) {
		id, err := models.ParseICAO24(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validate validates the configuration values
func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	if cfg.CSVBatchSize <= 0 {
		return fmt.Errorf("csv_batch_size must be greater than 0")
	}

	u, err := url.Parse(cfg.OpenSky.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("opensky.base_url must be an absolute http(s) url: %q", cfg.OpenSky.BaseURL)
	}

	if cfg.OpenSky.Timeout <= 0 {
		return fmt.Errorf("opensky.timeout must be greater than 0")
	}

	if cfg.OpenSky.MaxRetries < 0 {
		return fmt.Errorf("opensky.max_retries must not be negative")
	}

	if cfg.OpenSky.MaxRetries > 0 && len(cfg.OpenSky.RetryDelays) == 0 {
		return fmt.Errorf("opensky.retry_delays is required when opensky.max_retries > 0")
	}

	if cfg.OpenSky.RateLimit < 0 {
		return fmt.Errorf("opensky.rate_limit must not be negative")
	}

	if len(cfg.Watch.Aircraft) > 0 && cfg.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be greater than 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Log.Format)
	}

	return nil
}
