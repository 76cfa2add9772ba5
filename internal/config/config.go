package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	DB          DatabaseConfig    `yaml:"db"`
	Logging     LoggingConfig     `yaml:"logging"`
	Geocoder    GeocoderConfig    `yaml:"geocoder"`
	Weather     WeatherConfig     `yaml:"weather"`
	Explain     ExplainConfig     `yaml:"explain"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Batch       BatchConfig       `yaml:"batch"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Kafka       KafkaConfig       `yaml:"kafka"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GeocoderConfig struct {
	URL        string        `yaml:"url"`
	Region     string        `yaml:"region"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	Spacing    time.Duration `yaml:"spacing"`
	CacheSize  int           `yaml:"cache_size"`
	ValkeyAddr string        `yaml:"valkey_addr"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

type WeatherConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	Spacing time.Duration `yaml:"spacing"`
}

type ExplainConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type AcquisitionConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
}

type BatchConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	Pause         time.Duration `yaml:"pause"`
	MaxLocalities int           `yaml:"max_localities"`
}

type RefreshConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Workers    int           `yaml:"workers"`
	BufferSize int           `yaml:"buffer_size"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load builds the config from defaults, then the YAML file named by
// CONFIG_PATH (if any), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			RateLimitRPS:   10,
			AllowedOrigins: []string{"*"},
		},
		DB: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./data/flood-risk.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Geocoder: GeocoderConfig{
			URL:       "https://nominatim.openstreetmap.org",
			Region:    "Ciudad de México, México",
			UserAgent: "go-flood-risk/1.0",
			Timeout:   10 * time.Second,
			Spacing:   time.Second,
			CacheSize: 256,
			CacheTTL:  24 * time.Hour,
		},
		Weather: WeatherConfig{
			URL:     "https://api.openweathermap.org/data/2.5",
			Timeout: 10 * time.Second,
			Spacing: time.Second,
		},
		Explain: ExplainConfig{
			Enabled:     true,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			Timeout:     20 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			CallTimeout: 10 * time.Second,
		},
		Batch: BatchConfig{
			Concurrency:   4,
			Pause:         time.Second,
			MaxLocalities: 20,
		},
		Refresh: RefreshConfig{
			Enabled:    false,
			Interval:   3 * time.Hour,
			Workers:    2,
			BufferSize: 20,
		},
		Kafka: KafkaConfig{
			Topic: "flood-predictions",
		},
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", c.Server.RateLimitRPS)
	c.Server.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.DB.Driver = getEnv("DB_DRIVER", c.DB.Driver)
	c.DB.Path = getEnv("DB_PATH", c.DB.Path)
	c.DB.DSN = getEnv("DATABASE_URL", c.DB.DSN)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Geocoder.URL = getEnv("GEOCODER_URL", c.Geocoder.URL)
	c.Geocoder.Region = getEnv("GEOCODER_REGION", c.Geocoder.Region)
	c.Geocoder.UserAgent = getEnv("GEOCODER_USER_AGENT", c.Geocoder.UserAgent)
	c.Geocoder.Timeout = getEnvDuration("GEOCODER_TIMEOUT", c.Geocoder.Timeout)
	c.Geocoder.Spacing = getEnvDuration("GEOCODER_SPACING", c.Geocoder.Spacing)
	c.Geocoder.CacheSize = getEnvInt("GEOCODER_CACHE_SIZE", c.Geocoder.CacheSize)
	c.Geocoder.ValkeyAddr = getEnv("VALKEY_ADDR", c.Geocoder.ValkeyAddr)
	c.Geocoder.CacheTTL = getEnvDuration("GEOCODER_CACHE_TTL", c.Geocoder.CacheTTL)

	c.Weather.URL = getEnv("OPENWEATHER_URL", c.Weather.URL)
	c.Weather.APIKey = getEnv("OPENWEATHER_API_KEY", c.Weather.APIKey)
	c.Weather.Timeout = getEnvDuration("OPENWEATHER_TIMEOUT", c.Weather.Timeout)
	c.Weather.Spacing = getEnvDuration("OPENWEATHER_SPACING", c.Weather.Spacing)

	c.Explain.Enabled = getEnvBool("EXPLAIN_ENABLED", c.Explain.Enabled)
	c.Explain.APIKey = getEnv("LLM_API_KEY", c.Explain.APIKey)
	c.Explain.BaseURL = getEnv("LLM_BASE_URL", c.Explain.BaseURL)
	c.Explain.Model = getEnv("LLM_MODEL", c.Explain.Model)
	c.Explain.Temperature = float32(getEnvFloat("LLM_TEMPERATURE", float64(c.Explain.Temperature)))
	c.Explain.Timeout = getEnvDuration("LLM_TIMEOUT", c.Explain.Timeout)

	c.Acquisition.CallTimeout = getEnvDuration("ACQUISITION_CALL_TIMEOUT", c.Acquisition.CallTimeout)

	c.Batch.Concurrency = getEnvInt("BATCH_CONCURRENCY", c.Batch.Concurrency)
	c.Batch.Pause = getEnvDuration("BATCH_PAUSE", c.Batch.Pause)
	c.Batch.MaxLocalities = getEnvInt("BATCH_MAX_LOCALITIES", c.Batch.MaxLocalities)

	c.Refresh.Enabled = getEnvBool("REFRESH_ENABLED", c.Refresh.Enabled)
	c.Refresh.Interval = getEnvDuration("REFRESH_INTERVAL", c.Refresh.Interval)
	c.Refresh.Workers = getEnvInt("REFRESH_WORKERS", c.Refresh.Workers)
	c.Refresh.BufferSize = getEnvInt("REFRESH_BUFFER_SIZE", c.Refresh.BufferSize)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	switch c.DB.Driver {
	case "sqlite":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid db driver: %s", c.DB.Driver)
	}

	timeouts := map[string]time.Duration{
		"acquisition.call_timeout": c.Acquisition.CallTimeout,
		"geocoder.timeout":         c.Geocoder.Timeout,
		"weather.timeout":          c.Weather.Timeout,
		"explain.timeout":          c.Explain.Timeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Geocoder.Spacing < 0 || c.Weather.Spacing < 0 {
		return fmt.Errorf("request spacing must not be negative")
	}
	if c.Batch.Pause < 0 {
		return fmt.Errorf("batch pause must not be negative")
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1")
	}
	if c.Batch.MaxLocalities < 1 {
		return fmt.Errorf("batch max localities must be at least 1")
	}
	if c.Refresh.Enabled && c.Refresh.Interval < time.Minute {
		return fmt.Errorf("refresh interval must be at least 1 minute")
	}

	return nil
}

// ExplainAvailable reports whether an LLM backend is configured.
func (c *Config) ExplainAvailable() bool {
	return c.Explain.Enabled && c.Explain.APIKey != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
