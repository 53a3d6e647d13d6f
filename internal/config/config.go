package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"crimestats/adapters/datareadiness/coercer"
	"crimestats/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

// DataConfig selects the source table
type DataConfig struct {
	Source         string `yaml:"source"` // .csv/.xlsx path or postgres DSN
	Table          string `yaml:"table"`  // table name when Source is a DSN
	Sheet          string `yaml:"sheet"`  // worksheet when Source is .xlsx; first sheet if empty
	CoercionPolicy string `yaml:"coercion_policy"`
}

// AnalysisConfig holds the defaults the analysis sections run with
type AnalysisConfig struct {
	ChangeCap         float64       `yaml:"change_cap"`
	TopN              int           `yaml:"top_n"`
	ChangeTopN        int           `yaml:"change_top_n"`
	Hotspot           HotspotConfig `yaml:"hotspot"`
	TrendRates        []string      `yaml:"trend_rates"`
	CorrelationMetric string        `yaml:"correlation_metric"`
}

// HotspotConfig is the hotspot classification rule
type HotspotConfig struct {
	Threshold  string  `yaml:"threshold"` // mean | median | fixed
	Multiplier float64 `yaml:"multiplier"`
	FixedRate  float64 `yaml:"fixed_rate"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// CacheConfig selects the series cache backend
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis | none
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Source:         "data/crime.csv",
			Table:          "crime_stats",
			CoercionPolicy: string(coercer.PolicyLenient),
		},
		Analysis: AnalysisConfig{
			ChangeCap:         10.0,
			TopN:              10,
			ChangeTopN:        5,
			Hotspot:           HotspotConfig{Threshold: "mean", Multiplier: 1.0},
			TrendRates:        []string{"MurderPer100k", "RobberyPer100k"},
			CorrelationMetric: "MurderPer100k",
		},
		Server: ServerConfig{Port: "8080"},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			TTL:       10 * time.Minute,
		},
		Log: LogConfig{Level: "INFO", Env: "development"},
	}
}

// Load reads .env (if present), the YAML file named by CRIMESTATS_CONFIG (if set) and
// then environment variables, each layer overriding the previous one.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := Default()

	if path := os.Getenv("CRIMESTATS_CONFIG"); path != "" {
		if err := loadYAML(path, config); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	applyEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadYAML(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("%s: %v", path, err))
	}
	return nil
}

func applyEnv(c *Config) {
	c.Data.Source = getEnvOrDefault("DATA_SOURCE", c.Data.Source)
	c.Data.Table = getEnvOrDefault("DATA_TABLE", c.Data.Table)
	c.Data.Sheet = getEnvOrDefault("DATA_SHEET", c.Data.Sheet)
	c.Data.CoercionPolicy = getEnvOrDefault("COERCION_POLICY", c.Data.CoercionPolicy)

	c.Analysis.ChangeCap = getEnvFloatOrDefault("CHANGE_CAP", c.Analysis.ChangeCap)
	c.Analysis.TopN = getEnvIntOrDefault("TOP_N", c.Analysis.TopN)
	c.Analysis.ChangeTopN = getEnvIntOrDefault("CHANGE_TOP_N", c.Analysis.ChangeTopN)
	c.Analysis.Hotspot.Threshold = getEnvOrDefault("HOTSPOT_THRESHOLD", c.Analysis.Hotspot.Threshold)
	c.Analysis.Hotspot.Multiplier = getEnvFloatOrDefault("HOTSPOT_MULTIPLIER", c.Analysis.Hotspot.Multiplier)
	c.Analysis.Hotspot.FixedRate = getEnvFloatOrDefault("HOTSPOT_FIXED_RATE", c.Analysis.Hotspot.FixedRate)
	if rates := os.Getenv("TREND_RATES"); rates != "" {
		c.Analysis.TrendRates = splitList(rates)
	}
	c.Analysis.CorrelationMetric = getEnvOrDefault("CORRELATION_METRIC", c.Analysis.CorrelationMetric)

	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)

	c.Cache.Backend = getEnvOrDefault("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvIntOrDefault("REDIS_DB", c.Cache.RedisDB)
	c.Cache.TTL = getEnvDurationOrDefault("CACHE_TTL", c.Cache.TTL)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Env = getEnvOrDefault("APP_ENV", c.Log.Env)
}

func validateConfig(c *Config) error {
	if c.Data.Source == "" {
		return errors.ConfigInvalid("DATA_SOURCE is required")
	}
	if _, err := coercer.ParsePolicy(c.Data.CoercionPolicy); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if c.Analysis.ChangeCap <= 0 {
		return errors.ConfigInvalid("CHANGE_CAP must be positive")
	}
	if c.Analysis.TopN < 1 || c.Analysis.ChangeTopN < 1 {
		return errors.ConfigInvalid("TOP_N and CHANGE_TOP_N must be at least 1")
	}
	switch c.Analysis.Hotspot.Threshold {
	case "mean", "median":
		if c.Analysis.Hotspot.Multiplier <= 0 {
			return errors.ConfigInvalid("HOTSPOT_MULTIPLIER must be positive")
		}
	case "fixed":
		if c.Analysis.Hotspot.FixedRate <= 0 {
			return errors.ConfigInvalid("HOTSPOT_FIXED_RATE must be positive for a fixed threshold")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown HOTSPOT_THRESHOLD %q", c.Analysis.Hotspot.Threshold))
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production logging.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Log.Env, "production")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
