package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Gemini         GeminiConfig         `yaml:"gemini"`
	Storage        StorageConfig        `yaml:"storage"`
	Database       DatabaseConfig       `yaml:"database"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
}

type GeminiConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StorageConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	Bucket         string        `yaml:"bucket"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	EnablePersistence bool   `yaml:"enable_persistence"`
	Driver            string `yaml:"driver"`
	URL               string `yaml:"url"`
	Host              string `yaml:"host"`
	Port              string `yaml:"port"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	Name              string `yaml:"name"`
	SSLMode           string `yaml:"ssl_mode"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides.
// Values absent from the file keep their defaults.
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8080",
			CorsOrigins: []string{"*"},
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-2.0-flash",
		},
		Storage: StorageConfig{
			Bucket: "chat_images",
		},
		Database: DatabaseConfig{
			EnablePersistence: false,
			Driver:            "postgres",
			Host:              "localhost",
			Port:              "5432",
			User:              "postgres",
			Name:              "chat",
			SSLMode:           "disable",
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
			MaxRequests:      3,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 2,
			Burst:             10,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = splitList(val)
	}

	// Gemini overrides
	if val := os.Getenv("GEMINI_API_KEY"); val != "" {
		config.Gemini.APIKey = val
	}
	if val := os.Getenv("GEMINI_BASE_URL"); val != "" {
		config.Gemini.BaseURL = val
	}
	if val := os.Getenv("GEMINI_MODEL"); val != "" {
		config.Gemini.Model = val
	}
	if val := os.Getenv("GEMINI_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Gemini.RequestTimeout = d
		}
	}

	// Storage overrides
	if val := os.Getenv("SUPABASE_URL"); val != "" {
		config.Storage.URL = val
	}
	if val := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); val != "" {
		config.Storage.APIKey = val
	} else if val := os.Getenv("SUPABASE_ANON_KEY"); val != "" && config.Storage.APIKey == "" {
		config.Storage.APIKey = val
	}
	if val := os.Getenv("STORAGE_BUCKET"); val != "" {
		config.Storage.Bucket = val
	}
	if val := os.Getenv("STORAGE_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Storage.RequestTimeout = d
		}
	}

	// Database overrides
	if val := os.Getenv("ENABLE_PERSISTENCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.EnablePersistence = b
		}
	}
	if val := os.Getenv("DATABASE_DRIVER"); val != "" {
		config.Database.Driver = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Database.URL = val
	}
	if val := os.Getenv("DATABASE_HOST"); val != "" {
		config.Database.Host = val
	}
	if val := os.Getenv("DATABASE_PORT"); val != "" {
		config.Database.Port = val
	}
	if val := os.Getenv("DATABASE_USER"); val != "" {
		config.Database.User = val
	}
	if val := os.Getenv("DATABASE_PASSWORD"); val != "" {
		config.Database.Password = val
	}
	if val := os.Getenv("DATABASE_NAME"); val != "" {
		config.Database.Name = val
	}
	if val := os.Getenv("DATABASE_SSL_MODE"); val != "" {
		config.Database.SSLMode = val
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	// Rate limit overrides
	if val := os.Getenv("RATE_LIMIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.RateLimit.Enabled = b
		}
	}
	if val := os.Getenv("RATE_LIMIT_RPS"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			config.RateLimit.RequestsPerSecond = f
		}
	}
	if val := os.Getenv("RATE_LIMIT_BURST"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.RateLimit.Burst = i
		}
	}

	return config
}

func splitList(val string) []string {
	items := strings.Split(val, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// validateConfig validates the configuration and returns errors for invalid values
func validateConfig(config *Config) error {
	var errors []string

	// The key is checked per request, so a missing key only warns here
	if config.Gemini.APIKey == "" {
		logrus.Warn("GEMINI_API_KEY is not set - chat requests will fail until it is configured")
	}
	if config.Gemini.Model == "" {
		errors = append(errors, "gemini model must not be empty")
	}
	if config.Gemini.RequestTimeout < 0 {
		errors = append(errors, fmt.Sprintf("GEMINI_REQUEST_TIMEOUT must not be negative (current: %s)", config.Gemini.RequestTimeout))
	}

	if config.Storage.URL == "" {
		logrus.Warn("SUPABASE_URL is not set - requests with images will fail")
	}
	if config.Storage.Bucket == "" {
		errors = append(errors, "storage bucket must not be empty")
	}
	if config.Storage.RequestTimeout < 0 {
		errors = append(errors, fmt.Sprintf("STORAGE_REQUEST_TIMEOUT must not be negative (current: %s)", config.Storage.RequestTimeout))
	}

	if config.Database.EnablePersistence {
		switch config.Database.Driver {
		case "postgres", "sqlite":
		default:
			errors = append(errors, fmt.Sprintf("DATABASE_DRIVER must be postgres or sqlite (current: %q)", config.Database.Driver))
		}
	}

	switch config.Logging.Format {
	case "json", "text", "auto", "":
	default:
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be json, text or auto (current: %q)", config.Logging.Format))
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond <= 0 {
			errors = append(errors, fmt.Sprintf("RATE_LIMIT_RPS must be positive (current: %.2f)", config.RateLimit.RequestsPerSecond))
		}
		if config.RateLimit.Burst <= 0 {
			errors = append(errors, fmt.Sprintf("RATE_LIMIT_BURST must be positive (current: %d)", config.RateLimit.Burst))
		}
	}

	if len(config.Server.CorsOrigins) == 0 {
		errors = append(errors, "at least one CORS origin must be specified in CORS_ORIGINS or config.yaml")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// GetDatabaseDSN constructs the database connection string
func (c *Config) GetDatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	if c.Database.Driver == "sqlite" {
		if c.Database.Name == "" {
			return "chat.db"
		}
		return c.Database.Name
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Load reads config.yaml (or CONFIG_PATH) with environment overrides
func Load() (*Config, error) {
	return LoadYAML("")
}
