package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"bookflow/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Tenant     TenantConfig     `yaml:"tenant"`
	Backend    BackendConfig    `yaml:"backend"`
	Redis      RedisConfig      `yaml:"redis"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// TenantConfig fixes the business vertical for this deployment. Every session
// the process opens uses this vertical; it is never negotiated per request.
type TenantConfig struct {
	Vertical       string `yaml:"vertical"`
	MaxAdvanceDays int    `yaml:"max_advance_days"`
	DefaultTarget  string `yaml:"default_target_time"`
}

type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SessionsConfig struct {
	TTLSeconds        int `yaml:"ttl_seconds"`
	RateLimitRequests int `yaml:"rate_limit_requests"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
}

type APIConfig struct {
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

// APIAuthConfig guards the operator surface only; the customer flow is open.
type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if !models.Vertical(c.Tenant.Vertical).Valid() {
		return fmt.Errorf("unknown tenant vertical %q", c.Tenant.Vertical)
	}

	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}

	if c.Tenant.DefaultTarget != "" {
		if _, err := time.Parse("15:04", c.Tenant.DefaultTarget); err != nil {
			return fmt.Errorf("tenant default_target_time must be HH:MM: %w", err)
		}
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Tenant.MaxAdvanceDays == 0 {
		c.Tenant.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 15
	}

	if c.Sessions.TTLSeconds == 0 {
		c.Sessions.TTLSeconds = models.DefaultSessionTTL
	}
	if c.Sessions.RateLimitRequests == 0 {
		c.Sessions.RateLimitRequests = models.RateLimitRequests
	}
	if c.Sessions.RateLimitWindow == 0 {
		c.Sessions.RateLimitWindow = models.RateLimitWindow
	}
}
