package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"servicenest/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Client     ClientConfig     `yaml:"client"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
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

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	// TokenTTL в секундах
	TokenTTL int `yaml:"token_ttl"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ClientConfig configures the agenda session against a remote API.
type ClientConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// RefreshInterval и SnapshotTTL в секундах
	RefreshInterval int                `yaml:"refresh_interval"`
	SnapshotTTL     int                `yaml:"snapshot_ttl"`
	Availability    AvailabilityConfig `yaml:"availability"`
}

type AvailabilityConfig struct {
	Days       []string `yaml:"days"`
	StartHour  int      `yaml:"start_hour"`
	EndHour    int      `yaml:"end_hour"`
	BreakStart int      `yaml:"break_start"`
	BreakEnd   int      `yaml:"break_end"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
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
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.JWTSecret) < 16 {
		return errors.New("api.auth.jwt_secret must be at least 16 characters when auth is enabled")
	}
	if c.API.RateLimit.RPS < 0 || c.API.RateLimit.Burst < 0 {
		return errors.New("api.rate_limit values must not be negative")
	}
	if c.Client.BaseURL != "" {
		u, err := url.Parse(c.Client.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("client.base_url %q is not an absolute URL", c.Client.BaseURL)
		}
	}
	return ValidateAvailability(c.Client.Availability)
}

// ValidateAvailability checks working hours and weekday names.
func ValidateAvailability(a AvailabilityConfig) error {
	for _, d := range a.Days {
		if _, ok := weekdays[d]; !ok {
			return fmt.Errorf("unknown weekday %q", d)
		}
	}
	if a.StartHour < 0 || a.EndHour > 24 || a.StartHour >= a.EndHour {
		return fmt.Errorf("invalid working hours %d-%d", a.StartHour, a.EndHour)
	}
	if a.BreakEnd < a.BreakStart {
		return fmt.Errorf("invalid break %d-%d", a.BreakStart, a.BreakEnd)
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Weekdays converts the configured day names.
func (a AvailabilityConfig) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(a.Days))
	for _, d := range a.Days {
		if wd, ok := weekdays[d]; ok {
			out = append(out, wd)
		}
	}
	return out
}

// RefreshEvery returns the refresh interval as a duration.
func (c ClientConfig) RefreshEvery() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

// SnapshotLifetime returns the snapshot cache TTL as a duration.
func (c ClientConfig) SnapshotLifetime() time.Duration {
	return time.Duration(c.SnapshotTTL) * time.Second
}

// TokenLifetime returns the token TTL as a duration.
func (a APIAuthConfig) TokenLifetime() time.Duration {
	return time.Duration(a.TokenTTL) * time.Second
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "servicenest"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/servicenest.db"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.Issuer == "" {
		c.API.Auth.Issuer = "servicenest"
	}
	if c.API.Auth.TokenTTL == 0 {
		c.API.Auth.TokenTTL = models.DefaultTokenTTL
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.RateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.RateLimitBurst
	}

	// Client defaults
	if c.Client.RefreshInterval == 0 {
		c.Client.RefreshInterval = models.DefaultRefreshInterval
	}
	if c.Client.SnapshotTTL == 0 {
		c.Client.SnapshotTTL = models.DefaultSnapshotTTL
	}
	if len(c.Client.Availability.Days) == 0 {
		c.Client.Availability.Days = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	}
	if c.Client.Availability.EndHour == 0 {
		c.Client.Availability.StartHour = 9
		c.Client.Availability.EndHour = 17
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
