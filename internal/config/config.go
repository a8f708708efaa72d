package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type InstrumentationConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RetentionDays   int     `mapstructure:"retention_days"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
	BufferSize      int     `mapstructure:"buffer_size"`
	FlushIntervalMs int     `mapstructure:"flush_interval_ms"`
}

type Config struct {
	Server                    ServerConfig          `mapstructure:"server"`
	Database                  DatabaseConfig        `mapstructure:"database"`
	Storage                   StorageConfig         `mapstructure:"storage"`
	Instrumentation           InstrumentationConfig `mapstructure:"instrumentation"`
	AI                        AIConfig              `mapstructure:"ai"`
	Enrichment                EnrichmentConfig      `mapstructure:"enrichment"`
	DocGen                    DocGenConfig          `mapstructure:"docgen"`
	JWTSecret                 string                `mapstructure:"jwt_secret"`
	MembershipCacheTTLSeconds int                   `mapstructure:"membership_cache_ttl_seconds"`
	SessionIdleTTLSeconds     int                   `mapstructure:"session_idle_ttl_seconds"`
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	LocalPath string `mapstructure:"local_path"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AIConfig points at an OpenAI-compatible chat completions endpoint
// (OpenRouter, OpenAI, or a local gateway).
type AIConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type EnrichmentConfig struct {
	LLMEnabled      bool `mapstructure:"llm_enabled"`
	LookupTimeoutMs int  `mapstructure:"lookup_timeout_ms"`
}

type DocGenConfig struct {
	Driver      string            `mapstructure:"driver"` // "webhook" or "file"
	WebhookURL  string            `mapstructure:"webhook_url"`
	Headers     map[string]string `mapstructure:"headers"`
	MaxAttempts int               `mapstructure:"max_attempts"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads app.yaml (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	setDefaults(v)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "lexform")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("membership_cache_ttl_seconds", 60)
	v.SetDefault("session_idle_ttl_seconds", 1800)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_path", "./documents")
	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.retention_days", 7)
	v.SetDefault("instrumentation.sampling_rate", 1.0)
	v.SetDefault("instrumentation.buffer_size", 500)
	v.SetDefault("instrumentation.flush_interval_ms", 100)
	v.SetDefault("ai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ai.timeout_ms", 20000)
	v.SetDefault("enrichment.llm_enabled", false)
	v.SetDefault("enrichment.lookup_timeout_ms", 15000)
	v.SetDefault("docgen.driver", "file")
	v.SetDefault("docgen.max_attempts", 3)
}
