package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogMode     string         `mapstructure:"log_mode"`
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Auth        AuthConfig     `mapstructure:"auth"`
	LLM         LLMConfig      `mapstructure:"llm"`
	PHQ9        PHQ9Config     `mapstructure:"phq9"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	AllowOrigins    []string `mapstructure:"allow_origins"`
	ShutdownSeconds int      `mapstructure:"shutdown_seconds"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	// SQLitePath is only used with the sqlite driver.
	SQLitePath  string `mapstructure:"sqlite_path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	// LockTimeout bounds row-lock waits inside assessment writes (postgres only).
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type AuthConfig struct {
	JWTSecretKey string `mapstructure:"jwt_secret_key"`
	Issuer       string `mapstructure:"issuer"`
}

type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type PHQ9Config struct {
	SpacingThreshold  int           `mapstructure:"spacing_threshold"`
	FallbackScore     int           `mapstructure:"fallback_score"`
	DetectorTimeout   time.Duration `mapstructure:"detector_timeout"`
	ScorerTimeout     time.Duration `mapstructure:"scorer_timeout"`
	ScorerMaxAttempts int           `mapstructure:"scorer_max_attempts"`
	LockWarnAfter     time.Duration `mapstructure:"lock_warn_after"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl"`
}

type MetricsConfig struct {
	Enabled bool      `mapstructure:"enabled"`
	Path    string    `mapstructure:"path"`
	SLO     SLOConfig `mapstructure:"slo"`
}

type SLOConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	Interval               time.Duration `mapstructure:"interval"`
	Window                 time.Duration `mapstructure:"window"`
	APIAvailabilityTarget  float64       `mapstructure:"api_availability_target"`
	DetectorSuccessTarget  float64       `mapstructure:"detector_success_target"`
	ScorerSuccessTarget    float64       `mapstructure:"scorer_success_target"`
	AnswerDurabilityTarget float64       `mapstructure:"answer_durability_target"`
	AlertWebhookURL        string        `mapstructure:"alert_webhook_url"`
	AlertOwner             string        `mapstructure:"alert_owner"`
	AlertMinInterval       time.Duration `mapstructure:"alert_min_interval"`
}

// envBindings maps config keys to the flat env names used in deployments.
var envBindings = map[string]string{
	"log_mode":                 "LOG_MODE",
	"environment":              "APP_ENV",
	"server.port":              "PORT",
	"server.allow_origins":     "CORS_ALLOW_ORIGINS",
	"server.shutdown_seconds":  "SHUTDOWN_TIMEOUT_SECONDS",
	"database.driver":          "DB_DRIVER",
	"database.host":            "POSTGRES_HOST",
	"database.port":            "POSTGRES_PORT",
	"database.user":            "POSTGRES_USER",
	"database.password":        "POSTGRES_PASSWORD",
	"database.name":            "POSTGRES_NAME",
	"database.sslmode":         "POSTGRES_SSLMODE",
	"database.sqlite_path":     "SQLITE_PATH",
	"database.auto_migrate":    "DB_AUTO_MIGRATE",
	"database.lock_timeout":    "DB_LOCK_TIMEOUT",
	"redis.addr":               "REDIS_ADDR",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"redis.channel":            "REDIS_CHANNEL",
	"auth.jwt_secret_key":      "JWT_SECRET_KEY",
	"auth.issuer":              "JWT_ISSUER",
	"llm.base_url":             "LLM_BASE_URL",
	"llm.api_key":              "LLM_API_KEY",
	"llm.model":                "LLM_MODEL",
	"phq9.spacing_threshold":   "PHQ9_SPACING_THRESHOLD",
	"phq9.fallback_score":      "PHQ9_FALLBACK_SCORE",
	"phq9.detector_timeout":    "DETECTOR_TIMEOUT",
	"phq9.scorer_timeout":      "SCORER_TIMEOUT",
	"phq9.scorer_max_attempts": "SCORER_MAX_ATTEMPTS",
	"phq9.lock_warn_after":     "LOCK_WARN_AFTER",
	"phq9.idempotency_ttl":     "IDEMPOTENCY_TTL",
	"metrics.enabled":          "METRICS_ENABLED",
	"metrics.path":             "METRICS_PATH",

	"metrics.slo.enabled":                  "SLO_ENABLED",
	"metrics.slo.interval":                 "SLO_EVAL_INTERVAL",
	"metrics.slo.window":                   "SLO_WINDOW",
	"metrics.slo.api_availability_target":  "SLO_API_AVAIL_TARGET",
	"metrics.slo.detector_success_target":  "SLO_DETECTOR_SUCCESS_TARGET",
	"metrics.slo.scorer_success_target":    "SLO_SCORER_SUCCESS_TARGET",
	"metrics.slo.answer_durability_target": "SLO_ANSWER_DURABILITY_TARGET",
	"metrics.slo.alert_webhook_url":        "SLO_ALERT_WEBHOOK_URL",
	"metrics.slo.alert_owner":              "SLO_ALERT_OWNER",
	"metrics.slo.alert_min_interval":       "SLO_ALERT_MIN_INTERVAL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_mode", "development")
	v.SetDefault("environment", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.shutdown_seconds", 30)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "wellchat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "wellchat.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.lock_timeout", 3*time.Second)
	v.SetDefault("redis.channel", "assessment-events")
	v.SetDefault("auth.issuer", "wellchat")
	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("phq9.spacing_threshold", 3)
	v.SetDefault("phq9.fallback_score", 1)
	v.SetDefault("phq9.detector_timeout", 30*time.Second)
	v.SetDefault("phq9.scorer_timeout", 20*time.Second)
	v.SetDefault("phq9.scorer_max_attempts", 1)
	v.SetDefault("phq9.lock_warn_after", 2*time.Second)
	v.SetDefault("phq9.idempotency_ttl", 24*time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.slo.enabled", false)
	v.SetDefault("metrics.slo.interval", time.Minute)
	v.SetDefault("metrics.slo.window", 24*time.Hour)
}

// Load reads an optional YAML config file, then a .env file, then the environment.
// Environment values win over file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.PHQ9.SpacingThreshold < 1 {
		c.PHQ9.SpacingThreshold = 1
	}
	if c.PHQ9.FallbackScore < 0 || c.PHQ9.FallbackScore > 3 {
		return fmt.Errorf("phq9.fallback_score must be within [0,3], got %d", c.PHQ9.FallbackScore)
	}
	if c.PHQ9.ScorerMaxAttempts < 1 {
		c.PHQ9.ScorerMaxAttempts = 1
	}
	if c.PHQ9.DetectorTimeout <= 0 || c.PHQ9.ScorerTimeout <= 0 {
		return errors.New("collaborator timeouts must be positive")
	}
	if strings.TrimSpace(c.Auth.JWTSecretKey) == "" && !c.IsDev() {
		return errors.New("auth.jwt_secret_key is required outside dev")
	}
	return nil
}

func (c *Config) IsDev() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// PostgresDSN renders the connection URL for the postgres driver.
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}
