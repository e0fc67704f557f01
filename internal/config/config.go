// Package config loads the service configuration from an optional YAML file
// and IDEOSCOPE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

const (
	EnvPrefix = "IDEOSCOPE"
	FileName  = "ideoscope"

	// DefaultJWTSecret is only accepted in debug mode.
	DefaultJWTSecret = "change-me-in-production"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	GinMode           string        `mapstructure:"gin_mode"`
	EnableHSTS        bool          `mapstructure:"enable_hsts"`
	EnableProfiling   bool          `mapstructure:"enable_profiling"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

type DatabaseConfig struct {
	DataDir         string        `mapstructure:"data_dir"`
	File            string        `mapstructure:"file"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	CookieName string        `mapstructure:"cookie_name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	IPPerMin         int `mapstructure:"ip_per_min"`
	NarrativePerWeek int `mapstructure:"narrative_per_week"`
	BurstMultiplier  int `mapstructure:"burst_multiplier"`
	SessionPerMin    int `mapstructure:"session_per_min"`
}

type ScoringConfig struct {
	MissingAnswerPolicy string `mapstructure:"missing_answer_policy"`
	DefaultLanguage     string `mapstructure:"default_language"`
	// Seed for public figure selection. Zero seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

type NarrativeConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	ProPriceID    string `mapstructure:"pro_price_id"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

type TelemetryConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	ServiceName string            `mapstructure:"service_name"`
	Environment string            `mapstructure:"environment"`
	Endpoint    string            `mapstructure:"endpoint"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	SampleRatio float64           `mapstructure:"sample_ratio"`
}

type CacheConfig struct {
	CatalogTTL         time.Duration `mapstructure:"catalog_ttl"`
	ResponseTTL        time.Duration `mapstructure:"response_ttl"`
	LeaderboardTTL     time.Duration `mapstructure:"leaderboard_ttl"`
	LeaderboardRefresh time.Duration `mapstructure:"leaderboard_refresh"`
}

type PrivacyConfig struct {
	RetentionDays int `mapstructure:"retention_days"`

	// Zero disables the background sweep.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type AlertingConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`

	// Slack-compatible incoming webhook; empty means log only.
	WebhookURL string `mapstructure:"webhook_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.enable_hsts", false)
	v.SetDefault("server.enable_profiling", false)
	v.SetDefault("server.enable_compression", true)

	v.SetDefault("database.data_dir", "./data")
	v.SetDefault("database.file", "ideoscope.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.session_ttl", 30*24*time.Hour)
	v.SetDefault("auth.cookie_name", "ideoscope_session")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.ip_per_min", 60)
	v.SetDefault("ratelimit.narrative_per_week", 5)
	v.SetDefault("ratelimit.burst_multiplier", 2)
	v.SetDefault("ratelimit.session_per_min", 10)

	v.SetDefault("scoring.missing_answer_policy", string(scoring.MissingAnswerReject))
	v.SetDefault("scoring.default_language", i18n.LangEnglish)
	v.SetDefault("scoring.seed", 0)

	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.model", "gemini-2.0-flash")
	v.SetDefault("narrative.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("narrative.timeout", 60*time.Second)

	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.pro_price_id", "")
	v.SetDefault("stripe.success_url", "http://localhost:5173/payment/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("stripe.cancel_url", "http://localhost:5173/payment/cancelled")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "ideoscope")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 0.1)

	v.SetDefault("cache.catalog_ttl", 10*time.Minute)
	v.SetDefault("cache.response_ttl", 5*time.Minute)
	v.SetDefault("cache.leaderboard_ttl", 15*time.Minute)
	v.SetDefault("cache.leaderboard_refresh", 10*time.Minute)

	v.SetDefault("privacy.retention_days", 180)
	v.SetDefault("privacy.cleanup_interval", 24*time.Hour)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.interval", 30*time.Second)
	v.SetDefault("alerting.webhook_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the configuration. path names an explicit file; when empty,
// ideoscope.yaml is looked up in the working directory and $HOME and a
// missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, e.g. one with CLI
// flags already bound.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	return load(v, path, true)
}

// LoadOffline is LoadWith for tools that never serve requests. Auth
// secrets are not checked.
func LoadOffline(v *viper.Viper, path string) (*Config, error) {
	return load(v, path, false)
}

func load(v *viper.Viper, path string, serving bool) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := cfg.validate(serving); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(serving bool) error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		problems = append(problems, fmt.Sprintf("server.gin_mode %q is not debug, release or test", c.Server.GinMode))
	}

	if serving {
		switch {
		case c.Auth.JWTSecret == "":
			problems = append(problems, "auth.jwt_secret is empty")
		case c.Auth.JWTSecret == DefaultJWTSecret && c.Server.GinMode == "release":
			problems = append(problems, "auth.jwt_secret must be changed outside debug mode")
		}
	}

	if _, err := scoring.ParseMissingAnswerPolicy(c.Scoring.MissingAnswerPolicy); err != nil {
		problems = append(problems, "scoring.missing_answer_policy: "+err.Error())
	}
	if !i18n.IsSupported(c.Scoring.DefaultLanguage) {
		problems = append(problems, fmt.Sprintf("scoring.default_language %q is not supported", c.Scoring.DefaultLanguage))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		problems = append(problems, "telemetry.sample_ratio must be within [0, 1]")
	}
	if c.RateLimit.IPPerMin < 0 || c.RateLimit.NarrativePerWeek < 0 {
		problems = append(problems, "ratelimit values must not be negative")
	}
	if c.Privacy.RetentionDays < 1 {
		problems = append(problems, fmt.Sprintf("privacy.retention_days %d must be at least 1", c.Privacy.RetentionDays))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MissingAnswerPolicy returns the parsed policy. Validate has checked it.
func (c *Config) MissingAnswerPolicy() scoring.MissingAnswerPolicy {
	policy, _ := scoring.ParseMissingAnswerPolicy(c.Scoring.MissingAnswerPolicy)
	return policy
}

// PaymentsEnabled reports whether Stripe checkout is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.Stripe.SecretKey != ""
}
