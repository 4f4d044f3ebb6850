package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"pairspace-backend/internal/lockout"
	"pairspace-backend/internal/security"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g. PAIRSPACE_DATABASE_PASSWORD
const EnvPrefix = "PAIRSPACE"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Quiz      QuizConfig      `yaml:"quiz"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	APNS      APNSConfig      `yaml:"apns"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	Development bool     `yaml:"development"`
	CORSOrigins []string `yaml:"cors_origins"` // empty allows any origin
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds token signing and password hashing settings
type AuthConfig struct {
	TokenSecret string                `yaml:"token_secret"`
	Argon2      security.Argon2Params `yaml:"argon2"`
}

// QuizConfig holds the lockout policy
type QuizConfig struct {
	MaxAttempts int            `yaml:"max_attempts"`
	Lockout     []lockout.Tier `yaml:"lockout"`
}

// Policy converts the quiz settings into a lockout policy
func (q QuizConfig) Policy() lockout.Policy {
	return lockout.Policy{MaxAttempts: q.MaxAttempts, Tiers: q.Lockout}
}

// StorageConfig selects the media backend
type StorageConfig struct {
	Backend        string     `yaml:"backend"` // "disk" or "s3"
	MaxUploadBytes int64      `yaml:"max_upload_bytes"`
	Disk           DiskConfig `yaml:"disk"`
	S3             S3Config   `yaml:"s3"`
}

// DiskConfig holds local upload storage configuration
type DiskConfig struct {
	Root string `yaml:"root"`
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"public_base_url"`
	UsePathStyle  bool   `yaml:"use_path_style"`
}

// RedisConfig enables cross-instance event delivery when URL is set
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// APNSConfig enables push notifications when KeyPath is set
type APNSConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// RateLimitConfig holds limiter rates in ulule format ("20-M")
type RateLimitConfig struct {
	Auth string `yaml:"auth"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&cfg, viper.New())
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	setString("server.host", &cfg.Server.Host)
	setInt("server.port", &cfg.Server.Port)
	setString("database.host", &cfg.Database.Host)
	setInt("database.port", &cfg.Database.Port)
	setString("database.user", &cfg.Database.User)
	setString("database.password", &cfg.Database.Password)
	setString("database.dbname", &cfg.Database.DBName)
	setString("database.sslmode", &cfg.Database.SSLMode)
	setString("auth.token_secret", &cfg.Auth.TokenSecret)
	setString("storage.backend", &cfg.Storage.Backend)
	setString("storage.s3.access_key", &cfg.Storage.S3.AccessKey)
	setString("storage.s3.secret_key", &cfg.Storage.S3.SecretKey)
	setString("redis.url", &cfg.Redis.URL)
	setString("log.level", &cfg.Log.Level)
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Quiz.MaxAttempts == 0 {
		c.Quiz.MaxAttempts = lockout.DefaultPolicy().MaxAttempts
	}
	if len(c.Quiz.Lockout) == 0 {
		c.Quiz.Lockout = lockout.DefaultPolicy().Tiers
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "disk"
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = 10 << 20
	}
	if c.Storage.Disk.Root == "" {
		c.Storage.Disk.Root = "uploads"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "pairspace:events"
	}
	if c.RateLimit.Auth == "" {
		c.RateLimit.Auth = "20-M"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks for settings the server cannot start without
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return errors.New("auth.token_secret is required")
	}
	switch c.Storage.Backend {
	case "disk":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	for i, t := range c.Quiz.Lockout {
		if t.Threshold <= 0 || t.Duration <= 0 {
			return fmt.Errorf("quiz.lockout[%d] must have a positive threshold and duration", i)
		}
		if i > 0 && t.Threshold <= c.Quiz.Lockout[i-1].Threshold {
			return fmt.Errorf("quiz.lockout thresholds must increase")
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the connection string in URL form, as required by migrate
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 15 * time.Second
