package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Translator TranslatorConfig `yaml:"translator"`
	Messages   MessagesConfig   `yaml:"messages"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	RateRPS     float64  `yaml:"rate_rps"`
	RateBurst   int      `yaml:"rate_burst"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry int    `yaml:"jwt_expiry_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StoragePebble   = "pebble"

	TranslatorWatson = "watson"
	TranslatorNone   = "none"
)

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	PebblePath  string `yaml:"pebble_path"`
}

type TranslatorConfig struct {
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Version  string        `yaml:"version"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MessagesConfig struct {
	// MaxSize is a human readable byte size such as "8 KiB".
	MaxSize string `yaml:"max_size"`
	// MaxBytes is MaxSize parsed; 0 disables the limit.
	MaxBytes int `yaml:"-"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        "8081",
			CORSOrigins: []string{"*"},
			RateRPS:     20,
			RateBurst:   40,
		},
		Auth: AuthConfig{
			JWTSecret: "dev-super-secret-change-me",
			JWTExpiry: 24,
		},
		Log:        LogConfig{Level: "info", Format: "console"},
		Storage:    StorageConfig{Driver: StorageMemory, PebblePath: "./.data"},
		Translator: TranslatorConfig{Provider: TranslatorNone, Version: "2018-05-01"},
		Messages:   MessagesConfig{MaxSize: "8 KiB"},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (or $CHAT_CONFIG), then environment variables (a .env file in the
// working directory is honoured).
func Load(path string) (Config, error) {
	cfg := Defaults()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("CHAT_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.finalize(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	cfg.Server.RateRPS = getEnvAsFloat("RATE_RPS", cfg.Server.RateRPS)
	cfg.Server.RateBurst = getEnvAsInt("RATE_BURST", cfg.Server.RateBurst)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpiry = getEnvAsInt("JWT_EXPIRY", cfg.Auth.JWTExpiry)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Storage.Driver = getEnv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DatabaseURL = getEnv("DATABASE_URL", cfg.Storage.DatabaseURL)
	cfg.Storage.PebblePath = getEnv("PEBBLE_PATH", cfg.Storage.PebblePath)

	cfg.Translator.Provider = getEnv("TRANSLATOR_PROVIDER", cfg.Translator.Provider)
	cfg.Translator.URL = getEnv("TRANSLATOR_URL", cfg.Translator.URL)
	cfg.Translator.APIKey = getEnv("TRANSLATOR_API_KEY", cfg.Translator.APIKey)
	cfg.Translator.Version = getEnv("TRANSLATOR_VERSION", cfg.Translator.Version)
	cfg.Translator.Timeout = getEnvAsDuration("TRANSLATOR_TIMEOUT", cfg.Translator.Timeout)

	cfg.Messages.MaxSize = getEnv("MAX_MESSAGE_SIZE", cfg.Messages.MaxSize)
}

func (c *Config) finalize() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Translator.Provider = strings.ToLower(strings.TrimSpace(c.Translator.Provider))
	if strings.TrimSpace(c.Messages.MaxSize) == "" || c.Messages.MaxSize == "0" {
		c.Messages.MaxBytes = 0
		return nil
	}
	n, err := humanize.ParseBytes(c.Messages.MaxSize)
	if err != nil {
		return fmt.Errorf("messages.max_size %q: %w", c.Messages.MaxSize, err)
	}
	c.Messages.MaxBytes = int(n)
	return nil
}

// Validate reports configuration that cannot start a server.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.JWTExpiry <= 0 {
		errs = append(errs, errors.New("auth.jwt_expiry_hours must be positive"))
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for postgres"))
		}
	case StoragePebble:
		if c.Storage.PebblePath == "" {
			errs = append(errs, errors.New("storage.pebble_path is required for pebble"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Translator.Provider {
	case TranslatorNone:
	case TranslatorWatson:
		if c.Translator.URL == "" || c.Translator.APIKey == "" {
			errs = append(errs, errors.New("translator.url and translator.api_key are required for watson"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown translator provider %q", c.Translator.Provider))
	}
	return errors.Join(errs...)
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.Auth.JWTExpiry) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
