package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Quiz struct {
		// Window is the per-question collection window, e.g. "20s".
		Window string `yaml:"window"`
	} `yaml:"quiz"`
	Storage struct {
		Driver     string `yaml:"driver" validate:"omitempty,oneof=memory file sqlite postgres redis"`
		Dir        string `yaml:"dir"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Telegram struct {
		Token string `yaml:"token"`
		Debug bool   `yaml:"debug"`
	} `yaml:"telegram"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" validate:"omitempty,min=16"`
	} `yaml:"auth"`
	Fetch struct {
		Timeout  string `yaml:"timeout"`
		MaxBytes int64  `yaml:"max_bytes" validate:"gte=0"`
	} `yaml:"fetch"`
}

// Load reads YAML config from path and applies environment overrides.
// A missing file is not an error; everything then comes from the environment.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Server.Port, "PORT")
	override(&c.Telegram.Token, "TELEGRAM_TOKEN")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Postgres.URL, "POSTGRES_URL")
	override(&c.Storage.Driver, "STORAGE_DRIVER")
	override(&c.Storage.Dir, "STORAGE_DIR")
	override(&c.Quiz.Window, "QUIZ_WINDOW")
	if v := os.Getenv("TELEGRAM_DEBUG"); v != "" {
		c.Telegram.Debug, _ = strconv.ParseBool(v)
	}
}

// Validate checks field constraints and cross-field requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, raw := range map[string]string{
		"quiz.window":   c.Quiz.Window,
		"redis.ttl":     c.Redis.TTL,
		"fetch.timeout": c.Fetch.Timeout,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.URL == "" {
			return errors.New("invalid config: storage driver postgres needs postgres.url")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("invalid config: storage driver redis needs redis.addr")
		}
	}
	return nil
}

// StorageDriver returns the configured driver, defaulting to file storage.
func (c Config) StorageDriver() string {
	if c.Storage.Driver == "" {
		return "file"
	}
	return c.Storage.Driver
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
