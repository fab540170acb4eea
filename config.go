package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPAddr        = ":9090"
	defaultBasePath        = "/api/v1"
	defaultStorage         = "memory"
	defaultRedisAddr       = "localhost:6379"
	defaultRequestTimeout  = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds the server settings. Values come from an optional TOML file
// and are then overridden by environment variables.
type Config struct {
	HTTPAddr        string         `toml:"http_addr" validate:"required"`
	BasePath        string         `toml:"base_path" validate:"required,startswith=/"`
	Storage         string         `toml:"storage" validate:"oneof=memory redis postgres"`
	Redis           RedisConfig    `toml:"redis"`
	Postgres        PostgresConfig `toml:"postgres"`
	CORS            CORSConfig     `toml:"cors"`
	RequestTimeout  Duration       `toml:"request_timeout" validate:"gt=0"`
	ShutdownTimeout Duration       `toml:"shutdown_timeout" validate:"gt=0"`
	// Seed lists texts inserted at startup when the store is empty.
	Seed []string `toml:"seed" validate:"dive,notblank"`
}

// RedisConfig selects the Redis server and key namespace.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	DB        int    `toml:"db" validate:"gte=0"`
	KeyPrefix string `toml:"key_prefix"`
}

// PostgresConfig holds the connection string and pool size for PostgreSQL.
type PostgresConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns" validate:"gte=0"`
}

// CORSConfig lists origins allowed to call the API; empty disables CORS.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins" validate:"dive,required"`
}

// Duration is a time.Duration written as a Go duration string ("5s") in TOML.
type Duration time.Duration

// UnmarshalText parses a duration such as "250ms" or "5s".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration the way time.Duration prints it.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        defaultHTTPAddr,
		BasePath:        defaultBasePath,
		Storage:         defaultStorage,
		Redis:           RedisConfig{Addr: defaultRedisAddr, KeyPrefix: defaultRedisKeyPrefix},
		RequestTimeout:  Duration(defaultRequestTimeout),
		ShutdownTimeout: Duration(defaultShutdownTimeout),
	}
}

// LoadConfig reads the TOML file at path (skipped when path is empty),
// applies environment overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(content))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				row, col := derr.Position()
				return Config{}, fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
			}
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("HTTP_ADDR"); ok && v != "" {
		cfg.HTTPAddr = v
	}
	if v, ok := lookup("STORAGE"); ok && v != "" {
		cfg.Storage = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		cfg.Redis.Addr = v
	}
	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Postgres.URL = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	for name, dst := range map[string]*Duration{
		"REQUEST_TIMEOUT":  &cfg.RequestTimeout,
		"SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
	} {
		if v, ok := lookup(name); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

// Validate checks field rules and the settings required by the chosen storage.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage {
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("invalid config: redis.addr is required for redis storage")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.URL) == "" {
			return errors.New("invalid config: postgres.url is required for postgres storage")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
