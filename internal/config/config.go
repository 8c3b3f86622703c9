// Package config provides runtime configuration values for the service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is read once at startup and handed to constructors by value.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" validate:"required"`
	GRPCAddr        string        `yaml:"grpc_addr" validate:"required"`
	DatabaseURI     string        `yaml:"database_uri" validate:"required"`
	RedisAddr       string        `yaml:"redis_addr"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	Auth            AuthConfig    `yaml:"auth"`
	Profile         ProfileConfig `yaml:"profile"`
}

type AuthConfig struct {
	// SecretKey is the HMAC secret, or a PEM public key for RS* algorithms.
	SecretKey    string `yaml:"secret_key" validate:"required"`
	Algorithm    string `yaml:"algorithm" validate:"oneof=HS256 HS384 HS512 RS256 RS384 RS512"`
	SubjectClaim string `yaml:"subject_claim" validate:"required"`
}

type ProfileConfig struct {
	ServiceURL string        `yaml:"service_url" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	CacheTTL   time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	CacheSize  int           `yaml:"cache_size" validate:"gt=0"`
}

func Default() Config {
	return Config{
		HTTPAddr:        ":8100",
		GRPCAddr:        ":50051",
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		Auth: AuthConfig{
			Algorithm:    "HS256",
			SubjectClaim: "user_id",
		},
		Profile: ProfileConfig{
			Timeout:   5 * time.Second,
			CacheTTL:  900 * time.Second,
			CacheSize: 10000,
		},
	}
}

// Load starts from Default, overlays the YAML file at path (if path is not
// empty), then environment variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = getenv("GRPC_ADDR", cfg.GRPCAddr)
	cfg.DatabaseURI = getenv("DATABASE_URI", cfg.DatabaseURI)
	cfg.RedisAddr = getenv("REDIS_ADDR", cfg.RedisAddr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.Auth.SecretKey = getenv("JWT_SECRET_KEY", cfg.Auth.SecretKey)
	cfg.Auth.Algorithm = getenv("HASHING_ALGORITHM", cfg.Auth.Algorithm)
	cfg.Auth.SubjectClaim = getenv("SUBJECT_CLAIM", cfg.Auth.SubjectClaim)
	cfg.Profile.ServiceURL = getenv("USER_SERVICE_URL", cfg.Profile.ServiceURL)

	var errs []error
	var err error
	if cfg.ShutdownTimeout, err = durenv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Profile.Timeout, err = durenv("PROFILE_TIMEOUT", cfg.Profile.Timeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Profile.CacheTTL, err = durenv("PROFILE_CACHE_TTL", cfg.Profile.CacheTTL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Profile.CacheSize, err = atoienv("PROFILE_CACHE_SIZE", cfg.Profile.CacheSize); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// durenv accepts a Go duration ("15m") or a bare number of seconds ("900").
func durenv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
