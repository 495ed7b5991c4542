package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	AuthURL        string        `mapstructure:"AUTH_URL"`
	CallbackAddr   string        `mapstructure:"CALLBACK_ADDR"`
	TokenFile      string        `mapstructure:"TOKEN_FILE"`
	ReportDir      string        `mapstructure:"REPORT_DIR"`
	ReportPrefix   string        `mapstructure:"REPORT_PREFIX"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	HTTPTimeout    time.Duration `mapstructure:"HTTP_TIMEOUT"`
	UploadTimeout  time.Duration `mapstructure:"UPLOAD_TIMEOUT"`
	MaxUploadBytes int64         `mapstructure:"MAX_UPLOAD_BYTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("AUTH_URL", "https://auth.emergentagent.com/")
	v.SetDefault("CALLBACK_ADDR", "127.0.0.1:8765")
	v.SetDefault("REPORT_DIR", ".")
	v.SetDefault("REPORT_PREFIX", "ARI_Report")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("UPLOAD_TIMEOUT", "60s")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("API_BASE_URL")
	v.BindEnv("AUTH_URL")
	v.BindEnv("CALLBACK_ADDR")
	v.BindEnv("TOKEN_FILE")
	v.BindEnv("REPORT_DIR")
	v.BindEnv("REPORT_PREFIX")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("HTTP_TIMEOUT")
	v.BindEnv("UPLOAD_TIMEOUT")
	v.BindEnv("MAX_UPLOAD_BYTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFile()
	}

	return cfg, nil
}

// DefaultTokenFile returns the well-known location of the persisted session
// credential for the current user profile.
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ari", "session_token")
	}
	return filepath.Join(home, ".ari", "session_token")
}

// CallbackOrigin returns the http origin of the login callback listener,
// suitable for use as the identity provider's redirect target.
func (c *Config) CallbackOrigin() string {
	return "http://" + c.CallbackAddr
}
