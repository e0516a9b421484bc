package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the process reads from the environment at start.
// All values are immutable for the process lifetime.
type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	TokenSecret   string        `mapstructure:"token_secret"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	SendQueue     int           `mapstructure:"send_queue"`
	TypingIdle    time.Duration `mapstructure:"typing_idle"`
	// PresenceBroadcast controls whether join/leave fan out user_joined /
	// user_left to the other room members.
	PresenceBroadcast bool `mapstructure:"presence_broadcast"`
	// MalformedBurst is how many malformed events a connection may send in a
	// short window before it is disconnected.
	MalformedBurst int `mapstructure:"malformed_burst"`
}

var ErrMissingSecret = errors.New("RELAY_TOKEN_SECRET is required")

// Load reads RELAY_* environment variables, falling back to defaults for
// everything except the token secret.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("relay")
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 4000)
	v.SetDefault("allowed_origin", "http://localhost:3000")
	v.SetDefault("token_secret", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_queue", 32)
	v.SetDefault("typing_idle", "2s")
	v.SetDefault("presence_broadcast", false)
	v.SetDefault("malformed_burst", 5)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.TokenSecret == "" {
		return nil, ErrMissingSecret
	}
	return &cfg, nil
}
