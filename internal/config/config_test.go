package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RELAY_TOKEN_SECRET", "s3cr3t")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Port)
	}
	if cfg.AllowedOrigin != "http://localhost:3000" {
		t.Errorf("AllowedOrigin = %q", cfg.AllowedOrigin)
	}
	if cfg.TypingIdle != 2*time.Second {
		t.Errorf("TypingIdle = %v, want 2s", cfg.TypingIdle)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Errorf("PingPeriod = %v, want 54s", cfg.PingPeriod)
	}
	if cfg.SendQueue != 32 {
		t.Errorf("SendQueue = %d, want 32", cfg.SendQueue)
	}
	if cfg.PresenceBroadcast {
		t.Error("PresenceBroadcast defaults to true, want false")
	}
	if cfg.TokenSecret != "s3cr3t" {
		t.Errorf("TokenSecret = %q", cfg.TokenSecret)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("RELAY_TOKEN_SECRET", "s3cr3t")
	t.Setenv("RELAY_PORT", "9100")
	t.Setenv("RELAY_ALLOWED_ORIGIN", "https://chat.example.com")
	t.Setenv("RELAY_TYPING_IDLE", "500ms")
	t.Setenv("RELAY_PRESENCE_BROADCAST", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if cfg.AllowedOrigin != "https://chat.example.com" {
		t.Errorf("AllowedOrigin = %q", cfg.AllowedOrigin)
	}
	if cfg.TypingIdle != 500*time.Millisecond {
		t.Errorf("TypingIdle = %v, want 500ms", cfg.TypingIdle)
	}
	if !cfg.PresenceBroadcast {
		t.Error("PresenceBroadcast not overridden")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("RELAY_TOKEN_SECRET", "")

	if _, err := Load(); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Load without secret = %v, want ErrMissingSecret", err)
	}
}
