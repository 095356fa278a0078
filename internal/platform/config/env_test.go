package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	RequestTimeout time.Duration `env:"TRADEPOST_TEST_REQUEST_TIMEOUT" envDefault:"30s"`
	Countdown      time.Duration `env:"TRADEPOST_TEST_COUNTDOWN" envDefault:"3s"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("expected default request timeout 30s, got %s", cfg.RequestTimeout)
	}
	if cfg.Countdown != 3*time.Second {
		t.Fatalf("expected default countdown 3s, got %s", cfg.Countdown)
	}
}

func TestParseEnvOverride(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TRADEPOST_TEST_COUNTDOWN", "250ms")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Countdown != 250*time.Millisecond {
		t.Fatalf("expected countdown 250ms, got %s", cfg.Countdown)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TRADEPOST_TEST_REQUEST_TIMEOUT", "not-a-duration")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
