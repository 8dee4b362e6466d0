package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address: %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "peerfolio.db" {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("unexpected session ttl: %s", cfg.SessionTTL)
	}
	if cfg.BioMaxLength != 300 {
		t.Fatalf("unexpected bio max length: %d", cfg.BioMaxLength)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadRejectsNonPositiveSessionTTL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "test-secret")
	configViper.Set("session.ttl_minutes", 0)

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for zero session ttl")
	}
}

func TestLoadOverridesFromSettings(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "test-secret")
	configViper.Set("http.address", "127.0.0.1:9090")
	configViper.Set("profile.bio_max_length", 500)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9090" {
		t.Fatalf("unexpected http address: %s", cfg.HTTPAddress)
	}
	if cfg.BioMaxLength != 500 {
		t.Fatalf("unexpected bio max length: %d", cfg.BioMaxLength)
	}
}
