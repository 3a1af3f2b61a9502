package config

import (
	"testing"
	"time"
)

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "production", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceagent", SSLMode: ""},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		Backend: BackendConfig{OpenAIAPIKey: "k"},
		Session: SessionConfig{StreamPublicURL: "wss://example.com/stream"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "local", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceagent", SSLMode: ""},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret"},
		Backend: BackendConfig{OpenAIAPIKey: "k"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Session.TurnDeadline != 3*time.Second {
		t.Fatalf("expected 3s turn deadline default, got %v", c.Session.TurnDeadline)
	}
	if c.Session.TerminationGrace != 5*time.Second {
		t.Fatalf("expected 5s termination grace default, got %v", c.Session.TerminationGrace)
	}
	if c.Session.IdentityRetryDelay != 300*time.Millisecond {
		t.Fatalf("expected 300ms identity retry delay default, got %v", c.Session.IdentityRetryDelay)
	}
	if c.Backend.Model == "" {
		t.Fatalf("expected backend model default")
	}
}

func TestValidate_ProductionRequiresStreamURL(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "production", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceagent", SSLMode: "require"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		Backend: BackendConfig{OpenAIAPIKey: "k"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without STREAM_PUBLIC_URL")
	}
}
