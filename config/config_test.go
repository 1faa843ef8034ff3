package config

import (
	"testing"
	"time"
)

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", DBName: "orbit", User: "u", Password: "p"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	want := "postgres://u:p@db:5432/orbit?sslmode=disable"
	if dsn != want {
		t.Fatalf("dsn = %q, want %q", dsn, want)
	}

	p = PostgresConfig{URL: "postgres://x"}
	if dsn, _ := p.DSN(); dsn != "postgres://x" {
		t.Fatalf("url passthrough = %q", dsn)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatal("expected error for unconfigured postgres")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig("")
	if cfg.General.Listen != ":8080" {
		t.Errorf("listen = %q", cfg.General.Listen)
	}
	if cfg.General.AccessTokenTTL != 30*time.Minute {
		t.Errorf("access ttl = %v", cfg.General.AccessTokenTTL)
	}
	if cfg.Providers.StateTTL != 10*time.Minute {
		t.Errorf("state ttl = %v", cfg.Providers.StateTTL)
	}
	if cfg.LLM.MaxTokens != 1024 {
		t.Errorf("max tokens = %d", cfg.LLM.MaxTokens)
	}
}

func TestLLMConfigValidate(t *testing.T) {
	if err := (LLMConfig{Model: "m"}).Validate(); err == nil {
		t.Fatal("missing api key accepted")
	}
	if err := (LLMConfig{APIKey: "k", Model: "m"}).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
