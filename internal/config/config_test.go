package config

import "testing"

func TestNamespaceProduction(t *testing.T) {
	c := Config{Environment: "production"}
	if got := c.Namespace("commands"); got != "commands" {
		t.Fatalf("expected unprefixed name in production, got %q", got)
	}
	if got := c.KVNamespace("sub:user:1"); got != "sub:user:1" {
		t.Fatalf("expected unprefixed key in production, got %q", got)
	}
}

func TestNamespaceStaging(t *testing.T) {
	c := Config{Environment: "staging"}
	if got := c.Namespace("commands"); got != "staging_commands" {
		t.Fatalf("expected staging_ prefix, got %q", got)
	}
	if got := c.KVNamespace("sub:user:1"); got != "staging:sub:user:1" {
		t.Fatalf("expected staging: prefix, got %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPAddr == "" {
		t.Fatal("expected a default HTTP address")
	}
	if cfg.RetryAttempts <= 0 {
		t.Fatal("expected a positive default retry attempts")
	}
}
