package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

const minimalConfig = `app:
  name: "tradedash"
  version: "1.0"
backend:
  url: "http://backend.local:8000"
coordinator:
  default_quote: " usdc "
  switch_timeout: 5s
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "tradedash" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Backend.URL != "http://backend.local:8000" {
		t.Errorf("unexpected backend url: %s", cfg.Backend.URL)
	}
	if cfg.Coordinator.DefaultQuote != "USDC" {
		t.Errorf("default quote not canonicalised: %q", cfg.Coordinator.DefaultQuote)
	}
	if cfg.Coordinator.SwitchTimeout != 5*time.Second {
		t.Errorf("unexpected switch timeout: %v", cfg.Coordinator.SwitchTimeout)
	}
	// keys missing from the file keep their defaults
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("backend timeout default lost: %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.RateLimit.RequestsPerSecond != 20 {
		t.Errorf("rate limit default lost: %d", cfg.Backend.RateLimit.RequestsPerSecond)
	}
}

func TestLoadConfigBackendURLFromEnv(t *testing.T) {
	t.Setenv("BACKEND_URL", " https://override.example.com ")
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Backend.URL != "https://override.example.com" {
		t.Fatalf("env override not applied: %q", cfg.Backend.URL)
	}
}

func TestLoadConfigRejectsMissingName(t *testing.T) {
	path := writeTempConfig(t, "app:\n  version: \"1\"\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing app.name")
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		c := Default()
		c.App = AppConfig{Name: "x", Version: "1"}
		return c
	}

	cases := map[string]func(*Config){
		"relative backend url": func(c *Config) { c.Backend.URL = "/api" },
		"zero timeout":         func(c *Config) { c.Backend.Timeout = 0 },
		"stream http scheme":   func(c *Config) { c.Stream.Enabled = true; c.Stream.URL = "http://x" },
		"empty quote":          func(c *Config) { c.Coordinator.DefaultQuote = "" },
		"archive no bucket":    func(c *Config) { c.Archive.Enabled = true; c.Storage.S3.Region = "eu-west-1" },
		"kafka no brokers":     func(c *Config) { c.Storage.Kafka.Enabled = true },
		"archive bad bucket": func(c *Config) {
			c.Archive.Enabled = true
			c.Storage.S3 = S3Config{Bucket: "Bad_Bucket", Region: "eu-west-1"}
		},
	}

	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := validateConfig(&cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	cfg := base()
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestKafkaBrokersFromEnv(t *testing.T) {
	path := writeTempConfig(t, "app:\n  name: tradedash\n  version: \"1\"\nstorage:\n  kafka:\n    enabled: true\n")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Storage.Kafka.Brokers) != 2 || cfg.Storage.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %#v", cfg.Storage.Kafka.Brokers)
	}
	if cfg.Storage.Kafka.Topic != "tradedash.events" {
		t.Fatalf("default topic not applied: %q", cfg.Storage.Kafka.Topic)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	valid := []string{"tradedash-archive", "a.b.c", "abc"}
	invalid := []string{"ab", "-abc", "abc.", "a..b", "UPPER"}
	for _, name := range valid {
		if !isValidS3Bucket(name) {
			t.Errorf("%q should be valid", name)
		}
	}
	for _, name := range invalid {
		if isValidS3Bucket(name) {
			t.Errorf("%q should be invalid", name)
		}
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	prodPath := filepath.Join(dir, "prod.yml")
	if err := os.WriteFile(prodPath, []byte("x: 1"), 0o600); err != nil {
		t.Fatal(err)
	}
	envPaths := map[string]string{environmentProduction: prodPath}

	t.Setenv("APP_ENV", "prod")
	if got := resolveEnvSpecificPath("", "default.yml", envPaths); got != prodPath {
		t.Fatalf("expected production path, got %q", got)
	}
	if got := resolveEnvSpecificPath("custom.yml", "default.yml", envPaths); got != "custom.yml" {
		t.Fatalf("explicit path must win, got %q", got)
	}

	t.Setenv("APP_ENV", "")
	if got := resolveEnvSpecificPath("", "default.yml", envPaths); got != "default.yml" {
		t.Fatalf("development should keep default, got %q", got)
	}
}
