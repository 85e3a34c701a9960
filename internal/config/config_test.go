package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.AttrTTL != time.Second {
		t.Errorf("expected default ttl 1s, got %v", cfg.AttrTTL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("expected default 3 retries, got %d", cfg.RetryAttempts)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "davmount.yaml")
	data := `server_url: https://dav.example/files/alice
username: alice
log_level: debug
attr_ttl: 5s
prefetch: true
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "https://dav.example/files/alice" {
		t.Errorf("unexpected server url %q", cfg.ServerURL)
	}
	if cfg.Username != "alice" {
		t.Errorf("unexpected username %q", cfg.Username)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("unexpected log level %q", cfg.LogLevel)
	}
	if cfg.AttrTTL != 5*time.Second {
		t.Errorf("unexpected ttl %v", cfg.AttrTTL)
	}
	if !cfg.Prefetch {
		t.Error("expected prefetch enabled")
	}
	// Values the file omits keep their defaults.
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected timeout %v", cfg.RequestTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "davmount.yaml")
	if err := os.WriteFile(path, []byte("server_url: https://file.example\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("DAVMOUNT_URL", "https://env.example")
	t.Setenv("DAVMOUNT_ATTR_TTL", "2s")
	t.Setenv("DAVMOUNT_RETRY_ATTEMPTS", "7")
	t.Setenv("DAVMOUNT_PREFETCH", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "https://env.example" {
		t.Errorf("environment must win over the file, got %q", cfg.ServerURL)
	}
	if cfg.AttrTTL != 2*time.Second {
		t.Errorf("unexpected ttl %v", cfg.AttrTTL)
	}
	if cfg.RetryAttempts != 7 {
		t.Errorf("unexpected retries %d", cfg.RetryAttempts)
	}
	if !cfg.Prefetch {
		t.Error("expected prefetch enabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoad_BadEnvValuesIgnored(t *testing.T) {
	t.Setenv("DAVMOUNT_ATTR_TTL", "not-a-duration")
	t.Setenv("DAVMOUNT_RETRY_ATTEMPTS", "minus-one")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AttrTTL != time.Second {
		t.Errorf("malformed duration must fall back to the default, got %v", cfg.AttrTTL)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("malformed count must fall back to the default, got %d", cfg.RetryAttempts)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error without a server URL")
	}
	cfg.ServerURL = "https://dav.example"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
