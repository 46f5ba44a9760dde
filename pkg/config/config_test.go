package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"NC_USERNAME", "NC_PASSWORD", "NC_HOST", "NC_ROOT", "LOCAL_ROOT",
		"NCS_AUTOSTASH_KEEP_DAYS", "NCS_STASH_ENABLED", "NCS_LOG_LEVEL",
	} {
		os.Unsetenv(name)
	}
}

func TestLoadRequiresAllVariables(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when required variables are missing")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("NC_USERNAME", "alice")
	os.Setenv("NC_PASSWORD", "secret")
	os.Setenv("NC_HOST", "https://cloud.example.com")
	os.Setenv("NC_ROOT", "/remote.php/dav/files/alice")
	os.Setenv("LOCAL_ROOT", "/home/alice/sync")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutostashKeepSpan != 7*24*time.Hour {
		t.Errorf("expected default 7 day keep span, got %v", cfg.AutostashKeepSpan)
	}
	if !cfg.AutostashEnabled {
		t.Error("expected autostash enabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("NC_USERNAME", "alice")
	os.Setenv("NC_PASSWORD", "secret")
	os.Setenv("NC_HOST", "https://cloud.example.com")
	os.Setenv("NC_ROOT", "/remote.php/dav/files/alice")
	os.Setenv("LOCAL_ROOT", "/home/alice/sync")
	os.Setenv("NCS_AUTOSTASH_KEEP_DAYS", "3")
	os.Setenv("NCS_STASH_ENABLED", "false")
	os.Setenv("NCS_LOG_LEVEL", "debug")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutostashKeepSpan != 3*24*time.Hour {
		t.Errorf("expected 3 day keep span, got %v", cfg.AutostashKeepSpan)
	}
	if cfg.AutostashEnabled {
		t.Error("expected autostash disabled")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.LogLevel)
	}
}
