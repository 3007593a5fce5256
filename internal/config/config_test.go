package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
app:
  name: volleysmart
  port: 9090
database:
  driver: sqlite
  filename: test.db
sync:
  min_interval: 20s
  max_interval: 80s
  strict_poll: true
scheduler:
  enabled: true
  membership_expiry_cron: "*/30 * * * *"
  pending_request_ttl: 72h
ratelimit:
  code_lockout: 5m
`

func TestLoadReadsYAMLAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.App.Port)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development default, got %q", cfg.App.Environment)
	}
	if cfg.Sync.MinInterval != 20*time.Second || cfg.Sync.MaxInterval != 80*time.Second {
		t.Fatalf("unexpected sync intervals: %s/%s", cfg.Sync.MinInterval, cfg.Sync.MaxInterval)
	}
	if cfg.Sync.InitialDelay != 5*time.Second {
		t.Fatalf("expected default initial delay 5s, got %s", cfg.Sync.InitialDelay)
	}
	if !cfg.Sync.StrictPoll {
		t.Fatal("expected strict_poll to be true")
	}
	if cfg.Scheduler.PendingRequestTTL != 72*time.Hour {
		t.Fatalf("expected ttl 72h, got %s", cfg.Scheduler.PendingRequestTTL)
	}
	if cfg.RateLimit.CodeLockout != 5*time.Minute || cfg.RateLimit.JoinMaxPerHour != 10 {
		t.Fatalf("unexpected ratelimit config: %+v", cfg.RateLimit)
	}
}

func TestLoadDatabaseFilenameFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DATABASE_FILENAME", "/tmp/override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Filename != "/tmp/override.db" {
		t.Fatalf("expected env override, got %q", cfg.Database.Filename)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with filename", mutate: func(c *Config) {}},
		{name: "missing filename", mutate: func(c *Config) { c.Database.Filename = "" }, wantErr: "filename"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: "unsupported database driver"},
		{name: "port out of range", mutate: func(c *Config) { c.App.Port = 70000 }, wantErr: "port"},
		{name: "max below min", mutate: func(c *Config) { c.Sync.MaxInterval = time.Second }, wantErr: "sync intervals"},
		{name: "bad cron", mutate: func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.MembershipExpiry = "sometimes"
		}, wantErr: "membership_expiry_cron"},
		{name: "bad cron ignored when disabled", mutate: func(c *Config) {
			c.Scheduler.Enabled = false
			c.Scheduler.MembershipExpiry = "sometimes"
		}},
		{name: "negative ttl", mutate: func(c *Config) { c.Scheduler.PendingRequestTTL = -time.Hour }, wantErr: "pending_request_ttl"},
		{name: "zero limit", mutate: func(c *Config) { c.RateLimit.CodeMaxFailures = -1 }, wantErr: "ratelimit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.Filename = "test.db"
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("app: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
