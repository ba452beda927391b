package config

import (
	"strings"
	"testing"
	"time"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envFrom(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Server.Port != 8086 || cfg.Server.GRPCPort != 9086 {
		t.Fatalf("unexpected ports: %+v", cfg.Server)
	}
	if cfg.Workflow.MinNotesLength != 10 {
		t.Fatalf("min notes length = %d", cfg.Workflow.MinNotesLength)
	}
	if cfg.Store.Driver != "postgres" || cfg.Notify.Driver != "log" {
		t.Fatalf("unexpected drivers: store=%s notify=%s", cfg.Store.Driver, cfg.Notify.Driver)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"HTTP_PORT":               "9000",
		"STORE_DRIVER":            "MEMORY",
		"OUTBOX_POLL_INTERVAL":    "500ms",
		"OUTBOX_CLAIM_LEASE":      "90s",
		"DB_AUTO_MIGRATE":         "true",
		"REVIEW_MIN_NOTES_LENGTH": "3",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("driver = %s", cfg.Store.Driver)
	}
	if cfg.Outbox.PollInterval != 500*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.Outbox.PollInterval)
	}
	if cfg.Outbox.ClaimLease != 90*time.Second {
		t.Fatalf("claim lease = %v", cfg.Outbox.ClaimLease)
	}
	if !cfg.Database.AutoMigrate || cfg.Workflow.MinNotesLength != 3 {
		t.Fatalf("unexpected database/workflow config: %+v %+v", cfg.Database, cfg.Workflow)
	}
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	_, err := FromEnv(envFrom(map[string]string{
		"HTTP_PORT":       "eighty",
		"DB_AUTO_MIGRATE": "perhaps",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, key := range []string{"HTTP_PORT", "DB_AUTO_MIGRATE"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestFromEnvSMTPRequiresHost(t *testing.T) {
	if _, err := FromEnv(envFrom(map[string]string{"NOTIFY_DRIVER": "smtp"})); err == nil {
		t.Fatalf("expected smtp validation error")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Database: "ipr", SSLMode: "require"}
	if got, want := d.DSN(), "postgres://u:p@db:5433/ipr?sslmode=require"; got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
