package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultBucket != "default" {
		t.Fatalf("unexpected default bucket %q", cfg.DefaultBucket)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Fatalf("unexpected max retries %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Delay != 50*time.Millisecond {
		t.Fatalf("unexpected retry delay %s", cfg.Retry.Delay)
	}
	if cfg.Store.Engine != "memory" {
		t.Fatalf("unexpected store engine %q", cfg.Store.Engine)
	}
	if cfg.Logger.Level != "info" || cfg.Logger.Encoding != "json" {
		t.Fatalf("unexpected logger config %+v", cfg.Logger)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("EVENTFOLD_DEFAULT_BUCKET", "tenant-a")
	t.Setenv("EVENTFOLD_MAX_RETRIES", "-1")
	t.Setenv("EVENTFOLD_RETRY_DELAY", "250ms")
	t.Setenv("EVENTFOLD_STORE_ENGINE", "bbolt")
	t.Setenv("EVENTFOLD_STORE_PATH", "/tmp/events.db")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultBucket != "tenant-a" {
		t.Fatalf("unexpected bucket %q", cfg.DefaultBucket)
	}
	if cfg.Retry.MaxRetries != -1 {
		t.Fatalf("unexpected max retries %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Delay != 250*time.Millisecond {
		t.Fatalf("unexpected delay %s", cfg.Retry.Delay)
	}
	if cfg.Store.Engine != "bbolt" || cfg.Store.Path != "/tmp/events.db" {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("EVENTFOLD_MAX_RETRIES", "many")
	t.Setenv("EVENTFOLD_RETRY_DELAY", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Fatalf("expected the default budget, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Delay != 50*time.Millisecond {
		t.Fatalf("expected the default delay, got %s", cfg.Retry.Delay)
	}
}

func TestValidateUnknownEngine(t *testing.T) {
	t.Setenv("EVENTFOLD_STORE_ENGINE", "papyrus")
	if _, err := Load(); err == nil {
		t.Fatal("expected an unknown engine to be rejected")
	}
}

func TestValidateRetryBudget(t *testing.T) {
	t.Setenv("EVENTFOLD_MAX_RETRIES", "-2")
	if _, err := Load(); err == nil {
		t.Fatal("expected a retry budget below -1 to be rejected")
	}
}

func TestValidateEmptyBucket(t *testing.T) {
	t.Setenv("EVENTFOLD_DEFAULT_BUCKET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected an empty bucket to be rejected")
	}
}
