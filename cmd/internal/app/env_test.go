package app

import (
	"testing"
	"time"
)

func TestEnvHelpersFallBackOnBadInput(t *testing.T) {
	t.Setenv("SLATE_TEST_STR", "  value  ")
	t.Setenv("SLATE_TEST_BOOL", "not-a-bool")
	t.Setenv("SLATE_TEST_INT", "-3")
	t.Setenv("SLATE_TEST_DUR", "5x")

	if got := EnvString("SLATE_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString=%q want trimmed value", got)
	}
	if got := EnvString("SLATE_TEST_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString missing=%q want def", got)
	}
	if got := EnvBool("SLATE_TEST_BOOL", true); got != true {
		t.Fatalf("EnvBool invalid input should keep default")
	}
	if got := EnvInt("SLATE_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt=%d want default for non-positive input", got)
	}
	if got := EnvInt32("SLATE_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt32=%d want default for negative input", got)
	}
	if got := EnvDuration("SLATE_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration=%v want default for invalid input", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr == "" || cfg.LogLevel == "" {
		t.Fatalf("LoadConfig left required defaults empty: %+v", cfg)
	}
	if cfg.DBSchema != "slate" {
		t.Fatalf("DBSchema default = %q, want slate", cfg.DBSchema)
	}
	if cfg.ReadHeaderTimeout <= 0 || cfg.MaxHeaderBytes <= 0 {
		t.Fatalf("timeout defaults not set: %+v", cfg)
	}
}

func TestStoreSelectionPrefersPostgres(t *testing.T) {
	t.Setenv("SLATE_DATABASE_URL", "postgres://localhost/slate")
	t.Setenv("SLATE_REDIS_ADDR", "localhost:6379")
	t.Setenv("SLATE_DATA_DIR", t.TempDir())

	cfg := LoadConfig()
	if cfg.DatabaseURL == "" {
		t.Fatalf("DatabaseURL not loaded")
	}
	// Selection order lives in newStore; here we only pin that all three
	// knobs load independently so the switch can see them.
	if cfg.RedisAddr == "" || cfg.DataDir == "" {
		t.Fatalf("backend knobs did not load: %+v", cfg)
	}
}
