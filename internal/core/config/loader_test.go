package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	// Setup env var
	os.Setenv("TEST_DB_URL", "postgres://root@localhost:26257/chores?sslmode=disable")
	defer os.Unsetenv("TEST_DB_URL")

	// Create temp config file
	configContent := `
database:
  url: ${TEST_DB_URL}
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	// Load config
	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := "postgres://root@localhost:26257/chores?sslmode=disable"
	if cfg.Database.URL != want {
		t.Errorf("Expected URL %s, got %s", want, cfg.Database.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.Write([]byte("database:\n  url: postgres://localhost\n")); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Expected default max attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 50*time.Millisecond {
		t.Errorf("Expected default base delay 50ms, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.MaxDelay != 2*time.Second {
		t.Errorf("Expected default max delay 2s, got %v", cfg.Retry.MaxDelay)
	}
	if cfg.Retry.JitterFactor != 0.5 {
		t.Errorf("Expected default jitter 0.5, got %v", cfg.Retry.JitterFactor)
	}
	if cfg.Retention.Period != 0 {
		t.Errorf("Expected retention disabled by default, got %v", cfg.Retention.Period)
	}
}

func TestRetryConfigBudget(t *testing.T) {
	rc := RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    10 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.2,
		MaxElapsed:   time.Minute,
	}

	b := rc.Budget()
	if b.MaxAttempts != 3 || b.MaxElapsed != time.Minute {
		t.Errorf("unexpected budget bounds: %+v", b)
	}
	if b.Backoff == nil {
		t.Fatal("expected a backoff policy")
	}
	if d := b.Backoff.Delay(1); d < 8*time.Millisecond || d > 12*time.Millisecond {
		t.Errorf("Delay(1) = %v, expected ~10ms with 20%% jitter", d)
	}
}
