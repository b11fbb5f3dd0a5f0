package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MEMAGENT_LLM_API_KEY", "test-key")
	t.Setenv("MEMAGENT_PHOTOS_BASE_URL", "https://photos.test/v1")
	t.Setenv("MEMAGENT_IMAGEGEN_BASE_URL", "https://imagegen.test/v1")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8000" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Photos.PollInterval != 3*time.Second {
		t.Errorf("poll interval = %v", cfg.Photos.PollInterval)
	}
	if cfg.Photos.PollTimeout != 120*time.Second {
		t.Errorf("poll timeout = %v", cfg.Photos.PollTimeout)
	}
	if cfg.Budget.MaxTokensPerSession != 15000 || cfg.Budget.MaxTokensPerUserDaily != 50000 {
		t.Errorf("budget defaults = %+v", cfg.Budget)
	}
	if cfg.Budget.WarnThreshold != 0.8 {
		t.Errorf("warn threshold = %v", cfg.Budget.WarnThreshold)
	}
	if cfg.Photos.PickerBaseURL != "https://photos.test/v1/picker" {
		t.Errorf("picker base url = %q", cfg.Photos.PickerBaseURL)
	}
	if cfg.LLM.ScreenerModel != cfg.LLM.CollectorModel {
		t.Errorf("screener model should default to the collector model")
	}
}

func TestLoadMissingAPIKeyFails(t *testing.T) {
	t.Setenv("MEMAGENT_LLM_API_KEY", "")
	t.Setenv("MEMAGENT_PHOTOS_BASE_URL", "https://photos.test/v1")
	t.Setenv("MEMAGENT_IMAGEGEN_BASE_URL", "https://imagegen.test/v1")

	if _, err := Load(""); err == nil {
		t.Fatal("expected an error without an API key")
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MEMAGENT_MAX_TOKENS_PER_SESSION", "2000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("listen_addr: \":9100\"\nbudget:\n  max_tokens_per_session: 999\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9100" {
		t.Errorf("listen addr = %q, want yaml value", cfg.ListenAddr)
	}
	if cfg.Budget.MaxTokensPerSession != 2000 {
		t.Errorf("max tokens = %d, env must override yaml", cfg.Budget.MaxTokensPerSession)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	setRequiredEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("absent config file should fall back to env/defaults, got %v", err)
	}
}
