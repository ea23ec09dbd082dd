package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("DISMISS_ACTION", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.DismissAction != DismissHidePanel {
		t.Errorf("DismissAction mismatch. Expected %q, got %q", DismissHidePanel, cfg.DismissAction)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval mismatch. Expected 1s, got %s", cfg.PollInterval)
	}
	if cfg.SettleDelay != 1200*time.Millisecond {
		t.Errorf("SettleDelay mismatch. Expected 1.2s, got %s", cfg.SettleDelay)
	}
	if !strings.Contains(cfg.StartURL, "allegro.pl") {
		t.Errorf("Unexpected default start URL %q", cfg.StartURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISMISS_ACTION", "disable")
	t.Setenv("REFILTER_DELAY", "10ms")
	t.Setenv("RESPECT_ROBOTS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.DismissAction != DismissDisable {
		t.Errorf("Expected dismiss action %q, got %q", DismissDisable, cfg.DismissAction)
	}
	if cfg.RefilterDelay != 10*time.Millisecond {
		t.Errorf("Expected refilter delay 10ms, got %s", cfg.RefilterDelay)
	}
	if !cfg.RespectRobots {
		t.Error("Expected RespectRobots to be true")
	}
}

func TestValidate_EmptyDismissAction(t *testing.T) {
	cfg := &Config{BatchSize: 1, PollInterval: time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.DismissAction != DismissHidePanel {
		t.Errorf("Expected empty dismiss action to become %q, got %q", DismissHidePanel, cfg.DismissAction)
	}
}

func TestLoad_RejectsUnknownDismissAction(t *testing.T) {
	t.Setenv("DISMISS_ACTION", "explode")

	if _, err := Load(); err == nil {
		t.Fatal("Expected an error for an unknown dismiss action")
	}
}

func TestSettingsPath_Explicit(t *testing.T) {
	cfg := &Config{SettingsFile: "/tmp/custom.yaml"}
	path, err := cfg.SettingsPath()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if path != "/tmp/custom.yaml" {
		t.Errorf("Expected explicit path, got %q", path)
	}
}
