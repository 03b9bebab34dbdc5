package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaults verifies the built-in values.
func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.SuspendTimeout != 5000*time.Millisecond {
		t.Errorf("Suspend timeout default wrong: %v", cfg.SuspendTimeout)
	}
	if cfg.PreferredMTU != 240 {
		t.Errorf("Preferred MTU default wrong: %d", cfg.PreferredMTU)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

// TestPropertyOverride verifies the platform property wins over the
// configured suspend timeout.
func TestPropertyOverride(t *testing.T) {
	cfg := Default()

	if got := cfg.EffectiveSuspendTimeout(); got != DefaultSuspendTimeout {
		t.Errorf("Expected default, got %v", got)
	}

	cfg.SetProperty(SuspendTimeoutProperty, "2500")
	if got := cfg.EffectiveSuspendTimeout(); got != 2500*time.Millisecond {
		t.Errorf("Expected 2.5s, got %v", got)
	}
}

// TestMalformedProperty verifies junk values fall back.
func TestMalformedProperty(t *testing.T) {
	cfg := Default()
	cfg.SetProperty(SuspendTimeoutProperty, "soon")
	if got := cfg.EffectiveSuspendTimeout(); got != DefaultSuspendTimeout {
		t.Errorf("Malformed property should fall back, got %v", got)
	}

	cfg.SetProperty(SuspendTimeoutProperty, "-5")
	if got := cfg.EffectiveSuspendTimeout(); got != DefaultSuspendTimeout {
		t.Errorf("Negative property should fall back, got %v", got)
	}
}

// TestLoadOverlay verifies the YAML overlay on top of defaults.
func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaudio.yaml")
	content := "suspend_timeout_ms: 2000\nset_state_timeout_ms: 1000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SuspendTimeout != 2*time.Second {
		t.Errorf("Overlay not applied: %v", cfg.SuspendTimeout)
	}
	if cfg.SetStateTimeout != time.Second {
		t.Errorf("Overlay not applied: %v", cfg.SetStateTimeout)
	}
	// Untouched values keep their defaults.
	if cfg.PreferredMTU != 240 {
		t.Errorf("Default lost in overlay: %d", cfg.PreferredMTU)
	}
}

// TestLoadRejectsBadValues verifies validation on load.
func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaudio.yaml")
	if err := os.WriteFile(path, []byte("preferred_mtu: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
