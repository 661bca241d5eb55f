package config

import (
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DirtyRegionCap != 30 || cfg.DirtyPoolSize != 4 {
		t.Errorf("dirty defaults = %d/%d, want 30/4", cfg.DirtyRegionCap, cfg.DirtyPoolSize)
	}
	if cfg.DamagePadding != 1 {
		t.Errorf("DamagePadding = %g, want 1", cfg.DamagePadding)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PULSE_RATE", "30")
	t.Setenv("DIRTY_REGION_CAP", "8")
	t.Setenv("DAMAGE_PADDING", "0.5")
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PulseRate != 30 || cfg.DirtyRegionCap != 8 || cfg.DamagePadding != 0.5 {
		t.Errorf("got %+v", cfg)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PULSE_RATE", "0"},
		{"DIRTY_REGION_CAP", "-1"},
		{"DIRTY_POOL_SIZE", "0"},
		{"DAMAGE_PADDING", "-2"},
		{"PORT", "not-a-number"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	c := Config{AllowedOrigins: " http://a , ,http://b"}
	got := c.Origins()
	if len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Errorf("Origins() = %q", got)
	}
}
