package config

import (
	"strings"
	"testing"
	"time"
)

func TestEventRetentionApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg EventRetentionConfig)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg EventRetentionConfig) {
				defaults := DefaultEventRetentionConfig()
				if cfg != defaults {
					t.Errorf("config = %v, want %v", cfg, defaults)
				}
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"DEVPULSE_EVENT_RETENTION_DAYS":         "60",
				"DEVPULSE_EVENT_CLEANUP_INTERVAL_HOURS": "12",
				"DEVPULSE_EVENT_CLEANUP_ENABLED":        "false",
			},
			check: func(t *testing.T, cfg EventRetentionConfig) {
				if cfg.RetentionDays != 60 {
					t.Errorf("RetentionDays = %v, want 60", cfg.RetentionDays)
				}
				if cfg.CleanupIntervalHours != 12 {
					t.Errorf("CleanupIntervalHours = %v, want 12", cfg.CleanupIntervalHours)
				}
				if cfg.CleanupEnabled {
					t.Error("CleanupEnabled = true, want false")
				}
			},
		},
		{
			name:    "invalid integer",
			envVars: map[string]string{"DEVPULSE_EVENT_RETENTION_DAYS": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "invalid boolean",
			envVars: map[string]string{"DEVPULSE_EVENT_CLEANUP_ENABLED": "yes-please"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultEventRetentionConfig()
			err := cfg.applyEnv()
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestEventRetentionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EventRetentionConfig
		wantErr string
	}{
		{name: "default config is valid", cfg: DefaultEventRetentionConfig()},
		{
			name: "minimum bounds",
			cfg:  EventRetentionConfig{RetentionDays: 1, CleanupIntervalHours: 1},
		},
		{
			name: "maximum bounds",
			cfg:  EventRetentionConfig{RetentionDays: 730, CleanupIntervalHours: 168},
		},
		{
			name:    "retention zero",
			cfg:     EventRetentionConfig{RetentionDays: 0, CleanupIntervalHours: 24},
			wantErr: "retention_days",
		},
		{
			name:    "retention too long",
			cfg:     EventRetentionConfig{RetentionDays: 731, CleanupIntervalHours: 24},
			wantErr: "retention_days",
		},
		{
			name:    "interval zero",
			cfg:     EventRetentionConfig{RetentionDays: 30, CleanupIntervalHours: 0},
			wantErr: "cleanup_interval_hours",
		},
		{
			name:    "interval too long",
			cfg:     EventRetentionConfig{RetentionDays: 30, CleanupIntervalHours: 169},
			wantErr: "cleanup_interval_hours",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEventRetentionDurations(t *testing.T) {
	cfg := DefaultEventRetentionConfig()
	if got := cfg.Retention(); got != 90*24*time.Hour {
		t.Errorf("Retention() = %v, want 2160h", got)
	}
	if got := cfg.CleanupInterval(); got != 24*time.Hour {
		t.Errorf("CleanupInterval() = %v, want 24h", got)
	}
	cfg.CleanupEnabled = false
	if got := cfg.CleanupInterval(); got != 0 {
		t.Errorf("CleanupInterval() disabled = %v, want 0", got)
	}
}

func TestStaleSessionConfig(t *testing.T) {
	cfg := DefaultStaleSessionConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.StaleAfter() != 2*time.Hour {
		t.Errorf("StaleAfter() = %v, want 2h", cfg.StaleAfter())
	}
	if cfg.CheckInterval() != 15*time.Minute {
		t.Errorf("CheckInterval() = %v, want 15m", cfg.CheckInterval())
	}

	for _, bad := range []StaleSessionConfig{
		{StaleAfterHours: -1, CheckIntervalMinutes: 15},
		{StaleAfterHours: 169, CheckIntervalMinutes: 15},
		{StaleAfterHours: 2, CheckIntervalMinutes: 0},
		{StaleAfterHours: 2, CheckIntervalMinutes: 1441},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("Validate(%v) expected error", bad)
		}
	}

	t.Setenv("DEVPULSE_STALE_SESSION_HOURS", "6")
	t.Setenv("DEVPULSE_STALE_SESSION_CHECK_MINUTES", "5")
	if err := cfg.applyEnv(); err != nil {
		t.Fatalf("applyEnv() error: %v", err)
	}
	if cfg.StaleAfterHours != 6 || cfg.CheckIntervalMinutes != 5 {
		t.Errorf("applyEnv() = %v, want 6h/5m", cfg)
	}
}
