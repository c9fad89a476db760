package deduplication

import (
	"strings"
	"testing"
	"time"
)

var dedupEnv = []string{
	"DEVPULSE_DEDUP_ENABLED",
	"DEVPULSE_DEDUP_WINDOW_HOURS",
	"DEVPULSE_DEDUP_ESCALATE_EVERY",
	"DEVPULSE_DEDUP_MAX_ESCALATION",
	"DEVPULSE_DEDUP_BUMP_SEVERITY",
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg Config) {
				if cfg != DefaultConfig() {
					t.Errorf("got %v, want defaults %v", cfg, DefaultConfig())
				}
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"DEVPULSE_DEDUP_ENABLED":        "false",
				"DEVPULSE_DEDUP_WINDOW_HOURS":   "6",
				"DEVPULSE_DEDUP_ESCALATE_EVERY": "5",
				"DEVPULSE_DEDUP_MAX_ESCALATION": "2",
				"DEVPULSE_DEDUP_BUMP_SEVERITY":  "false",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.Enabled {
					t.Errorf("Enabled = true, want false")
				}
				if cfg.Window != 6*time.Hour {
					t.Errorf("Window = %v, want 6h", cfg.Window)
				}
				if cfg.EscalateEvery != 5 {
					t.Errorf("EscalateEvery = %d, want 5", cfg.EscalateEvery)
				}
				if cfg.MaxEscalationLevel != 2 {
					t.Errorf("MaxEscalationLevel = %d, want 2", cfg.MaxEscalationLevel)
				}
				if cfg.BumpSeverity {
					t.Errorf("BumpSeverity = true, want false")
				}
			},
		},
		{
			name:    "invalid int value",
			envVars: map[string]string{"DEVPULSE_DEDUP_ESCALATE_EVERY": "often"},
			wantErr: true,
		},
		{
			name:    "invalid bool value",
			envVars: map[string]string{"DEVPULSE_DEDUP_ENABLED": "maybe"},
			wantErr: true,
		},
		{
			name:    "window out of range",
			envVars: map[string]string{"DEVPULSE_DEDUP_WINDOW_HOURS": "1000"},
			wantErr: true,
		},
		{
			name:    "escalation above cap",
			envVars: map[string]string{"DEVPULSE_DEDUP_MAX_ESCALATION": "4"},
			wantErr: true,
		},
		{
			name:    "partial configuration",
			envVars: map[string]string{"DEVPULSE_DEDUP_WINDOW_HOURS": "48"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Window != 48*time.Hour {
					t.Errorf("Window = %v, want 48h", cfg.Window)
				}
				if cfg.EscalateEvery != DefaultConfig().EscalateEvery {
					t.Errorf("EscalateEvery = %d, want default", cfg.EscalateEvery)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range dedupEnv {
				t.Setenv(key, "")
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := ConfigFromEnv()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfigFromEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{name: "default config is valid", mutate: func(c *Config) {}},
		{name: "zero window", mutate: func(c *Config) { c.Window = 0 }, errorMsg: "window must be positive"},
		{name: "window too large", mutate: func(c *Config) { c.Window = 31 * 24 * time.Hour }, errorMsg: "window too large"},
		{name: "negative escalate every", mutate: func(c *Config) { c.EscalateEvery = -1 }, errorMsg: "escalate_every cannot be negative"},
		{name: "escalation disabled", mutate: func(c *Config) { c.EscalateEvery = 0 }},
		{name: "escalation level too high", mutate: func(c *Config) { c.MaxEscalationLevel = 5 }, errorMsg: "max_escalation_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	for _, expected := range []string{"Enabled: true", "Window: 24h0m0s", "EscalateEvery: 3"} {
		if !strings.Contains(s, expected) {
			t.Errorf("expected String() to contain %q, got: %s", expected, s)
		}
	}
}
