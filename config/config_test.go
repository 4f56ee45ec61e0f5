package config

import (
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-fuel/models"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "no categories",
			mutate: func(cfg *Config) {
				cfg.Categories = nil
			},
			wantErr: "category",
		},
		{
			name: "blank category",
			mutate: func(cfg *Config) {
				cfg.Categories = []string{"GASOLINA", ""}
			},
			wantErr: "empty entries",
		},
		{
			name: "duplicate category",
			mutate: func(cfg *Config) {
				cfg.Categories = []string{"GASOLINA", "GASOLINA"}
			},
			wantErr: "duplicate category",
		},
		{
			name: "latitude out of range",
			mutate: func(cfg *Config) {
				cfg.Latitude = 91
			},
			wantErr: "latitude",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff exceeds max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 2 * time.Minute
			},
			wantErr: "retry backoff",
		},
		{
			name: "jitter min above max",
			mutate: func(cfg *Config) {
				cfg.JitterMin = 0.9
				cfg.JitterMax = 0.1
			},
			wantErr: "jitter",
		},
		{
			name: "bad token pattern",
			mutate: func(cfg *Config) {
				cfg.TokenPatterns = []string{"(unclosed"}
			},
			wantErr: "token pattern",
		},
		{
			name: "empty session cookie",
			mutate: func(cfg *Config) {
				cfg.SessionCookie = ""
			},
			wantErr: "session cookie",
		},
		{
			name: "zero bundle cap with scanning enabled",
			mutate: func(cfg *Config) {
				cfg.MaxScriptBundles = 0
			},
			wantErr: "script bundles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	defaults := models.DefaultCategories()
	if len(cfg.Categories) != len(defaults) {
		t.Fatalf("default categories = %d, want %d", len(cfg.Categories), len(defaults))
	}
	for i, cat := range defaults {
		if cfg.Categories[i] != string(cat) {
			t.Fatalf("Categories[%d] = %q, want %q", i, cfg.Categories[i], cat)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("COLLECTOR_TEST_STR", "hello")
	if value, ok := EnvString("COLLECTOR_TEST_STR"); !ok || value != "hello" {
		t.Fatalf("EnvString = %q, %v, want hello, true", value, ok)
	}
	if _, ok := EnvString("COLLECTOR_TEST_UNSET"); ok {
		t.Fatalf("EnvString should report unset variable")
	}

	t.Setenv("COLLECTOR_TEST_INT", "42")
	value, ok, err := EnvInt("COLLECTOR_TEST_INT")
	if err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt = %d, %v, %v, want 42, true, nil", value, ok, err)
	}

	t.Setenv("COLLECTOR_TEST_INT", "not-a-number")
	if _, _, err := EnvInt("COLLECTOR_TEST_INT"); err == nil {
		t.Fatalf("EnvInt should fail on garbage input")
	}

	t.Setenv("COLLECTOR_TEST_FLOAT", "-12.97")
	fvalue, ok, err := EnvFloat("COLLECTOR_TEST_FLOAT")
	if err != nil || !ok || fvalue != -12.97 {
		t.Fatalf("EnvFloat = %v, %v, %v, want -12.97, true, nil", fvalue, ok, err)
	}

	t.Setenv("COLLECTOR_TEST_DUR", "1500ms")
	dvalue, ok, err := EnvDuration("COLLECTOR_TEST_DUR")
	if err != nil || !ok || dvalue != 1500*time.Millisecond {
		t.Fatalf("EnvDuration = %v, %v, %v, want 1.5s, true, nil", dvalue, ok, err)
	}
}
