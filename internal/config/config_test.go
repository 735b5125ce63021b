package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	oerrors "github.com/vango-dev/observ/internal/errors"
	"github.com/vango-dev/observ/pkg/observ"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Budget.MaxRounds != observ.DefaultMaxRounds {
		t.Errorf("Budget.MaxRounds = %d, want %d", cfg.Budget.MaxRounds, observ.DefaultMaxRounds)
	}
	if cfg.Inspector.Address != DefaultInspectorAddress {
		t.Errorf("Inspector.Address = %q, want %q", cfg.Inspector.Address, DefaultInspectorAddress)
	}
	if cfg.Inspector.Capacity != DefaultCapacity {
		t.Errorf("Inspector.Capacity = %d, want %d", cfg.Inspector.Capacity, DefaultCapacity)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != DefaultNamespace {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Archive.Region != DefaultRegion {
		t.Errorf("Archive.Region = %q, want %q", cfg.Archive.Region, DefaultRegion)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()

	// Test loading non-existent config
	_, err := Load(tmpDir)
	var ce *oerrors.Error
	if !errors.As(err, &ce) || ce.Code != "R060" {
		t.Fatalf("expected R060 for missing config, got %v", err)
	}

	configJSON := `{
  "budget": {"maxRounds": 20, "maxRunsPerFlush": 500},
  "debug": {"logFlushes": true, "logLevel": "debug"},
  "inspector": {"address": "127.0.0.1:9000"},
  "metrics": {"enabled": false},
  "archive": {"bucket": "traces", "endpoint": "http://localhost:9000", "pathStyle": true}
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if b := cfg.RuntimeBudget(); b.MaxRounds != 20 || b.MaxRunsPerFlush != 500 {
		t.Errorf("RuntimeBudget = %+v", b)
	}
	if !cfg.Debug.LogFlushes || cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("Debug = %+v", cfg.Debug)
	}
	if cfg.Inspector.Address != "127.0.0.1:9000" {
		t.Errorf("Inspector.Address = %q", cfg.Inspector.Address)
	}
	// Unset fields keep their defaults.
	if cfg.Inspector.Capacity != DefaultCapacity || cfg.WriteTimeout() != 5*time.Second {
		t.Errorf("Inspector = %+v", cfg.Inspector)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	if !cfg.Archive.PathStyle || cfg.Archive.Region != DefaultRegion {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if want := filepath.Join(tmpDir, ConfigFileName); cfg.Path() != want {
		t.Errorf("Path = %q, want %q", cfg.Path(), want)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configYAML := `
budget:
  maxRounds: 7
tracing:
  enabled: true
  tracerName: bench
inspector:
  writeTimeout: 2s
`
	if err := os.WriteFile(filepath.Join(tmpDir, YAMLConfigFileName), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Budget.MaxRounds != 7 {
		t.Errorf("Budget.MaxRounds = %d", cfg.Budget.MaxRounds)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.TracerName != "bench" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.WriteTimeout() != 2*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.WriteTimeout())
	}
}

func TestLoadPrefersJSON(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(`{"budget":{"maxRounds":3}}`), 0644)
	os.WriteFile(filepath.Join(tmpDir, YAMLConfigFileName), []byte("budget:\n  maxRounds: 9\n"), 0644)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Budget.MaxRounds != 3 {
		t.Errorf("expected observ.json to win, got maxRounds %d", cfg.Budget.MaxRounds)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		detail  string
	}{
		{"bad json", ConfigFileName, `{"budget": `, "Failed to parse"},
		{"unknown yaml key", YAMLConfigFileName, "budgets:\n  maxRounds: 1\n", "budgets"},
		{"negative budget", ConfigFileName, `{"budget": {"maxRounds": -1}}`, "negative"},
		{"bad timeout", ConfigFileName, `{"inspector": {"writeTimeout": "soon"}}`, "writeTimeout"},
		{"bad level", ConfigFileName, `{"debug": {"logLevel": "loud"}}`, "logLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if err := os.WriteFile(filepath.Join(tmpDir, tt.file), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(tmpDir)
			var ce *oerrors.Error
			if !errors.As(err, &ce) || ce.Code != "R061" {
				t.Fatalf("expected R061, got %v", err)
			}
			if !strings.Contains(ce.Detail, tt.detail) {
				t.Errorf("detail %q does not mention %q", ce.Detail, tt.detail)
			}
		})
	}
}

func TestLoadOrDefaultAndApplyDebug(t *testing.T) {
	cfg, err := LoadOrDefault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path() != "" || cfg.Budget.MaxRounds != observ.DefaultMaxRounds {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	saved := observ.Debug
	defer func() { observ.Debug = saved }()
	cfg.Debug.LogRuns = true
	cfg.ApplyDebug()
	if !observ.Debug.LogRuns {
		t.Error("ApplyDebug did not set LogRuns")
	}
}
