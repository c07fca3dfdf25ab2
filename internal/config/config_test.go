package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load("../../configs/vn-text-trim.toml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.TextRepetitions {
		t.Error("Expected text_repetitions to be enabled")
	}
	if len(cfg.Replace) != 4 {
		t.Fatalf("Expected 4 replace rules, got %d", len(cfg.Replace))
	}
	if cfg.Replace[0].Pattern != `<[^>]*>` {
		t.Errorf("Unexpected first pattern %q", cfg.Replace[0].Pattern)
	}
	if cfg.Replace[2].Limit != 1 {
		t.Errorf("Expected limit 1 on third rule, got %d", cfg.Replace[2].Limit)
	}
	if cfg.Buffer.PollInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms poll interval, got %s", cfg.Buffer.PollInterval)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "rules.toml", `
[[replace]]
pattern = '\s+'
replacement = ' '
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	defaults := GetDefaults()
	if cfg.Logging.Level != defaults.Logging.Level {
		t.Errorf("Logging level = %q, want default %q", cfg.Logging.Level, defaults.Logging.Level)
	}
	if cfg.Batch.WorkerCount != defaults.Batch.WorkerCount {
		t.Errorf("Worker count = %d, want default %d", cfg.Batch.WorkerCount, defaults.Batch.WorkerCount)
	}
	if cfg.Replace[0].Limit != 0 {
		t.Errorf("Limit should default to 0, got %d", cfg.Replace[0].Limit)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "rules.yaml", `
mode: dialogue
dialogue:
  extract: true
replace:
  - pattern: "<[^>]*>"
    replacement: ""
    limit: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "dialogue" || !cfg.Dialogue.Extract {
		t.Errorf("Unexpected dialogue settings: mode=%q extract=%v", cfg.Mode, cfg.Dialogue.Extract)
	}
	if len(cfg.Replace) != 1 || cfg.Replace[0].Limit != 3 {
		t.Errorf("Unexpected replace rules: %+v", cfg.Replace)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "rules.toml", `
text_repetitions = false

[logging]
level = "info"
`)

	t.Setenv("VNTT_TEXT_REPETITIONS", "true")
	t.Setenv("VNTT_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.TextRepetitions {
		t.Error("Expected environment to enable text_repetitions")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Replace) != 0 || cfg.Buffer.Type != "none" {
		t.Errorf("Expected defaults, got %+v", cfg.RulesConfig)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "malformed",
			content: "[[replace]\npattern = ",
			wantErr: "failed to read config file",
		},
		{
			name:    "negative_limit",
			content: "[[replace]]\npattern = 'a'\nlimit = -2\n",
			wantErr: "negative limit",
		},
		{
			name:    "empty_pattern",
			content: "[[replace]]\nreplacement = 'a'\n",
			wantErr: "empty pattern",
		},
		{
			name:    "unknown_mode",
			content: "mode = 'loop'\n",
			wantErr: "invalid mode",
		},
		{
			name:    "file_buffer_without_path",
			content: "[buffer]\ntype = 'file'\n",
			wantErr: "buffer.path",
		},
		{
			name:    "unknown_buffer",
			content: "[buffer]\ntype = 'clipboard'\n",
			wantErr: "invalid buffer type",
		},
		{
			name:    "bad_log_level",
			content: "[logging]\nlevel = 'loud'\n",
			wantErr: "invalid log level",
		},
		{
			name:    "bad_port",
			content: "[server]\nenabled = true\nport = 70000\n",
			wantErr: "invalid server port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "rules.toml", tt.content)

			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	t.Run("missing_explicit_file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
			t.Error("Expected an error for a missing explicit config file")
		}
	})
}
