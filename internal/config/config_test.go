package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Resolution.PollInterval != 500*time.Millisecond {
		t.Fatalf("expected 500ms poll interval, got %v", cfg.Resolution.PollInterval)
	}
	if cfg.Resolution.Timeout != 15*time.Second {
		t.Fatalf("expected 15s resolution timeout, got %v", cfg.Resolution.Timeout)
	}
	if !cfg.Desktop.Enabled {
		t.Fatalf("expected desktop isolation to be enabled by default")
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Files) != 0 {
		t.Fatalf("expected no files, got %v", res.Files)
	}
	if res.Config.Close.Grace != 3*time.Second {
		t.Fatalf("expected default close grace, got %v", res.Config.Close.Grace)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "# empty\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.LogLevel != "info" {
		t.Fatalf("expected log_level info, got %q", res.Config.LogLevel)
	}
}

func TestLoadFromPath_PartialSectionKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"resolution:",
		"  timeout: 2s",
		"close:",
		"  kill_grace: 750ms",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.Resolution.Timeout != 2*time.Second {
		t.Fatalf("expected timeout 2s, got %v", cfg.Resolution.Timeout)
	}
	if cfg.Resolution.PollInterval != 500*time.Millisecond {
		t.Fatalf("expected poll interval default to survive, got %v", cfg.Resolution.PollInterval)
	}
	if cfg.Close.KillGrace != 750*time.Millisecond {
		t.Fatalf("expected kill_grace 750ms, got %v", cfg.Close.KillGrace)
	}
	if cfg.Close.Grace != 3*time.Second {
		t.Fatalf("expected close grace default to survive, got %v", cfg.Close.Grace)
	}

	src := res.Sources["resolution.timeout"]
	if src.Kind != SourceFile || src.Line != 2 {
		t.Fatalf("expected resolution.timeout from line 2, got %+v", src)
	}
}

func TestLoadFromPath_UnknownKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "resolution:\n  timout: 2s\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected unknown key to fail")
	}
	if !strings.Contains(err.Error(), "timout") {
		t.Fatalf("expected error to name the unknown key, got %v", err)
	}
}

func TestLoadFromPath_ValidationErrorCarriesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"log_level: info",
		"close:",
		"  grace: 0s",
		"",
	}, "\n"))

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Path != "close.grace" {
		t.Fatalf("expected path close.grace, got %q", verr.Path)
	}
	if verr.Source.Line != 3 {
		t.Fatalf("expected line 3, got %d", verr.Source.Line)
	}
	if !strings.Contains(err.Error(), ":3:") {
		t.Fatalf("expected file:line in message, got %q", err.Error())
	}
}

func TestLoadFromPath_IncludeOrder(t *testing.T) {
	dir := t.TempDir()
	presets := filepath.Join(dir, "presets.d")
	if err := os.MkdirAll(presets, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(presets, "a.yaml"), strings.Join([]string{
		"resolution:",
		"  timeout: 4s",
		"presets:",
		"  writing:",
		"    apps:",
		"      - path: notepad.exe",
		"",
	}, "\n"))
	writeFile(t, filepath.Join(presets, "b.yml"), strings.Join([]string{
		"resolution:",
		"  timeout: 6s",
		"presets:",
		"  research:",
		"    browser_tabs: [\"https://example.com\"]",
		"",
	}, "\n"))
	writeFile(t, filepath.Join(presets, "ignored.txt"), "not: yaml: at all")

	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"include: presets.d",
		"log_level: debug",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.Resolution.Timeout != 6*time.Second {
		t.Fatalf("expected later include to win, got %v", cfg.Resolution.Timeout)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected main file value, got %q", cfg.LogLevel)
	}
	names := cfg.PresetNames()
	if len(names) != 2 || names[0] != "research" || names[1] != "writing" {
		t.Fatalf("expected merged presets, got %v", names)
	}
	if len(cfg.Include) != 0 {
		t.Fatalf("expected include to be cleared after load, got %v", cfg.Include)
	}
	if len(res.Files) != 3 {
		t.Fatalf("expected 3 loaded files, got %v", res.Files)
	}
	if !strings.HasSuffix(res.Files[2], "config.yaml") {
		t.Fatalf("expected main file last, got %v", res.Files)
	}
}

func TestLoadFromPath_MainFileOverridesInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.yaml"), "close:\n  grace: 9s\n")
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "include: [base.yaml]\nclose:\n  grace: 1s\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Close.Grace != time.Second {
		t.Fatalf("expected main file to override include, got %v", res.Config.Close.Grace)
	}
	if src := res.Sources["close.grace"]; !strings.HasSuffix(src.File, "config.yaml") {
		t.Fatalf("expected source in config.yaml, got %+v", src)
	}
}

func TestLoadFromPath_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "include: b.yaml\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "include: a.yaml\n")

	_, err := LoadFromPath(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadFromPath_MissingInclude(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "include: missing.yaml\n")

	_, err := LoadFromPath(path)
	if err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected missing include error, got %v", err)
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("LOCKIN_RESOLUTION_TIMEOUT", "3s")
	t.Setenv("LOCKIN_DESKTOP_ENABLED", "false")
	t.Setenv("LOCKIN_LAUNCHER_SEARCH_DIRS", "/opt/a,/opt/b")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "resolution:\n  timeout: 10s\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.Resolution.Timeout != 3*time.Second {
		t.Fatalf("expected env to override file, got %v", cfg.Resolution.Timeout)
	}
	if cfg.Desktop.Enabled {
		t.Fatalf("expected desktop disabled from env")
	}
	if len(cfg.Launcher.SearchDirs) != 2 || cfg.Launcher.SearchDirs[1] != "/opt/b" {
		t.Fatalf("expected search dirs from env, got %v", cfg.Launcher.SearchDirs)
	}
	src := res.Sources["resolution.timeout"]
	if src.Kind != SourceEnv || src.Name != "LOCKIN_RESOLUTION_TIMEOUT" {
		t.Fatalf("expected env source, got %+v", src)
	}
	if cfg.Close.Grace != 3*time.Second {
		t.Fatalf("expected untouched keys to keep defaults, got %v", cfg.Close.Grace)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("LOCKIN_CLOSE_GRACE", "soon")
	if _, err := ApplyEnv(DefaultConfig()); err == nil {
		t.Fatalf("expected parse error for bad duration")
	}
}

func TestApplyEnv_ValidationNamesVariable(t *testing.T) {
	t.Setenv("LOCKIN_LOG_LEVEL", "loud")

	_, err := LoadFromPath(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "LOCKIN_LOG_LEVEL") {
		t.Fatalf("expected env variable in message, got %q", err.Error())
	}
}

func TestValidate_Presets(t *testing.T) {
	tests := []struct {
		name    string
		preset  Preset
		wantErr string
	}{
		{
			name:   "valid",
			preset: Preset{Apps: []PresetApp{{Path: "notepad.exe"}}, BrowserTabs: []string{"https://example.com"}, Browser: BrowserEdge},
		},
		{
			name:    "bad browser",
			preset:  Preset{Browser: "firefox"},
			wantErr: "presets.p.browser",
		},
		{
			name:    "empty tab",
			preset:  Preset{BrowserTabs: []string{" "}},
			wantErr: "presets.p.browser_tabs[0]",
		},
		{
			name:    "missing path",
			preset:  Preset{Apps: []PresetApp{{Name: "Editor"}}},
			wantErr: "presets.p.apps[0].path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Presets["p"] = tt.preset
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"poll exceeds timeout", func(c *Config) { c.Resolution.PollInterval = time.Minute }, "resolution.poll_interval"},
		{"negative settle", func(c *Config) { c.Desktop.SwitchSettle = -time.Second }, "desktop.switch_settle"},
		{"bad metrics listen", func(c *Config) { c.Metrics.Listen = "9100" }, "metrics.listen"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			var verr *ValidationError
			if err := cfg.Validate(); !errors.As(err, &verr) || verr.Path != tt.path {
				t.Fatalf("expected ValidationError at %s, got %v", tt.path, err)
			}
		})
	}
}

func TestIncludeList_RejectsNonStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "include:\n  - {a: b}\n")
	if _, err := LoadFromPath(path); err == nil {
		t.Fatalf("expected include of a mapping to fail")
	}
}
