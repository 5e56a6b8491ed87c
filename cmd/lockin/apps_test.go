package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/1broseidon/lockin/internal/config"
	"github.com/1broseidon/lockin/internal/ipc"
	"github.com/1broseidon/lockin/internal/orchestrator"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/registry"
)

func TestPrintStatusTable(t *testing.T) {
	status := &ipc.StatusData{
		Status: orchestrator.Status{
			Session: &orchestrator.SessionInfo{Desktop: 2, Previous: 0},
			Apps: []registry.App{{
				ID: "0123456789abcdef", Name: "notepad", PID: 321, Status: registry.Running,
				Windows: []platform.WindowID{0x1a}, MainWindow: 0x1a,
			}},
			Unmanaged: []platform.Window{{ID: 0x2b, PID: 9, Class: "Dialog", Title: strings.Repeat("x", 80)}},
		},
		PID: 77,
	}

	var buf bytes.Buffer
	printStatusTable(&buf, status, 60)
	out := buf.String()

	for _, want := range []string{"daemon_pid:     77", "desktop:        2 (previous 0)", "01234567", "running", "0x1a", "0x2b", "Unmanaged windows:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 21)) {
		t.Errorf("expected unmanaged title to be truncated:\n%s", out)
	}
}

func TestPrintStatusTable_Degraded(t *testing.T) {
	var buf bytes.Buffer
	printStatusTable(&buf, &ipc.StatusData{Status: orchestrator.Status{
		Session: &orchestrator.SessionInfo{Degraded: true, Reason: "virtual desktops are not supported"},
	}}, 80)
	if !strings.Contains(buf.String(), "degraded (virtual desktops are not supported)") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Unmanaged windows:") {
		t.Fatalf("did not expect unmanaged section:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"Untitled - Notepad", 9, "Untitled…"},
		{"ñandú ñandú", 6, "ñandú…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatSource(t *testing.T) {
	tests := []struct {
		src  config.Source
		want string
	}{
		{config.Source{Kind: config.SourceDefault}, "default"},
		{config.Source{Kind: config.SourceEnv, Name: "LOCKIN_CLOSE_GRACE"}, "env:LOCKIN_CLOSE_GRACE"},
		{config.Source{Kind: config.SourceFile, File: "/etc/lockin.yaml", Line: 4, Column: 3}, "file:/etc/lockin.yaml:4:3"},
		{config.Source{Kind: config.SourceFile, File: "/etc/lockin.yaml"}, "file:/etc/lockin.yaml"},
	}
	for _, tt := range tests {
		if got := formatSource(tt.src); got != tt.want {
			t.Errorf("formatSource(%+v) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestPrintPresetsSorted(t *testing.T) {
	var buf bytes.Buffer
	printPresets(&buf, map[string]config.Preset{
		"writing": {Description: "Notes", Apps: []config.PresetApp{{Path: "notepad.exe"}}},
		"coding":  {Apps: []config.PresetApp{{Path: "code"}, {Path: "wt"}}, BrowserTabs: []string{"https://go.dev"}},
	})
	out := buf.String()
	if strings.Index(out, "coding") > strings.Index(out, "writing") {
		t.Fatalf("expected presets sorted by name:\n%s", out)
	}
	if !strings.Contains(out, "Notes") {
		t.Fatalf("expected description in output:\n%s", out)
	}
}

func TestParseTarget(t *testing.T) {
	target, _, ok := parseTarget("focus", "", []string{"0x1a"})
	if !ok || target != "0x1a" {
		t.Fatalf("parseTarget = %q, %v", target, ok)
	}
	if _, code, ok := parseTarget("focus", "", nil); ok || code != 2 {
		t.Fatalf("expected usage error, got code=%d ok=%v", code, ok)
	}
}
