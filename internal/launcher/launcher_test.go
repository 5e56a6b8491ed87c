package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"
)

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX executables")
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	skipOnWindows(t)

	explicitDir := t.TempDir()
	explicit := filepath.Join(explicitDir, "editor")
	writeExecutable(t, explicit)

	installDir := t.TempDir()
	nested := filepath.Join(installDir, "Vendor", "tool")
	writeExecutable(t, nested)

	pathDir := t.TempDir()
	onPath := filepath.Join(pathDir, "pathonly")
	writeExecutable(t, onPath)

	foldDir := t.TempDir()
	folded := filepath.Join(foldDir, "MixedCase")
	writeExecutable(t, folded)

	t.Setenv("PATH", pathDir)
	f := Finder{SearchDirs: []string{installDir, foldDir}}

	tests := []struct {
		name    string
		command string
		want    string
	}{
		{name: "explicit path", command: explicit, want: explicit},
		{name: "missing explicit path falls back to name", command: filepath.Join(t.TempDir(), "tool"), want: nested},
		{name: "install dir subdirectory", command: "tool", want: nested},
		{name: "PATH lookup", command: "pathonly", want: onPath},
		{name: "case-insensitive match", command: "mixedcase", want: folded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Resolve(tt.command)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.command, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	f := Finder{SearchDirs: []string{t.TempDir()}}

	_, err := f.Resolve("definitely-not-installed-anywhere")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLaunchNonexistentReturnsLaunchFailure(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	l, err := New(Options{SearchDirs: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := l.Launch(context.Background(), Request{Command: `C:\nope\missing-app.exe`})
	if h != nil {
		t.Errorf("expected nil handle, got pid %d", h.PID())
	}
	if !errors.Is(err, ErrLaunchFailure) {
		t.Fatalf("expected ErrLaunchFailure, got %v", err)
	}
	var le *LaunchError
	if !errors.As(err, &le) || le.Op != "resolve" {
		t.Errorf("expected resolve LaunchError, got %#v", err)
	}
}

func TestLaunchReportsQuickExit(t *testing.T) {
	skipOnWindows(t)

	l, err := New(Options{SettleDelay: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := l.Launch(context.Background(), Request{Command: "/bin/sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if h.PID() <= 0 {
		t.Errorf("expected pid, got %d", h.PID())
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	code, exited := h.ExitCode()
	if !exited || code != 3 {
		t.Errorf("ExitCode() = %d, %v; want 3, true", code, exited)
	}
}

func TestIsConsoleProgram(t *testing.T) {
	l, err := New(Options{ConsolePrograms: []string{"cmd", "powershell.exe", "bash"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := map[string]bool{
		`C:\Windows\System32\cmd.exe`: true,
		"PowerShell":                  true,
		"/bin/bash":                   true,
		"notepad.exe":                 false,
	}
	for cmd, want := range tests {
		if got := l.IsConsoleProgram(cmd); got != want {
			t.Errorf("IsConsoleProgram(%q) = %v, want %v", cmd, got, want)
		}
	}
}

func TestRequestName(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{req: Request{Command: `C:\Program Files\Mozilla Firefox\firefox.exe`}, want: "firefox"},
		{req: Request{Command: "/usr/bin/gedit"}, want: "gedit"},
		{req: Request{Command: "notepad", DisplayName: "Scratchpad"}, want: "Scratchpad"},
	}
	for _, tt := range tests {
		if got := tt.req.Name(); got != tt.want {
			t.Errorf("Name() for %q = %q, want %q", tt.req.Command, got, tt.want)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "x-terminal-emulator -e", want: []string{"x-terminal-emulator", "-e"}},
		{in: `gnome-terminal --title "lock in" --`, want: []string{"gnome-terminal", "--title", "lock in", "--"}},
		{in: "", want: nil},
		{in: `kitty 'unterminated`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := splitCommand(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitCommand(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitCommand(%q) error: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommand(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestConsoleArgvWrapsWithTerminal(t *testing.T) {
	skipOnWindows(t)
	got := consoleArgv([]string{"xterm", "-e"}, []string{"/bin/bash", "-l"})
	want := []string{"xterm", "-e", "/bin/bash", "-l"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("consoleArgv() = %v, want %v", got, want)
	}
}
