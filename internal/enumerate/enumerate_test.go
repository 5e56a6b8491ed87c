package enumerate

import (
	"errors"
	"testing"
	"time"

	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/platform/platformtest"
)

func TestWindowsOwnedByProcessIncludesDescendants(t *testing.T) {
	now := time.Now()
	b := platformtest.New()
	b.AddProcess(100, 1, "launcher.exe", now)
	b.AddProcess(101, 100, "worker.exe", now.Add(time.Second))
	b.AddProcess(102, 101, "renderer.exe", now.Add(2*time.Second))
	b.AddProcess(200, 1, "other.exe", now)

	own := b.AddWindow(platform.Window{PID: 100, Class: "Main", Title: "Launcher"})
	grandchild := b.AddWindow(platform.Window{PID: 102, Class: "Render", Title: "Render"})
	b.AddWindow(platform.Window{PID: 200, Class: "Other", Title: "Other"})
	b.AddWindow(platform.Window{PID: 100, Class: "IME", Title: "Default IME"})

	e := New(b)

	direct := e.WindowsOwnedByProcess(100, false)
	if len(direct) != 1 || direct[0].ID != own {
		t.Fatalf("direct windows = %+v, want only %v", direct, own)
	}

	all := e.WindowsOwnedByProcess(100, true)
	if len(all) != 2 {
		t.Fatalf("expected 2 windows including descendants, got %d: %+v", len(all), all)
	}
	if all[0].ID != own || all[1].ID != grandchild {
		t.Errorf("unexpected window order: %+v", all)
	}
}

func TestDescendantsSkipsRecycledPID(t *testing.T) {
	now := time.Now()
	b := platformtest.New()
	b.AddProcess(100, 1, "parent.exe", now)
	// Started before its "parent": the ppid was recycled.
	b.AddProcess(150, 100, "stale.exe", now.Add(-time.Hour))

	got := New(b).Descendants(100)
	if got[150] {
		t.Errorf("expected recycled pid to be excluded, got %v", got)
	}
	if !got[100] {
		t.Errorf("expected root pid in result, got %v", got)
	}
}

func TestWindowsOwnedByProcessToleratesQueryFailure(t *testing.T) {
	b := platformtest.New()
	b.AddProcess(100, 1, "app.exe", time.Now())
	b.AddWindow(platform.Window{PID: 100, Title: "App"})
	b.ListWindowsErr = errors.New("access denied")

	if got := New(b).WindowsOwnedByProcess(100, true); len(got) != 0 {
		t.Errorf("expected empty set on failure, got %+v", got)
	}
}

func TestWindowsOnDesktopFiltersChromeAndOtherDesktops(t *testing.T) {
	b := platformtest.New()
	keep := b.AddWindow(platform.Window{PID: 1, Class: "Notepad", Title: "notes.txt", Desktop: 1})
	b.AddWindow(platform.Window{PID: 2, Class: "Shell_TrayWnd", Title: "Taskbar", Desktop: 1})
	b.AddWindow(platform.Window{PID: 3, Class: "Untitled", Title: "", Desktop: 1})
	b.AddWindow(platform.Window{PID: 4, Class: "Notepad", Title: "elsewhere", Desktop: 0})
	b.AddWindow(platform.Window{PID: 5, Class: "Pinned", Title: "sticky", Desktop: platform.AllDesktops})

	e := New(b)
	got := e.WindowsOnDesktop(1)
	if len(got) != 1 || got[0].ID != keep {
		t.Fatalf("WindowsOnDesktop(1) = %+v, want only %v", got, keep)
	}
	if got := e.WindowsOnDesktop(platform.NoDesktop); got != nil {
		t.Errorf("expected nil for NoDesktop, got %+v", got)
	}
}

func TestSelectRules(t *testing.T) {
	console := platform.Window{ID: 1, Class: "ConsoleWindowClass", Title: "Administrator: Command Prompt"}
	notepad := platform.Window{ID: 2, Class: "Notepad", Title: "Untitled - Notepad"}
	edge := platform.Window{ID: 3, Class: "Chrome_WidgetWin_1", Title: "New tab - Microsoft Edge"}
	tooltip := platform.Window{ID: 4, Class: "Helper", Title: ""}
	named := platform.Window{ID: 5, Class: "SunAwtFrame", Title: "IntelliJ IDEA"}
	dwm := platform.Window{ID: 6, Class: "Dwm", Title: "Desktop Window Manager"}

	tests := []struct {
		name     string
		hint     string
		windows  []platform.Window
		wantID   platform.WindowID
		wantRule string
	}{
		{name: "console for shell", hint: `C:\Windows\System32\cmd.exe`, windows: []platform.Window{tooltip, console}, wantID: 1, wantRule: "console"},
		{name: "editor class", hint: "notepad", windows: []platform.Window{tooltip, notepad}, wantID: 2, wantRule: "editor"},
		{name: "browser class", hint: "msedge.exe", windows: []platform.Window{tooltip, edge}, wantID: 3, wantRule: "browser"},
		{name: "title contains hint", hint: "idea", windows: []platform.Window{tooltip, named}, wantID: 5, wantRule: "title-hint"},
		{name: "meaningful title", hint: "unknown", windows: []platform.Window{dwm, tooltip, named}, wantID: 5, wantRule: "meaningful-title"},
		{name: "catch-all", hint: "unknown", windows: []platform.Window{tooltip, dwm}, wantID: 4, wantRule: CatchAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule, ok := Select(DefaultRules(), tt.hint, tt.windows)
			if !ok {
				t.Fatal("expected a selection")
			}
			if got.ID != tt.wantID || rule != tt.wantRule {
				t.Errorf("Select() = %v via %q, want %v via %q", got.ID, rule, tt.wantID, tt.wantRule)
			}
		})
	}

	if _, _, ok := Select(DefaultRules(), "notepad", nil); ok {
		t.Error("expected no selection for empty window set")
	}
}

func TestWithRulesReplacesPolicy(t *testing.T) {
	b := platformtest.New()
	b.AddProcess(10, 1, "app", time.Now())
	b.AddWindow(platform.Window{PID: 10, Class: "A", Title: "first"})
	second := b.AddWindow(platform.Window{PID: 10, Class: "B", Title: "second"})

	e := New(b, WithRules(Rule{Name: "class-b", Match: func(_ string, w platform.Window) bool { return w.Class == "B" }}))
	got, ok := e.MainWindowCandidate(10, "app")
	if !ok || got.ID != second {
		t.Fatalf("MainWindowCandidate() = %v, %v; want %v", got.ID, ok, second)
	}
}

func TestFindByHint(t *testing.T) {
	b := platformtest.New()
	b.AddWindow(platform.Window{PID: 1, Class: "Chrome_WidgetWin_1", Title: "notepad tips - Google Chrome"})
	pad := b.AddWindow(platform.Window{PID: 2, Class: "Notepad", Title: "Untitled"})
	calc := b.AddWindow(platform.Window{PID: 3, Class: "ApplicationFrameWindow", Title: "Calculator"})

	e := New(b)
	if w, ok := e.FindByHint("notepad.exe"); !ok || w.ID != pad {
		t.Errorf("FindByHint(notepad) = %v, %v; want %v", w.ID, ok, pad)
	}
	if w, ok := e.FindByHint("calculator"); !ok || w.ID != calc {
		t.Errorf("FindByHint(calculator) = %v, %v; want %v", w.ID, ok, calc)
	}
	if _, ok := e.FindByHint("missing"); ok {
		t.Error("expected no match")
	}
}

func TestNormalizeHint(t *testing.T) {
	tests := map[string]string{
		`C:\Program Files\App\App.EXE`: "app",
		"/usr/bin/gedit":               "gedit",
		"  pwsh ":                      "pwsh",
		"notepad++.exe":                "notepad++",
	}
	for in, want := range tests {
		if got := NormalizeHint(in); got != want {
			t.Errorf("NormalizeHint(%q) = %q, want %q", in, got, want)
		}
	}
}
