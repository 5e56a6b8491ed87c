package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/1broseidon/lockin/internal/ipc"
	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/orchestrator"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/registry"
)

type fakeDaemon struct {
	launched []launcher.Request
	waits    []bool
	focused  []string
	closed   []string
	err      error
}

func (f *fakeDaemon) Status() (*ipc.StatusData, error) {
	return &ipc.StatusData{Status: orchestrator.Status{
		Session: &orchestrator.SessionInfo{Desktop: 3},
		Apps: []registry.App{{
			ID: "a1", Name: "notepad", PID: 42, Status: registry.Running,
			Windows: []platform.WindowID{0x10, 0x11}, MainWindow: 0x10,
		}},
		Unmanaged: []platform.Window{{ID: 0x99, PID: 7, Class: "Dialog", Title: "Save as"}},
	}}, nil
}

func (f *fakeDaemon) Launch(req launcher.Request, wait bool) (*registry.App, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.launched = append(f.launched, req)
	f.waits = append(f.waits, wait)
	return &registry.App{ID: "a2", Name: req.Name(), Command: req.Command, Status: registry.LauncherPatternResolved, MainWindow: 0x2a, Windows: []platform.WindowID{0x2a}}, nil
}

func (f *fakeDaemon) Focus(target string) (string, error) {
	f.focused = append(f.focused, target)
	return "0x10", f.err
}

func (f *fakeDaemon) MinimizeAll() (int, error) { return 3, f.err }
func (f *fakeDaemon) CloseAll() (int, error)    { return 4, f.err }

func (f *fakeDaemon) CloseApp(id string) error {
	f.closed = append(f.closed, id)
	return f.err
}

func (f *fakeDaemon) CompleteTask() (*ipc.TeardownData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ipc.TeardownData{Closed: 2, Terminated: 1, Removed: true}, nil
}

func (f *fakeDaemon) LoadPreset(name string) (*ipc.AppsData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ipc.AppsData{Apps: []registry.App{{ID: "p1", Name: name, Status: registry.Launching}}}, nil
}

func boolPtr(b bool) *bool { return &b }

func TestLaunchApp(t *testing.T) {
	d := &fakeDaemon{}
	s := NewServer(d)

	_, out, err := s.handleLaunchApp(context.Background(), nil, LaunchAppInput{Command: " msedge.exe ", Args: []string{"https://example.com"}})
	if err != nil {
		t.Fatalf("launch_app: %v", err)
	}
	if len(d.launched) != 1 || d.launched[0].Command != "msedge.exe" {
		t.Fatalf("expected trimmed command to be launched, got %+v", d.launched)
	}
	if !d.waits[0] {
		t.Fatalf("expected launch_app to wait by default")
	}
	if out.App.Status != "launcher_pattern_resolved" {
		t.Errorf("status = %q, want launcher_pattern_resolved", out.App.Status)
	}
	if out.App.MainWindow != "0x2a" {
		t.Errorf("main window = %q, want 0x2a", out.App.MainWindow)
	}

	if _, _, err := s.handleLaunchApp(context.Background(), nil, LaunchAppInput{Command: "calc", Wait: boolPtr(false), Console: true}); err != nil {
		t.Fatalf("launch_app no wait: %v", err)
	}
	if d.waits[1] {
		t.Errorf("expected wait=false to be forwarded")
	}
	if !d.launched[1].Policy.AllocateConsole {
		t.Errorf("expected console flag to be forwarded")
	}
}

func TestLaunchApp_RequiresCommand(t *testing.T) {
	s := NewServer(&fakeDaemon{})
	if _, _, err := s.handleLaunchApp(context.Background(), nil, LaunchAppInput{Command: "  "}); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestListApps(t *testing.T) {
	s := NewServer(&fakeDaemon{})

	_, out, err := s.handleListApps(context.Background(), nil, EmptyInput{})
	if err != nil {
		t.Fatalf("list_apps: %v", err)
	}
	if out.Desktop == nil || *out.Desktop != 3 {
		t.Fatalf("expected desktop 3, got %v", out.Desktop)
	}
	if len(out.Apps) != 1 {
		t.Fatalf("expected 1 app, got %d", len(out.Apps))
	}
	app := out.Apps[0]
	if app.Status != "running" || len(app.Windows) != 2 || app.Windows[1] != "0x11" {
		t.Errorf("unexpected app info %+v", app)
	}
	if len(out.Unmanaged) != 1 || out.Unmanaged[0].Handle != "0x99" {
		t.Errorf("unexpected unmanaged windows %+v", out.Unmanaged)
	}
}

func TestFocusAndClose(t *testing.T) {
	d := &fakeDaemon{}
	s := NewServer(d)

	_, focus, err := s.handleFocusApp(context.Background(), nil, TargetInput{Target: "a1"})
	if err != nil {
		t.Fatalf("focus_app: %v", err)
	}
	if focus.Window != "0x10" {
		t.Errorf("window = %q, want 0x10", focus.Window)
	}

	_, closed, err := s.handleCloseApp(context.Background(), nil, TargetInput{Target: "a1"})
	if err != nil {
		t.Fatalf("close_app: %v", err)
	}
	if !closed.Closed || len(d.closed) != 1 {
		t.Errorf("expected a1 closed, got %+v %v", closed, d.closed)
	}

	if _, _, err := s.handleFocusApp(context.Background(), nil, TargetInput{}); err == nil {
		t.Errorf("expected error for empty target")
	}
}

func TestBulkTools(t *testing.T) {
	s := NewServer(&fakeDaemon{})

	_, min, err := s.handleMinimizeAll(context.Background(), nil, EmptyInput{})
	if err != nil || min.Windows != 3 {
		t.Fatalf("minimize_all = %+v, %v", min, err)
	}
	_, closed, err := s.handleCloseAll(context.Background(), nil, EmptyInput{})
	if err != nil || closed.Windows != 4 {
		t.Fatalf("close_all = %+v, %v", closed, err)
	}
	_, report, err := s.handleCompleteTask(context.Background(), nil, EmptyInput{})
	if err != nil {
		t.Fatalf("complete_task: %v", err)
	}
	if report.Closed != 2 || !report.Removed {
		t.Errorf("unexpected report %+v", report)
	}
	_, preset, err := s.handleLoadPreset(context.Background(), nil, LoadPresetInput{Name: "coding"})
	if err != nil || len(preset.Apps) != 1 || preset.Apps[0].Status != "launching" {
		t.Fatalf("load_preset = %+v, %v", preset, err)
	}
}

func TestDaemonErrorsPropagate(t *testing.T) {
	boom := errors.New("daemon error: no valid window to focus")
	s := NewServer(&fakeDaemon{err: boom})

	if _, _, err := s.handleFocusApp(context.Background(), nil, TargetInput{Target: "x"}); !errors.Is(err, boom) {
		t.Errorf("focus_app err = %v", err)
	}
	if _, _, err := s.handleCompleteTask(context.Background(), nil, EmptyInput{}); !errors.Is(err, boom) {
		t.Errorf("complete_task err = %v", err)
	}
	if _, _, err := s.handleLaunchApp(context.Background(), nil, LaunchAppInput{Command: "x"}); !errors.Is(err, boom) {
		t.Errorf("launch_app err = %v", err)
	}
}
