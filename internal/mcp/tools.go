package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/registry"
)

func (s *Server) handleLaunchApp(_ context.Context, _ *mcpsdk.CallToolRequest, args LaunchAppInput) (*mcpsdk.CallToolResult, LaunchAppOutput, error) {
	command := strings.TrimSpace(args.Command)
	if command == "" {
		return nil, LaunchAppOutput{}, fmt.Errorf("command is required")
	}
	wait := true
	if args.Wait != nil {
		wait = *args.Wait
	}

	app, err := s.daemon.Launch(launcher.Request{
		DisplayName: args.Name,
		Command:     command,
		Args:        args.Args,
		Policy:      launcher.Policy{AllocateConsole: args.Console},
	}, wait)
	if err != nil {
		return nil, LaunchAppOutput{}, err
	}
	return nil, LaunchAppOutput{App: appInfo(*app)}, nil
}

func (s *Server) handleListApps(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListAppsOutput, error) {
	st, err := s.daemon.Status()
	if err != nil {
		return nil, ListAppsOutput{}, err
	}

	out := ListAppsOutput{
		Apps:      make([]AppInfo, 0, len(st.Apps)),
		Unmanaged: make([]WindowInfo, 0, len(st.Unmanaged)),
	}
	if st.Session != nil {
		out.Degraded = st.Session.Degraded
		if !st.Session.Degraded {
			d := int(st.Session.Desktop)
			out.Desktop = &d
		}
	}
	for _, app := range st.Apps {
		out.Apps = append(out.Apps, appInfo(app))
	}
	for _, w := range st.Unmanaged {
		out.Unmanaged = append(out.Unmanaged, WindowInfo{
			Handle: w.ID.String(),
			PID:    w.PID,
			Class:  w.Class,
			Title:  w.Title,
		})
	}
	return nil, out, nil
}

func (s *Server) handleFocusApp(_ context.Context, _ *mcpsdk.CallToolRequest, args TargetInput) (*mcpsdk.CallToolResult, FocusAppOutput, error) {
	target := strings.TrimSpace(args.Target)
	if target == "" {
		return nil, FocusAppOutput{}, fmt.Errorf("target is required")
	}
	win, err := s.daemon.Focus(target)
	if err != nil {
		return nil, FocusAppOutput{}, err
	}
	return nil, FocusAppOutput{Window: win}, nil
}

func (s *Server) handleMinimizeAll(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, WindowCountOutput, error) {
	n, err := s.daemon.MinimizeAll()
	if err != nil {
		return nil, WindowCountOutput{}, err
	}
	return nil, WindowCountOutput{Windows: n}, nil
}

func (s *Server) handleCloseAll(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, WindowCountOutput, error) {
	n, err := s.daemon.CloseAll()
	if err != nil {
		return nil, WindowCountOutput{}, err
	}
	return nil, WindowCountOutput{Windows: n}, nil
}

func (s *Server) handleCloseApp(_ context.Context, _ *mcpsdk.CallToolRequest, args TargetInput) (*mcpsdk.CallToolResult, CloseAppOutput, error) {
	target := strings.TrimSpace(args.Target)
	if target == "" {
		return nil, CloseAppOutput{}, fmt.Errorf("target is required")
	}
	if err := s.daemon.CloseApp(target); err != nil {
		return nil, CloseAppOutput{}, err
	}
	return nil, CloseAppOutput{Closed: true}, nil
}

func (s *Server) handleCompleteTask(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, CompleteTaskOutput, error) {
	report, err := s.daemon.CompleteTask()
	if err != nil {
		return nil, CompleteTaskOutput{}, err
	}
	return nil, CompleteTaskOutput{
		Closed:      report.Closed,
		AlreadyGone: report.AlreadyGone,
		Terminated:  report.Terminated,
		Remaining:   report.Remaining,
		Removed:     report.Removed,
	}, nil
}

func (s *Server) handleLoadPreset(_ context.Context, _ *mcpsdk.CallToolRequest, args LoadPresetInput) (*mcpsdk.CallToolResult, LoadPresetOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, LoadPresetOutput{}, fmt.Errorf("name is required")
	}
	data, err := s.daemon.LoadPreset(name)
	if err != nil {
		return nil, LoadPresetOutput{}, err
	}
	out := LoadPresetOutput{Apps: make([]AppInfo, 0, len(data.Apps)), Error: data.Error}
	for _, app := range data.Apps {
		out.Apps = append(out.Apps, appInfo(app))
	}
	return nil, out, nil
}

func appInfo(app registry.App) AppInfo {
	info := AppInfo{
		ID:      app.ID,
		Name:    app.Name,
		Command: app.Command,
		PID:     app.PID,
		Status:  app.Status.String(),
		Windows: windowHandles(app.Windows),
		Error:   app.Error,
	}
	if app.HasMainWindow() {
		info.MainWindow = app.MainWindow.String()
	}
	return info
}

func windowHandles(ids []platform.WindowID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
