// Package mcp exposes the lockin daemon as Model Context Protocol tools over
// stdio. Every tool call is proxied to the daemon over IPC.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/lockin/internal/ipc"
	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/registry"
)

const (
	ServerName    = "lockin"
	ServerVersion = "0.1.0"
)

// Daemon is the subset of the IPC client the tools use.
type Daemon interface {
	Status() (*ipc.StatusData, error)
	Launch(req launcher.Request, wait bool) (*registry.App, error)
	Focus(target string) (string, error)
	MinimizeAll() (int, error)
	CloseAll() (int, error)
	CloseApp(id string) error
	CompleteTask() (*ipc.TeardownData, error)
	LoadPreset(name string) (*ipc.AppsData, error)
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server for lockin.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
}

// NewServer creates a new MCP server that forwards to d.
func NewServer(d Daemon) *Server {
	s := &Server{daemon: d}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "launch_app",
		Description: "Launch an application onto the isolated task desktop. By default waits until the launch resolved to a window (or failed) and returns the tracked application with its id.",
	}, s.handleLaunchApp)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_apps",
		Description: "List managed applications with their status and windows, plus windows on the task desktop that no launch accounts for.",
	}, s.handleListApps)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "focus_app",
		Description: "Bring an application (by id) or a window (by handle) to the foreground. Falls back to the application's other windows when the main window is gone.",
	}, s.handleFocusApp)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "minimize_all",
		Description: "Minimize every window on the task desktop. Windows on other desktops are never touched.",
	}, s.handleMinimizeAll)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "close_all",
		Description: "Close every window on the task desktop and forget all managed applications. The desktop stays.",
	}, s.handleCloseAll)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "close_app",
		Description: "Close one application's windows, terminating its process if it does not exit on its own.",
	}, s.handleCloseApp)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "complete_task",
		Description: "Finish the task: close everything on the task desktop, remove the desktop and return to the previous one.",
	}, s.handleCompleteTask)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "load_preset",
		Description: "Launch every application and browser tab of a configured preset.",
	}, s.handleLoadPreset)
}
