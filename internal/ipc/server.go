package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/lockin/internal/desktop"
	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/orchestrator"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/registry"
	"github.com/1broseidon/lockin/internal/runtimepath"
)

// Service is the daemon side of every command.
type Service interface {
	Snapshot() orchestrator.Status
	Launch(ctx context.Context, req launcher.Request) (registry.App, error)
	Await(ctx context.Context, id string) (registry.App, error)
	Focus(target string) (platform.WindowID, error)
	MinimizeAll() (int, error)
	CloseAllManaged(ctx context.Context) (int, error)
	CloseApp(ctx context.Context, id string) error
	MinimizeApp(id string) (int, error)
	RestoreApp(id string) (int, error)
	CompleteTask(ctx context.Context) (desktop.TeardownReport, error)
	LoadPreset(ctx context.Context, name string) ([]registry.App, error)
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// SocketPath defaults to runtimepath.SocketPath().
	SocketPath string
	// RequestTimeout bounds a single command, including LAUNCH with wait.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server handles IPC requests from clients
type Server struct {
	socketPath string
	listener   net.Listener
	svc        Service
	timeout    time.Duration
	logger     *slog.Logger
	startTime  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(svc Service, opts ServerOptions) (*Server, error) {
	socketPath := opts.SocketPath
	if socketPath == "" {
		p, err := runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
		socketPath = p
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		svc:        svc,
		timeout:    timeout,
		logger:     logger,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SocketPath returns the listening socket path.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.send(conn, NewErrorResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	s.send(conn, s.dispatch(ctx, req))
}

// dispatch runs one command and converts panics into error responses.
func (s *Server) dispatch(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("IPC handler panic", "command", req.Command, "panic", r)
			resp = NewErrorResponse(fmt.Sprintf("internal error handling %s", req.Command))
		}
	}()

	data, err := s.handleCommand(ctx, req)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, err = NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

var errUnknownCommand = errors.New("unknown command")

// handleCommand processes an IPC command and returns the response data
func (s *Server) handleCommand(ctx context.Context, req *Request) (any, error) {
	switch req.Command {
	case CommandPing:
		return nil, nil
	case CommandStatus:
		return StatusData{
			Status:        s.svc.Snapshot(),
			PID:           os.Getpid(),
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		}, nil
	case CommandLaunch:
		return s.handleLaunch(ctx, req.Payload)
	case CommandAwait:
		var p TargetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return s.svc.Await(ctx, p.Target)
	case CommandFocus:
		var p TargetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		win, err := s.svc.Focus(p.Target)
		if err != nil {
			return nil, err
		}
		return FocusData{Window: win.String()}, nil
	case CommandMinimizeAll:
		n, err := s.svc.MinimizeAll()
		return CountData{Windows: n}, err
	case CommandCloseAll:
		n, err := s.svc.CloseAllManaged(ctx)
		return CountData{Windows: n}, err
	case CommandCloseApp:
		var p TargetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.svc.CloseApp(ctx, p.Target)
	case CommandMinimizeApp:
		var p TargetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		n, err := s.svc.MinimizeApp(p.Target)
		return CountData{Windows: n}, err
	case CommandRestoreApp:
		var p TargetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		n, err := s.svc.RestoreApp(p.Target)
		return CountData{Windows: n}, err
	case CommandCompleteTask:
		report, err := s.svc.CompleteTask(ctx)
		return TeardownData(report), err
	case CommandLoadPreset:
		var p PresetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		apps, err := s.svc.LoadPreset(ctx, p.Name)
		if err != nil && len(apps) == 0 {
			return nil, err
		}
		data := AppsData{Apps: apps}
		if err != nil {
			data.Error = err.Error()
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, req.Command)
	}
}

func (s *Server) handleLaunch(ctx context.Context, payload json.RawMessage) (any, error) {
	var p LaunchPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Request.Command == "" {
		return nil, fmt.Errorf("request.command is required")
	}
	app, err := s.svc.Launch(ctx, p.Request)
	if err != nil {
		return nil, err
	}
	if !p.Wait {
		return app, nil
	}
	return s.svc.Await(ctx, app.ID)
}

func (s *Server) send(conn net.Conn, resp *Response) {
	data, err := resp.Marshal()
	if err != nil {
		s.logger.Warn("failed to marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("failed to send response", "error", err)
	}
}

// Stop closes the listener, cancels in-flight commands and waits for their
// handlers to return.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}
