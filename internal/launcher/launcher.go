// Package launcher resolves and starts application processes.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultSettleDelay is how long Launch waits before returning so that a
// process which exits immediately reports its exit code with the handle.
const DefaultSettleDelay = 500 * time.Millisecond

// Policy holds the recognised launch options.
type Policy struct {
	// AllocateConsole attaches a new console (Windows) or wraps the program
	// in the configured terminal command (elsewhere). It is forced on for
	// configured console programs.
	AllocateConsole bool     `json:"allocate_console,omitempty"`
	Dir             string   `json:"dir,omitempty"`
	Env             []string `json:"env,omitempty"`
}

// Request describes one application launch.
type Request struct {
	DisplayName string   `json:"display_name,omitempty"`
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
	Policy      Policy   `json:"policy"`
}

// Name returns the display name, defaulting to the executable base name.
func (r Request) Name() string {
	if n := strings.TrimSpace(r.DisplayName); n != "" {
		return n
	}
	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(r.Command, `\`, "/")))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Options configures a Launcher.
type Options struct {
	SearchDirs      []string
	ConsolePrograms []string
	// TerminalCommand wraps console programs outside Windows,
	// e.g. "x-terminal-emulator -e".
	TerminalCommand string
	SettleDelay     time.Duration
	Logger          *slog.Logger
}

// Launcher starts processes under a launch policy.
type Launcher struct {
	finder          Finder
	consolePrograms []string
	terminal        []string
	settle          time.Duration
	logger          *slog.Logger
}

// New creates a Launcher.
func New(opts Options) (*Launcher, error) {
	terminal, err := splitCommand(opts.TerminalCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid terminal command: %w", err)
	}
	settle := opts.SettleDelay
	if settle < 0 {
		settle = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		finder:          Finder{SearchDirs: opts.SearchDirs},
		consolePrograms: opts.ConsolePrograms,
		terminal:        terminal,
		settle:          settle,
		logger:          logger,
	}, nil
}

// Resolve applies the executable fallback search.
func (l *Launcher) Resolve(command string) (string, error) {
	return l.finder.Resolve(command)
}

// IsConsoleProgram reports whether command is on the console program list.
func (l *Launcher) IsConsoleProgram(command string) bool {
	base := strings.ToLower(filepath.Base(filepath.FromSlash(strings.ReplaceAll(command, `\`, "/"))))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	for _, p := range l.consolePrograms {
		if strings.EqualFold(strings.TrimSuffix(p, filepath.Ext(p)), base) {
			return true
		}
	}
	return false
}

// Launch resolves and starts req. It returns a *LaunchError when the
// executable cannot be resolved or the OS refuses to start it. A process
// that exits quickly is not an error; its exit code is on the handle.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Handle, error) {
	path, err := l.finder.Resolve(req.Command)
	if err != nil {
		return nil, &LaunchError{Command: req.Command, Op: "resolve", Err: err}
	}

	policy := req.Policy
	if l.IsConsoleProgram(path) {
		policy.AllocateConsole = true
	}

	argv := append([]string{path}, req.Args...)
	if policy.AllocateConsole {
		argv = consoleArgv(l.terminal, argv)
	}

	// Not CommandContext: launched applications outlive the request.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = policy.Dir
	if len(policy.Env) > 0 {
		cmd.Env = append(os.Environ(), policy.Env...)
	}
	cmd.SysProcAttr = sysProcAttr(policy)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: req.Command, Op: "start", Err: err}
	}

	h := &Handle{
		pid:       cmd.Process.Pid,
		path:      path,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go h.wait(cmd)

	l.logger.Debug("process started", "command", req.Command, "path", path, "pid", h.pid, "console", policy.AllocateConsole)

	if l.settle > 0 {
		timer := time.NewTimer(l.settle)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-h.done:
		case <-ctx.Done():
		}
	}
	return h, nil
}

// Handle tracks a started process.
type Handle struct {
	pid       int
	path      string
	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	exited   bool
	exitCode int
}

// PID returns the process id.
func (h *Handle) PID() int { return h.pid }

// Path returns the resolved executable path.
func (h *Handle) Path() string { return h.path }

// StartedAt returns when the process was started.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode returns the exit code and true once the process has exited.
func (h *Handle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

func (h *Handle) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	h.mu.Unlock()
	close(h.done)
}
