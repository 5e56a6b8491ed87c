// Package orchestrator ties launching, resolution, desktop isolation and the
// registry together and executes focus/minimize/close requests.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/lockin/internal/actionlog"
	"github.com/1broseidon/lockin/internal/desktop"
	"github.com/1broseidon/lockin/internal/enumerate"
	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/metrics"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/registry"
	"github.com/1broseidon/lockin/internal/resolve"
)

// ErrFocusFailed is returned when a focus target has no valid window left.
var ErrFocusFailed = errors.New("no valid window to focus")

const pollEvery = 50 * time.Millisecond

// Process is a started application process.
type Process interface {
	PID() int
	ExitCode() (int, bool)
	StartedAt() time.Time
	Path() string
}

// Starter starts processes for launch requests.
type Starter interface {
	Start(ctx context.Context, req launcher.Request) (Process, error)
}

type launcherStarter struct {
	l *launcher.Launcher
}

func (s launcherStarter) Start(ctx context.Context, req launcher.Request) (Process, error) {
	h, err := s.l.Launch(ctx, req)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// FromLauncher adapts a launcher.Launcher to a Starter.
func FromLauncher(l *launcher.Launcher) Starter {
	return launcherStarter{l: l}
}

// Options configures an Orchestrator.
type Options struct {
	Resolve resolve.Config
	Desktop desktop.Options
	// CloseGrace is how long a closed application gets to exit before its
	// process is asked to terminate.
	CloseGrace time.Duration
	// KillGrace is how long a terminated process gets before it is killed.
	KillGrace time.Duration
	// ExitGrace keeps apps without windows or process visible for a while
	// before Prune removes them.
	ExitGrace time.Duration
	Rules     []enumerate.Rule
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Actions   *actionlog.Log
}

// DefaultOptions returns the default close and prune timings.
func DefaultOptions() Options {
	return Options{
		Resolve:    resolve.DefaultConfig(),
		CloseGrace: 3 * time.Second,
		KillGrace:  5 * time.Second,
		ExitGrace:  30 * time.Second,
	}
}

type resolution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator owns the task session and the registry.
type Orchestrator struct {
	backend  platform.Backend
	starter  Starter
	enum     *enumerate.Enumerator
	machine  *resolve.Machine
	desktops *desktop.Controller
	registry *registry.Registry
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	actions  *actionlog.Log

	// lifecycle is held shared by Launch and exclusively by CloseAllManaged
	// and CompleteTask, so a launch never lands in a session being torn down.
	lifecycle sync.RWMutex

	mu       sync.Mutex
	session  *desktop.Session
	pending  map[string]*resolution
	profiles []string
}

// New creates an Orchestrator. No desktop is created until the first launch
// or an explicit EnsureSession.
func New(backend platform.Backend, starter Starter, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = def.CloseGrace
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = def.KillGrace
	}
	if opts.ExitGrace <= 0 {
		opts.ExitGrace = def.ExitGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enumOpts := []enumerate.Option{enumerate.WithLogger(logger)}
	if len(opts.Rules) > 0 {
		enumOpts = append(enumOpts, enumerate.WithRules(opts.Rules...))
	}
	enum := enumerate.New(backend, enumOpts...)

	deskOpts := opts.Desktop
	if deskOpts.Logger == nil {
		deskOpts.Logger = logger
	}

	o := &Orchestrator{
		backend:  backend,
		starter:  starter,
		enum:     enum,
		desktops: desktop.NewController(backend, enum, deskOpts),
		opts:     opts,
		logger:   logger,
		metrics:  opts.Metrics,
		actions:  opts.Actions,
		pending:  make(map[string]*resolution),
	}
	o.machine = resolve.New(opts.Resolve, enum, backend, resolve.WithObserver(func(tr resolve.Transition) {
		o.logger.Debug("resolution transition", "from", tr.From, "to", tr.To, "pid", tr.PID)
	}))
	o.registry = registry.New(o)
	return o
}

// Registry exposes the application registry for read access.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// DesktopWindows implements registry.DesktopSource.
func (o *Orchestrator) DesktopWindows() []platform.Window {
	return o.desktops.WindowsOnSession(o.currentSession())
}

func (o *Orchestrator) currentSession() *desktop.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// EnsureSession returns the task session, creating it on first use.
func (o *Orchestrator) EnsureSession() *desktop.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		o.session = o.desktops.CreateSession()
		o.metrics.SetDegraded(o.session.Degraded())
	}
	return o.session
}

// Launch starts req and registers it in Launching state. Resolution
// continues in the background; use Await to wait for it. A LaunchFailure
// registers nothing.
func (o *Orchestrator) Launch(ctx context.Context, req launcher.Request) (registry.App, error) {
	o.lifecycle.RLock()
	defer o.lifecycle.RUnlock()
	return o.launch(ctx, req)
}

func (o *Orchestrator) launch(ctx context.Context, req launcher.Request) (registry.App, error) {
	o.EnsureSession()

	proc, err := o.starter.Start(ctx, req)
	if err != nil {
		o.metrics.LaunchFailed()
		o.actions.Record(actionlog.ActionLaunch, "", zap.String("command", req.Command), zap.Error(err))
		return registry.App{}, err
	}

	app, err := o.registry.Add(registry.App{
		Name:        req.Name(),
		Command:     req.Command,
		PID:         proc.PID(),
		OriginalPID: proc.PID(),
		Status:      registry.Launching,
		LaunchedAt:  proc.StartedAt(),
	})
	if err != nil {
		return registry.App{}, fmt.Errorf("failed to register %s: %w", req.Name(), err)
	}
	o.metrics.LaunchStarted()
	o.actions.Record(actionlog.ActionLaunch, app.ID,
		zap.String("name", app.Name), zap.String("command", req.Command), zap.Int("pid", app.PID))
	o.logger.Info("application launched", "app", app.ID, "name", app.Name, "pid", app.PID)

	// Resolution outlives the request; it is cancelled by CloseApp,
	// CompleteTask or Shutdown.
	rctx, cancel := context.WithCancel(context.Background())
	r := &resolution{cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	o.pending[app.ID] = r
	o.mu.Unlock()

	go o.resolve(rctx, app.ID, proc, req, r)
	return app, nil
}

// LaunchAll launches every request, continuing past failures. Profile
// directories are removed by CloseAllManaged or CompleteTask.
func (o *Orchestrator) LaunchAll(ctx context.Context, reqs []launcher.Request, profiles []string) ([]registry.App, error) {
	o.lifecycle.RLock()
	defer o.lifecycle.RUnlock()

	o.mu.Lock()
	o.profiles = append(o.profiles, profiles...)
	o.mu.Unlock()

	var (
		apps []registry.App
		errs []error
	)
	for _, req := range reqs {
		app, err := o.launch(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		apps = append(apps, app)
	}
	return apps, errors.Join(errs...)
}

func (o *Orchestrator) resolve(ctx context.Context, id string, proc Process, req launcher.Request, r *resolution) {
	defer func() {
		o.mu.Lock()
		if o.pending[id] == r {
			delete(o.pending, id)
		}
		o.mu.Unlock()
		r.cancel()
		close(r.done)
	}()

	hint := proc.Path()
	if hint == "" {
		hint = req.Command
	}
	started := time.Now()
	res, err := o.machine.Run(ctx, resolve.Target{
		Process:    proc,
		Command:    hint,
		LaunchedAt: proc.StartedAt(),
		Exclude: func(pid int) bool {
			return pid != proc.PID() && o.registry.IsTrackedPID(pid)
		},
	})
	if ctx.Err() != nil {
		o.logger.Debug("resolution cancelled", "app", id)
		return
	}
	o.metrics.ObserveResolution(res.State.String(), res.Retargeted, time.Since(started))

	if err != nil {
		o.failed(id, res, err)
		return
	}
	o.resolved(id, res)
}

func (o *Orchestrator) resolved(id string, res resolve.Result) {
	sess := o.currentSession()

	var attached []platform.WindowID
	for _, w := range res.Windows {
		if err := o.desktops.MoveWindow(w.ID, sess); err != nil {
			if errors.Is(err, platform.ErrWindowGone) {
				continue
			}
			o.logger.Warn("failed to move window to task desktop", "app", id, "window", w.ID, "error", err)
		}
		attached = append(attached, w.ID)
	}

	status := registry.Running
	if res.Retargeted {
		status = registry.LauncherPatternResolved
	}
	app, err := o.registry.Update(id, func(a *registry.App) error {
		a.PID = res.PID
		a.OriginalPID = res.OriginalPID
		for _, w := range attached {
			a.AddWindow(w)
		}
		if res.HasMain {
			for _, w := range attached {
				if w == res.MainWindow.ID {
					a.MainWindow = w
				}
			}
		}
		a.Status = status
		a.Error = ""
		return nil
	})
	if err != nil {
		// Closed while we were moving windows.
		o.logger.Debug("resolved application no longer registered", "app", id, "error", err)
		return
	}

	o.logger.Info("application resolved", "app", id, "pid", app.PID, "windows", len(app.Windows), "status", app.Status)
	o.actions.Record(actionlog.ActionResolve, id,
		zap.Stringer("status", app.Status), zap.Int("pid", app.PID), zap.Int("windows", len(app.Windows)))
	o.refreshGauges()
}

func (o *Orchestrator) failed(id string, res resolve.Result, cause error) {
	app, err := o.registry.Update(id, func(a *registry.App) error {
		if res.PID > 0 {
			a.PID = res.PID
		}
		a.Status = registry.Failed
		a.Error = cause.Error()
		return nil
	})
	if err != nil {
		return
	}
	o.logger.Warn("application did not produce a window; process left running unmanaged",
		"app", id, "name", app.Name, "pid", app.PID, "state", res.State, "error", cause)
	o.actions.Record(actionlog.ActionResolve, id, zap.Stringer("status", app.Status), zap.Error(cause))
}

// Await blocks until the resolution of id has finished and returns the app.
func (o *Orchestrator) Await(ctx context.Context, id string) (registry.App, error) {
	app, err := o.registry.Lookup(id)
	if err != nil {
		return registry.App{}, err
	}

	o.mu.Lock()
	r := o.pending[app.ID]
	o.mu.Unlock()
	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return registry.App{}, ctx.Err()
		}
	}

	app, ok := o.registry.Get(app.ID)
	if !ok {
		return registry.App{}, fmt.Errorf("%s: %w", id, registry.ErrNotFound)
	}
	return app, nil
}

// cancelResolution stops the resolution of id, if any, and waits for it.
func (o *Orchestrator) cancelResolution(id string) {
	o.mu.Lock()
	r := o.pending[id]
	o.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (o *Orchestrator) cancelAll() {
	o.mu.Lock()
	pending := make([]*resolution, 0, len(o.pending))
	for _, r := range o.pending {
		pending = append(pending, r)
	}
	o.mu.Unlock()

	for _, r := range pending {
		r.cancel()
	}
	for _, r := range pending {
		<-r.done
	}
}

// Shutdown cancels outstanding resolutions without touching any window.
func (o *Orchestrator) Shutdown() {
	o.cancelAll()
}

func (o *Orchestrator) refreshGauges() {
	o.metrics.SetTracked(o.registry.Len(), len(o.registry.TrackedWindows()))
}

func (o *Orchestrator) removeProfiles() {
	o.mu.Lock()
	profiles := o.profiles
	o.profiles = nil
	o.mu.Unlock()

	for _, dir := range profiles {
		if err := os.RemoveAll(dir); err != nil {
			o.logger.Warn("failed to remove temporary browser profile", "dir", dir, "error", err)
		}
	}
}
