package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/lockin/internal/actionlog"
	"github.com/1broseidon/lockin/internal/desktop"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/registry"
)

// Focus brings target to the foreground. target is an application id (or a
// unique id prefix) or a raw window handle such as "0x1a2b". A bare decimal
// target is a handle only when no application id starts with it. For an
// application the main window is tried first, then its other windows in
// the order they were attached; stale handles are dropped on the way.
func (o *Orchestrator) Focus(target string) (platform.WindowID, error) {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "0x") && !strings.HasPrefix(target, "0X") {
		app, err := o.registry.Lookup(target)
		if err == nil {
			return o.focusApp(app)
		}
		win, perr := platform.ParseWindowID(target)
		if perr != nil || !errors.Is(err, registry.ErrNotFound) {
			return 0, err
		}
		return o.focusHandle(win)
	}
	win, err := platform.ParseWindowID(target)
	if err != nil {
		return 0, err
	}
	return o.focusHandle(win)
}

func (o *Orchestrator) focusHandle(win platform.WindowID) (platform.WindowID, error) {
	if err := o.focusWindow(win); err != nil {
		o.metrics.FocusFailed()
		if errors.Is(err, platform.ErrWindowGone) {
			o.registry.DropWindow(win)
			return 0, fmt.Errorf("window %s: %w", win, ErrFocusFailed)
		}
		return 0, fmt.Errorf("failed to focus window %s: %w", win, err)
	}
	o.actions.Record(actionlog.ActionFocus, "", zap.Stringer("window", win))
	return win, nil
}

func (o *Orchestrator) focusApp(app registry.App) (platform.WindowID, error) {
	candidates := make([]platform.WindowID, 0, len(app.Windows)+1)
	if app.HasMainWindow() {
		candidates = append(candidates, app.MainWindow)
	}
	for _, w := range app.Windows {
		if w != app.MainWindow {
			candidates = append(candidates, w)
		}
	}

	for _, w := range candidates {
		err := o.focusWindow(w)
		if err == nil {
			o.actions.Record(actionlog.ActionFocus, app.ID, zap.Stringer("window", w))
			return w, nil
		}
		if errors.Is(err, platform.ErrWindowGone) || !o.backend.IsWindow(w) {
			o.registry.DropWindow(w)
			continue
		}
		o.logger.Debug("focus attempt failed", "app", app.ID, "window", w, "error", err)
	}

	o.metrics.FocusFailed()
	return 0, fmt.Errorf("%s (%s): %w", app.Name, app.ID, ErrFocusFailed)
}

// focusWindow re-reads the window right before acting on it.
func (o *Orchestrator) focusWindow(win platform.WindowID) error {
	info, err := o.backend.WindowInfo(win)
	if err != nil {
		return err
	}
	if info.Minimized {
		if err := o.backend.RestoreWindow(win); err != nil {
			return err
		}
	}
	if sess := o.currentSession(); !sess.Degraded() && info.Desktop == sess.Desktop {
		if cur, err := o.backend.CurrentDesktop(); err == nil && cur != sess.Desktop {
			if err := o.backend.SwitchDesktop(sess.Desktop); err != nil {
				o.logger.Debug("failed to switch to task desktop", "desktop", sess.Desktop, "error", err)
			}
		}
	}
	return o.backend.FocusWindow(win)
}

// bulkTargets returns every window on the task desktop, tracked or not. In
// degraded mode only tracked windows qualify.
func (o *Orchestrator) bulkTargets() []platform.WindowID {
	sess := o.currentSession()
	entries := o.registry.AllWindows(true)
	out := make([]platform.WindowID, 0, len(entries))
	for _, e := range entries {
		if e.AppID != "" && !sess.Degraded() && !o.desktops.IsWindowOnSession(e.Window, sess) {
			if !o.backend.IsWindow(e.Window) {
				o.registry.DropWindow(e.Window)
			}
			continue
		}
		out = append(out, e.Window)
	}
	return out
}

// forEachWindow applies op to every window. Windows that no longer exist
// are dropped from tracking and do not count.
func (o *Orchestrator) forEachWindow(windows []platform.WindowID, op func(platform.WindowID) error) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, w := range windows {
		if err := op(w); err != nil {
			if errors.Is(err, platform.ErrWindowGone) || !o.backend.IsWindow(w) {
				o.registry.DropWindow(w)
				continue
			}
			errs = append(errs, fmt.Errorf("window %s: %w", w, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// MinimizeAll minimizes every window on the task desktop and returns how
// many were minimized.
func (o *Orchestrator) MinimizeAll() (int, error) {
	n, err := o.forEachWindow(o.bulkTargets(), o.backend.MinimizeWindow)
	o.metrics.BulkOperation("minimize_all", n)
	o.actions.Record(actionlog.ActionMinimizeAll, "", zap.Int("windows", n))
	return n, err
}

// CloseAllManaged closes every window on the task desktop, terminates
// launched processes that outlive their windows, and empties the registry.
// Temporary browser profiles are removed; the desktop itself stays.
func (o *Orchestrator) CloseAllManaged(ctx context.Context) (int, error) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	o.cancelAll()

	n, err := o.forEachWindow(o.bulkTargets(), o.backend.CloseWindow)
	apps := o.registry.Clear()
	terminated, killed := o.escalate(ctx, activePIDs(apps))
	o.removeProfiles()

	o.metrics.BulkOperation("close_all", n)
	o.refreshGauges()
	o.actions.Record(actionlog.ActionCloseAll, "",
		zap.Int("windows", n), zap.Int("apps", len(apps)), zap.Int("terminated", terminated), zap.Int("killed", killed))
	o.logger.Info("closed all windows on task desktop", "windows", n, "apps", len(apps))
	return n, err
}

// CloseApp closes the windows of one application and escalates to
// terminating, then killing, its process if it does not exit.
func (o *Orchestrator) CloseApp(ctx context.Context, id string) error {
	app, err := o.registry.Lookup(id)
	if err != nil {
		return err
	}
	o.cancelResolution(app.ID)
	if fresh, ok := o.registry.Get(app.ID); ok {
		app = fresh
	}

	closed, closeErr := o.forEachWindow(app.Windows, o.backend.CloseWindow)
	var pids []int
	if app.PID > 0 {
		pids = append(pids, app.PID)
	}
	terminated, killed := o.escalate(ctx, pids)
	o.registry.Remove(app.ID)

	o.refreshGauges()
	o.actions.Record(actionlog.ActionCloseApp, app.ID,
		zap.Int("windows", closed), zap.Int("terminated", terminated), zap.Int("killed", killed))
	o.logger.Info("application closed", "app", app.ID, "name", app.Name, "windows", closed, "terminated", terminated, "killed", killed)
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", app.Name, closeErr)
	}
	return ctx.Err()
}

// MinimizeApp minimizes every window of one application.
func (o *Orchestrator) MinimizeApp(id string) (int, error) {
	app, err := o.registry.Lookup(id)
	if err != nil {
		return 0, err
	}
	n, err := o.forEachWindow(app.Windows, o.backend.MinimizeWindow)
	o.actions.Record(actionlog.ActionMinimizeApp, app.ID, zap.Int("windows", n))
	return n, err
}

// RestoreApp restores every window of one application.
func (o *Orchestrator) RestoreApp(id string) (int, error) {
	app, err := o.registry.Lookup(id)
	if err != nil {
		return 0, err
	}
	n, err := o.forEachWindow(app.Windows, o.backend.RestoreWindow)
	o.actions.Record(actionlog.ActionRestoreApp, app.ID, zap.Int("windows", n))
	return n, err
}

// CompleteTask tears down the task desktop, clears the registry and removes
// temporary browser profiles. The next launch creates a fresh desktop.
func (o *Orchestrator) CompleteTask(ctx context.Context) (desktop.TeardownReport, error) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	o.cancelAll()

	sess := o.currentSession()
	var (
		report desktop.TeardownReport
		err    error
	)
	if sess.Degraded() {
		apps := o.registry.List()
		var windows []platform.WindowID
		for _, app := range apps {
			windows = append(windows, app.Windows...)
		}
		report.Closed, err = o.forEachWindow(windows, o.backend.CloseWindow)
		terminated, killed := o.escalate(ctx, activePIDs(apps))
		report.Terminated = terminated + killed
	} else {
		// Readers may still hold the live session; tear down a copy.
		s := *sess
		report, err = o.desktops.Teardown(ctx, &s)
	}

	cleared := o.registry.Clear()
	o.removeProfiles()
	o.mu.Lock()
	o.session = nil
	o.mu.Unlock()

	o.metrics.Teardown(err)
	o.refreshGauges()
	o.actions.Record(actionlog.ActionCompleteTask, "",
		zap.Int("apps", len(cleared)), zap.Int("closed", report.Closed), zap.Int("terminated", report.Terminated),
		zap.Int("remaining", report.Remaining), zap.Error(err))
	if err != nil {
		return report, fmt.Errorf("failed to tear down task desktop: %w", err)
	}
	o.logger.Info("task completed", "apps", len(cleared), "closed", report.Closed, "terminated", report.Terminated)
	return report, nil
}

// escalate waits for pids to exit, then terminates, then kills survivors.
func (o *Orchestrator) escalate(ctx context.Context, pids []int) (terminated, killed int) {
	alive := o.waitExit(ctx, pids, o.opts.CloseGrace)
	if len(alive) == 0 || ctx.Err() != nil {
		return 0, 0
	}
	for _, pid := range alive {
		if err := o.backend.TerminateProcess(pid, false); err != nil && !errors.Is(err, platform.ErrProcessGone) {
			o.logger.Warn("failed to terminate process", "pid", pid, "error", err)
			continue
		}
		terminated++
	}

	alive = o.waitExit(ctx, alive, o.opts.KillGrace)
	if len(alive) == 0 || ctx.Err() != nil {
		return terminated, 0
	}
	for _, pid := range alive {
		if err := o.backend.TerminateProcess(pid, true); err != nil && !errors.Is(err, platform.ErrProcessGone) {
			o.logger.Warn("failed to kill process", "pid", pid, "error", err)
			continue
		}
		killed++
	}
	return terminated, killed
}

// waitExit polls until every pid has exited or d elapses and returns the
// survivors.
func (o *Orchestrator) waitExit(ctx context.Context, pids []int, d time.Duration) []int {
	deadline := time.Now().Add(d)
	for {
		alive := slices.DeleteFunc(slices.Clone(pids), func(pid int) bool {
			return !o.backend.ProcessAlive(pid)
		})
		if len(alive) == 0 || !time.Now().Before(deadline) {
			return alive
		}
		timer := time.NewTimer(pollEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return alive
		case <-timer.C:
		}
	}
}

func activePIDs(apps []registry.App) []int {
	var pids []int
	for _, app := range apps {
		if app.PID > 0 && app.Status.Active() && !slices.Contains(pids, app.PID) {
			pids = append(pids, app.PID)
		}
	}
	return pids
}
