package orchestrator

import (
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/lockin/internal/actionlog"
	"github.com/1broseidon/lockin/internal/desktop"
	"github.com/1broseidon/lockin/internal/platform"
	"github.com/1broseidon/lockin/internal/registry"
)

// SessionInfo describes the task desktop.
type SessionInfo struct {
	Desktop   platform.DesktopID `json:"desktop"`
	Previous  platform.DesktopID `json:"previous"`
	CreatedAt time.Time          `json:"created_at"`
	Degraded  bool               `json:"degraded"`
	Reason    string             `json:"reason,omitempty"`
}

// Status is a read-only snapshot for display.
type Status struct {
	Session   *SessionInfo      `json:"session,omitempty"`
	Apps      []registry.App    `json:"apps"`
	Unmanaged []platform.Window `json:"unmanaged"`
}

// Snapshot returns the registry plus the windows on the task desktop that no
// launch accounts for.
func (o *Orchestrator) Snapshot() Status {
	st := Status{
		Apps:      o.registry.List(),
		Unmanaged: []platform.Window{},
	}

	sess := o.currentSession()
	if sess == nil {
		return st
	}
	info := &SessionInfo{
		Desktop:   sess.Desktop,
		Previous:  sess.Previous,
		CreatedAt: sess.CreatedAt,
		Degraded:  sess.Degraded(),
	}
	if sess.Reason != nil {
		info.Reason = sess.Reason.Error()
	}
	st.Session = info

	tracked := make(map[platform.WindowID]bool)
	for _, e := range o.registry.TrackedWindows() {
		tracked[e.Window] = true
	}
	for _, w := range o.desktops.WindowsOnSession(sess) {
		if !tracked[w.ID] {
			st.Unmanaged = append(st.Unmanaged, w)
		}
	}
	return st
}

// PruneReport counts what Prune changed.
type PruneReport struct {
	Dropped int      `json:"dropped"`
	Adopted int      `json:"adopted"`
	Removed []string `json:"removed,omitempty"`
}

// Prune reconciles the registry with the OS: handles of destroyed windows
// are dropped, new windows opened by tracked processes are moved to the task
// desktop and attached, and apps whose process has exited without leaving a
// window are marked Exited and removed after the exit grace.
func (o *Orchestrator) Prune() PruneReport {
	var report PruneReport
	sess := o.currentSession()
	now := time.Now()

	for _, app := range o.registry.List() {
		if app.Status == registry.Launching {
			continue
		}

		var dead []platform.WindowID
		for _, w := range app.Windows {
			if !o.backend.IsWindow(w) {
				dead = append(dead, w)
			}
		}

		alive := app.PID > 0 && o.backend.ProcessAlive(app.PID)
		var fresh []platform.WindowID
		if alive && app.Status.Active() {
			fresh = o.adoptable(app, sess)
		}

		updated, err := o.registry.Update(app.ID, func(a *registry.App) error {
			for _, w := range dead {
				a.RemoveWindow(w)
			}
			for _, w := range fresh {
				a.AddWindow(w)
			}
			if !alive && len(a.Windows) == 0 && a.Status.Active() {
				a.Status = registry.Exited
			}
			return nil
		})
		if err != nil {
			continue
		}
		report.Dropped += len(dead)
		report.Adopted += len(fresh)

		expired := now.Sub(updated.LaunchedAt) > o.opts.ExitGrace
		if !alive && len(updated.Windows) == 0 && !updated.Status.Active() && expired {
			if _, ok := o.registry.Remove(updated.ID); ok {
				report.Removed = append(report.Removed, updated.ID)
				o.logger.Info("application exited", "app", updated.ID, "name", updated.Name)
			}
		}
	}

	o.refreshGauges()
	if report.Dropped > 0 || report.Adopted > 0 || len(report.Removed) > 0 {
		o.actions.Record(actionlog.ActionPrune, "",
			zap.Int("dropped", report.Dropped), zap.Int("adopted", report.Adopted), zap.Strings("removed", report.Removed))
	}
	return report
}

// adoptable returns windows of app's process tree that no app tracks yet,
// after moving them to the task desktop.
func (o *Orchestrator) adoptable(app registry.App, sess *desktop.Session) []platform.WindowID {
	var out []platform.WindowID
	for _, w := range o.enum.WindowsOwnedByProcess(app.PID, true) {
		if slices.Contains(app.Windows, w.ID) {
			continue
		}
		if _, owned := o.registry.FindByWindow(w.ID); owned {
			continue
		}
		if err := o.desktops.MoveWindow(w.ID, sess); err != nil {
			if errors.Is(err, platform.ErrWindowGone) {
				continue
			}
			o.logger.Debug("failed to move adopted window", "app", app.ID, "window", w.ID, "error", err)
		}
		out = append(out, w.ID)
	}
	return out
}
