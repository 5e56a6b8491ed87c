// Package registry is the in-memory table of managed applications.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/lockin/internal/platform"
)

// ErrNotFound is returned for ids that are not (or no longer) registered.
var ErrNotFound = errors.New("application not found")

// Status is the lifecycle state of a managed application.
type Status int

const (
	Launching Status = iota
	Running
	LauncherPatternResolved
	Exited
	Failed
)

var statusNames = map[Status]string{
	Launching:               "launching",
	Running:                 "running",
	LauncherPatternResolved: "launcher_pattern_resolved",
	Exited:                  "exited",
	Failed:                  "failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for k, v := range statusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// Active reports whether the application still has, or may get, windows.
func (s Status) Active() bool {
	return s == Launching || s == Running || s == LauncherPatternResolved
}

// App is a managed application.
type App struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Command     string              `json:"command"`
	PID         int                 `json:"pid"`
	OriginalPID int                 `json:"original_pid"`
	Windows     []platform.WindowID `json:"windows"`
	MainWindow  platform.WindowID   `json:"main_window,omitempty"`
	Status      Status              `json:"status"`
	LaunchedAt  time.Time           `json:"launched_at"`
	Error       string              `json:"error,omitempty"`
}

// HasMainWindow reports whether a main window is set.
func (a App) HasMainWindow() bool {
	return a.MainWindow != 0
}

// AddWindow appends win unless already present.
func (a *App) AddWindow(win platform.WindowID) {
	if win == 0 || slices.Contains(a.Windows, win) {
		return
	}
	a.Windows = append(a.Windows, win)
}

// RemoveWindow drops win and clears it as main window.
func (a *App) RemoveWindow(win platform.WindowID) bool {
	idx := slices.Index(a.Windows, win)
	if idx >= 0 {
		a.Windows = slices.Delete(a.Windows, idx, idx+1)
	}
	if a.MainWindow == win {
		a.MainWindow = 0
	}
	return idx >= 0
}

func (a App) clone() App {
	a.Windows = slices.Clone(a.Windows)
	return a
}

// NewID returns a fresh application id.
func NewID() string {
	return uuid.NewString()
}

// Entry is one window of AllWindows. AppID is empty for windows on the task
// desktop that no launch accounts for.
type Entry struct {
	Window platform.WindowID `json:"window"`
	AppID  string            `json:"app_id,omitempty"`
}

// DesktopSource lists the windows currently on the task desktop.
type DesktopSource interface {
	DesktopWindows() []platform.Window
}

// Registry stores apps. All writes are serialized by its mutex; readers get
// copies.
type Registry struct {
	mu      sync.Mutex
	apps    map[string]*App
	order   []string
	desktop DesktopSource
}

// New creates an empty registry. desktop may be nil.
func New(desktop DesktopSource) *Registry {
	return &Registry{
		apps:    make(map[string]*App),
		desktop: desktop,
	}
}

// Add registers app. An empty ID is assigned.
func (r *Registry) Add(app App) (App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app.ID == "" {
		app.ID = NewID()
	}
	if _, exists := r.apps[app.ID]; exists {
		return App{}, fmt.Errorf("application %s already registered", app.ID)
	}
	if app.LaunchedAt.IsZero() {
		app.LaunchedAt = time.Now()
	}
	stored := app.clone()
	r.apps[app.ID] = &stored
	r.order = append(r.order, app.ID)
	return stored.clone(), nil
}

// Update applies fn to the stored app under the registry lock. It returns
// ErrNotFound when the app has been removed, so a late writer can never
// bring a removed app back.
func (r *Registry) Update(id string, fn func(*App) error) (App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return App{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	working := app.clone()
	if err := fn(&working); err != nil {
		return app.clone(), err
	}
	working.ID = id
	*app = working
	return working.clone(), nil
}

// Remove deletes an app and returns its last state.
func (r *Registry) Remove(id string) (App, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return App{}, false
	}
	delete(r.apps, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return app.clone(), true
}

// Get returns a copy of an app.
func (r *Registry) Get(id string) (App, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return App{}, false
	}
	return app.clone(), true
}

// Lookup resolves an exact id or a unique id prefix.
func (r *Registry) Lookup(idOrPrefix string) (App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app, ok := r.apps[idOrPrefix]; ok {
		return app.clone(), nil
	}
	var match *App
	for _, id := range r.order {
		if idOrPrefix != "" && strings.HasPrefix(id, idOrPrefix) {
			if match != nil {
				return App{}, fmt.Errorf("application id prefix %q is ambiguous", idOrPrefix)
			}
			match = r.apps[id]
		}
	}
	if match == nil {
		return App{}, fmt.Errorf("%s: %w", idOrPrefix, ErrNotFound)
	}
	return match.clone(), nil
}

// List returns copies of all apps in launch order.
func (r *Registry) List() []App {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]App, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.apps[id].clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LaunchedAt.Before(out[j].LaunchedAt)
	})
	return out
}

// Len returns the number of registered apps.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.apps)
}

// FindByWindow returns the app owning win.
func (r *Registry) FindByWindow(win platform.WindowID) (App, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if slices.Contains(r.apps[id].Windows, win) {
			return r.apps[id].clone(), true
		}
	}
	return App{}, false
}

// IsTrackedPID reports whether any app currently uses pid.
func (r *Registry) IsTrackedPID(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, app := range r.apps {
		if app.PID == pid {
			return true
		}
	}
	return false
}

// DropWindow removes win from every app. It returns the owning app ids.
func (r *Registry) DropWindow(win platform.WindowID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owners []string
	for _, id := range r.order {
		if r.apps[id].RemoveWindow(win) {
			owners = append(owners, id)
		}
	}
	return owners
}

// TrackedWindows returns every window attributed to an app, in launch and
// insertion order, without duplicates.
func (r *Registry) TrackedWindows() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackedLocked()
}

func (r *Registry) trackedLocked() []Entry {
	seen := make(map[platform.WindowID]bool)
	var out []Entry
	for _, id := range r.order {
		for _, w := range r.apps[id].Windows {
			if seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, Entry{Window: w, AppID: id})
		}
	}
	return out
}

// AllWindows returns the tracked windows and, when includeUnmanaged is set,
// every other window on the task desktop with an empty AppID.
func (r *Registry) AllWindows(includeUnmanaged bool) []Entry {
	r.mu.Lock()
	out := r.trackedLocked()
	r.mu.Unlock()

	if !includeUnmanaged || r.desktop == nil {
		return out
	}

	seen := make(map[platform.WindowID]bool, len(out))
	for _, e := range out {
		seen[e.Window] = true
	}
	for _, w := range r.desktop.DesktopWindows() {
		if seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		out = append(out, Entry{Window: w.ID})
	}
	return out
}

// Clear removes every app and returns them.
func (r *Registry) Clear() []App {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]App, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.apps[id].clone())
	}
	r.apps = make(map[string]*App)
	r.order = nil
	return out
}
