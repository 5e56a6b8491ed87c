package registry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/lockin/internal/platform"
)

type staticDesktop []platform.Window

func (s staticDesktop) DesktopWindows() []platform.Window { return s }

func TestAddAssignsIDAndCopies(t *testing.T) {
	r := New(nil)
	app, err := r.Add(App{Name: "notepad", PID: 10, Windows: []platform.WindowID{1}})
	require.NoError(t, err)
	require.NotEmpty(t, app.ID)
	assert.False(t, app.LaunchedAt.IsZero())

	app.Windows[0] = 99
	stored, ok := r.Get(app.ID)
	require.True(t, ok)
	assert.Equal(t, []platform.WindowID{1}, stored.Windows, "callers must not alias registry state")

	_, err = r.Add(App{ID: app.ID})
	assert.Error(t, err)
}

func TestUpdateDoesNotResurrectRemovedApp(t *testing.T) {
	r := New(nil)
	app, err := r.Add(App{Name: "msedge", Status: Launching})
	require.NoError(t, err)

	_, ok := r.Remove(app.ID)
	require.True(t, ok)

	_, err = r.Update(app.ID, func(a *App) error {
		a.Status = Running
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok = r.Get(app.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestUpdateErrorLeavesStateUntouched(t *testing.T) {
	r := New(nil)
	app, _ := r.Add(App{Name: "x", PID: 1})
	boom := errors.New("boom")

	_, err := r.Update(app.ID, func(a *App) error {
		a.PID = 2
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, _ := r.Get(app.ID)
	assert.Equal(t, 1, got.PID)
}

func TestWindowMembershipIsUniqueAndOrdered(t *testing.T) {
	var a App
	a.AddWindow(3)
	a.AddWindow(1)
	a.AddWindow(3)
	a.AddWindow(0)
	assert.Equal(t, []platform.WindowID{3, 1}, a.Windows)

	a.MainWindow = 3
	assert.True(t, a.RemoveWindow(3))
	assert.False(t, a.HasMainWindow())
	assert.False(t, a.RemoveWindow(3))
	assert.Equal(t, []platform.WindowID{1}, a.Windows)
}

func TestDropWindowAndFindByWindow(t *testing.T) {
	r := New(nil)
	a, _ := r.Add(App{Name: "a", Windows: []platform.WindowID{1, 2}, MainWindow: 2})
	b, _ := r.Add(App{Name: "b", Windows: []platform.WindowID{3}})

	owner, ok := r.FindByWindow(3)
	require.True(t, ok)
	assert.Equal(t, b.ID, owner.ID)

	assert.Equal(t, []string{a.ID}, r.DropWindow(2))
	got, _ := r.Get(a.ID)
	assert.Equal(t, []platform.WindowID{1}, got.Windows)
	assert.False(t, got.HasMainWindow())
	assert.Empty(t, r.DropWindow(42))
}

func TestAllWindowsWidensToDesktop(t *testing.T) {
	desk := staticDesktop{
		{ID: 1, Title: "tracked"},
		{ID: 10, Title: "manual one"},
		{ID: 11, Title: "manual two"},
	}
	r := New(desk)
	a, _ := r.Add(App{Name: "a", Windows: []platform.WindowID{1, 2}})
	b, _ := r.Add(App{Name: "b", Windows: []platform.WindowID{3}})

	tracked := r.AllWindows(false)
	assert.Equal(t, []Entry{{1, a.ID}, {2, a.ID}, {3, b.ID}}, tracked)

	all := r.AllWindows(true)
	assert.Equal(t, []Entry{{1, a.ID}, {2, a.ID}, {3, b.ID}, {10, ""}, {11, ""}}, all)

	assert.Len(t, New(nil).AllWindows(true), 0)
}

func TestLookupByPrefix(t *testing.T) {
	r := New(nil)
	_, _ = r.Add(App{ID: "abc-1", Name: "one"})
	_, _ = r.Add(App{ID: "abd-2", Name: "two"})

	got, err := r.Lookup("abc")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Name)

	_, err = r.Lookup("ab")
	assert.Error(t, err)
	_, err = r.Lookup("zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersByLaunchTime(t *testing.T) {
	r := New(nil)
	now := time.Now()
	_, _ = r.Add(App{ID: "late", LaunchedAt: now.Add(time.Second)})
	_, _ = r.Add(App{ID: "early", LaunchedAt: now})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.True(t, r.IsTrackedPID(0))

	cleared := r.Clear()
	assert.Len(t, cleared, 2)
	assert.Equal(t, 0, r.Len())
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(App{ID: "x", Status: LauncherPatternResolved})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"launcher_pattern_resolved"`)

	var back App
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, LauncherPatternResolved, back.Status)

	assert.True(t, Running.Active())
	assert.False(t, Failed.Active())
}

func TestConcurrentWritersAreSerialized(t *testing.T) {
	r := New(nil)
	app, _ := r.Add(App{Name: "busy"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Update(app.ID, func(a *App) error {
				a.AddWindow(platform.WindowID(i + 1))
				return nil
			})
		}(i)
	}
	wg.Wait()

	got, _ := r.Get(app.ID)
	assert.Len(t, got.Windows, 50)
}
