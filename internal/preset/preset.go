// Package preset turns configured task presets into launch requests.
package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/1broseidon/lockin/internal/config"
	"github.com/1broseidon/lockin/internal/launcher"
)

// ErrNoBrowser is returned when a preset has browser tabs but none of the
// candidate browser executables can be found.
var ErrNoBrowser = errors.New("no supported browser found")

// Resolver finds executables; *launcher.Launcher and launcher.Finder satisfy it.
type Resolver interface {
	Resolve(command string) (string, error)
}

// Plan is an expanded preset.
type Plan struct {
	Name     string
	Requests []launcher.Request
	// Profiles are temporary browser profile directories to remove when the
	// task completes.
	Profiles []string
}

var browserCandidates = map[string][]string{
	config.BrowserChrome: {
		"chrome.exe",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		"google-chrome",
		"chromium",
	},
	config.BrowserEdge: {
		"msedge.exe",
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
		`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		"microsoft-edge",
	},
}

var browserNames = map[string]string{
	config.BrowserChrome: "Chrome",
	config.BrowserEdge:   "Edge",
}

// Expand builds the launch requests for preset p. Apps come first, in
// configured order, followed by one browser launch carrying every tab.
func Expand(name string, p config.Preset, r Resolver) (Plan, error) {
	plan := Plan{Name: name}
	for _, app := range p.Apps {
		plan.Requests = append(plan.Requests, launcher.Request{
			DisplayName: app.Name,
			Command:     app.Path,
			Args:        appArgs(app),
			Policy:      launcher.Policy{AllocateConsole: app.Console},
		})
	}
	if len(p.BrowserTabs) == 0 {
		return plan, nil
	}

	kind, path, err := findBrowser(p.Browser, r)
	if err != nil {
		return Plan{}, fmt.Errorf("preset %q: %w", name, err)
	}

	var args []string
	if p.IsolatedBrowser {
		dir := profileDir(kind)
		args = isolatedFlags(kind, dir)
		plan.Profiles = append(plan.Profiles, dir)
	} else {
		args = []string{"--new-window"}
	}
	args = append(args, p.BrowserTabs...)

	plan.Requests = append(plan.Requests, launcher.Request{
		DisplayName: browserNames[kind],
		Command:     path,
		Args:        args,
	})
	return plan, nil
}

// appArgs keeps Windows PowerShell open after its command finishes.
func appArgs(app config.PresetApp) []string {
	args := append([]string(nil), app.Args...)
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(app.Path, `\`, "/")))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base != "powershell" {
		return args
	}
	for _, a := range args {
		if strings.EqualFold(a, "-NoExit") {
			return args
		}
	}
	return append([]string{"-NoExit"}, args...)
}

func findBrowser(browser string, r Resolver) (string, string, error) {
	kinds := []string{browser}
	if browser == "" || browser == config.BrowserDefault {
		kinds = []string{config.BrowserChrome, config.BrowserEdge}
	}
	for _, kind := range kinds {
		for _, candidate := range browserCandidates[kind] {
			if path, err := r.Resolve(candidate); err == nil {
				return kind, path, nil
			}
		}
	}
	return "", "", fmt.Errorf("%s: %w", strings.Join(kinds, ", "), ErrNoBrowser)
}

func profileDir(kind string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(os.TempDir(), fmt.Sprintf("lockin_%s_%s", kind, suffix))
}

func isolatedFlags(kind, dir string) []string {
	flags := []string{
		"--user-data-dir=" + dir,
		"--new-window",
		"--no-first-run",
		"--no-default-browser-check",
	}
	if kind == config.BrowserChrome {
		flags = append(flags, "--disable-default-apps", "--disable-extensions", "--disable-plugins")
	}
	return flags
}
