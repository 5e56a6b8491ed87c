package enumerate

import (
	"path/filepath"
	"strings"

	"github.com/1broseidon/lockin/internal/platform"
)

// Rule is one named main-window heuristic. Rules are evaluated in order and
// the first window matched by the earliest rule wins.
type Rule struct {
	Name  string
	Match func(hint string, w platform.Window) bool
}

// CatchAll names the fallback used when no rule matches.
const CatchAll = "first-window"

var (
	consoleHints = []string{"cmd", "powershell", "pwsh", "bash", "zsh", "sh", "wt", "windowsterminal", "wsl"}
	// Console host, Windows Terminal and common X11 terminal classes.
	consoleClasses = []string{
		"ConsoleWindowClass",
		"CASCADIA_HOSTING_WINDOW_CLASS",
		"mintty",
		"XTerm",
		"Gnome-terminal",
		"Alacritty",
		"kitty",
		"konsole",
	}

	editorClasses = map[string][]string{
		"notepad":   {"Notepad"},
		"notepad++": {"Notepad++"},
		"gedit":     {"Gedit", "gnome-text-editor"},
		"mousepad":  {"Mousepad"},
		"code":      {"Chrome_WidgetWin_1", "Code"},
		"wordpad":   {"WordPadClass"},
	}

	browserClasses = map[string][]string{
		"chrome":  {"Chrome_WidgetWin_1", "Google-chrome"},
		"msedge":  {"Chrome_WidgetWin_1", "Microsoft-edge"},
		"brave":   {"Chrome_WidgetWin_1", "Brave-browser"},
		"firefox": {"MozillaWindowClass", "firefox"},
	}

	// Helper windows every GUI process owns; never a user-facing window.
	skipClasses = []string{"IME", "MSCTFIME UI", "Default IME", "tooltips_class32"}
	skipTitles  = []string{"", "Program Manager", "Desktop Window Manager"}

	// Shell chrome that reports membership on every desktop.
	shellClasses = []string{
		"Shell_TrayWnd",
		"Shell_SecondaryTrayWnd",
		"Progman",
		"WorkerW",
		"DV2ControlHost",
		"ForegroundStaging",
	}
)

// DefaultRules returns the built-in heuristics in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "console", Match: matchConsole},
		{Name: "editor", Match: matchKnownClass(editorClasses)},
		{Name: "browser", Match: matchKnownClass(browserClasses)},
		{Name: "title-hint", Match: matchTitleHint},
		{Name: "meaningful-title", Match: matchMeaningfulTitle},
	}
}

// NormalizeHint reduces a command or path to a lowercase base name without
// extension, e.g. `C:\Windows\notepad.exe` -> "notepad".
func NormalizeHint(hint string) string {
	hint = strings.TrimSpace(hint)
	if i := strings.LastIndexAny(hint, `/\`); i >= 0 {
		hint = hint[i+1:]
	}
	hint = strings.TrimSuffix(hint, filepath.Ext(hint))
	return strings.ToLower(hint)
}

// IsConsoleHint reports whether hint names a shell-like program.
func IsConsoleHint(hint string) bool {
	return containsFold(consoleHints, NormalizeHint(hint))
}

// Select applies rules to windows and returns the chosen window with the
// name of the rule that picked it. The catch-all picks the first window.
func Select(rules []Rule, hint string, windows []platform.Window) (platform.Window, string, bool) {
	if len(windows) == 0 {
		return platform.Window{}, "", false
	}
	hint = NormalizeHint(hint)
	for _, rule := range rules {
		for _, w := range windows {
			if rule.Match(hint, w) {
				return w, rule.Name, true
			}
		}
	}
	return windows[0], CatchAll, true
}

func matchConsole(hint string, w platform.Window) bool {
	return containsFold(consoleHints, hint) && containsFold(consoleClasses, w.Class)
}

func matchKnownClass(classes map[string][]string) func(string, platform.Window) bool {
	return func(hint string, w platform.Window) bool {
		known, ok := classes[hint]
		return ok && containsFold(known, w.Class)
	}
}

func matchTitleHint(hint string, w platform.Window) bool {
	return hint != "" && strings.Contains(strings.ToLower(w.Title), hint)
}

func matchMeaningfulTitle(_ string, w platform.Window) bool {
	return !containsFold(skipTitles, strings.TrimSpace(w.Title))
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
