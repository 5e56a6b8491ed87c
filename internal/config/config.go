package config

import (
	"fmt"
	"net"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/runtimepath"
)

// Config represents the lockin configuration.
type Config struct {
	Include    IncludeList       `yaml:"include,omitempty"`
	LogLevel   string            `yaml:"log_level"`
	Resolution ResolutionConfig  `yaml:"resolution"`
	Desktop    DesktopConfig     `yaml:"desktop"`
	Close      CloseConfig       `yaml:"close"`
	Daemon     DaemonConfig      `yaml:"daemon"`
	Launcher   LauncherConfig    `yaml:"launcher"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Logging    LoggingConfig     `yaml:"logging"`
	Presets    map[string]Preset `yaml:"presets"`
}

// ResolutionConfig tunes how launches are matched to windows.
type ResolutionConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	// RecencyWindow bounds how late a launcher child may start and still be
	// attributed to a launch.
	RecencyWindow time.Duration `yaml:"recency_window"`
	// TitleFallback matches any window whose title contains the program
	// name once the timeout expires.
	TitleFallback bool `yaml:"title_fallback"`
}

// DesktopConfig controls the isolated task desktop.
type DesktopConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SwitchOnCreate bool          `yaml:"switch_on_create"`
	TeardownGrace  time.Duration `yaml:"teardown_grace"`
	SwitchSettle   time.Duration `yaml:"switch_settle"`
}

// CloseConfig holds the close escalation timings.
type CloseConfig struct {
	Grace     time.Duration `yaml:"grace"`
	KillGrace time.Duration `yaml:"kill_grace"`
}

// DaemonConfig holds daemon housekeeping settings.
type DaemonConfig struct {
	PruneInterval  time.Duration `yaml:"prune_interval"`
	ExitGrace      time.Duration `yaml:"exit_grace"`
	TeardownOnExit bool          `yaml:"teardown_on_exit"`
}

// LauncherConfig controls executable lookup and console handling.
type LauncherConfig struct {
	SearchDirs      []string      `yaml:"search_dirs"`
	ConsolePrograms []string      `yaml:"console_programs"`
	TerminalCommand string        `yaml:"terminal_command"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls the action log.
type LoggingConfig struct {
	ActionLog bool   `yaml:"action_log"`
	Level     string `yaml:"level"`
	// File is the log file path (default: $XDG_STATE_HOME/lockin/actions.log)
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Preset is a named task setup.
type Preset struct {
	Description     string      `yaml:"description,omitempty"`
	Apps            []PresetApp `yaml:"apps"`
	BrowserTabs     []string    `yaml:"browser_tabs,omitempty"`
	Browser         string      `yaml:"browser,omitempty"`
	IsolatedBrowser bool        `yaml:"isolated_browser,omitempty"`
}

// PresetApp is one application of a preset.
type PresetApp struct {
	Name    string   `yaml:"name,omitempty"`
	Path    string   `yaml:"path"`
	Args    []string `yaml:"args,omitempty"`
	Console bool     `yaml:"console,omitempty"`
}

// Browser choices for presets.
const (
	BrowserDefault = "default"
	BrowserChrome  = "chrome"
	BrowserEdge    = "edge"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	terminal := "x-terminal-emulator -e"
	if runtime.GOOS == "windows" {
		terminal = ""
	}
	logFile, _ := runtimepath.ActionLogPath()

	return &Config{
		LogLevel: "info",
		Resolution: ResolutionConfig{
			PollInterval:  500 * time.Millisecond,
			Timeout:       15 * time.Second,
			RecencyWindow: 5 * time.Second,
		},
		Desktop: DesktopConfig{
			Enabled:        true,
			SwitchOnCreate: true,
			TeardownGrace:  time.Second,
			SwitchSettle:   200 * time.Millisecond,
		},
		Close: CloseConfig{
			Grace:     3 * time.Second,
			KillGrace: 5 * time.Second,
		},
		Daemon: DaemonConfig{
			PruneInterval:  5 * time.Second,
			ExitGrace:      30 * time.Second,
			TeardownOnExit: true,
		},
		Launcher: LauncherConfig{
			SearchDirs:      launcher.DefaultSearchDirs(),
			ConsolePrograms: launcher.DefaultConsolePrograms(),
			TerminalCommand: terminal,
			SettleDelay:     launcher.DefaultSettleDelay,
		},
		Logging: LoggingConfig{
			ActionLog: true,
			Level:     "info",
			File:      logFile,
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
		Presets: map[string]Preset{},
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}

	durations := []struct {
		path string
		d    time.Duration
	}{
		{"resolution.poll_interval", c.Resolution.PollInterval},
		{"resolution.timeout", c.Resolution.Timeout},
		{"resolution.recency_window", c.Resolution.RecencyWindow},
		{"desktop.teardown_grace", c.Desktop.TeardownGrace},
		{"close.grace", c.Close.Grace},
		{"close.kill_grace", c.Close.KillGrace},
		{"daemon.prune_interval", c.Daemon.PruneInterval},
		{"daemon.exit_grace", c.Daemon.ExitGrace},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return &ValidationError{Path: d.path, Err: fmt.Errorf("must be > 0")}
		}
	}
	if c.Resolution.PollInterval > c.Resolution.Timeout {
		return &ValidationError{Path: "resolution.poll_interval", Err: fmt.Errorf("poll_interval must not exceed timeout")}
	}
	if c.Desktop.SwitchSettle < 0 {
		return &ValidationError{Path: "desktop.switch_settle", Err: fmt.Errorf("must be >= 0")}
	}
	if c.Launcher.SettleDelay < 0 {
		return &ValidationError{Path: "launcher.settle_delay", Err: fmt.Errorf("must be >= 0")}
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return &ValidationError{Path: "metrics.listen", Err: fmt.Errorf("must be host:port: %w", err)}
		}
	}
	if c.Logging.ActionLog {
		if strings.TrimSpace(c.Logging.File) == "" {
			return &ValidationError{Path: "logging.file", Err: fmt.Errorf("file is required when action_log is enabled")}
		}
		if c.Logging.MaxSizeMB < 1 {
			return &ValidationError{Path: "logging.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 1")}
		}
		if c.Logging.MaxFiles < 0 {
			return &ValidationError{Path: "logging.max_files", Err: fmt.Errorf("max_files must be >= 0")}
		}
	}

	for name, p := range c.Presets {
		base := "presets." + name
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Path: "presets", Err: fmt.Errorf("preset name must not be empty")}
		}
		switch p.Browser {
		case "", BrowserDefault, BrowserChrome, BrowserEdge:
		default:
			return &ValidationError{Path: base + ".browser", Err: fmt.Errorf("browser must be one of: default, chrome, edge")}
		}
		for i, tab := range p.BrowserTabs {
			if strings.TrimSpace(tab) == "" {
				return &ValidationError{Path: fmt.Sprintf("%s.browser_tabs[%d]", base, i), Err: fmt.Errorf("url must not be empty")}
			}
		}
		for i, app := range p.Apps {
			if strings.TrimSpace(app.Path) == "" {
				return &ValidationError{Path: fmt.Sprintf("%s.apps[%d].path", base, i), Err: fmt.Errorf("path is required")}
			}
		}
	}
	return nil
}

// PresetNames returns preset names in sorted order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
