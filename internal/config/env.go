package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. LOCKIN_RESOLUTION_TIMEOUT.
const EnvPrefix = "LOCKIN"

// envOverrides lists the settings that may be overridden from the
// environment. Unset variables leave the field nil.
type envOverrides struct {
	LogLevel string `envconfig:"LOG_LEVEL"`

	PollInterval  *time.Duration `envconfig:"RESOLUTION_POLL_INTERVAL"`
	Timeout       *time.Duration `envconfig:"RESOLUTION_TIMEOUT"`
	RecencyWindow *time.Duration `envconfig:"RESOLUTION_RECENCY_WINDOW"`
	TitleFallback *bool          `envconfig:"RESOLUTION_TITLE_FALLBACK"`

	DesktopEnabled *bool          `envconfig:"DESKTOP_ENABLED"`
	SwitchOnCreate *bool          `envconfig:"DESKTOP_SWITCH_ON_CREATE"`
	TeardownGrace  *time.Duration `envconfig:"DESKTOP_TEARDOWN_GRACE"`

	CloseGrace *time.Duration `envconfig:"CLOSE_GRACE"`
	KillGrace  *time.Duration `envconfig:"CLOSE_KILL_GRACE"`

	PruneInterval  *time.Duration `envconfig:"DAEMON_PRUNE_INTERVAL"`
	TeardownOnExit *bool          `envconfig:"DAEMON_TEARDOWN_ON_EXIT"`

	SearchDirs      []string `envconfig:"LAUNCHER_SEARCH_DIRS"`
	TerminalCommand *string  `envconfig:"LAUNCHER_TERMINAL_COMMAND"`

	MetricsListen *string `envconfig:"METRICS_LISTEN"`

	ActionLog *bool   `envconfig:"LOGGING_ACTION_LOG"`
	LogFile   *string `envconfig:"LOGGING_FILE"`
}

// ApplyEnv overlays LOCKIN_* environment variables onto cfg and returns the
// source of each overridden key.
func ApplyEnv(cfg *Config) (map[string]Source, error) {
	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	out := make(map[string]Source)
	if ov.LogLevel != "" {
		cfg.LogLevel = ov.LogLevel
		out["log_level"] = envSource("LOG_LEVEL")
	}
	override(&cfg.Resolution.PollInterval, ov.PollInterval, "resolution.poll_interval", "RESOLUTION_POLL_INTERVAL", out)
	override(&cfg.Resolution.Timeout, ov.Timeout, "resolution.timeout", "RESOLUTION_TIMEOUT", out)
	override(&cfg.Resolution.RecencyWindow, ov.RecencyWindow, "resolution.recency_window", "RESOLUTION_RECENCY_WINDOW", out)
	override(&cfg.Resolution.TitleFallback, ov.TitleFallback, "resolution.title_fallback", "RESOLUTION_TITLE_FALLBACK", out)
	override(&cfg.Desktop.Enabled, ov.DesktopEnabled, "desktop.enabled", "DESKTOP_ENABLED", out)
	override(&cfg.Desktop.SwitchOnCreate, ov.SwitchOnCreate, "desktop.switch_on_create", "DESKTOP_SWITCH_ON_CREATE", out)
	override(&cfg.Desktop.TeardownGrace, ov.TeardownGrace, "desktop.teardown_grace", "DESKTOP_TEARDOWN_GRACE", out)
	override(&cfg.Close.Grace, ov.CloseGrace, "close.grace", "CLOSE_GRACE", out)
	override(&cfg.Close.KillGrace, ov.KillGrace, "close.kill_grace", "CLOSE_KILL_GRACE", out)
	override(&cfg.Daemon.PruneInterval, ov.PruneInterval, "daemon.prune_interval", "DAEMON_PRUNE_INTERVAL", out)
	override(&cfg.Daemon.TeardownOnExit, ov.TeardownOnExit, "daemon.teardown_on_exit", "DAEMON_TEARDOWN_ON_EXIT", out)
	if ov.SearchDirs != nil {
		cfg.Launcher.SearchDirs = ov.SearchDirs
		out["launcher.search_dirs"] = envSource("LAUNCHER_SEARCH_DIRS")
	}
	override(&cfg.Launcher.TerminalCommand, ov.TerminalCommand, "launcher.terminal_command", "LAUNCHER_TERMINAL_COMMAND", out)
	override(&cfg.Metrics.Listen, ov.MetricsListen, "metrics.listen", "METRICS_LISTEN", out)
	override(&cfg.Logging.ActionLog, ov.ActionLog, "logging.action_log", "LOGGING_ACTION_LOG", out)
	override(&cfg.Logging.File, ov.LogFile, "logging.file", "LOGGING_FILE", out)
	return out, nil
}

func override[T any](dst *T, v *T, path, name string, out map[string]Source) {
	if v == nil {
		return
	}
	*dst = *v
	out[path] = envSource(name)
}

func envSource(name string) Source {
	return Source{Kind: SourceEnv, Name: EnvPrefix + "_" + name}
}
