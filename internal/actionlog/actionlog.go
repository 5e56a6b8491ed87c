// Package actionlog records user-visible actions as JSON lines with size
// based rotation.
package actionlog

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Action names a logged operation.
type Action string

const (
	ActionLaunch       Action = "launch"
	ActionResolve      Action = "resolve"
	ActionFocus        Action = "focus"
	ActionMinimizeAll  Action = "minimize_all"
	ActionCloseAll     Action = "close_all"
	ActionCloseApp     Action = "close_app"
	ActionMinimizeApp  Action = "minimize_app"
	ActionRestoreApp   Action = "restore_app"
	ActionCompleteTask Action = "complete_task"
	ActionLoadPreset   Action = "load_preset"
	ActionPrune        Action = "prune"
)

// actionLevel keeps high-frequency housekeeping at debug.
func actionLevel(action Action) zapcore.Level {
	switch action {
	case ActionPrune, ActionFocus:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config holds configuration for the action log.
type Config struct {
	Enabled   bool
	Level     string
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
}

// Log writes action records. A nil *Log discards everything.
type Log struct {
	zl   *zap.Logger
	file *rotatingFile
}

// New opens the action log. A disabled config yields a no-op Log.
func New(cfg Config) (*Log, error) {
	if !cfg.Enabled || cfg.FilePath == "" {
		return &Log{zl: zap.NewNop()}, nil
	}

	f, err := openRotating(cfg.FilePath, int64(cfg.MaxSizeMB)*1024*1024, cfg.MaxFiles)
	if err != nil {
		return nil, err
	}
	return &Log{zl: zap.New(newCore(f, ParseLevel(cfg.Level))), file: f}, nil
}

func newCore(ws zapcore.WriteSyncer, level zapcore.Level) zapcore.Core {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.MessageKey = "action"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.CallerKey = ""
	enc.StacktraceKey = ""
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, level)
}

// Record logs action for appID (may be empty) with extra fields.
func (l *Log) Record(action Action, appID string, fields ...zap.Field) {
	if l == nil || l.zl == nil {
		return
	}
	if appID != "" {
		fields = append(fields, zap.String("app_id", appID))
	}
	if ce := l.zl.Check(actionLevel(action), string(action)); ce != nil {
		ce.Write(fields...)
	}
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.zl.Sync()
	return l.file.Close()
}

// ParseLevel converts a string to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
