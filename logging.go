package enrichaf

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogStyle selects the logger output format.
type LogStyle string

const (
	StyleTerminal LogStyle = "terminal"
	StyleJSON     LogStyle = "json"
	StyleNoop     LogStyle = "noop"
)

// NewLogger creates a zap logger for the given style and level.
// Unknown styles and unparseable levels fall back to terminal/info.
func NewLogger(style LogStyle, level string) *zap.Logger {
	logLevel := zapcore.InfoLevel
	if level != "" {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			logLevel = lvl
		}
	}

	switch style {
	case StyleNoop:
		return zap.NewNop()
	case StyleJSON:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(logLevel)
		logger, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
		if err != nil {
			return zap.NewNop()
		}
		return logger
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(logLevel)
		logger, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
}
