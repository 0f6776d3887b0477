package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Logger prefixes every line with a connection id, e.g. "[1a2b3c4d] ...".
// The zero value logs without a prefix.
type Logger struct {
	prefix string
}

// NewLogger returns a Logger tagged with id.
func NewLogger(id uint32) Logger {
	return Logger{prefix: fmt.Sprintf("[%08x] ", id)}
}

func (l Logger) Debugf(format string, args ...any)   { LogDebug(l.prefix+format, args...) }
func (l Logger) Infof(format string, args ...any)    { LogInfo(l.prefix+format, args...) }
func (l Logger) Successf(format string, args ...any) { LogSuccess(l.prefix+format, args...) }
func (l Logger) Warnf(format string, args ...any)    { LogWarning(l.prefix+format, args...) }
func (l Logger) Errorf(format string, args ...any)   { LogError(l.prefix+format, args...) }
