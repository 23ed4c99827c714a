// Package logger builds the zerolog backed loggers handed to every
// component. Output goes to stdout as JSON unless FLEXPLAN_LOG_FORMAT (or
// the legacy APP_ENV=dev) asks for the console writer. LOG_LEVEL defaults to
// info.
package logger

import corelogger "github.com/kilianp07/flexplan/core/logger"

type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns the logger of a component.
func New(component string) Logger {
	return NewZerologLogger(component)
}
