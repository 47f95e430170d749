// Package logger adapts slog to the logging interfaces of third-party libraries.
package logger

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronLogger routes robfig/cron's internal logging to slog. Info is noisy
// (one line per wakeup) so it goes to debug.
type CronLogger struct {
	l *slog.Logger
}

var _ cron.Logger = CronLogger{}

// NewCron returns a cron.Logger tagged with component=cron.
func NewCron(l *slog.Logger) CronLogger {
	if l == nil {
		l = slog.Default()
	}
	return CronLogger{l: l.With("component", "cron")}
}

func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
