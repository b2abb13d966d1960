package logger

import "github.com/robfig/cron/v3"

// cronLogger adapts Logger to cron.Logger so scheduler lifecycle messages and
// recovered panics land in the same structured stream
type cronLogger struct {
	l *Logger
}

// CronLogger returns a cron.Logger backed by l
func (l *Logger) CronLogger() cron.Logger {
	return &cronLogger{l: l}
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
