package logger

import "github.com/pressly/goose/v3"

// gooseLogger routes goose's printf-style migration output through Logger
type gooseLogger struct {
	l *Logger
}

// GooseLogger returns a goose.Logger backed by l
func (l *Logger) GooseLogger() goose.Logger {
	return &gooseLogger{l: l}
}

func (g *gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Infof(format, v...)
}

// Fatalf logs at error level; goose returns the failure to the caller as well
func (g *gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Errorf(format, v...)
}
