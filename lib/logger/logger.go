// Package logger defines the logging interface used across the repository.
//
// Libraries accept a Logger and default to the Go logger, so they never
// force a logging framework on the caller. Binaries are expected to pass
// a configured logger (normally the logrus-backed one from NewLogrus).
package logger

import (
	"io"
	"log"

	"github.com/sirupsen/logrus"
)

// Logger is the interface all packages in this repository log through.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	SetOutput(writer io.Writer)
}

// Go is a Logger backed by the standard library log package.
//
// It is the default for every component that is not handed an
// explicit logger.
var Go Logger = &GoLogger{}

// Nil discards all messages. Useful in tests.
var Nil Logger = &NilLogger{}

// GoLogger forwards all messages to the default log.Logger.
type GoLogger struct{}

func (g *GoLogger) Debugf(format string, args ...interface{}) {
	log.Printf("DEBUG "+format, args...)
}

func (g *GoLogger) Infof(format string, args ...interface{}) {
	log.Printf(format, args...)
}

func (g *GoLogger) Warnf(format string, args ...interface{}) {
	log.Printf("WARNING "+format, args...)
}

func (g *GoLogger) Errorf(format string, args ...interface{}) {
	log.Printf("ERROR "+format, args...)
}

func (g *GoLogger) SetOutput(writer io.Writer) {
	log.SetOutput(writer)
}

// NilLogger drops every message on the floor.
type NilLogger struct{}

func (n *NilLogger) Debugf(format string, args ...interface{}) {}
func (n *NilLogger) Infof(format string, args ...interface{})  {}
func (n *NilLogger) Warnf(format string, args ...interface{})  {}
func (n *NilLogger) Errorf(format string, args ...interface{}) {}
func (n *NilLogger) SetOutput(writer io.Writer)                {}

// LogrusLogger adapts a logrus.Logger to the Logger interface.
type LogrusLogger struct {
	*logrus.Logger
}

type logrusOptions struct {
	level  logrus.Level
	format logrus.Formatter
}

// LogrusModifier changes how the logrus backend is configured.
type LogrusModifier func(*logrusOptions)

// WithLevel sets the minimum level emitted. Unknown strings leave the
// default (info) in place.
func WithLevel(level string) LogrusModifier {
	return func(o *logrusOptions) {
		if parsed, err := logrus.ParseLevel(level); err == nil {
			o.level = parsed
		}
	}
}

// WithJSONOutput emits one JSON object per line instead of text.
func WithJSONOutput() LogrusModifier {
	return func(o *logrusOptions) {
		o.format = &logrus.JSONFormatter{}
	}
}

// NewLogrus returns a Logger backed by logrus.
func NewLogrus(mods ...LogrusModifier) *LogrusLogger {
	options := &logrusOptions{
		level:  logrus.InfoLevel,
		format: &logrus.TextFormatter{FullTimestamp: true},
	}
	for _, m := range mods {
		m(options)
	}

	backend := logrus.New()
	backend.SetLevel(options.level)
	backend.SetFormatter(options.format)
	return &LogrusLogger{Logger: backend}
}

func (l *LogrusLogger) SetOutput(writer io.Writer) {
	l.Logger.SetOutput(writer)
}
