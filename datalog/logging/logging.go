// Package logging is a thin wrapper around logrus.
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields
type Fields = logrus.Fields

// Logger is the logging interface used by the engine and the CLI.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	WithFields(Fields) Logger

	SetLevel(string) error
	SetOutput(io.Writer)
	SetFormat(string) error
}

type logger struct {
	entry *logrus.Entry
}

// New creates a logger writing text to stderr at info level.
func New() Logger {
	return logger{entry: logrus.NewEntry(logrus.New())}
}

// NewWith creates a logger with the given level and format ("text" or "json").
func NewWith(level, format string, w io.Writer) (Logger, error) {
	l := New()
	if w != nil {
		l.SetOutput(w)
	}
	if err := l.SetLevel(level); err != nil {
		return nil, err
	}
	if err := l.SetFormat(format); err != nil {
		return nil, err
	}
	return l, nil
}

func (l logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// WithFields returns a logger that adds fields to every entry.
func (l logger) WithFields(fields Fields) Logger {
	return logger{entry: l.entry.WithFields(fields)}
}

// SetLevel sets the level of the underlying logger; empty means info.
func (l logger) SetLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

// SetOutput sets the logger output.
func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// SetFormat selects the text or JSON formatter; empty means text.
func (l logger) SetFormat(format string) error {
	switch format {
	case "", "text":
		l.entry.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// NoOp returns a logger that discards everything.
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Debugf(string, ...interface{}) {}
func (noOpLogger) Infof(string, ...interface{})  {}
func (noOpLogger) Warnf(string, ...interface{})  {}
func (noOpLogger) Errorf(string, ...interface{}) {}
func (l noOpLogger) WithFields(Fields) Logger    { return l }
func (noOpLogger) SetLevel(string) error         { return nil }
func (noOpLogger) SetOutput(io.Writer)           {}
func (noOpLogger) SetFormat(string) error        { return nil }
