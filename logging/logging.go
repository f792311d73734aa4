// Package logging provides the structured logger used across every
// graph-store subsystem. It wraps logrus the way the donor wrapped its
// NORM_DEBUG-gated fmt.Printf helpers, but emits real structured records.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper around logrus.Logger; With scopes it to a
// component name via a "component" field on the records it writes.
type Logger struct {
	*logrus.Logger
}

var (
	root     *Logger
	rootOnce sync.Once
)

// Root returns the process-wide logger, configured from GRAPHSTORE_LOG_LEVEL
// and GRAPHSTORE_LOG_FORMAT (mirrors the donor's NORM_DEBUG env gate, but
// leveled rather than boolean).
func Root() *Logger {
	rootOnce.Do(func() {
		root = New(os.Getenv("GRAPHSTORE_LOG_LEVEL"), os.Getenv("GRAPHSTORE_LOG_FORMAT"))
	})
	return root
}

// New builds a Logger with the given level ("debug", "info", "warn",
// "error"; default "info") and format ("json" or "text"; default "text").
func New(level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.ToLower(format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l}
}

// With returns a logger scoped to the named component, e.g. logging.Root().With("entity").
func (l *Logger) With(component string) *logrus.Entry {
	return l.WithField("component", component)
}
