// Package logging wires up structured logging for the process, selecting
// one of several logiface backends by configuration. Every concrete backend
// constructs its own generic logiface.Logger[E]; this package immediately
// erases that to logiface.Logger[logiface.Event] via Logger.Logger(), so
// the rest of the codebase depends on one static type regardless of which
// backend is active.
package logging

import (
	"fmt"
	"io"
	stdslog "log/slog"
	"os"

	"github.com/joeycumines/ilogrus"
	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
	"github.com/joeycumines/stumpy"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

// Backend selects the concrete logiface implementation.
type Backend string

const (
	// BackendStumpy is the zero-allocation default, writing newline-delimited
	// JSON directly without an intermediate logging library.
	BackendStumpy Backend = "stumpy"
	// BackendZerolog wraps github.com/rs/zerolog.
	BackendZerolog Backend = "zerolog"
	// BackendLogrus wraps github.com/sirupsen/logrus.
	BackendLogrus Backend = "logrus"
	// BackendSlog wraps log/slog, via the logiface-slog adapter.
	BackendSlog Backend = "slog"
)

// Level mirrors the syslog-derived levels logiface uses, so callers of this
// package never need to import logiface directly just to configure a level.
type Level = logiface.Level

const (
	LevelError = logiface.LevelError
	LevelInfo  = logiface.LevelInformational
	LevelDebug = logiface.LevelDebug
)

// Logger is the type-erased logger every other package depends on.
type Logger = logiface.Logger[logiface.Event]

// Config selects a backend, an output level, and a writer (defaulting to
// stderr — the donor pack's default for every backend).
type Config struct {
	Backend Backend
	Level   Level
	Writer  io.Writer
}

// New constructs a Logger per cfg. An empty Backend selects BackendStumpy;
// an unrecognized Backend is an error.
func New(cfg Config) (*Logger, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	level := cfg.Level
	if level == 0 {
		level = LevelInfo
	}

	switch cfg.Backend {
	case BackendZerolog:
		zl := zerolog.New(w).With().Timestamp().Logger()
		l := izerolog.L.New(
			izerolog.L.WithLevel(level),
			izerolog.L.WithZerolog(zl),
		)
		return l.Logger(), nil

	case BackendLogrus:
		lr := logrus.New()
		lr.SetOutput(w)
		l := ilogrus.L.New(
			ilogrus.L.WithLevel(level),
			ilogrus.L.WithLogrus(lr),
		)
		return l.Logger(), nil

	case BackendSlog:
		handler := stdslog.NewJSONHandler(w, nil)
		l := logifaceslog.L.New(
			logifaceslog.L.WithLevel(level),
			logifaceslog.NewLogger(handler, logifaceslog.WithLevel(level)),
		)
		return l.Logger(), nil

	case BackendStumpy, "":
		l := stumpy.L.New(
			stumpy.L.WithLevel(level),
			stumpy.L.WithStumpy(stumpy.L.WithWriter(w)),
		)
		return l.Logger(), nil

	default:
		return nil, fmt.Errorf("logging: unrecognized backend %q", cfg.Backend)
	}
}
