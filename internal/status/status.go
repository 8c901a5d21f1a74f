// Package status implements the Status Publisher (A5): a narrow seam for
// forwarding process-level status events to an external collaborator
// (spec.md §1 names an AMQP-backed status channel, but scopes only the
// interface into the core). The default Logger implementation logs each
// event rather than contacting a broker.
package status

import (
	"context"
	"time"

	"github.com/mrd0ll4r/kaleidoscope/internal/logging"
)

// Kind discriminates the category of a status event.
type Kind string

const (
	KindProgramDisabled Kind = "program_disabled"
	KindProgramEnabled  Kind = "program_enabled"
	KindFixtureSwitched Kind = "fixture_switched"
	KindSchedulerStart  Kind = "scheduler_start"
	KindSchedulerStop   Kind = "scheduler_stop"
)

// Event is one status occurrence worth reporting outside the process.
type Event struct {
	Kind    Kind
	Fixture string
	Program string
	Message string
	At      time.Time
}

// Publisher forwards status events to an external collaborator. Publish
// must not block the caller for long; implementations that talk to a
// remote broker should queue internally, the same way internal/sink
// decouples its HTTP POST from the tick thread.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Logger is the default Publisher: it logs every event and never fails.
// Used when no broker-backed Publisher is configured.
type Logger struct {
	logger *logging.Logger
}

// NewLogger returns a Publisher that logs every event at info level.
func NewLogger(logger *logging.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Publish(ctx context.Context, e Event) error {
	if l.logger == nil {
		return nil
	}
	b := l.logger.Info().Str("component", "status").Str("kind", string(e.Kind))
	if e.Fixture != "" {
		b = b.Str("fixture", e.Fixture)
	}
	if e.Program != "" {
		b = b.Str("program", e.Program)
	}
	b.Log(e.Message)
	return nil
}
