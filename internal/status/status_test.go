package status

import (
	"bytes"
	"context"
	"testing"

	"github.com/mrd0ll4r/kaleidoscope/internal/logging"
)

func TestLoggerPublishWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(logging.Config{Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	pub := NewLogger(l)
	if err := pub.Publish(context.Background(), Event{
		Kind:    KindFixtureSwitched,
		Fixture: "stage",
		Message: "switched to chase",
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Publish: expected log output, got none")
	}
}

func TestLoggerPublishNilLoggerNoop(t *testing.T) {
	pub := NewLogger(nil)
	if err := pub.Publish(context.Background(), Event{Kind: KindSchedulerStart}); err != nil {
		t.Fatalf("Publish with nil logger: %v", err)
	}
}
