// Package sink implements the Actuator Sink (A4): the scheduler-facing
// ActuatorSink that POSTs each tick's output vector, as JSON, to a
// configured HTTP endpoint, decoupled from the tick thread via a
// microbatch.Batcher so a slow or stalled downstream never stalls the
// scheduler.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/joeycumines/go-microbatch"
	"github.com/joeycumines/go-utilpkg/jsonenc"
	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/logging"
	"github.com/mrd0ll4r/kaleidoscope/internal/telemetry"
)

// Config configures a Sink.
type Config struct {
	// Endpoint is the URL each output vector is POSTed to.
	Endpoint string
	// RequestTimeout bounds one HTTP POST. Defaults to 200ms — well under a
	// typical tick period's many-tick tolerance, since Submit never waits
	// on the result anyway.
	RequestTimeout time.Duration
	// FlushInterval bounds how long a submitted vector may wait before
	// being POSTed; since MaxSize is fixed at 1 (every tick produces
	// exactly one job), this mostly guards against a Submit racing a
	// still-in-flight batch. Defaults to 1ms.
	FlushInterval time.Duration
	// MaxConcurrency bounds the number of simultaneous in-flight POSTs.
	// Defaults to 4, so a slow endpoint queues rather than serializes.
	MaxConcurrency int

	Client *http.Client
	Logger *logging.Logger
	Queue  *telemetry.QueueDepth
}

// Sink POSTs output vectors to a remote actuator endpoint.
type Sink struct {
	endpoint string
	client   *http.Client
	logger   *logging.Logger
	queue    *telemetry.QueueDepth

	batcher *microbatch.Batcher[*job]
}

type job struct {
	vector map[address.Addr]address.Value
}

// New constructs a Sink and starts its background batch processor.
// Call Close when the process is shutting down.
func New(cfg Config) *Sink {
	client := cfg.Client
	if client == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 200 * time.Millisecond
		}
		client = &http.Client{Timeout: timeout}
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = time.Millisecond
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	s := &Sink{
		endpoint: cfg.Endpoint,
		client:   client,
		logger:   cfg.Logger,
		queue:    cfg.Queue,
	}
	s.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:        1,
		FlushInterval:  flush,
		MaxConcurrency: concurrency,
	}, s.process)
	return s
}

// Submit implements scheduler.ActuatorSink. It enqueues vector for
// asynchronous delivery and returns immediately; vector is not retained
// past this call (a defensive copy is taken for the outgoing request).
func (s *Sink) Submit(vector map[address.Addr]address.Value) {
	cp := make(map[address.Addr]address.Value, len(vector))
	for a, v := range vector {
		cp[a] = v
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.batcher.Submit(ctx, &job{vector: cp}); err != nil {
		s.logError(fmt.Errorf("sink: submit: %w", err))
	}
}

// Close stops accepting new submissions and waits for in-flight POSTs to
// finish dispatching.
func (s *Sink) Close() error {
	return s.batcher.Close()
}

func (s *Sink) process(ctx context.Context, jobs []*job) error {
	if s.queue != nil {
		s.queue.Set("actuator-sink", len(jobs))
	}
	for _, j := range jobs {
		if err := s.post(ctx, j.vector); err != nil {
			s.logError(err)
		}
	}
	return nil
}

func (s *Sink) post(ctx context.Context, vector map[address.Addr]address.Value) error {
	body := encodeVector(vector)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink: post: unexpected status %s", resp.Status)
	}
	return nil
}

func (s *Sink) logError(err error) {
	if s.logger == nil {
		return
	}
	s.logger.Err().Str("component", "sink").Log(err.Error())
}

// encodeVector renders vector as a JSON object of address-string keys to
// numeric values, addresses in ascending order for a deterministic,
// diff-friendly wire representation.
func encodeVector(vector map[address.Addr]address.Value) []byte {
	addrs := make([]address.Addr, 0, len(vector))
	for a := range vector {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	out := make([]byte, 0, len(vector)*12+2)
	out = append(out, '{')
	for i, a := range addrs {
		if i > 0 {
			out = append(out, ',')
		}
		out = jsonenc.AppendString(out, fmt.Sprintf("%d", a))
		out = append(out, ':')
		out = jsonenc.AppendFloat64(out, float64(vector[a]))
	}
	out = append(out, '}')
	return out
}
