package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/authgate/internal/auth"
)

const (
	// DefaultQueueSize bounds events waiting for the writer goroutine.
	DefaultQueueSize = 1024

	writeTimeout = 5 * time.Second
)

// Publisher pushes an event payload to a message bus. *mqtt.Client satisfies it.
type Publisher interface {
	PublishSecurityEvent(eventType string, payload []byte) error
}

// MetricWriter records an event as a time-series point. *influxdb.Client satisfies it.
type MetricWriter interface {
	WriteAuthEvent(eventType, userID string, at time.Time)
}

// Recorder is an auth.EventSink that queues events and writes them to the
// audit table, the message bus and the metrics store from one goroutine.
// Record never blocks; when the queue is full the event is dropped and
// counted.
type Recorder struct {
	repo      Repository
	publisher Publisher
	metrics   MetricWriter
	logger    *slog.Logger

	queueSize int
	queue     chan auth.Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped atomic.Int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithPublisher adds a message bus destination.
func WithPublisher(p Publisher) RecorderOption {
	return func(r *Recorder) { r.publisher = p }
}

// WithMetrics adds a time-series destination.
func WithMetrics(m MetricWriter) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithLogger sets the logger for write failures.
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// NewRecorder creates a Recorder and starts its writer goroutine.
// repo may be nil when only the bus and metrics destinations are wanted.
func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo:      repo,
		logger:    slog.New(slog.DiscardHandler),
		queueSize: DefaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan auth.Event, r.queueSize)

	go r.run()
	return r
}

// Record enqueues e. It is safe to call after Close; the event is dropped.
func (r *Recorder) Record(_ context.Context, e auth.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.queue <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("audit queue full, dropping events", "dropped_total", n)
		}
	}
}

// Dropped returns the number of events discarded so far.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events, drains the queue and waits for the writer,
// or for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.write(e)
	}
}

func (r *Recorder) write(e auth.Event) {
	if r.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.repo.Create(ctx, &Entry{
			EventType:  string(e.Type),
			UserID:     e.UserID,
			Identifier: e.Identifier,
			Reason:     e.Reason,
			CreatedAt:  e.At,
		})
		cancel()
		if err != nil {
			r.logger.Error("writing audit entry", "event", e.Type, "error", err)
		}
	}

	if r.publisher != nil {
		payload, err := json.Marshal(e)
		if err == nil {
			err = r.publisher.PublishSecurityEvent(string(e.Type), payload)
		}
		if err != nil {
			r.logger.Warn("publishing security event", "event", e.Type, "error", err)
		}
	}

	if r.metrics != nil {
		r.metrics.WriteAuthEvent(string(e.Type), e.UserID, e.At)
	}
}
