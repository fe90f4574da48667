// Package costsink collects per-call usage metrics: component, latency,
// paid cost, cache hits. Recording is fire-and-forget with a bounded queue;
// batches are flushed by size or by interval. Losing a batch is acceptable:
// metrics are observational, the budget ledger stays authoritative for
// billing.
package costsink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline components as they appear in metrics.
const (
	ComponentDispatcher = "dispatcher"
	ComponentEmotion    = "emotion"
	ComponentDialogue   = "dialogue"
	ComponentMemory     = "memory"
	ComponentPush       = "push"
)

// Metric is one recorded call.
type Metric struct {
	// Tenant, Game, Player identify the request's scope.
	Tenant string
	Game   string
	Player string

	// Component is the pipeline component that did the work.
	Component string

	// Operation is the component-specific operation or method label
	// (e.g. "handle", "rule", "classifier", "template", "generative").
	Operation string

	// LatencyMS is the operation's wall-clock latency.
	LatencyMS int64

	// StatusCode is the HTTP-shaped outcome (200, 400, 429, …).
	StatusCode int

	// CostUSD is the paid cost attributed to this call, zero for cheap paths.
	CostUSD float64

	// CacheHit reports whether the response cache served this call.
	CacheHit bool

	// Timestamp is when the call finished.
	Timestamp time.Time
}

// Writer persists metric batches. Implementations must tolerate being called
// from a single background goroutine.
type Writer interface {
	WriteBatch(ctx context.Context, batch []Metric) error
}

// Sink is the bounded, batching metric collector.
type Sink struct {
	writer Writer
	log    *slog.Logger

	queue     chan Metric
	batchSize int
	interval  time.Duration

	// onRecord, when set, sees every accepted metric synchronously. The app
	// wires it to the otel instruments.
	onRecord func(Metric)

	dropped atomic.Int64

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// SinkOption configures a [Sink].
type SinkOption func(*Sink)

// WithQueueDepth sets the bounded queue size. Default: 4096.
func WithQueueDepth(n int) SinkOption {
	return func(s *Sink) {
		if n > 0 {
			s.queue = make(chan Metric, n)
		}
	}
}

// WithBatchSize sets the flush batch size. Default: 100.
func WithBatchSize(n int) SinkOption {
	return func(s *Sink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval sets the time-based flush trigger. Default: 1s.
func WithFlushInterval(d time.Duration) SinkOption {
	return func(s *Sink) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithOnRecord registers a synchronous observer for accepted metrics.
func WithOnRecord(fn func(Metric)) SinkOption {
	return func(s *Sink) { s.onRecord = fn }
}

// WithSinkLogger sets the sink's logger.
func WithSinkLogger(log *slog.Logger) SinkOption {
	return func(s *Sink) { s.log = log }
}

// NewSink creates a sink writing to writer. Call [Sink.Start] before
// recording and [Sink.Stop] on shutdown for a final flush.
func NewSink(writer Writer, opts ...SinkOption) *Sink {
	s := &Sink{
		writer:    writer,
		log:       slog.Default(),
		queue:     make(chan Metric, 4096),
		batchSize: 100,
		interval:  time.Second,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record enqueues a metric. Never blocks: when the queue is full the metric
// is dropped and counted.
func (s *Sink) Record(m Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if s.onRecord != nil {
		s.onRecord(m)
	}
	select {
	case s.queue <- m:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many metrics were discarded due to a full queue.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Start launches the flush loop. Safe to call once.
func (s *Sink) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

// Stop ends the flush loop after a final drain. Safe to call more than once,
// and a no-op for a sink that was never started.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	if s.started.Load() {
		<-s.stopped
	}
}

func (s *Sink) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	batch := make([]Metric, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.writer.WriteBatch(ctx, batch); err != nil {
			s.log.Warn("costsink: batch write failed, batch lost",
				"size", len(batch), "error", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case m := <-s.queue:
			batch = append(batch, m)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			// Drain whatever is queued, then flush once and exit.
			for {
				select {
				case m := <-s.queue:
					batch = append(batch, m)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
