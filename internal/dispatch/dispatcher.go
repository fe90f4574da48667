// Package dispatch orchestrates the pipeline for one event: cache lookup,
// parallel memory/emotion fan-out under sub-deadlines, dialogue, asynchronous
// memory append, cache write, push publish, and metrics.
//
// Events are hashed by player id onto a fixed worker pool, so one player's
// events are handled (and their memories appended) strictly in arrival order
// while different players run in parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aikyo-ai/aikyo/internal/cache"
	"github.com/aikyo-ai/aikyo/internal/costsink"
	"github.com/aikyo-ai/aikyo/internal/dialogue"
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/recall"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// Config tunes the dispatcher. Zero values take the defaults.
type Config struct {
	// Workers is the size of the worker pool. Default: 8.
	Workers int

	// QueueDepth is the per-worker job queue size. Default: 128.
	QueueDepth int

	// Deadline is the wall-clock budget per event. Default: 2000ms.
	Deadline time.Duration

	// MemoryDeadline bounds the context fetch. Default: 600ms.
	MemoryDeadline time.Duration

	// EmotionDeadline bounds the emotion analysis. Default: 800ms.
	EmotionDeadline time.Duration

	// ContextK is how many memories condition a response. Default: 5.
	ContextK int
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 128
	}
	if c.Deadline <= 0 {
		c.Deadline = 2000 * time.Millisecond
	}
	if c.MemoryDeadline <= 0 {
		c.MemoryDeadline = 600 * time.Millisecond
	}
	if c.EmotionDeadline <= 0 {
		c.EmotionDeadline = 800 * time.Millisecond
	}
	if c.ContextK <= 0 {
		c.ContextK = 5
	}
}

// Publisher delivers responses to realtime subscribers. Implementations must
// not block: delivery rides the session's bounded buffer.
type Publisher interface {
	PublishReaction(ev *event.Event, resp *Response)
}

// Recorder receives per-call usage metrics.
type Recorder interface {
	Record(m costsink.Metric)
}

// ErrQueueFull is returned by [Dispatcher.HandleAsync] when the player's
// worker queue is saturated.
var ErrQueueFull = errors.New("dispatch: worker queue full")

type job struct {
	ctx     context.Context
	tenant  *tenant.Tenant
	profile tenant.Profile
	ev      *event.Event
	reply   chan *Response // nil for fire-and-forget jobs
}

type appendJob struct {
	tenant *tenant.Tenant
	ev     *event.Event
	emo    *emotion.Result
}

type worker struct {
	jobs    chan job
	appends chan appendJob
}

// Dispatcher is the pipeline orchestrator.
type Dispatcher struct {
	cfg       Config
	emotion   *emotion.Engine
	dialogue  *dialogue.Engine
	recall    *recall.Engine
	cache     *cache.TwoTier
	publisher Publisher
	recorder  Recorder
	log       *slog.Logger
	now       func() time.Time

	workers []*worker
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithPublisher wires the realtime push channel.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithRecorder wires the cost and metric sink.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithClock replaces the dispatcher's clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher. Call [Dispatcher.Start] before handling events.
func New(cfg Config, emo *emotion.Engine, dlg *dialogue.Engine, rec *recall.Engine, c *cache.TwoTier, opts ...Option) *Dispatcher {
	cfg.applyDefaults()
	d := &Dispatcher{
		cfg:      cfg,
		emotion:  emo,
		dialogue: dlg,
		recall:   rec,
		cache:    c,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.workers = make([]*worker, cfg.Workers)
	for i := range d.workers {
		d.workers[i] = &worker{
			jobs:    make(chan job, cfg.QueueDepth),
			appends: make(chan appendJob, cfg.QueueDepth),
		}
	}
	return d
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for _, w := range d.workers {
			d.wg.Add(2)
			go d.runWorker(w)
			go d.runAppender(w)
		}
	})
}

// Stop drains the worker pool. In-flight jobs finish; queued appends are
// applied before the appenders exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		for _, w := range d.workers {
			close(w.jobs)
		}
	})
	d.wg.Wait()
}

// Handle processes one event synchronously. Validation failures are the only
// errors; every downstream problem degrades into a partial [Response].
func (d *Dispatcher) Handle(ctx context.Context, t *tenant.Tenant, profile tenant.Profile, ev *event.Event) (*Response, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Deadline)
	defer cancel()

	j := job{ctx: ctx, tenant: t, profile: profile, ev: ev, reply: make(chan *Response, 1)}
	w := d.workerFor(ev.Player)
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return d.overloaded(ev, profile), nil
	}
	select {
	case resp := <-j.reply:
		return resp, nil
	case <-ctx.Done():
		return d.overloaded(ev, profile), nil
	}
}

// HandleAsync enqueues one event for push-only processing. The response goes
// to the realtime channel; the caller only learns about validation failures
// and queue saturation.
func (d *Dispatcher) HandleAsync(ctx context.Context, t *tenant.Tenant, profile tenant.Profile, ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	j := job{ctx: context.WithoutCancel(ctx), tenant: t, profile: profile, ev: ev}
	w := d.workerFor(ev.Player)
	select {
	case w.jobs <- j:
		return nil
	default:
		return fmt.Errorf("%w: player %s", ErrQueueFull, ev.Player)
	}
}

func (d *Dispatcher) workerFor(player string) *worker {
	h := fnv.New32a()
	h.Write([]byte(player))
	return d.workers[h.Sum32()%uint32(len(d.workers))]
}

func (d *Dispatcher) runWorker(w *worker) {
	defer d.wg.Done()
	defer close(w.appends)
	for j := range w.jobs {
		if j.ctx.Err() != nil {
			// The caller already gave up (deadline passed while queued).
			continue
		}
		ctx := j.ctx
		var cancel context.CancelFunc
		if j.reply == nil {
			// Async jobs get their deadline here, not at enqueue time.
			ctx, cancel = context.WithTimeout(ctx, d.cfg.Deadline)
		}
		resp := d.process(ctx, w, j)
		if cancel != nil {
			cancel()
		}
		if j.reply != nil {
			j.reply <- resp
		}
	}
}

func (d *Dispatcher) runAppender(w *worker) {
	defer d.wg.Done()
	for a := range w.appends {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		start := d.now()
		_, err := d.recall.Append(ctx, a.tenant, a.ev, a.emo)
		cancel()
		if err != nil {
			d.log.Warn("dispatch: memory append failed",
				"tenant", a.ev.Tenant, "player", a.ev.Player, "error", err)
			continue
		}
		d.record(costsink.Metric{
			Tenant: a.ev.Tenant, Game: a.ev.Game, Player: a.ev.Player,
			Component: costsink.ComponentMemory, Operation: "append",
			LatencyMS: d.now().Sub(start).Milliseconds(), StatusCode: 200,
		})
	}
}

// process runs the pipeline for one event on its assigned worker.
func (d *Dispatcher) process(ctx context.Context, w *worker, j job) *Response {
	start := d.now()
	fp := event.Fingerprint(j.ev, string(j.profile.Persona), string(j.profile.Language), "")

	if b, ok := d.cache.Get(ctx, fp); ok {
		if resp, err := DecodeResponse(b); err == nil {
			resp.Fingerprint = fp
			resp.markCached()
			resp.LatencyMS = d.now().Sub(start).Milliseconds()
			d.publish(j.ev, resp)
			d.record(costsink.Metric{
				Tenant: j.ev.Tenant, Game: j.ev.Game, Player: j.ev.Player,
				Component: costsink.ComponentDispatcher, Operation: "handle",
				LatencyMS: resp.LatencyMS, StatusCode: 200, CacheHit: true,
			})
			return resp
		}
		d.cache.Invalidate(ctx, fp)
	}

	var (
		memories    []string
		memFailed   bool
		emoRes      *emotion.Result
		emoTimedOut bool
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		mctx, cancel := context.WithTimeout(ctx, d.cfg.MemoryDeadline)
		defer cancel()
		recs, _, err := d.recall.GetContext(mctx, j.tenant, j.ev, d.cfg.ContextK)
		if err != nil {
			memFailed = true
			return nil
		}
		memories = recall.Summaries(recs)
		return nil
	})
	g.Go(func() error {
		ectx, cancel := context.WithTimeout(ctx, d.cfg.EmotionDeadline)
		defer cancel()
		done := make(chan *emotion.Result, 1)
		go func() {
			done <- d.emotion.Analyze(ectx, j.tenant, j.ev, "", false)
		}()
		select {
		case emoRes = <-done:
		case <-ectx.Done():
			emoTimedOut = true
			emoRes = &emotion.Result{
				Emotion: emotion.Neutral, Intensity: 0.3, Confidence: 0,
				Action: "idle", Method: emotion.MethodRule,
				Reasoning: "analysis timeout",
			}
		}
		return nil
	})
	g.Wait()

	if memories == nil {
		memories = []string{}
	}
	var reasons []string
	if memFailed {
		reasons = append(reasons, ReasonMemoryTimeout)
	}
	if emoTimedOut {
		reasons = append(reasons, ReasonEmotionTimeout)
	}

	dres := d.dialogue.Generate(ctx, j.tenant, dialogue.Request{
		Event:       j.ev,
		Emotion:     emoRes,
		Profile:     j.profile,
		Memories:    memories,
		Fingerprint: fp,
	})

	resp := &Response{
		Emotion:         emoRes,
		Dialogue:        dres,
		MemoryContext:   memories,
		Partial:         len(reasons) > 0,
		DegradedReasons: reasons,
		Fingerprint:     fp,
	}

	if recall.Worthy(j.ev, emoRes) {
		select {
		case w.appends <- appendJob{tenant: j.tenant, ev: j.ev, emo: emoRes}:
		default:
			d.log.Warn("dispatch: append queue full, memory dropped",
				"tenant", j.ev.Tenant, "player", j.ev.Player)
		}
	}

	// Degraded responses are not cached: a transient timeout must not pin a
	// partial reply for the whole TTL.
	if !resp.Partial {
		if b, err := resp.Encode(); err == nil {
			d.cache.Put(ctx, fp, b)
		}
	}

	resp.LatencyMS = d.now().Sub(start).Milliseconds()
	d.publish(j.ev, resp)
	d.emitMetrics(j.ev, resp)
	return resp
}

func (d *Dispatcher) publish(ev *event.Event, resp *Response) {
	if d.publisher != nil {
		d.publisher.PublishReaction(ev, resp)
	}
}

func (d *Dispatcher) record(m costsink.Metric) {
	if d.recorder != nil {
		d.recorder.Record(m)
	}
}

func (d *Dispatcher) emitMetrics(ev *event.Event, resp *Response) {
	d.record(costsink.Metric{
		Tenant: ev.Tenant, Game: ev.Game, Player: ev.Player,
		Component: costsink.ComponentDispatcher, Operation: "handle",
		LatencyMS:  resp.LatencyMS,
		StatusCode: 200,
		CostUSD:    resp.Emotion.CostUSD + resp.Dialogue.AttemptCostUSD,
	})
	d.record(costsink.Metric{
		Tenant: ev.Tenant, Game: ev.Game, Player: ev.Player,
		Component: costsink.ComponentEmotion, Operation: string(resp.Emotion.Method),
		LatencyMS: resp.Emotion.LatencyMS, StatusCode: 200,
		CostUSD: resp.Emotion.CostUSD,
	})
	d.record(costsink.Metric{
		Tenant: ev.Tenant, Game: ev.Game, Player: ev.Player,
		Component: costsink.ComponentDialogue, Operation: string(resp.Dialogue.Method),
		LatencyMS: resp.Dialogue.LatencyMS, StatusCode: 200,
		CostUSD: resp.Dialogue.AttemptCostUSD,
	})
}

// overloaded builds the degraded reply returned when the worker pool cannot
// take or finish the job within the deadline. Rule-only emotion, template
// dialogue, no memory context.
func (d *Dispatcher) overloaded(ev *event.Event, profile tenant.Profile) *Response {
	emoRes := &emotion.Result{
		Emotion: emotion.Neutral, Intensity: 0.3, Confidence: 0,
		Action: "idle", Method: emotion.MethodRule,
	}
	fp := event.Fingerprint(ev, string(profile.Persona), string(profile.Language), "")
	dres := d.dialogue.Generate(context.Background(), &tenant.Tenant{ID: ev.Tenant, ForceGenerativeOff: true}, dialogue.Request{
		Event:       ev,
		Emotion:     emoRes,
		Profile:     profile,
		Fingerprint: fp,
	})
	return &Response{
		Emotion:         emoRes,
		Dialogue:        dres,
		MemoryContext:   []string{},
		Partial:         true,
		DegradedReasons: []string{ReasonOverloaded},
		Fingerprint:     fp,
	}
}
