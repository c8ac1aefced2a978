package logging

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

const (
	defaultRouterBuffer = 512
	minSinkBuffer       = 32
	maxSinkBuffer       = 1024
)

// Router fans published events out to the configured sinks. Publish never
// blocks: a full queue drops the event and counts it. Each sink is drained by
// its own goroutine so a slow file does not hold up the console.
type Router struct {
	queue       chan Event
	closing     chan struct{}
	workers     []*sinkWorker
	clock       Clock
	fallback    *log.Logger
	minSeverity Severity
	fields      map[string]any
	dropWarn    *throttle
	closed      atomic.Bool
	wg          sync.WaitGroup

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
}

type RouterStats struct {
	EventsTotal  uint64               `json:"eventsTotal"`
	DroppedTotal uint64               `json:"droppedTotal"`
	Sinks        map[string]SinkStats `json:"sinks,omitempty"`
}

type SinkStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// NewRouter starts a router forwarding to the sinks named in cfg.EnabledSinks,
// in that order. Every enabled sink must be present in sinks.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, sinks map[string]Sink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultRouterBuffer
	}
	sinkBuffer := min(max(bufferSize, minSinkBuffer), maxSinkBuffer)

	workers := make([]*sinkWorker, 0, len(cfg.EnabledSinks))
	for _, name := range cfg.EnabledSinks {
		sink, ok := sinks[name]
		if !ok || sink == nil {
			return nil, fmt.Errorf("logging sink %q is enabled but not configured", name)
		}
		workers = append(workers, &sinkWorker{
			name:     name,
			sink:     sink,
			events:   make(chan Event, sinkBuffer),
			fallback: fallback,
			warn:     newThrottle(clock, cfg.DropWarnInterval),
		})
	}

	r := &Router{
		queue:       make(chan Event, bufferSize),
		closing:     make(chan struct{}),
		workers:     workers,
		clock:       clock,
		fallback:    fallback,
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
		dropWarn:    newThrottle(clock, cfg.DropWarnInterval),
	}

	r.wg.Add(1 + len(workers))
	go r.dispatch()
	for _, w := range workers {
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(w)
	}
	return r, nil
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.closing:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.minSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	if len(r.fields) > 0 {
		event = event.Clone()
		if event.Extra == nil {
			event.Extra = make(map[string]any, len(r.fields))
		}
		for k, v := range r.fields {
			if _, exists := event.Extra[k]; !exists {
				event.Extra[k] = v
			}
		}
	}
	r.eventsTotal.Add(1)
	for _, w := range r.workers {
		w.enqueue(event)
	}
}

// Publish queues event for delivery. Events without a type and events
// published after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.droppedTotal.Add(1)
		if r.dropWarn.allow() {
			r.fallback.Printf("router queue full, dropping %s at tick %d (%d dropped so far)", event.Type, event.Tick, r.droppedTotal.Load())
		}
	}
}

// Close drains queued events into the sinks and closes them. It returns
// ctx.Err() if the drain does not finish in time.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.closing)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close sink %s: %w", w.name, err)
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
	}
	if len(r.workers) > 0 {
		stats.Sinks = make(map[string]SinkStats, len(r.workers))
		for _, w := range r.workers {
			stats.Sinks[w.name] = SinkStats{
				Written: w.written.Load(),
				Dropped: w.dropped.Load(),
				Failed:  w.failed.Load(),
			}
		}
	}
	return stats
}

type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	warn     *throttle

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- event.Clone():
	default:
		w.dropped.Add(1)
		if w.warn.allow() {
			w.fallback.Printf("sink %s backlog full, dropped %d events", w.name, w.dropped.Load())
		}
	}
}

// run writes events until the channel is closed. A failing sink keeps
// receiving events; failures are counted and reported at most once per
// warning interval.
func (w *sinkWorker) run() {
	for event := range w.events {
		if err := w.sink.Write(event); err != nil {
			w.failed.Add(1)
			if w.warn.allow() {
				w.fallback.Printf("sink %s failed writing %s: %v (%d failures)", w.name, event.Type, err, w.failed.Load())
			}
			continue
		}
		w.written.Add(1)
	}
}

type throttle struct {
	clock    Clock
	interval time.Duration
	next     atomic.Int64
}

func newThrottle(clock Clock, interval time.Duration) *throttle {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &throttle{clock: clock, interval: interval}
}

func (t *throttle) allow() bool {
	now := t.clock.Now().UnixNano()
	next := t.next.Load()
	if now < next {
		return false
	}
	return t.next.CompareAndSwap(next, now+t.interval.Nanoseconds())
}
