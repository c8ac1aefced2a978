package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"simdash/internal/proto"
	"simdash/logging"
)

type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTicker(interval time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		interval: interval,
		next:     c.now.Add(interval),
		ch:       make(chan time.Time, 1024),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves time forward and queues every tick that became due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.isStopped() {
			continue
		}
		for !t.next.After(c.now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
}

func (c *manualClock) live() []*manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var live []*manualTicker
	for _, t := range c.tickers {
		if !t.isStopped() {
			live = append(live, t)
		}
	}
	return live
}

type manualTicker struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type recordingSender struct {
	mu   sync.Mutex
	sent []proto.Outbound
	err  error
}

func (r *recordingSender) Send(msg proto.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) messages() []proto.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]proto.Outbound, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *recordingSender) clear() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func (r *recordingSender) steps() int {
	count := 0
	for _, msg := range r.messages() {
		if _, ok := msg.(proto.GetStep); ok {
			count++
		}
	}
	return count
}

type eventLog struct {
	mu     sync.Mutex
	events []logging.Event
}

func (l *eventLog) Publish(_ context.Context, event logging.Event) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) ofType(eventType logging.EventType) []logging.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logging.Event
	for _, event := range l.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

var errSendBroken = errors.New("connection reset")

// fire runs every queued firing of the active ticker.
func fire(s *Synchronizer) int {
	fired := 0
	for {
		c := s.TimerC()
		if c == nil {
			return fired
		}
		select {
		case <-c:
			s.OnTimer()
			fired++
		default:
			return fired
		}
	}
}
