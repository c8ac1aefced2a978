package logging

import (
	"context"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// EntityKind names the component an event originates from.
type EntityKind string

const (
	EntityKindUnknown      EntityKind = "unknown"
	EntityKindSynchronizer EntityKind = "synchronizer"
	EntityKindPeer         EntityKind = "peer"
	EntityKindDashboard    EntityKind = "dashboard"
	EntityKindSink         EntityKind = "sink"
)

const (
	CategoryPlayback = "playback"
	CategoryNetwork  = "network"
	CategorySystem   = "system"
)

// Event is one structured record. Tick is the playback tick at the moment
// the event was raised; TraceID carries the playback session so events from
// different resets can be told apart.
type Event struct {
	Type     EventType      `json:"type"`
	Category string         `json:"category,omitempty"`
	Severity Severity       `json:"severity"`
	Time     time.Time      `json:"time"`
	Tick     uint64         `json:"tick"`
	Actor    EntityRef      `json:"actor"`
	TraceID  string         `json:"traceId,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

func (r EntityRef) String() string {
	switch {
	case r.ID == "":
		return string(r.Kind)
	case r.Kind == "":
		return r.ID
	default:
		return string(r.Kind) + ":" + r.ID
	}
}

// Clone copies the Extra map so the copy can be annotated independently.
func (e Event) Clone() Event {
	if e.Extra == nil {
		return e
	}
	extra := make(map[string]any, len(e.Extra))
	for k, v := range e.Extra {
		extra[k] = v
	}
	e.Extra = extra
	return e
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}

type tracePublisher struct {
	next    Publisher
	traceID string
}

func (p *tracePublisher) Publish(ctx context.Context, event Event) {
	if event.TraceID == "" {
		event.TraceID = p.traceID
	}
	p.next.Publish(ctx, event)
}

// WithTrace stamps events lacking a trace id with traceID.
func WithTrace(p Publisher, traceID string) Publisher {
	if p == nil {
		return NopPublisher()
	}
	if traceID == "" {
		return p
	}
	return &tracePublisher{next: p, traceID: traceID}
}
