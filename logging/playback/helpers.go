package playback

import (
	"context"

	"simdash/logging"
)

const (
	// EventStateChanged is emitted when the playback state machine transitions.
	EventStateChanged logging.EventType = "playback.state_changed"
	// EventRateThrottled is emitted when the lag monitor lowers the step rate.
	EventRateThrottled logging.EventType = "playback.rate_throttled"
	// EventRateChanged is emitted when an operator changes the step rate.
	EventRateChanged logging.EventType = "playback.rate_changed"
	// EventReset is emitted after a full playback reset.
	EventReset logging.EventType = "playback.reset"
	// EventFrameDiscarded is emitted when a snapshot arrives with no outstanding request.
	EventFrameDiscarded logging.EventType = "playback.frame_discarded"
	// EventUnknownMessage is emitted when the peer sends an unrecognised message type.
	EventUnknownMessage logging.EventType = "playback.unknown_message"
	// EventSchemaReplaced is emitted when a new parameter schema replaces the registry.
	EventSchemaReplaced logging.EventType = "playback.schema_replaced"
	// EventParamSubmitted is emitted when an operator edit is forwarded to the peer.
	EventParamSubmitted logging.EventType = "playback.param_submitted"
)

var synchronizer = logging.EntityRef{ID: "synchronizer", Kind: logging.EntityKindSynchronizer}

// StateChangedPayload captures both ends of a transition.
type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StateChanged publishes an info event for a state transition.
func StateChanged(ctx context.Context, pub logging.Publisher, tick uint64, payload StateChangedPayload) {
	publish(ctx, pub, EventStateChanged, tick, logging.SeverityInfo, payload)
}

// RatePayload describes a rate adjustment.
type RatePayload struct {
	Previous float64 `json:"previous"`
	Rate     float64 `json:"rate"`
	Lag      uint64  `json:"lag,omitempty"`
}

// RateThrottled publishes a warning when backpressure lowers the rate.
func RateThrottled(ctx context.Context, pub logging.Publisher, tick uint64, payload RatePayload) {
	publish(ctx, pub, EventRateThrottled, tick, logging.SeverityWarn, payload)
}

// RateChanged publishes a debug event for operator-driven rate changes.
func RateChanged(ctx context.Context, pub logging.Publisher, tick uint64, payload RatePayload) {
	publish(ctx, pub, EventRateChanged, tick, logging.SeverityDebug, payload)
}

// ResetPayload records the rate restored by a reset.
type ResetPayload struct {
	Rate float64 `json:"rate"`
}

// Reset publishes an info event once playback has been reset.
func Reset(ctx context.Context, pub logging.Publisher, tick uint64, payload ResetPayload) {
	publish(ctx, pub, EventReset, tick, logging.SeverityInfo, payload)
}

// FramePayload carries the counters at the time a frame was discarded.
type FramePayload struct {
	Received uint64 `json:"received"`
}

// FrameDiscarded publishes a warning for a snapshot that had no outstanding request.
func FrameDiscarded(ctx context.Context, pub logging.Publisher, tick uint64, payload FramePayload) {
	publish(ctx, pub, EventFrameDiscarded, tick, logging.SeverityWarn, payload)
}

// UnknownMessagePayload names the unrecognised message type.
type UnknownMessagePayload struct {
	MessageType string `json:"messageType"`
}

// UnknownMessage publishes a warning for a discarded inbound message.
func UnknownMessage(ctx context.Context, pub logging.Publisher, tick uint64, payload UnknownMessagePayload) {
	publish(ctx, pub, EventUnknownMessage, tick, logging.SeverityWarn, payload)
}

// SchemaPayload summarises a replaced parameter schema.
type SchemaPayload struct {
	Accepted int      `json:"accepted"`
	Ignored  []string `json:"ignored,omitempty"`
}

// SchemaReplaced publishes an info event when the parameter registry is replaced.
func SchemaReplaced(ctx context.Context, pub logging.Publisher, tick uint64, payload SchemaPayload) {
	publish(ctx, pub, EventSchemaReplaced, tick, logging.SeverityInfo, payload)
}

// ParamPayload records one forwarded edit.
type ParamPayload struct {
	Param string `json:"param"`
	Value any    `json:"value"`
}

// ParamSubmitted publishes an info event for a forwarded parameter edit.
func ParamSubmitted(ctx context.Context, pub logging.Publisher, tick uint64, payload ParamPayload) {
	publish(ctx, pub, EventParamSubmitted, tick, logging.SeverityInfo, payload)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, severity logging.Severity, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    synchronizer,
		Severity: severity,
		Category: logging.CategoryPlayback,
		Payload:  payload,
	})
}

// EventFrameRendered is emitted by the logging render sink.
const EventFrameRendered logging.EventType = "playback.frame_rendered"

// FrameRenderedPayload sizes one rendered slice.
type FrameRenderedPayload struct {
	Element int `json:"element"`
	Bytes   int `json:"bytes"`
}

// FrameRendered publishes a debug event for a slice handed to a sink.
func FrameRendered(ctx context.Context, pub logging.Publisher, frame uint64, payload FrameRenderedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameRendered,
		Tick:     frame,
		Actor:    logging.EntityRef{ID: "render", Kind: logging.EntityKindSink},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryPlayback,
		Payload:  payload,
	})
}
