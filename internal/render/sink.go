package render

import (
	"encoding/json"

	"simdash/internal/proto"
	"simdash/internal/telemetry"
)

// WholeFrame is the Slice index given to sinks that receive every element.
const WholeFrame = -1

// Slice is one visualization element's share of a snapshot.
type Slice struct {
	Frame uint64          `json:"frame"`
	Index int             `json:"index"`
	Data  json.RawMessage `json:"data"`
}

// Sink consumes snapshots for presentation. Render must not block.
type Sink interface {
	Render(Slice)
	Reset()
}

type binding struct {
	index int
	sink  Sink
}

// Registry delivers each frame to its sinks in registration order. Element
// sinks receive the slice at their position in the snapshot; whole-frame sinks
// receive the full array. Registration is not safe once dispatch has started.
type Registry struct {
	bindings []binding
	elements int
	logger   telemetry.Logger
}

func NewRegistry(logger telemetry.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register binds sink to the next visualization element and returns its index.
func (r *Registry) Register(sink Sink) int {
	index := r.elements
	r.elements++
	r.bindings = append(r.bindings, binding{index: index, sink: sink})
	return index
}

// RegisterWhole binds sink to the complete snapshot.
func (r *Registry) RegisterWhole(sink Sink) {
	r.bindings = append(r.bindings, binding{index: WholeFrame, sink: sink})
}

func (r *Registry) Len() int {
	return len(r.bindings)
}

// Dispatch hands frame number n to every sink.
func (r *Registry) Dispatch(n uint64, frame proto.Frame) {
	var whole json.RawMessage
	for _, b := range r.bindings {
		if b.index == WholeFrame {
			if whole == nil {
				whole = wholeFrame(frame)
			}
			b.sink.Render(Slice{Frame: n, Index: WholeFrame, Data: whole})
			continue
		}
		if b.index >= len(frame.Slices) {
			if r.logger != nil {
				r.logger.Printf("[render] frame %d has no slice for element %d (%d slices)", n, b.index, len(frame.Slices))
			}
			continue
		}
		b.sink.Render(Slice{Frame: n, Index: b.index, Data: frame.Slices[b.index]})
	}
}

// Reset clears accumulated visual state in every sink.
func (r *Registry) Reset() {
	for _, b := range r.bindings {
		b.sink.Reset()
	}
}

func wholeFrame(frame proto.Frame) json.RawMessage {
	slices := frame.Slices
	if slices == nil {
		slices = []json.RawMessage{}
	}
	data, err := json.Marshal(slices)
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}
