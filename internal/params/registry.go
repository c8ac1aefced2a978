// Package params holds the operator-adjustable input schema announced by the
// simulation peer and forwards operator edits back to it.
package params

import (
	"fmt"
	"sync/atomic"

	"simdash/internal/proto"
)

// Sender forwards a message to the simulation peer.
type Sender interface {
	Send(proto.Outbound) error
}

// Registry stores the current descriptor set. The set is replaced wholesale
// and never mutated in place, so readers on other goroutines see a
// consistent snapshot without locking. Operator edits are kept beside it as
// the last submitted value per key; they do not touch the descriptors.
type Registry struct {
	sender  Sender
	current atomic.Pointer[snapshot]
}

type snapshot struct {
	descriptors []proto.Descriptor
	submitted   map[string]proto.Value
}

func NewRegistry(sender Sender) *Registry {
	r := &Registry{sender: sender}
	r.current.Store(&snapshot{descriptors: []proto.Descriptor{}})
	return r
}

// Replace installs the schema's descriptors, dropping the previous set and
// any values submitted against it.
func (r *Registry) Replace(schema proto.Schema) int {
	next := make([]proto.Descriptor, len(schema.Descriptors))
	copy(next, schema.Descriptors)
	r.current.Store(&snapshot{descriptors: next})
	return len(next)
}

// Descriptors returns the current set in schema order.
func (r *Registry) Descriptors() []proto.Descriptor {
	current := r.current.Load().descriptors
	copied := make([]proto.Descriptor, len(current))
	copy(copied, current)
	return copied
}

func (r *Registry) Len() int {
	return len(r.current.Load().descriptors)
}

func (r *Registry) Lookup(key string) (proto.Descriptor, bool) {
	for _, desc := range r.current.Load().descriptors {
		if desc.Key == key {
			return desc, true
		}
	}
	return proto.Descriptor{}, false
}

// Submitted returns the last value forwarded for each key of the current
// schema.
func (r *Registry) Submitted() map[string]proto.Value {
	current := r.current.Load().submitted
	copied := make(map[string]proto.Value, len(current))
	for k, v := range current {
		copied[k] = v
	}
	return copied
}

// Submit forwards an edit unconditionally. Bounds and type checks belong to
// the input widget.
func (r *Registry) Submit(key string, value proto.Value) error {
	if r.sender == nil {
		return fmt.Errorf("submit %s: no sender configured", key)
	}
	if err := r.sender.Send(proto.SubmitParams{Param: key, Value: value}); err != nil {
		return fmt.Errorf("submit %s: %w", key, err)
	}
	r.remember(key, value)
	return nil
}

func (r *Registry) remember(key string, value proto.Value) {
	current := r.current.Load()
	known := false
	for _, desc := range current.descriptors {
		known = known || desc.Key == key
	}
	if !known {
		return
	}
	submitted := make(map[string]proto.Value, len(current.submitted)+1)
	for k, v := range current.submitted {
		submitted[k] = v
	}
	submitted[key] = value
	r.current.CompareAndSwap(current, &snapshot{descriptors: current.descriptors, submitted: submitted})
}
