package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/iancoleman/orderedmap"
)

// Kind classifies an operator-adjustable input.
type Kind string

const (
	KindBoolean Kind = "boolean"
	KindSlider  Kind = "numeric-slider"
	KindStepper Kind = "numeric-stepper"
)

// Wire names used by the simulation peer for each kind.
const (
	paramTypeCheckbox = "checkbox"
	paramTypeSlider   = "slider"
	paramTypeNumber   = "number"
)

func kindFromParamType(paramType string) (Kind, bool) {
	switch paramType {
	case paramTypeCheckbox:
		return KindBoolean, true
	case paramTypeSlider:
		return KindSlider, true
	case paramTypeNumber:
		return KindStepper, true
	default:
		return "", false
	}
}

func (k Kind) paramType() string {
	switch k {
	case KindBoolean:
		return paramTypeCheckbox
	case KindSlider:
		return paramTypeSlider
	case KindStepper:
		return paramTypeNumber
	default:
		return string(k)
	}
}

// Numeric reports whether the kind carries a number.
func (k Kind) Numeric() bool {
	return k == KindSlider || k == KindStepper
}

// Value is a parameter value: either a boolean or a number.
type Value struct {
	isBool bool
	set    bool
	b      bool
	n      float64
}

// BoolValue wraps a boolean.
func BoolValue(b bool) Value {
	return Value{isBool: true, set: true, b: b}
}

// NumberValue wraps a number.
func NumberValue(n float64) Value {
	return Value{set: true, n: n}
}

// IsBool reports whether v holds a boolean.
func (v Value) IsBool() bool { return v.set && v.isBool }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.set && !v.isBool }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return !v.set }

// Bool returns the boolean and whether v holds one.
func (v Value) Bool() (bool, bool) { return v.b, v.IsBool() }

// Number returns the number and whether v holds one.
func (v Value) Number() (float64, bool) { return v.n, v.IsNumber() }

// Interface returns the underlying bool or float64, or nil.
func (v Value) Interface() any {
	switch {
	case v.IsBool():
		return v.b
	case v.IsNumber():
		return v.n
	default:
		return nil
	}
}

func (v Value) String() string {
	switch {
	case v.IsBool():
		return strconv.FormatBool(v.b)
	case v.IsNumber():
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	default:
		return "<unset>"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	if v.isBool {
		return json.Marshal(v.b)
	}
	return json.Marshal(v.n)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("true")):
		*v = BoolValue(true)
	case bytes.Equal(trimmed, []byte("false")):
		*v = BoolValue(false)
	case bytes.Equal(trimmed, []byte("null")):
		*v = Value{}
	default:
		n, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return fmt.Errorf("parameter value must be a boolean or number, got %s", trimmed)
		}
		*v = NumberValue(n)
	}
	return nil
}

// Descriptor describes one operator-adjustable simulation input.
type Descriptor struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"name"`
	Kind        Kind     `json:"kind"`
	Value       Value    `json:"value"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Step        *float64 `json:"step,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Schema is a decoded model_params payload in peer order. Ignored lists keys
// whose kind was unknown or whose entry was not a parameter description.
type Schema struct {
	Descriptors []Descriptor
	Ignored     []string
}

type wireDescriptor struct {
	ParamType   string   `json:"param_type"`
	Name        string   `json:"name"`
	Value       Value    `json:"value"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	Step        *float64 `json:"step,omitempty"`
	Description string   `json:"description,omitempty"`
}

// DecodeSchema parses the params mapping of a model_params message. Entries
// with unknown kinds or mismatched values are skipped, never fatal.
func DecodeSchema(raw json.RawMessage) (Schema, error) {
	var schema Schema
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return schema, nil
	}

	order := orderedmap.New()
	if err := json.Unmarshal(raw, order); err != nil {
		return schema, fmt.Errorf("params must be an object: %w", err)
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return schema, fmt.Errorf("params must be an object: %w", err)
	}

	for _, key := range order.Keys() {
		desc, ok := decodeDescriptor(key, entries[key])
		if !ok {
			schema.Ignored = append(schema.Ignored, key)
			continue
		}
		schema.Descriptors = append(schema.Descriptors, desc)
	}
	return schema, nil
}

func decodeDescriptor(key string, raw json.RawMessage) (Descriptor, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Descriptor{}, false
	}
	var wire wireDescriptor
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Descriptor{}, false
	}
	kind, ok := kindFromParamType(wire.ParamType)
	if !ok {
		return Descriptor{}, false
	}
	if kind == KindBoolean && !wire.Value.IsBool() {
		return Descriptor{}, false
	}
	if kind.Numeric() && !wire.Value.IsNumber() {
		return Descriptor{}, false
	}
	name := wire.Name
	if name == "" {
		name = key
	}
	return Descriptor{
		Key:         key,
		DisplayName: name,
		Kind:        kind,
		Value:       wire.Value,
		Min:         wire.MinValue,
		Max:         wire.MaxValue,
		Step:        wire.Step,
		Description: wire.Description,
	}, true
}

// EncodeSchema renders descriptors as the ordered params mapping.
func EncodeSchema(descriptors []Descriptor) (json.RawMessage, error) {
	order := orderedmap.New()
	for _, desc := range descriptors {
		wire := wireDescriptor{
			ParamType:   desc.Kind.paramType(),
			Name:        desc.DisplayName,
			Value:       desc.Value,
			MinValue:    desc.Min,
			MaxValue:    desc.Max,
			Step:        desc.Step,
			Description: desc.Description,
		}
		data, err := json.Marshal(wire)
		if err != nil {
			return nil, fmt.Errorf("encode parameter %s: %w", desc.Key, err)
		}
		order.Set(desc.Key, json.RawMessage(data))
	}
	data, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return data, nil
}

// Float is a convenience for building optional bounds.
func Float(v float64) *float64 {
	return &v
}
