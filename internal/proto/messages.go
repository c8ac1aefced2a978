package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Outbound message types (synchronizer to simulation peer).
const (
	TypeGetStep      = "get_step"
	TypeReset        = "reset"
	TypeSubmitParams = "submit_params"
)

// Inbound message types (simulation peer to synchronizer).
const (
	TypeVizState    = "viz_state"
	TypeEnd         = "end"
	TypeModelParams = "model_params"
)

// ErrMissingType is returned when a payload carries no "type" discriminator.
var ErrMissingType = errors.New("message has no type")

// Outbound is implemented by every message the synchronizer sends.
type Outbound interface {
	MessageType() string
}

// GetStep requests computation of a step.
type GetStep struct {
	Step uint64 `json:"step"`
}

// Reset requests a simulation reset.
type Reset struct{}

// SubmitParams applies an edited input.
type SubmitParams struct {
	Param string `json:"param"`
	Value Value  `json:"value"`
}

func (GetStep) MessageType() string      { return TypeGetStep }
func (Reset) MessageType() string        { return TypeReset }
func (SubmitParams) MessageType() string { return TypeSubmitParams }

// EncodeOutbound renders an outbound message with its type tag.
func EncodeOutbound(msg Outbound) ([]byte, error) {
	switch payload := msg.(type) {
	case GetStep:
		return json.Marshal(struct {
			Type string `json:"type"`
			Step uint64 `json:"step"`
		}{Type: TypeGetStep, Step: payload.Step})
	case Reset:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{Type: TypeReset})
	case SubmitParams:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Param string `json:"param"`
			Value Value  `json:"value"`
		}{Type: TypeSubmitParams, Param: payload.Param, Value: payload.Value})
	case nil:
		return nil, errors.New("nil outbound message")
	default:
		return nil, fmt.Errorf("unsupported outbound message %T", msg)
	}
}

type outboundEnvelope struct {
	Type  string  `json:"type"`
	Step  *uint64 `json:"step"`
	Param string  `json:"param"`
	Value *Value  `json:"value"`
}

// DecodeOutbound parses a synchronizer request; used by simulation peers.
func DecodeOutbound(payload []byte) (Outbound, error) {
	var env outboundEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode outbound message: %w", err)
	}
	switch env.Type {
	case "":
		return nil, ErrMissingType
	case TypeGetStep:
		if env.Step == nil {
			return nil, fmt.Errorf("%s without step", TypeGetStep)
		}
		return GetStep{Step: *env.Step}, nil
	case TypeReset:
		return Reset{}, nil
	case TypeSubmitParams:
		if env.Param == "" || env.Value == nil {
			return nil, fmt.Errorf("%s requires param and value", TypeSubmitParams)
		}
		return SubmitParams{Param: env.Param, Value: *env.Value}, nil
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

// UnknownTypeError reports a well-formed message whose type is not recognised.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Frame is one tick's snapshot: one raw slice per visualization element.
type Frame struct {
	Slices []json.RawMessage
}

// Inbound is a decoded peer message. Exactly one of Frame or Params is set
// for viz_state and model_params respectively; end carries nothing.
type Inbound struct {
	Type   string
	Frame  *Frame
	Schema *Schema
}

type inboundEnvelope struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Params json.RawMessage `json:"params"`
}

// DecodeInbound parses a peer message. Unrecognised types yield an
// *UnknownTypeError alongside the type so callers can log and discard.
func DecodeInbound(payload []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Inbound{}, fmt.Errorf("decode inbound message: %w", err)
	}
	msg := Inbound{Type: env.Type}
	switch env.Type {
	case "":
		return msg, ErrMissingType
	case TypeVizState:
		var slices []json.RawMessage
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &slices); err != nil {
				return msg, fmt.Errorf("decode %s data: %w", TypeVizState, err)
			}
		}
		msg.Frame = &Frame{Slices: slices}
	case TypeEnd:
	case TypeModelParams:
		schema, err := DecodeSchema(env.Params)
		if err != nil {
			return msg, fmt.Errorf("decode %s: %w", TypeModelParams, err)
		}
		msg.Schema = &schema
	default:
		return msg, &UnknownTypeError{Type: env.Type}
	}
	return msg, nil
}

// EncodeVizState renders a viz_state message from per-element slices.
func EncodeVizState(slices ...any) ([]byte, error) {
	if slices == nil {
		slices = []any{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data []any  `json:"data"`
	}{Type: TypeVizState, Data: slices})
}

// EncodeEnd renders the end-of-simulation message.
func EncodeEnd() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{Type: TypeEnd})
}

// EncodeModelParams renders a model_params message preserving descriptor order.
func EncodeModelParams(descriptors []Descriptor) ([]byte, error) {
	params, err := EncodeSchema(descriptors)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type   string          `json:"type"`
		Params json.RawMessage `json:"params"`
	}{Type: TypeModelParams, Params: params})
}
