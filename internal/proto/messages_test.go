package proto

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeOutboundMessages(t *testing.T) {
	cases := []struct {
		name string
		msg  Outbound
		want string
	}{
		{name: "get_step", msg: GetStep{Step: 3}, want: `{"type":"get_step","step":3}`},
		{name: "reset", msg: Reset{}, want: `{"type":"reset"}`},
		{name: "submit bool", msg: SubmitParams{Param: "spiral", Value: BoolValue(true)}, want: `{"type":"submit_params","param":"spiral","value":true}`},
		{name: "submit number", msg: SubmitParams{Param: "noise", Value: NumberValue(0.25)}, want: `{"type":"submit_params","param":"noise","value":0.25}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeOutbound(tc.msg)
			if err != nil {
				t.Fatalf("EncodeOutbound returned error: %v", err)
			}
			if string(data) != tc.want {
				t.Fatalf("unexpected payload %s, want %s", data, tc.want)
			}
			decoded, err := DecodeOutbound(data)
			if err != nil {
				t.Fatalf("DecodeOutbound returned error: %v", err)
			}
			if decoded.MessageType() != tc.msg.MessageType() {
				t.Fatalf("decoded type %s, want %s", decoded.MessageType(), tc.msg.MessageType())
			}
		})
	}
}

func TestDecodeOutboundRejectsIncompleteMessages(t *testing.T) {
	for _, payload := range []string{`{"type":"get_step"}`, `{"type":"submit_params","param":"x"}`, `{}`} {
		if _, err := DecodeOutbound([]byte(payload)); err == nil {
			t.Fatalf("expected error decoding %s", payload)
		}
	}
}

func TestDecodeInboundVizState(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"viz_state","data":[[{"id":1,"pos":[1,2]}],{"extra":true}]}`))
	if err != nil {
		t.Fatalf("DecodeInbound returned error: %v", err)
	}
	if msg.Type != TypeVizState || msg.Frame == nil {
		t.Fatalf("expected viz_state frame, got %+v", msg)
	}
	if len(msg.Frame.Slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(msg.Frame.Slices))
	}
	nodes, err := DecodeNodes(msg.Frame.Slices[0])
	if err != nil {
		t.Fatalf("DecodeNodes returned error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "1" || nodes[0].Pos != [2]float64{1, 2} {
		t.Fatalf("unexpected nodes %+v", nodes)
	}
}

func TestDecodeInboundEnd(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"end"}`))
	if err != nil {
		t.Fatalf("DecodeInbound returned error: %v", err)
	}
	if msg.Type != TypeEnd || msg.Frame != nil || msg.Schema != nil {
		t.Fatalf("unexpected end message %+v", msg)
	}
}

func TestDecodeInboundUnknownType(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"chart_state","data":[]}`))
	var unknown *UnknownTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
	if unknown.Type != "chart_state" || msg.Type != "chart_state" {
		t.Fatalf("unexpected unknown type %q / %q", unknown.Type, msg.Type)
	}
}

func TestDecodeInboundMalformed(t *testing.T) {
	if _, err := DecodeInbound([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
	if _, err := DecodeInbound([]byte(`{"data":[]}`)); !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestDecodeModelParamsPreservesOrderAndSkipsUnknownKinds(t *testing.T) {
	payload := `{"type":"model_params","params":{
		"spiral":{"param_type":"checkbox","name":"Move in spiral","value":false},
		"noise":{"param_type":"slider","name":"RSSI noise","value":0.03,"min_value":0,"max_value":0.5,"step":0.01},
		"colour":{"param_type":"choice","name":"Colour","value":"red"},
		"size":[1000,750],
		"agents":{"param_type":"number","name":"Agent count","value":4,"min_value":1,"max_value":50,"step":1}
	}}`
	msg, err := DecodeInbound([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeInbound returned error: %v", err)
	}
	if msg.Schema == nil {
		t.Fatalf("expected schema")
	}
	keys := make([]string, 0, len(msg.Schema.Descriptors))
	for _, desc := range msg.Schema.Descriptors {
		keys = append(keys, desc.Key)
	}
	if len(keys) != 3 || keys[0] != "spiral" || keys[1] != "noise" || keys[2] != "agents" {
		t.Fatalf("unexpected descriptor order %v", keys)
	}
	if len(msg.Schema.Ignored) != 2 || msg.Schema.Ignored[0] != "colour" || msg.Schema.Ignored[1] != "size" {
		t.Fatalf("unexpected ignored keys %v", msg.Schema.Ignored)
	}

	noise := msg.Schema.Descriptors[1]
	if noise.Kind != KindSlider || noise.DisplayName != "RSSI noise" {
		t.Fatalf("unexpected noise descriptor %+v", noise)
	}
	if n, ok := noise.Value.Number(); !ok || n != 0.03 {
		t.Fatalf("unexpected noise value %v", noise.Value)
	}
	if noise.Max == nil || *noise.Max != 0.5 || noise.Step == nil || *noise.Step != 0.01 {
		t.Fatalf("unexpected noise bounds %+v", noise)
	}
	if msg.Schema.Descriptors[2].Kind != KindStepper {
		t.Fatalf("expected number param to map to stepper, got %s", msg.Schema.Descriptors[2].Kind)
	}
}

func TestEncodeModelParamsRoundTripKeepsOrder(t *testing.T) {
	descriptors := []Descriptor{
		{Key: "zeta", DisplayName: "Zeta", Kind: KindBoolean, Value: BoolValue(true)},
		{Key: "alpha", DisplayName: "Alpha", Kind: KindSlider, Value: NumberValue(2), Min: Float(0), Max: Float(10), Step: Float(1)},
	}
	data, err := EncodeModelParams(descriptors)
	if err != nil {
		t.Fatalf("EncodeModelParams returned error: %v", err)
	}
	msg, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("DecodeInbound returned error: %v", err)
	}
	if len(msg.Schema.Descriptors) != 2 || msg.Schema.Descriptors[0].Key != "zeta" || msg.Schema.Descriptors[1].Key != "alpha" {
		t.Fatalf("unexpected round trip %+v", msg.Schema.Descriptors)
	}
}

func TestValueJSON(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`"text"`), &v); err == nil {
		t.Fatalf("expected string values to be rejected")
	}
	if err := json.Unmarshal([]byte(`12.5`), &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := v.Number(); !ok || n != 12.5 {
		t.Fatalf("unexpected number %v", v)
	}
	if v.Interface() != 12.5 {
		t.Fatalf("unexpected interface value %v", v.Interface())
	}
}

func TestNodeIDAcceptsStringsAndNumbers(t *testing.T) {
	var nodes []NodeState
	if err := json.Unmarshal([]byte(`[{"id":"rover-1","pos":[0,0]},{"id":7,"pos":[1,1],"radio":{"neighborhood":[{"id":"rover-1","rssi":-40,"connected":true}]}}]`), &nodes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes[0].ID != "rover-1" || nodes[1].ID != "7" {
		t.Fatalf("unexpected ids %q %q", nodes[0].ID, nodes[1].ID)
	}
	if nodes[1].Radio.Neighborhood[0].ID != "rover-1" {
		t.Fatalf("unexpected neighbor id %q", nodes[1].Radio.Neighborhood[0].ID)
	}
	data, err := json.Marshal(nodes[1].ID)
	if err != nil || string(data) != "7" {
		t.Fatalf("expected numeric id to marshal as number, got %s (%v)", data, err)
	}
}

func TestNodeIDMarshalsOnlyCanonicalIntegersBare(t *testing.T) {
	cases := map[NodeID]string{
		"12":    `12`,
		"-3":    `-3`,
		"007":   `"007"`,
		"+5":    `"+5"`,
		"alpha": `"alpha"`,
		"1.5":   `"1.5"`,
	}
	for id, want := range cases {
		data, err := json.Marshal(NodeState{ID: id})
		if err != nil {
			t.Fatalf("marshal %q: %v", id, err)
		}
		var decoded NodeState
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("marshal %q produced invalid JSON %s: %v", id, data, err)
		}
		if decoded.ID != id {
			t.Fatalf("expected %q to survive a round trip, got %q", id, decoded.ID)
		}
		got, _ := json.Marshal(id)
		if string(got) != want {
			t.Fatalf("marshal %q = %s, want %s", id, got, want)
		}
	}
}
