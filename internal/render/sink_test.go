package render

import (
	"encoding/json"
	"testing"

	"simdash/internal/proto"
)

type recordingSink struct {
	name   string
	log    *[]string
	slices []Slice
	resets int
}

func (s *recordingSink) Render(slice Slice) {
	s.slices = append(s.slices, slice)
	if s.log != nil {
		*s.log = append(*s.log, s.name)
	}
}

func (s *recordingSink) Reset() { s.resets++ }

func frameOf(slices ...string) proto.Frame {
	frame := proto.Frame{}
	for _, s := range slices {
		frame.Slices = append(frame.Slices, json.RawMessage(s))
	}
	return frame
}

func TestDispatchDeliversSlicesInRegistrationOrder(t *testing.T) {
	var order []string
	first := &recordingSink{name: "first", log: &order}
	whole := &recordingSink{name: "whole", log: &order}
	second := &recordingSink{name: "second", log: &order}

	registry := NewRegistry(nil)
	if idx := registry.Register(first); idx != 0 {
		t.Fatalf("expected first element index 0, got %d", idx)
	}
	registry.RegisterWhole(whole)
	if idx := registry.Register(second); idx != 1 {
		t.Fatalf("expected second element index 1, got %d", idx)
	}

	registry.Dispatch(4, frameOf(`[1]`, `{"b":2}`))

	if len(order) != 3 || order[0] != "first" || order[1] != "whole" || order[2] != "second" {
		t.Fatalf("unexpected delivery order %v", order)
	}
	if string(first.slices[0].Data) != `[1]` || first.slices[0].Frame != 4 {
		t.Fatalf("unexpected first slice %+v", first.slices[0])
	}
	if string(second.slices[0].Data) != `{"b":2}` {
		t.Fatalf("unexpected second slice %s", second.slices[0].Data)
	}
	if whole.slices[0].Index != WholeFrame || string(whole.slices[0].Data) != `[[1],{"b":2}]` {
		t.Fatalf("unexpected whole slice %+v", whole.slices[0])
	}
}

func TestDispatchSkipsSinksWithoutSlice(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	registry := NewRegistry(nil)
	registry.Register(first)
	registry.Register(second)

	registry.Dispatch(1, frameOf(`[]`))

	if len(first.slices) != 1 || len(second.slices) != 0 {
		t.Fatalf("expected only first sink to render, got %d/%d", len(first.slices), len(second.slices))
	}
}

func TestResetReachesEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	registry := NewRegistry(nil)
	registry.Register(a)
	registry.RegisterWhole(b)
	registry.Reset()
	if a.resets != 1 || b.resets != 1 {
		t.Fatalf("expected both sinks reset once, got %d/%d", a.resets, b.resets)
	}
}

func TestNodeTableTracksLinksAndMissingNeighbors(t *testing.T) {
	table := NewNodeTable(nil, nil)
	data := `[
		{"id":1,"pos":[0,0],"type":"fixed","radio":{"neighborhood":[{"id":2,"rssi":-40,"connected":true},{"id":9,"rssi":-80,"connected":true}]}},
		{"id":2,"pos":[3,4],"type":"mobile","radio":{"neighborhood":[{"id":1,"rssi":-40,"connected":true}]}},
		{"id":3,"pos":[9,9],"type":"mobile","radio":{"neighborhood":[{"id":1,"rssi":-95,"connected":false}]}}
	]`
	table.Render(Slice{Frame: 2, Data: json.RawMessage(data)})

	view := table.View()
	if view.Frame != 2 || len(view.Nodes) != 3 {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Links) != 1 || view.Links[0].From != "1" || view.Links[0].To != "2" {
		t.Fatalf("unexpected links %+v", view.Links)
	}
	if view.MissingNeighbor != 1 {
		t.Fatalf("expected one missing neighbor, got %d", view.MissingNeighbor)
	}

	table.Render(Slice{Frame: 3, Data: json.RawMessage(`{"not":"nodes"}`)})
	if table.View().DecodeErrors != 1 {
		t.Fatalf("expected decode error to be counted")
	}

	table.Reset()
	if view := table.View(); view.Frame != 0 || len(view.Nodes) != 0 {
		t.Fatalf("expected reset to clear table, got %+v", view)
	}
}

func TestNodeTableKeepsOneSidedLinks(t *testing.T) {
	table := NewNodeTable(nil, nil)
	data := `[
		{"id":1,"pos":[0,0],"type":"fixed","radio":{"neighborhood":[{"id":3,"rssi":-81,"connected":false},{"id":2,"rssi":-50,"connected":true}]}},
		{"id":2,"pos":[1,1],"type":"mobile","radio":{"neighborhood":[{"id":1,"rssi":-45,"connected":true}]}},
		{"id":3,"pos":[5,5],"type":"mobile","radio":{"neighborhood":[{"id":1,"rssi":-79,"connected":true}]}}
	]`
	table.Render(Slice{Frame: 1, Data: json.RawMessage(data)})

	links := table.View().Links
	if len(links) != 2 {
		t.Fatalf("expected two links, got %+v", links)
	}
	if links[0].From != "1" || links[0].To != "2" || links[0].RSSI != -45 {
		t.Fatalf("expected the stronger reading for 1-2, got %+v", links[0])
	}
	if links[1].From != "1" || links[1].To != "3" {
		t.Fatalf("expected link reported only by node 3, got %+v", links[1])
	}
}

func TestNodeTableViewEncodesPaddedStringIDs(t *testing.T) {
	table := NewNodeTable(nil, nil)
	table.Render(Slice{Frame: 1, Data: json.RawMessage(`[{"id":"007","pos":[0,0]},{"id":"+5","pos":[1,1]}]`)})
	data, err := json.Marshal(table.View())
	if err != nil {
		t.Fatalf("marshal view: %v", err)
	}
	var view NodeView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("view JSON does not decode: %v", err)
	}
	if len(view.Nodes) != 2 || view.Nodes[0].ID != "007" || view.Nodes[1].ID != "+5" {
		t.Fatalf("unexpected nodes %+v", view.Nodes)
	}
}
