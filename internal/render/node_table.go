package render

import (
	"sort"
	"sync"

	"simdash/internal/proto"
	"simdash/internal/telemetry"
)

// Link is a connected radio pair seen in the latest frame.
type Link struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	RSSI float64 `json:"rssi"`
}

// NodeView is the table's summary of the latest frame.
type NodeView struct {
	Frame           uint64            `json:"frame"`
	Nodes           []proto.NodeState `json:"nodes"`
	Links           []Link            `json:"links"`
	MissingNeighbor uint64            `json:"missingNeighbors"`
	DecodeErrors    uint64            `json:"decodeErrors"`
}

// NodeTable keeps the most recent node positions and radio links. It is read
// from HTTP handlers, so it guards its state itself.
type NodeTable struct {
	mu      sync.RWMutex
	view    NodeView
	logger  telemetry.Logger
	metrics telemetry.Metrics
}

func NewNodeTable(logger telemetry.Logger, metrics telemetry.Metrics) *NodeTable {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &NodeTable{logger: logger, metrics: metrics}
}

func (t *NodeTable) Render(slice Slice) {
	nodes, err := proto.DecodeNodes(slice.Data)
	if err != nil {
		t.mu.Lock()
		t.view.DecodeErrors++
		t.mu.Unlock()
		t.metrics.Add("render_node_decode_errors_total", 1)
		if t.logger != nil {
			t.logger.Printf("[render] frame %d: %v", slice.Frame, err)
		}
		return
	}

	known := make(map[proto.NodeID]struct{}, len(nodes))
	for _, node := range nodes {
		known[node.ID] = struct{}{}
	}

	type pair struct{ a, b string }
	seen := make(map[pair]int)
	var links []Link
	var missing uint64
	for _, node := range nodes {
		for _, neighbor := range node.Radio.Neighborhood {
			if !neighbor.Connected {
				continue
			}
			if _, ok := known[neighbor.ID]; !ok {
				missing++
				continue
			}
			// Either side may be the only one to report a link, since each
			// direction measures its own rssi.
			key := pair{a: string(node.ID), b: string(neighbor.ID)}
			if key.a > key.b {
				key.a, key.b = key.b, key.a
			}
			if i, ok := seen[key]; ok {
				if neighbor.RSSI > links[i].RSSI {
					links[i].RSSI = neighbor.RSSI
				}
				continue
			}
			seen[key] = len(links)
			links = append(links, Link{From: key.a, To: key.b, RSSI: neighbor.RSSI})
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].From == links[j].From {
			return links[i].To < links[j].To
		}
		return links[i].From < links[j].From
	})
	if missing > 0 {
		t.metrics.Add("render_missing_neighbors_total", missing)
	}

	t.mu.Lock()
	t.view.Frame = slice.Frame
	t.view.Nodes = nodes
	t.view.Links = links
	t.view.MissingNeighbor += missing
	t.mu.Unlock()
}

func (t *NodeTable) Reset() {
	t.mu.Lock()
	t.view = NodeView{}
	t.mu.Unlock()
}

// View returns a copy of the latest summary.
func (t *NodeTable) View() NodeView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	view := t.view
	view.Nodes = append([]proto.NodeState(nil), t.view.Nodes...)
	view.Links = append([]Link(nil), t.view.Links...)
	return view
}
