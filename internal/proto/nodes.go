package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NodeID accepts either numeric or string identifiers on the wire.
type NodeID string

func (id *NodeID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("node id must be a string or number: %w", err)
	}
	*id = NodeID(n.String())
	return nil
}

// MarshalJSON writes canonical integers bare and everything else, "007" or
// "+5" included, as a string.
func (id NodeID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Neighbor is one radio link observed by a node.
type Neighbor struct {
	ID        NodeID  `json:"id"`
	RSSI      float64 `json:"rssi"`
	Connected bool    `json:"connected"`
}

// RadioState is the radio peripheral portion of a node.
type RadioState struct {
	Neighborhood    []Neighbor `json:"neighborhood,omitempty"`
	BestRSSI        *float64   `json:"best_rssi,omitempty"`
	DetectionRange  float64    `json:"detection_range,omitempty"`
	ConnectionRange float64    `json:"connection_range,omitempty"`
}

// NodeState is the per-node entry of a node visualization slice.
type NodeState struct {
	ID       NodeID     `json:"id"`
	Pos      [2]float64 `json:"pos"`
	Type     string     `json:"type,omitempty"`
	Behavior string     `json:"behavior,omitempty"`
	Radio    RadioState `json:"radio"`
	HasData  bool       `json:"has_data,omitempty"`
}

// Role returns the node's type, falling back to its behavior.
func (n NodeState) Role() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Behavior
}

// DecodeNodes parses a slice holding a node array.
func DecodeNodes(slice json.RawMessage) ([]NodeState, error) {
	var nodes []NodeState
	if err := json.Unmarshal(slice, &nodes); err != nil {
		return nil, fmt.Errorf("decode node slice: %w", err)
	}
	return nodes, nil
}
