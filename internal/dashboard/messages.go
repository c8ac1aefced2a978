package dashboard

import (
	"encoding/json"
	"fmt"

	"simdash/internal/playback"
	"simdash/internal/proto"
)

// controlRequest is accepted both as a POST /control body and as a websocket
// message from an operator client.
type controlRequest struct {
	Type  string      `json:"type"`
	Rate  *float64    `json:"rate,omitempty"`
	Param string      `json:"param,omitempty"`
	Value proto.Value `json:"value"`
}

func (r controlRequest) command() (playback.Command, error) {
	cmd := playback.Command{
		Type:  playback.CommandType(r.Type),
		Param: r.Param,
		Value: r.Value,
	}
	if cmd.Type == playback.CommandRate {
		if r.Rate == nil {
			return playback.Command{}, fmt.Errorf("rate command requires a rate")
		}
		cmd.Rate = *r.Rate
	}
	if err := cmd.Validate(); err != nil {
		return playback.Command{}, err
	}
	return cmd, nil
}

func decodeControl(data []byte) (playback.Command, error) {
	var req controlRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return playback.Command{}, fmt.Errorf("decode control request: %w", err)
	}
	return req.command()
}

type welcomeMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"id"`
}

type statusMessage struct {
	Type   string          `json:"type"`
	Kind   string          `json:"kind,omitempty"`
	Status playback.Status `json:"status"`
}

type frameMessage struct {
	Type  string          `json:"type"`
	Frame uint64          `json:"frame"`
	Data  json.RawMessage `json:"data"`
}

type paramsMessage struct {
	Type      string                 `json:"type"`
	Params    []proto.Descriptor     `json:"params"`
	Submitted map[string]proto.Value `json:"submitted,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
