package playback

import "fmt"

// State is the playback lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a read-only view of the synchronizer counters.
type Status struct {
	State    State   `json:"state"`
	Tick     uint64  `json:"tick"`
	Received uint64  `json:"received"`
	Lag      uint64  `json:"lag"`
	Rate     float64 `json:"rate"`
	MaxRate  float64 `json:"maxRate"`
	Session  string  `json:"session,omitempty"`
}

// Finished reports whether the peer has ended the run.
func (s Status) Finished() bool {
	return s.State == StateFinished
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "running":
		*s = StateRunning
	case "paused":
		*s = StatePaused
	case "finished":
		*s = StateFinished
	default:
		return fmt.Errorf("unknown playback state %q", text)
	}
	return nil
}
