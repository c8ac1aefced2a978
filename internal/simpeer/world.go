// Package simpeer is a small reference simulation that speaks the step
// protocol: a field of fixed and mobile radio nodes whose neighborhoods are
// derived from distance-based RSSI.
package simpeer

import (
	"math"
	"math/rand"
	"strconv"

	"simdash/internal/proto"
)

const (
	BehaviorFixed  = "fixed"
	BehaviorMobile = "mobile"
)

// WorldConfig sizes and seeds a world.
type WorldConfig struct {
	Width           float64 `yaml:"width"`
	Height          float64 `yaml:"height"`
	MobileNodes     int     `yaml:"mobileNodes"`
	FixedNodes      int     `yaml:"fixedNodes"`
	CenterStatic    bool    `yaml:"centerStatic"`
	DetectionRange  float64 `yaml:"detectionRange"`
	ConnectionRange float64 `yaml:"connectionRange"`
	NoiseStdev      float64 `yaml:"noiseStdev"`
	SpeedLimit      float64 `yaml:"speedLimit"`
	MaxSteps        uint64  `yaml:"maxSteps"`
	Seed            int64   `yaml:"seed"`
}

func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Width:           1000,
		Height:          750,
		MobileNodes:     4,
		FixedNodes:      1,
		CenterStatic:    true,
		DetectionRange:  200,
		ConnectionRange: 80,
		NoiseStdev:      0.03,
		SpeedLimit:      6,
		MaxSteps:        500,
		Seed:            1,
	}
}

type node struct {
	id       int
	pos      [2]float64
	behavior string
	heading  float64
}

// World is not safe for concurrent use; each peer session owns one.
type World struct {
	cfg   WorldConfig
	rng   *rand.Rand
	nodes []*node
	step  uint64
}

func NewWorld(cfg WorldConfig) *World {
	w := &World{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	nextID := 0
	for i := 0; i < cfg.FixedNodes; i++ {
		pos := w.randomPos()
		if i == 0 && cfg.CenterStatic {
			pos = [2]float64{cfg.Width / 2, cfg.Height / 2}
		}
		w.nodes = append(w.nodes, &node{id: nextID, pos: pos, behavior: BehaviorFixed})
		nextID++
	}
	for i := 0; i < cfg.MobileNodes; i++ {
		w.nodes = append(w.nodes, &node{
			id:       nextID,
			pos:      w.randomPos(),
			behavior: BehaviorMobile,
			heading:  w.rng.Float64() * 2 * math.Pi,
		})
		nextID++
	}
	return w
}

func (w *World) Step() uint64 { return w.step }

func (w *World) Config() WorldConfig { return w.cfg }

// Finished reports whether the step limit has been reached. A zero limit
// runs forever.
func (w *World) Finished() bool {
	return w.cfg.MaxSteps > 0 && w.step >= w.cfg.MaxSteps
}

// Advance moves every mobile node one step along a wandering heading,
// bouncing off the field edges.
func (w *World) Advance() {
	w.step++
	for _, n := range w.nodes {
		if n.behavior != BehaviorMobile {
			continue
		}
		n.heading += w.rng.NormFloat64() * 0.3
		dx := math.Cos(n.heading) * w.cfg.SpeedLimit
		dy := math.Sin(n.heading) * w.cfg.SpeedLimit
		x, y := n.pos[0]+dx, n.pos[1]+dy
		if x < 0 || x > w.cfg.Width {
			n.heading = math.Pi - n.heading
			x = n.pos[0] - dx
		}
		if y < 0 || y > w.cfg.Height {
			n.heading = -n.heading
			y = n.pos[1] - dy
		}
		n.pos = [2]float64{clamp(x, 0, w.cfg.Width), clamp(y, 0, w.cfg.Height)}
	}
}

// Snapshot renders the node slice of a viz_state frame.
func (w *World) Snapshot() []proto.NodeState {
	detection := rssiAt(w.cfg.DetectionRange)
	connection := rssiAt(w.cfg.ConnectionRange)
	states := make([]proto.NodeState, 0, len(w.nodes))
	for _, n := range w.nodes {
		state := proto.NodeState{
			ID:       proto.NodeID(strconv.Itoa(n.id)),
			Pos:      n.pos,
			Type:     n.behavior,
			Behavior: n.behavior,
			Radio: proto.RadioState{
				DetectionRange:  w.cfg.DetectionRange,
				ConnectionRange: w.cfg.ConnectionRange,
			},
		}
		for _, other := range w.nodes {
			if other == n {
				continue
			}
			rssi := w.rssi(n, other)
			if rssi < detection {
				continue
			}
			state.Radio.Neighborhood = append(state.Radio.Neighborhood, proto.Neighbor{
				ID:        proto.NodeID(strconv.Itoa(other.id)),
				RSSI:      rssi,
				Connected: rssi >= connection,
			})
			if state.Radio.BestRSSI == nil || rssi > *state.Radio.BestRSSI {
				best := rssi
				state.Radio.BestRSSI = &best
			}
		}
		states = append(states, state)
	}
	return states
}

// rssi follows a log-distance path loss with exponent 2.5 plus gaussian noise.
func (w *World) rssi(a, b *node) float64 {
	distance := math.Hypot(a.pos[0]-b.pos[0], a.pos[1]-b.pos[1])
	if distance == 0 {
		return 0
	}
	return rssiAt(distance) + w.rng.NormFloat64()*w.cfg.NoiseStdev
}

func rssiAt(distance float64) float64 {
	if distance <= 0 {
		return 0
	}
	return 10 * 2.5 * math.Log10(1/distance)
}

func (w *World) randomPos() [2]float64 {
	return [2]float64{w.rng.Float64() * w.cfg.Width, w.rng.Float64() * w.cfg.Height}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
