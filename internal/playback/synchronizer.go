// Package playback drives a remote step-based simulation: it issues step
// requests at a configurable rate, counts the snapshots that come back and
// lowers the rate when rendering falls behind.
//
// A Synchronizer is owned by exactly one goroutine (see Loop). None of its
// methods are safe for concurrent use.
package playback

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"simdash/internal/params"
	"simdash/internal/proto"
	"simdash/internal/render"
	"simdash/internal/telemetry"
	"simdash/logging"
	loggingNetwork "simdash/logging/network"
	loggingPlayback "simdash/logging/playback"
)

const (
	// LagThreshold is the number of outstanding frames tolerated before the
	// rate is lowered.
	LagThreshold = 5
	// RateDecrement is subtracted from the rate on every throttle.
	RateDecrement = 1.0
	// MinRate is the floor for the step rate in frames per second.
	MinRate = 1.0
	// RateLimit caps MaxRate. Anything faster would step quicker than a
	// peer could ever answer.
	RateLimit = 1000.0
)

const (
	metricTicksIssued     = "playback_ticks_issued_total"
	metricFramesReceived  = "playback_frames_received_total"
	metricFramesDiscarded = "playback_frames_discarded_total"
	metricThrottles       = "playback_throttles_total"
	metricSendFailures    = "playback_send_failures_total"
	metricUnknownMessages = "playback_unknown_messages_total"
	metricLag             = "playback_lag"
	metricRateMilliHz     = "playback_rate_millihz"
)

var errNoChannel = errors.New("no peer channel")

// Sender writes outbound messages to the simulation peer. Sends are
// fire-and-forget; an error only means the message was lost.
type Sender interface {
	Send(proto.Outbound) error
}

// Config fixes the operator rate bounds.
type Config struct {
	DefaultRate float64
	MaxRate     float64
}

// DefaultConfig mirrors the dashboard's stock slider settings.
func DefaultConfig() Config {
	return Config{DefaultRate: 10, MaxRate: 30}
}

// Deps are the collaborators of a Synchronizer.
type Deps struct {
	Channel   Sender
	Sinks     *render.Registry
	Params    *params.Registry
	Clock     Clock
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
}

type Synchronizer struct {
	cfg Config

	channel   Sender
	sinks     *render.Registry
	params    *params.Registry
	clock     Clock
	basePub   logging.Publisher
	pub       logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	observers []Observer

	state    State
	tick     uint64
	received uint64
	rate     float64
	ticker   Ticker
	session  string
}

func New(cfg Config, deps Deps) *Synchronizer {
	if math.IsNaN(cfg.MaxRate) || cfg.MaxRate < MinRate {
		cfg.MaxRate = DefaultConfig().MaxRate
	}
	cfg.MaxRate = math.Min(cfg.MaxRate, RateLimit)
	if math.IsNaN(cfg.DefaultRate) {
		cfg.DefaultRate = math.Min(DefaultConfig().DefaultRate, cfg.MaxRate)
	}
	if cfg.DefaultRate < MinRate || cfg.DefaultRate > cfg.MaxRate {
		cfg.DefaultRate = math.Min(math.Max(cfg.DefaultRate, MinRate), cfg.MaxRate)
	}
	s := &Synchronizer{
		cfg:     cfg,
		channel: deps.Channel,
		sinks:   deps.Sinks,
		params:  deps.Params,
		clock:   deps.Clock,
		basePub: deps.Publisher,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		state:   StateIdle,
		rate:    cfg.DefaultRate,
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.basePub == nil {
		s.basePub = logging.NopPublisher()
	}
	if s.logger == nil {
		s.logger = telemetry.LoggerFunc(nil)
	}
	if s.metrics == nil {
		s.metrics = telemetry.NopMetrics()
	}
	if s.sinks == nil {
		s.sinks = render.NewRegistry(s.logger)
	}
	s.newSession()
	s.storeGauges()
	return s
}

// Observe registers an observer. Call before the dispatch loop starts.
func (s *Synchronizer) Observe(o Observer) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

// Status reports the current counters.
func (s *Synchronizer) Status() Status {
	return Status{
		State:    s.state,
		Tick:     s.tick,
		Received: s.received,
		Lag:      s.lag(),
		Rate:     s.rate,
		MaxRate:  s.cfg.MaxRate,
		Session:  s.session,
	}
}

func (s *Synchronizer) State() State  { return s.state }
func (s *Synchronizer) Tick() uint64  { return s.tick }
func (s *Synchronizer) Rate() float64 { return s.rate }

// TimerC is the active ticker channel, or nil when no timer is installed.
func (s *Synchronizer) TimerC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C()
}

// OnTimer handles one periodic timer firing.
func (s *Synchronizer) OnTimer() {
	if s.state != StateRunning {
		return
	}
	s.Step()
}

// Step issues a request for the next tick and returns it. It is a no-op once
// the peer has ended the run.
func (s *Synchronizer) Step() uint64 {
	if s.state == StateFinished {
		return s.tick
	}
	s.tick++
	s.metrics.Add(metricTicksIssued, 1)
	s.send(proto.GetStep{Step: s.tick})
	s.storeGauges()
	s.notify(NotifyTick)
	return s.tick
}

// Start installs the periodic timer at rate and enters Running. Calling it
// while Running replaces the timer.
func (s *Synchronizer) Start(rate float64) {
	if s.state == StateFinished {
		return
	}
	previous := s.rate
	s.rate = s.clampRate(rate)
	s.installTicker()
	s.transition(StateRunning)
	if s.rate != previous {
		s.storeGauges()
		s.notify(NotifyRate)
	}
}

// Play starts at the current rate.
func (s *Synchronizer) Play() {
	s.Start(s.rate)
}

// Stop cancels the timer. Running becomes Paused; other states are unchanged.
func (s *Synchronizer) Stop() {
	s.cancelTicker()
	if s.state == StateRunning {
		s.transition(StatePaused)
	}
}

// Toggle flips between Running and Paused.
func (s *Synchronizer) Toggle() {
	if s.state == StateRunning {
		s.Stop()
		return
	}
	s.Play()
}

// Reset zeroes the counters, clears Finished, restores the default rate,
// asks the peer to reset and pre-fetches tick 1.
func (s *Synchronizer) Reset() uint64 {
	s.tick = 0
	s.received = 0
	if s.state == StateFinished {
		s.transition(StatePaused)
	}
	s.setRate(s.cfg.DefaultRate)
	s.sinks.Reset()
	s.newSession()
	s.send(proto.Reset{})
	loggingPlayback.Reset(context.Background(), s.pub, 0, loggingPlayback.ResetPayload{Rate: s.rate})
	s.notify(NotifyReset)
	return s.Step()
}

// ChangeRate clamps rate to [MinRate, MaxRate] and, when Running, restarts
// the timer at the new interval. Ignored once Finished.
func (s *Synchronizer) ChangeRate(rate float64) {
	if s.state == StateFinished {
		return
	}
	previous := s.rate
	s.setRate(rate)
	if s.rate != previous {
		loggingPlayback.RateChanged(context.Background(), s.pub, s.tick, loggingPlayback.RatePayload{Previous: previous, Rate: s.rate})
	}
}

// OnFrameReceived counts a snapshot, lowers the rate when lag exceeds the
// threshold and forwards the snapshot to the render sinks.
func (s *Synchronizer) OnFrameReceived(frame proto.Frame) {
	if s.received >= s.tick {
		s.metrics.Add(metricFramesDiscarded, 1)
		loggingPlayback.FrameDiscarded(context.Background(), s.pub, s.tick, loggingPlayback.FramePayload{Received: s.received})
		return
	}
	s.received++
	s.metrics.Add(metricFramesReceived, 1)

	if lag := s.lag(); lag > LagThreshold && s.state != StateFinished {
		previous := s.rate
		s.setRate(s.rate - RateDecrement)
		s.metrics.Add(metricThrottles, 1)
		s.logger.Printf("[backpressure] %d frames behind, rate %.2f -> %.2f", lag, previous, s.rate)
		loggingPlayback.RateThrottled(context.Background(), s.pub, s.tick, loggingPlayback.RatePayload{Previous: previous, Rate: s.rate, Lag: lag})
	}

	s.storeGauges()
	s.sinks.Dispatch(s.received, frame)
	s.notify(NotifyFrame)
}

// OnEnd marks the run finished and cancels the timer.
func (s *Synchronizer) OnEnd() {
	if s.state == StateFinished {
		return
	}
	s.cancelTicker()
	s.transition(StateFinished)
}

// OnSchemaReceived replaces the parameter set and then resets playback.
func (s *Synchronizer) OnSchemaReceived(schema proto.Schema) {
	accepted := 0
	if s.params != nil {
		accepted = s.params.Replace(schema)
	}
	loggingPlayback.SchemaReplaced(context.Background(), s.pub, s.tick, loggingPlayback.SchemaPayload{Accepted: accepted, Ignored: schema.Ignored})
	s.notify(NotifySchema)
	s.Reset()
}

// SubmitParam forwards an operator edit to the peer.
func (s *Synchronizer) SubmitParam(key string, value proto.Value) {
	if s.params == nil {
		s.send(proto.SubmitParams{Param: key, Value: value})
		return
	}
	if err := s.params.Submit(key, value); err != nil {
		s.reportSendFailure(proto.TypeSubmitParams, err)
		return
	}
	loggingPlayback.ParamSubmitted(context.Background(), s.pub, s.tick, loggingPlayback.ParamPayload{Param: key, Value: value.Interface()})
}

// HandleMessage dispatches one raw inbound payload.
func (s *Synchronizer) HandleMessage(payload []byte) {
	msg, err := proto.DecodeInbound(payload)
	if err != nil {
		var unknown *proto.UnknownTypeError
		if errors.As(err, &unknown) {
			s.metrics.Add(metricUnknownMessages, 1)
			s.logger.Printf("discarding unexpected message type %q", unknown.Type)
			loggingPlayback.UnknownMessage(context.Background(), s.pub, s.tick, loggingPlayback.UnknownMessagePayload{MessageType: unknown.Type})
			return
		}
		s.logger.Printf("discarding malformed peer message: %v", err)
		loggingNetwork.MalformedMessage(context.Background(), s.pub, loggingNetwork.MalformedPayload{Error: err.Error(), Size: len(payload)})
		return
	}
	s.Dispatch(msg)
}

// Dispatch applies one decoded inbound message.
func (s *Synchronizer) Dispatch(msg proto.Inbound) {
	switch msg.Type {
	case proto.TypeVizState:
		if msg.Frame != nil {
			s.OnFrameReceived(*msg.Frame)
		}
	case proto.TypeEnd:
		s.OnEnd()
	case proto.TypeModelParams:
		if msg.Schema != nil {
			s.OnSchemaReceived(*msg.Schema)
		}
	default:
		s.metrics.Add(metricUnknownMessages, 1)
		s.logger.Printf("discarding unexpected message type %q", msg.Type)
		loggingPlayback.UnknownMessage(context.Background(), s.pub, s.tick, loggingPlayback.UnknownMessagePayload{MessageType: msg.Type})
	}
}

// Shutdown cancels the timer without changing state.
func (s *Synchronizer) Shutdown() {
	s.cancelTicker()
}

func (s *Synchronizer) setRate(rate float64) {
	clamped := s.clampRate(rate)
	if clamped == s.rate {
		return
	}
	s.rate = clamped
	if s.state == StateRunning {
		s.installTicker()
	}
	s.storeGauges()
	s.notify(NotifyRate)
}

func (s *Synchronizer) clampRate(rate float64) float64 {
	if math.IsNaN(rate) || rate < MinRate {
		return MinRate
	}
	if rate > s.cfg.MaxRate {
		return s.cfg.MaxRate
	}
	return rate
}

// installTicker always tears down the previous timer first.
func (s *Synchronizer) installTicker() {
	s.cancelTicker()
	s.ticker = s.clock.NewTicker(intervalFor(s.rate))
}

func (s *Synchronizer) cancelTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
}

func (s *Synchronizer) transition(next State) {
	if s.state == next {
		return
	}
	previous := s.state
	s.state = next
	loggingPlayback.StateChanged(context.Background(), s.pub, s.tick, loggingPlayback.StateChangedPayload{From: previous.String(), To: next.String()})
	s.notify(NotifyState)
}

func (s *Synchronizer) lag() uint64 {
	if s.received >= s.tick {
		return 0
	}
	return s.tick - s.received
}

func (s *Synchronizer) send(msg proto.Outbound) {
	if s.channel == nil {
		s.reportSendFailure(msg.MessageType(), errNoChannel)
		return
	}
	if err := s.channel.Send(msg); err != nil {
		s.reportSendFailure(msg.MessageType(), err)
	}
}

func (s *Synchronizer) reportSendFailure(messageType string, err error) {
	s.metrics.Add(metricSendFailures, 1)
	s.logger.Printf("failed to send %s: %v", messageType, err)
	loggingNetwork.SendFailed(context.Background(), s.pub, loggingNetwork.SendFailedPayload{MessageType: messageType, Error: err.Error()})
}

func (s *Synchronizer) newSession() {
	s.session = uuid.NewString()
	s.pub = logging.WithTrace(s.basePub, s.session)
}

func (s *Synchronizer) storeGauges() {
	s.metrics.Store(metricLag, s.lag())
	s.metrics.Store(metricRateMilliHz, uint64(math.Round(s.rate*1000)))
}

func (s *Synchronizer) notify(kind NotificationKind) {
	if len(s.observers) == 0 {
		return
	}
	n := Notification{Kind: kind, Status: s.Status()}
	for _, o := range s.observers {
		o.Notify(n)
	}
}
