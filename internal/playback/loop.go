package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"simdash/internal/proto"
)

// ErrPeerClosed is returned by Loop.Run when the inbound stream ends.
var ErrPeerClosed = errors.New("simulation peer closed the channel")

// CommandType enumerates operator commands.
type CommandType string

const (
	CommandPlay   CommandType = "play"
	CommandPause  CommandType = "pause"
	CommandToggle CommandType = "toggle"
	CommandStep   CommandType = "step"
	CommandReset  CommandType = "reset"
	CommandRate   CommandType = "rate"
	CommandParam  CommandType = "param"
)

// Command is an operator action queued for the dispatch goroutine.
type Command struct {
	Type  CommandType
	Rate  float64
	Param string
	Value proto.Value
}

// Validate checks the fields each command type needs.
func (c Command) Validate() error {
	switch c.Type {
	case CommandPlay, CommandPause, CommandToggle, CommandStep, CommandReset:
		return nil
	case CommandRate:
		// Out of range rates are clamped by ChangeRate.
		if math.IsNaN(c.Rate) {
			return fmt.Errorf("rate command requires a numeric rate")
		}
		return nil
	case CommandParam:
		if c.Param == "" || c.Value.IsZero() {
			return fmt.Errorf("param command requires param and value")
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", c.Type)
	}
}

// Loop is the single dispatch context: it owns the Synchronizer and serialises
// timer firings, inbound peer messages and operator commands.
type Loop struct {
	sync     *Synchronizer
	inbound  <-chan []byte
	commands chan Command
	status   atomic.Pointer[Status]
}

// NewLoop wires a loop around s reading raw peer payloads from inbound.
func NewLoop(s *Synchronizer, inbound <-chan []byte, commandBuffer int) *Loop {
	if commandBuffer <= 0 {
		commandBuffer = 64
	}
	l := &Loop{
		sync:     s,
		inbound:  inbound,
		commands: make(chan Command, commandBuffer),
	}
	l.publishStatus(s.Status())
	s.Observe(ObserverFunc(func(n Notification) {
		l.publishStatus(n.Status)
	}))
	return l
}

// Submit queues a command without blocking. Invalid commands and a full queue
// are rejected.
func (l *Loop) Submit(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	select {
	case l.commands <- cmd:
		return nil
	default:
		return errors.New("command queue full")
	}
}

// Status returns the latest published status; safe from any goroutine.
func (l *Loop) Status() Status {
	return *l.status.Load()
}

// Run processes events until ctx is cancelled or the peer channel closes.
func (l *Loop) Run(ctx context.Context) error {
	defer l.sync.Shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.sync.TimerC():
			l.sync.OnTimer()
		case payload, ok := <-l.inbound:
			if !ok {
				l.sync.Stop()
				return ErrPeerClosed
			}
			l.sync.HandleMessage(payload)
		case cmd := <-l.commands:
			l.apply(cmd)
		}
	}
}

func (l *Loop) apply(cmd Command) {
	switch cmd.Type {
	case CommandPlay:
		l.sync.Play()
	case CommandPause:
		l.sync.Stop()
	case CommandToggle:
		l.sync.Toggle()
	case CommandStep:
		l.sync.Step()
	case CommandReset:
		l.sync.Reset()
	case CommandRate:
		l.sync.ChangeRate(cmd.Rate)
	case CommandParam:
		l.sync.SubmitParam(cmd.Param, cmd.Value)
	}
}

func (l *Loop) publishStatus(status Status) {
	l.status.Store(&status)
}
