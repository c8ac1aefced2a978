package simpeer

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"simdash/internal/proto"
	"simdash/internal/telemetry"
	"simdash/logging"
	loggingNetwork "simdash/logging/network"
)

const writeWait = 5 * time.Second

type ServerConfig struct {
	World  WorldConfig
	Logger telemetry.Logger
	// Publisher receives connection events.
	Publisher logging.Publisher
}

// Server runs one independent world per websocket session.
type Server struct {
	world    WorldConfig
	logger   telemetry.Logger
	pub      logging.Publisher
	upgrader websocket.Upgrader
	sessions atomic.Int64
	wg       sync.WaitGroup
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		world:  cfg.World,
		logger: cfg.Logger,
		pub:    cfg.Publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if s.logger == nil {
		s.logger = telemetry.LoggerFunc(nil)
	}
	if s.pub == nil {
		s.pub = logging.NopPublisher()
	}
	return s
}

// Handler mounts the peer at /ws plus a /health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", s.ServeWS)
	return mux
}

// Sessions reports the number of connected clients.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

// Wait blocks until every session goroutine has returned.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[simpeer] upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	sess := &session{
		server:  s,
		conn:    conn,
		remote:  r.RemoteAddr,
		cfg:     s.world,
		pending: make(map[string]proto.Value),
	}
	sess.world = NewWorld(sess.cfg)
	loggingNetwork.PeerConnected(r.Context(), s.pub, loggingNetwork.PeerPayload{URL: r.RemoteAddr})
	reason := sess.run()
	loggingNetwork.PeerDisconnected(context.Background(), s.pub, loggingNetwork.PeerPayload{URL: r.RemoteAddr, Reason: reason})
}

type session struct {
	server  *Server
	conn    *websocket.Conn
	remote  string
	cfg     WorldConfig
	world   *World
	pending map[string]proto.Value
	ended   bool
}

func (s *session) run() string {
	defer s.conn.Close()

	schema, err := proto.EncodeModelParams(Schema(s.cfg))
	if err != nil {
		s.server.logger.Printf("[simpeer] failed to encode parameter schema: %v", err)
		return err.Error()
	}
	if err := s.write(schema); err != nil {
		return err.Error()
	}

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "closed"
			}
			return err.Error()
		}
		msg, err := proto.DecodeOutbound(payload)
		if err != nil {
			var unknown *proto.UnknownTypeError
			if errors.As(err, &unknown) {
				s.server.logger.Printf("[simpeer] %s sent unexpected message type %q", s.remote, unknown.Type)
			} else {
				s.server.logger.Printf("[simpeer] discarding malformed message from %s: %v", s.remote, err)
			}
			continue
		}
		if err := s.handle(msg); err != nil {
			return err.Error()
		}
	}
}

func (s *session) handle(msg proto.Outbound) error {
	switch m := msg.(type) {
	case proto.GetStep:
		return s.handleStep(m.Step)
	case proto.Reset:
		s.reset()
		return nil
	case proto.SubmitParams:
		s.pending[m.Param] = m.Value
		return nil
	default:
		return nil
	}
}

// handleStep advances the world up to the requested step and replies with
// its snapshot. Requests for steps already simulated replay the current
// snapshot. Once the step limit is hit the session answers with end.
func (s *session) handleStep(step uint64) error {
	if s.world.Finished() {
		if s.ended {
			return nil
		}
		s.ended = true
		data, err := proto.EncodeEnd()
		if err != nil {
			return err
		}
		return s.write(data)
	}
	for s.world.Step() < step && !s.world.Finished() {
		s.world.Advance()
	}
	data, err := proto.EncodeVizState(s.world.Snapshot())
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *session) reset() {
	if len(s.pending) > 0 {
		next, ignored := Apply(s.cfg, s.pending)
		if len(ignored) > 0 {
			sort.Strings(ignored)
			s.server.logger.Printf("[simpeer] ignoring parameters %v", ignored)
		}
		s.cfg = next
		s.pending = make(map[string]proto.Value)
	}
	s.world = NewWorld(s.cfg)
	s.ended = false
}

func (s *session) write(data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
