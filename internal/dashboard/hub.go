// Package dashboard exposes playback to operator UIs: an HTTP control surface
// and a websocket feed of status changes and frames.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"simdash/internal/playback"
	"simdash/internal/proto"
	"simdash/internal/render"
	"simdash/internal/telemetry"
	"simdash/logging"
	loggingNetwork "simdash/logging/network"
)

const (
	writeWait        = 5 * time.Second
	clientSendBuffer = 64

	metricClientsJoined  = "dashboard_clients_joined_total"
	metricMessagesQueued = "dashboard_messages_queued_total"
	metricMessagesDrops  = "dashboard_messages_dropped_total"
	metricCommands       = "dashboard_commands_total"
	metricCommandsFailed = "dashboard_commands_rejected_total"
)

// Controller accepts operator commands for the dispatch loop.
type Controller interface {
	Submit(playback.Command) error
	Status() playback.Status
}

// ParamSource lists the current parameter descriptors and the values last
// submitted against them.
type ParamSource interface {
	Descriptors() []proto.Descriptor
	Submitted() map[string]proto.Value
}

type HubConfig struct {
	Controller Controller
	Params     ParamSource
	Logger     telemetry.Logger
	Publisher  logging.Publisher
	Metrics    telemetry.Metrics
}

// Hub tracks operator websocket clients. It is a playback observer and a
// whole-frame render sink; both paths only enqueue, so the dispatch
// goroutine never waits on a slow browser.
type Hub struct {
	controller Controller
	params     ParamSource
	logger     telemetry.Logger
	pub        logging.Publisher
	metrics    telemetry.Metrics
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

type client struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		controller: cfg.Controller,
		params:     cfg.Params,
		logger:     cfg.Logger,
		pub:        cfg.Publisher,
		metrics:    cfg.Metrics,
		clients:    make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if h.logger == nil {
		h.logger = telemetry.LoggerFunc(nil)
	}
	if h.pub == nil {
		h.pub = logging.NopPublisher()
	}
	if h.metrics == nil {
		h.metrics = telemetry.NopMetrics()
	}
	return h
}

// Notify broadcasts a status update. A schema change also pushes the new
// parameter list.
func (h *Hub) Notify(n playback.Notification) {
	h.broadcastJSON(statusMessage{Type: "status", Kind: string(n.Kind), Status: n.Status})
	if n.Kind == playback.NotifySchema {
		h.broadcastJSON(h.paramsMessage())
	}
}

// Render forwards a frame to every client.
func (h *Hub) Render(slice render.Slice) {
	h.broadcastJSON(frameMessage{Type: "frame", Frame: slice.Frame, Data: slice.Data})
}

// Reset tells clients to clear their visual state.
func (h *Hub) Reset() {
	h.broadcastJSON(struct {
		Type string `json:"type"`
	}{Type: "reset"})
}

// ClientIDs lists connected clients in sorted order.
func (h *Hub) ClientIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ServeWS upgrades an operator connection and runs its session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[dashboard] upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	c := &client{
		id:     uuid.NewString(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}
	if !h.register(c) {
		message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "dashboard shutting down")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	h.enqueueJSON(c, welcomeMessage{Type: "welcome", ClientID: c.id})
	if h.controller != nil {
		h.enqueueJSON(c, statusMessage{Type: "status", Status: h.controller.Status()})
	}
	h.enqueueJSON(c, h.paramsMessage())

	go h.writePump(c)
	h.readLoop(c)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.metrics.Add(metricClientsJoined, 1)
	h.logger.Printf("[dashboard] client %s joined from %s", c.id, c.remote)
	loggingNetwork.DashboardJoined(context.Background(), h.pub, loggingNetwork.DashboardPayload{ClientID: c.id, Remote: c.remote})
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.stop()
	if !ok {
		return
	}
	h.logger.Printf("[dashboard] client %s left", c.id)
	loggingNetwork.DashboardLeft(context.Background(), h.pub, loggingNetwork.DashboardPayload{ClientID: c.id, Remote: c.remote})
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := h.submit(payload); err != nil {
			h.enqueueJSON(c, errorMessage{Type: "error", Error: err.Error()})
		}
	}
}

func (h *Hub) writePump(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// submit decodes one control request and queues it on the dispatch loop.
func (h *Hub) submit(payload []byte) error {
	cmd, err := decodeControl(payload)
	if err == nil {
		err = h.dispatch(cmd)
	}
	if err != nil {
		h.metrics.Add(metricCommandsFailed, 1)
		return err
	}
	h.metrics.Add(metricCommands, 1)
	return nil
}

func (h *Hub) dispatch(cmd playback.Command) error {
	if h.controller == nil {
		return errNoController
	}
	return h.controller.Submit(cmd)
}

func (h *Hub) paramsMessage() paramsMessage {
	msg := paramsMessage{Type: "params", Params: []proto.Descriptor{}}
	if h.params != nil {
		msg.Params = h.params.Descriptors()
		msg.Submitted = h.params.Submitted()
	}
	return msg
}

func (h *Hub) broadcastJSON(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("[dashboard] failed to encode broadcast: %v", err)
		return
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.enqueue(c, data)
	}
}

func (h *Hub) enqueueJSON(c *client, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("[dashboard] failed to encode message for %s: %v", c.id, err)
		return
	}
	h.enqueue(c, data)
}

// enqueue never blocks; a client that cannot keep up loses messages.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
		h.metrics.Add(metricMessagesQueued, 1)
	default:
		h.metrics.Add(metricMessagesDrops, 1)
	}
}
