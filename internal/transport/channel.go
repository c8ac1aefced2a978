// Package transport carries protocol messages between the dashboard and the
// simulation peer over a websocket. Sends are fire-and-forget and inbound
// payloads are handed over raw; decoding belongs to the consumer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"simdash/internal/proto"
	"simdash/internal/telemetry"
	"simdash/logging"
	loggingNetwork "simdash/logging/network"
)

// ErrClosed is returned by Send once the channel has shut down.
var ErrClosed = errors.New("transport: channel closed")

const (
	metricMessagesSent     = "transport_messages_sent_total"
	metricMessagesReceived = "transport_messages_received_total"
	metricBytesSent        = "transport_bytes_sent_total"
	metricBytesReceived    = "transport_bytes_received_total"
)

// Options configure a peer channel. Zero values are usable.
type Options struct {
	Dialer        *websocket.Dialer
	Header        http.Header
	InboundBuffer int
	// WriteTimeout bounds a single socket write. Zero disables the deadline.
	WriteTimeout time.Duration
	Logger       telemetry.Logger
	Publisher    logging.Publisher
	Metrics      telemetry.Metrics
}

// Channel is a connected websocket to the simulation peer.
type Channel struct {
	url     string
	conn    *websocket.Conn
	opts    Options
	inbound chan []byte
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the peer at url and starts the read pump.
func Dial(ctx context.Context, url string, opts Options) (*Channel, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newChannel(url, conn, opts), nil
}

func newChannel(url string, conn *websocket.Conn, opts Options) *Channel {
	if opts.InboundBuffer <= 0 {
		opts.InboundBuffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.LoggerFunc(nil)
	}
	if opts.Publisher == nil {
		opts.Publisher = logging.NopPublisher()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NopMetrics()
	}
	c := &Channel{
		url:     url,
		conn:    conn,
		opts:    opts,
		inbound: make(chan []byte, opts.InboundBuffer),
		done:    make(chan struct{}),
	}
	opts.Logger.Printf("[transport] connected to %s", url)
	loggingNetwork.PeerConnected(context.Background(), opts.Publisher, loggingNetwork.PeerPayload{URL: url})
	go c.readPump()
	return c
}

// URL is the peer address.
func (c *Channel) URL() string { return c.url }

// Inbound yields raw peer payloads. It is closed when the connection ends.
func (c *Channel) Inbound() <-chan []byte { return c.inbound }

// Done is closed once the channel has shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err reports why the channel closed, or nil while it is open or after a
// local Close.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send encodes msg and writes it as one text frame. There is no
// acknowledgement; an error means the message is lost.
func (c *Channel) Send(msg proto.Outbound) error {
	data, err := proto.EncodeOutbound(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.MessageType(), err)
	}
	c.opts.Metrics.Add(metricMessagesSent, 1)
	c.opts.Metrics.Add(metricBytesSent, uint64(len(data)))
	return nil
}

// Close sends a normal closure frame and tears the connection down.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readPump() {
	defer close(c.inbound)
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		c.opts.Metrics.Add(metricMessagesReceived, 1)
		c.opts.Metrics.Add(metricBytesReceived, uint64(len(payload)))
		select {
		case c.inbound <- payload:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) finish(err error) {
	select {
	case <-c.done:
		// Closed locally; the read error is the expected teardown.
		return
	default:
	}
	reason := err.Error()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		reason = "peer closed"
	} else {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
	}
	c.opts.Logger.Printf("[transport] connection to %s ended: %s", c.url, reason)
	loggingNetwork.PeerDisconnected(context.Background(), c.opts.Publisher, loggingNetwork.PeerPayload{URL: c.url, Reason: reason})
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
