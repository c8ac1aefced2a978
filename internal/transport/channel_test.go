package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"simdash/internal/proto"
	"simdash/internal/telemetry"
	"simdash/logging"
	loggingNetwork "simdash/logging/network"
	"simdash/logging/sinks"
)

type peerConn struct {
	conn *websocket.Conn
}

func startPeer(t *testing.T) (string, <-chan *peerConn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conns := make(chan *peerConn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conns <- &peerConn{conn: conn}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func acceptPeer(t *testing.T, conns <-chan *peerConn) *peerConn {
	t.Helper()
	select {
	case peer := <-conns:
		t.Cleanup(func() { peer.conn.Close() })
		return peer
	case <-time.After(2 * time.Second):
		t.Fatalf("peer never accepted a connection")
		return nil
	}
}

func receive(t *testing.T, ch *Channel) []byte {
	t.Helper()
	select {
	case payload, ok := <-ch.Inbound():
		if !ok {
			t.Fatalf("inbound closed unexpectedly")
		}
		return payload
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound payload")
		return nil
	}
}

func TestDialSendAndReceive(t *testing.T) {
	url, conns := startPeer(t)
	memory := sinks.NewMemorySink()
	metrics := telemetry.NewCounters()
	ch, err := Dial(context.Background(), url, Options{
		Publisher: logging.PublisherFunc(func(_ context.Context, event logging.Event) { memory.Write(event) }),
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	peer := acceptPeer(t, conns)

	if err := ch.Send(proto.GetStep{Step: 7}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	_, payload, err := peer.conn.ReadMessage()
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	msg, err := proto.DecodeOutbound(payload)
	if err != nil {
		t.Fatalf("peer decode failed: %v", err)
	}
	if step, ok := msg.(proto.GetStep); !ok || step.Step != 7 {
		t.Fatalf("expected get_step 7, got %#v", msg)
	}

	frame, err := proto.EncodeVizState([]int{1, 2})
	if err != nil {
		t.Fatalf("encode viz_state: %v", err)
	}
	if err := peer.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}
	if got := receive(t, ch); string(got) != string(frame) {
		t.Fatalf("expected %s, got %s", frame, got)
	}

	if metrics.Get(metricMessagesSent) != 1 || metrics.Get(metricMessagesReceived) != 1 {
		t.Fatalf("unexpected counters %v", metrics.Snapshot())
	}
	if got := len(memory.EventsOfType(loggingNetwork.EventPeerConnected)); got != 1 {
		t.Fatalf("expected connected event, got %d", got)
	}
}

func TestPeerCloseEndsInbound(t *testing.T) {
	url, conns := startPeer(t)
	memory := sinks.NewMemorySink()
	ch, err := Dial(context.Background(), url, Options{
		Publisher: logging.PublisherFunc(func(_ context.Context, event logging.Event) { memory.Write(event) }),
	})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	peer := acceptPeer(t, conns)

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := peer.conn.WriteMessage(websocket.CloseMessage, message); err != nil {
		t.Fatalf("peer close failed: %v", err)
	}

	select {
	case _, ok := <-ch.Inbound():
		if ok {
			t.Fatalf("expected inbound to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound never closed")
	}
	<-ch.Done()
	if ch.Err() != nil {
		t.Fatalf("normal closure must not be an error, got %v", ch.Err())
	}
	if err := ch.Send(proto.Reset{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after peer close, got %v", err)
	}
	if got := len(memory.EventsOfType(loggingNetwork.EventPeerDisconnected)); got != 1 {
		t.Fatalf("expected disconnected event, got %d", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	url, conns := startPeer(t)
	ch, err := Dial(context.Background(), url, Options{})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	acceptPeer(t, conns)

	ch.Close()
	ch.Close()
	if err := ch.Send(proto.GetStep{Step: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	select {
	case <-ch.Done():
	default:
		t.Fatalf("expected done to be closed")
	}
}

func TestDialFailureIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, url, Options{}); err == nil || !strings.Contains(err.Error(), "dial ") {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}
