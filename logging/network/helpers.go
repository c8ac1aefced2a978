package network

import (
	"context"

	"simdash/logging"
)

const (
	// EventPeerConnected is emitted once the simulation peer connection is established.
	EventPeerConnected logging.EventType = "network.peer_connected"
	// EventPeerDisconnected is emitted when the simulation peer connection ends.
	EventPeerDisconnected logging.EventType = "network.peer_disconnected"
	// EventSendFailed is emitted when an outbound message could not be written.
	EventSendFailed logging.EventType = "network.send_failed"
	// EventMalformedMessage is emitted when an inbound frame cannot be decoded.
	EventMalformedMessage logging.EventType = "network.malformed_message"
	// EventDashboardJoined is emitted when an operator dashboard attaches.
	EventDashboardJoined logging.EventType = "network.dashboard_joined"
	// EventDashboardLeft is emitted when an operator dashboard detaches.
	EventDashboardLeft logging.EventType = "network.dashboard_left"
)

// PeerPayload identifies the remote endpoint.
type PeerPayload struct {
	URL    string `json:"url"`
	Reason string `json:"reason,omitempty"`
}

// PeerConnected publishes an info event for a new peer connection.
func PeerConnected(ctx context.Context, pub logging.Publisher, payload PeerPayload) {
	publish(ctx, pub, EventPeerConnected, logging.EntityRef{ID: payload.URL, Kind: logging.EntityKindPeer}, logging.SeverityInfo, payload)
}

// PeerDisconnected publishes a warning when the peer connection drops.
func PeerDisconnected(ctx context.Context, pub logging.Publisher, payload PeerPayload) {
	publish(ctx, pub, EventPeerDisconnected, logging.EntityRef{ID: payload.URL, Kind: logging.EntityKindPeer}, logging.SeverityWarn, payload)
}

// SendFailedPayload describes a failed outbound write.
type SendFailedPayload struct {
	MessageType string `json:"messageType"`
	Error       string `json:"error"`
}

// SendFailed publishes a warning for an outbound message that was lost.
func SendFailed(ctx context.Context, pub logging.Publisher, payload SendFailedPayload) {
	publish(ctx, pub, EventSendFailed, logging.EntityRef{Kind: logging.EntityKindPeer}, logging.SeverityWarn, payload)
}

// MalformedPayload carries the decode error.
type MalformedPayload struct {
	Error string `json:"error"`
	Size  int    `json:"size"`
}

// MalformedMessage publishes a warning for an undecodable inbound frame.
func MalformedMessage(ctx context.Context, pub logging.Publisher, payload MalformedPayload) {
	publish(ctx, pub, EventMalformedMessage, logging.EntityRef{Kind: logging.EntityKindPeer}, logging.SeverityWarn, payload)
}

// DashboardPayload identifies an operator session.
type DashboardPayload struct {
	ClientID string `json:"clientId"`
	Remote   string `json:"remote,omitempty"`
}

// DashboardJoined publishes a debug event when an operator dashboard attaches.
func DashboardJoined(ctx context.Context, pub logging.Publisher, payload DashboardPayload) {
	publish(ctx, pub, EventDashboardJoined, logging.EntityRef{ID: payload.ClientID, Kind: logging.EntityKindDashboard}, logging.SeverityDebug, payload)
}

// DashboardLeft publishes a debug event when an operator dashboard detaches.
func DashboardLeft(ctx context.Context, pub logging.Publisher, payload DashboardPayload) {
	publish(ctx, pub, EventDashboardLeft, logging.EntityRef{ID: payload.ClientID, Kind: logging.EntityKindDashboard}, logging.SeverityDebug, payload)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, actor logging.EntityRef, severity logging.Severity, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
