package notify

import (
	"context"

	"github.com/baswilson/navsite/internal/ws"
)

// WebSocketNotifier broadcasts changes to connected browsers
type WebSocketNotifier struct {
	hub *ws.Hub
}

// NewWebSocketNotifier creates a WebSocket notifier
func NewWebSocketNotifier(hub *ws.Hub) *WebSocketNotifier {
	return &WebSocketNotifier{hub: hub}
}

// Changed broadcasts a "changed" message for entity
func (n *WebSocketNotifier) Changed(ctx context.Context, entity string) error {
	return n.hub.BroadcastMessage(ws.NewChanged(entity))
}

// Type returns the notifier type
func (n *WebSocketNotifier) Type() string {
	return "websocket"
}
