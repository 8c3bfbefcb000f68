package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/nimbusgate/core/internal/broadcast"
	"github.com/nimbusgate/core/internal/ctxutil"
	"github.com/nimbusgate/core/internal/interface/http/problem"
)

// maxSubscriptionsPerConnection bounds per-connection fan-in.
const maxSubscriptionsPerConnection = 32

// Destination prefixes, STOMP-style: /topic/... to subscribe, /app/... to
// publish application frames.
const (
	topicDestinationPrefix = "/topic/"
	appDestinationPrefix   = "/app/"
)

// wsCommand is one inbound client message.
type wsCommand struct {
	Command     string          `json:"command"` // SUBSCRIBE | UNSUBSCRIBE | SEND
	Destination string          `json:"destination"`
	FrameType   string          `json:"type,omitempty"`
	Payload     map[string]any  `json:"payload,omitempty"`
}

// wsError is sent to the client on protocol violations.
type wsError struct {
	Error       string `json:"error"`
	Destination string `json:"destination,omitempty"`
}

// BroadcastWSHandler bridges WebSocket clients onto the broadcast hub.
type BroadcastWSHandler struct {
	hub *broadcast.Hub
}

// NewBroadcastWSHandler builds a BroadcastWSHandler.
func NewBroadcastWSHandler(hub *broadcast.Hub) *BroadcastWSHandler {
	return &BroadcastWSHandler{hub: hub}
}

// destinationTopic strips a destination prefix down to the hub topic.
func destinationTopic(destination, prefix string) (string, bool) {
	if !strings.HasPrefix(destination, prefix) {
		return "", false
	}
	topic := strings.TrimPrefix(destination, prefix)
	return topic, broadcast.ValidTopic(topic)
}

// ServeHTTP upgrades the connection and speaks the subscribe/publish
// protocol until the client goes away.
func (h *BroadcastWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := ctxutil.PrincipalFromContext(r.Context())
	if !ok {
		problem.Write(w, http.StatusUnauthorized, "Valid JWT token required", r.URL.Path)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		writeMu sync.Mutex
		subsMu  sync.Mutex
		subs    = map[string]*broadcast.Subscription{}
	)
	defer func() {
		subsMu.Lock()
		for _, sub := range subs {
			sub.Close()
		}
		subsMu.Unlock()
	}()

	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return wsjson.Write(ctx, conn, v)
	}

	for {
		var cmd wsCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return
		}

		switch cmd.Command {
		case "SUBSCRIBE":
			topic, ok := destinationTopic(cmd.Destination, topicDestinationPrefix)
			if !ok {
				_ = send(wsError{Error: "invalid destination", Destination: cmd.Destination})
				continue
			}
			subsMu.Lock()
			_, already := subs[topic]
			tooMany := len(subs) >= maxSubscriptionsPerConnection
			subsMu.Unlock()
			if already {
				continue
			}
			if tooMany {
				_ = send(wsError{Error: "subscription limit reached", Destination: cmd.Destination})
				continue
			}

			sub, err := h.hub.Subscribe(ctx, topic)
			if err != nil {
				_ = send(wsError{Error: "subscribe failed", Destination: cmd.Destination})
				continue
			}
			subsMu.Lock()
			subs[topic] = sub
			subsMu.Unlock()

			// One pump per subscription; the shared write mutex keeps frame
			// writes whole, and per-topic order is preserved end to end.
			go func() {
				for frame := range sub.Frames() {
					if err := send(frame); err != nil {
						cancel()
						return
					}
				}
			}()

		case "UNSUBSCRIBE":
			topic, ok := destinationTopic(cmd.Destination, topicDestinationPrefix)
			if !ok {
				continue
			}
			subsMu.Lock()
			if sub, found := subs[topic]; found {
				sub.Close()
				delete(subs, topic)
			}
			subsMu.Unlock()

		case "SEND":
			topic, ok := destinationTopic(cmd.Destination, appDestinationPrefix)
			if !ok {
				_ = send(wsError{Error: "invalid destination", Destination: cmd.Destination})
				continue
			}
			subsMu.Lock()
			origin := subs[topic]
			subsMu.Unlock()

			frameType := broadcast.FrameType(cmd.FrameType)
			if err := h.hub.Publish(ctx, origin, principal, topic, frameType, cmd.Payload); err != nil {
				_ = send(wsError{Error: "publish failed", Destination: cmd.Destination})
			}

		default:
			_ = send(wsError{Error: "unknown command: " + cmd.Command})
		}
	}
}
