package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/nimbusgate/core/internal/gateway/route"
)

func TestIsUpgradeRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if IsUpgradeRequest(req) {
		t.Error("expected no upgrade detected without header")
	}

	req.Header.Set("Upgrade", "websocket")
	if !IsUpgradeRequest(req) {
		t.Error("expected upgrade detected")
	}

	req.Header.Set("Upgrade", "WebSocket")
	if !IsUpgradeRequest(req) {
		t.Error("expected case-insensitive match")
	}
}

func TestWSURLRewritesScheme(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://hives-service:8080":  "ws://hives-service:8080/hives/1",
		"https://hives-service:8080": "wss://hives-service:8080/hives/1",
	}
	for target, want := range cases {
		got := wsURL(target, "/hives/1", "")
		if got != want {
			t.Errorf("wsURL(%q) = %q, want %q", target, got, want)
		}
	}

	withQuery := wsURL("http://hives-service:8080", "/hives/1", "foo=bar")
	if withQuery != "ws://hives-service:8080/hives/1?foo=bar" {
		t.Errorf("unexpected query-preserving url: %q", withQuery)
	}
}

// upstreamEchoServer accepts a single WebSocket connection and echoes every
// frame it receives back to the caller.
func upstreamEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
}

func TestRelayWebSocketEchoesFrames(t *testing.T) {
	t.Parallel()

	upstream := upstreamEchoServer(t)
	defer upstream.Close()

	p := New(nil, nil, nil)
	gatewayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matched := route.Route{ID: "echo", Target: upstream.URL}
		if err := p.RelayWebSocket(w, r, matched, "/echo"); err != nil {
			t.Errorf("RelayWebSocket: %v", err)
		}
	}))
	defer gatewayServer.Close()

	gatewayWS := "ws://" + strings.TrimPrefix(gatewayServer.URL, "http://")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientConn, _, err := websocket.Dial(ctx, gatewayWS, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientConn.CloseNow()

	if err := clientConn.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	typ, data, err := clientConn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageText || string(data) != "hello" {
		t.Fatalf("expected echoed %q, got %q", "hello", string(data))
	}

	_ = clientConn.Close(websocket.StatusNormalClosure, "")
}
