package proxy

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/nimbusgate/core/internal/gateway/route"
	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
)

// maxWebSocketMessageBytes bounds a single relayed frame, guarding against
// unbounded memory growth from a misbehaving peer.
const maxWebSocketMessageBytes = 32 << 20 // 32MiB

// IsUpgradeRequest reports whether req is requesting a WebSocket upgrade,
// an incoming request presenting an "Upgrade: websocket
// header."
func IsUpgradeRequest(req *http.Request) bool {
	return httpHeaderContainsFold(req.Header.Values("Upgrade"), "websocket")
}

func httpHeaderContainsFold(values []string, want string) bool {
	for _, v := range values {
		if eqFold(v, want) {
			return true
		}
	}
	return false
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// RelayWebSocket upgrades the client connection, opens a matching upstream
// WebSocket to the matched route's target, and bidirectionally relays
// frames until either side closes. Each direction runs in its own
// goroutine reading-then-writing synchronously, so a slow writer on one
// side naturally back-pressures that direction's own reads without an
// unbounded buffer; the first direction to fail cancels the other.
func (p *Proxy) RelayWebSocket(w http.ResponseWriter, req *http.Request, matched route.Route, rewrittenPath string) error {
	clientConn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return domainerrors.NewDomainWithCause(domainerrors.CodeUpstreamError, "websocket upgrade failed", err)
	}
	clientConn.SetReadLimit(maxWebSocketMessageBytes)
	defer clientConn.CloseNow()

	upstreamURL := wsURL(matched.Target, rewrittenPath, req.URL.RawQuery)
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	upstreamConn, _, err := websocket.Dial(ctx, upstreamURL, nil)
	if err != nil {
		_ = clientConn.Close(websocket.StatusInternalError, "upstream dial failed")
		return domainerrors.NewDomainWithCause(domainerrors.CodeUpstreamError, "upstream websocket dial failed", err)
	}
	upstreamConn.SetReadLimit(maxWebSocketMessageBytes)
	defer upstreamConn.CloseNow()

	errCh := make(chan error, 2)
	go relay(ctx, cancel, clientConn, upstreamConn, errCh)
	go relay(ctx, cancel, upstreamConn, clientConn, errCh)

	// Wait for one direction to finish; the cancel() in relay propagates to
	// the other so this never blocks past the first side closing.
	relayErr := <-errCh
	if relayErr != nil && websocket.CloseStatus(relayErr) == -1 {
		return domainerrors.NewDomainWithCause(domainerrors.CodeUpstreamError, "websocket relay failed", relayErr)
	}
	return nil
}

// relay copies frames from src to dst until ctx is cancelled or either side
// errors, then cancels ctx so its partner goroutine unwinds too.
func relay(ctx context.Context, cancel context.CancelFunc, src, dst *websocket.Conn, errCh chan<- error) {
	defer cancel()
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if err := dst.Write(ctx, typ, data); err != nil {
			errCh <- err
			return
		}
	}
}

func wsURL(target, path, rawQuery string) string {
	scheme := "ws"
	rest := target
	switch {
	case hasPrefixFold(target, "https://"):
		scheme = "wss"
		rest = target[len("https://"):]
	case hasPrefixFold(target, "http://"):
		rest = target[len("http://"):]
	}
	url := scheme + "://" + rest + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	return url
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return eqFold(s[:len(prefix)], prefix)
}
