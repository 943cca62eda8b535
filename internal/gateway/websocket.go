package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WebSocketConfig configures a WebSocket-backed Gateway, grounded on the
// same coder/websocket dial-and-wsjson pattern used by the broader
// example pack's streaming TTS provider.
type WebSocketConfig struct {
	URL string

	// Token authenticates the upgrade request, read out-of-band from the
	// environment rather than a CLI flag or config file (§6) so it never
	// appears in an argument vector. Empty disables authentication.
	Token string
}

type wsRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type wsResponse struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
}

// WebSocket is a Gateway backed by a persistent WebSocket connection to a
// remote agent, as an alternative transport to the local Ollama Gateway.
type WebSocket struct {
	url   string
	token string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket constructs a WebSocket-backed Gateway. The connection is
// established lazily on first Send/HealthCheck.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	return &WebSocket{url: cfg.URL, token: cfg.Token}
}

func (w *WebSocket) getConn(ctx context.Context) (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return w.conn, nil
	}

	opts := &websocket.DialOptions{HTTPHeader: bearerHeader(w.token)}

	conn, _, err := websocket.Dial(ctx, w.url, opts)
	if err != nil {
		return nil, fmt.Errorf("gateway: websocket dial failed: %w", err)
	}
	w.conn = conn
	return conn, nil
}

// Send writes a {sessionId, text} request and waits for the matching
// {text, sessionId} reply.
func (w *WebSocket) Send(ctx context.Context, sessionID, text string) (Reply, error) {
	conn, err := w.getConn(ctx)
	if err != nil {
		return Reply{}, err
	}

	req := wsRequest{SessionID: sessionID, Text: text}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		w.closeWithError(conn)
		return Reply{}, fmt.Errorf("gateway: websocket write failed: %w", err)
	}

	var resp wsResponse
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		w.closeWithError(conn)
		return Reply{}, fmt.Errorf("gateway: websocket read failed: %w", err)
	}

	return Reply{Text: resp.Text, SessionID: resp.SessionID}, nil
}

func (w *WebSocket) closeWithError(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	conn.Close(websocket.StatusAbnormalClosure, "gateway i/o error")
	if w.conn == conn {
		w.conn = nil
	}
}

// bearerHeader builds the Authorization header sent with the websocket
// upgrade request when a gateway token is configured (§6), and nil
// otherwise so an unauthenticated server sees no Authorization header at
// all rather than an empty one.
func bearerHeader(token string) http.Header {
	if token == "" {
		return nil
	}
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

// HealthCheck ensures a connection can be established.
func (w *WebSocket) HealthCheck(ctx context.Context) error {
	_, err := w.getConn(ctx)
	return err
}

// Close tears down the underlying connection, if any.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close(websocket.StatusNormalClosure, "")
	w.conn = nil
	return err
}
