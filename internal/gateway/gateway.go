// Package gateway implements the agent Gateway abstraction and its
// companion Connection Monitor (§4.9) and Connection Recovery (§4.10).
// The Gateway interface is adapted from the teacher's direct Ollama
// client (internal/llm/client.go) into the narrow collaborator shape the
// Session Manager depends on, with a second WebSocket-backed
// implementation grounded on the lokutor-orchestrator pack.
package gateway

import "context"

// Reply is what a Gateway call returns: response text plus an optional
// session id the gateway wants the client to use on subsequent calls.
type Reply struct {
	Text      string
	SessionID string
}

// Gateway is the narrow remote-agent dependency the Session Manager holds
// (§3's Ownership note, §4.12).
type Gateway interface {
	// Send submits a turn's transcript with the current sessionId (may be
	// empty on the first call of a process) and returns the reply.
	Send(ctx context.Context, sessionID, text string) (Reply, error)

	// HealthCheck is a lightweight reachability probe for the Connection
	// Monitor (§4.9).
	HealthCheck(ctx context.Context) error

	// Close releases any held resources (connections, history).
	Close() error
}
