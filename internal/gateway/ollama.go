package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// OllamaConfig mirrors the teacher's llm.Config.
type OllamaConfig struct {
	Host         string
	Model        string
	SystemPrompt string
	MaxHistory   int

	// Token authenticates every request to Host, read out-of-band from
	// the environment rather than a CLI flag or config file (§6) so it
	// never appears in an argument vector. Empty disables authentication
	// entirely, for a local Ollama install with no auth in front of it.
	Token string
}

// Ollama is a Gateway backed by a local Ollama server, adapted from the
// teacher's llm.Client.
type Ollama struct {
	client       *api.Client
	model        string
	systemPrompt string
	maxHistory   int

	mu      sync.Mutex
	history []api.Message

	// sessionID identifies this Ollama gateway instance's conversation.
	// Ollama itself has no server-side session concept, so the gateway
	// mints one at construction and echoes it on every reply — giving
	// Session Persistence (§4.13) a stable id to capture even against a
	// stateless backend.
	sessionID string
}

// NewOllama constructs an Ollama-backed Gateway.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 10
	}

	host := strings.TrimSuffix(cfg.Host, "/")
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid ollama host: %w", err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &authTransport{
			token: cfg.Token,
			base: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	return &Ollama{
		client:       api.NewClient(parsedURL, httpClient),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxHistory:   maxHistory,
		history:      make([]api.Message, 0),
		sessionID:    uuid.NewString(),
	}, nil
}

// Send implements Gateway. The sessionID parameter is accepted for
// interface symmetry with WebSocket-backed gateways but otherwise
// ignored: Ollama is stateless across calls, so conversation continuity
// comes entirely from the locally held history, and the replied-with
// session id is always this gateway instance's own minted id.
func (o *Ollama) Send(ctx context.Context, sessionID, text string) (Reply, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	messages := make([]api.Message, 0, len(o.history)+2)
	messages = append(messages, api.Message{Role: "system", Content: o.systemPrompt})
	messages = append(messages, o.history...)
	messages = append(messages, api.Message{Role: "user", Content: text})

	stream := false
	var response api.ChatResponse
	err := o.client.Chat(ctx, &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": 0.7,
			"num_predict": 150,
			"num_ctx":     1024,
		},
	}, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("gateway: ollama chat failed: %w", err)
	}

	reply := strings.TrimSpace(response.Message.Content)
	o.history = append(o.history,
		api.Message{Role: "user", Content: text},
		api.Message{Role: "assistant", Content: reply},
	)
	o.trimHistory()

	return Reply{Text: reply, SessionID: o.sessionID}, nil
}

func (o *Ollama) trimHistory() {
	maxMessages := o.maxHistory * 2
	if len(o.history) > maxMessages {
		o.history = o.history[len(o.history)-maxMessages:]
	}
}

// HealthCheck pings the Ollama server.
func (o *Ollama) HealthCheck(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("gateway: cannot reach ollama: %w", err)
	}
	return nil
}

// Close clears history; Ollama holds no persistent connection to tear
// down.
func (o *Ollama) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
	return nil
}

// authTransport injects an Authorization: Bearer header into every
// outgoing request when a token is configured, so the gateway token
// (§6) travels only in an HTTP header — never in a log line, an error
// message, or any argument vector. A zero-value token is a no-op,
// leaving requests unmodified for an unauthenticated local Ollama.
type authTransport struct {
	token string
	base  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}
