// Package session implements the Session Manager turn handler (§4.12),
// its barge-in path (§4.12.1), and Session Persistence (§4.13).
package session

import (
	"sync"

	"github.com/spf13/viper"

	"github.com/kestrelvoice/voiceloop/internal/logging"
)

// Persistence reads and writes a stable lastSessionId across process
// restarts (§4.13), backed by viper the way the teacher's config layer
// reads its settings file.
type Persistence struct {
	v      *viper.Viper
	path   string
	log    logging.Logger
	mu     sync.Mutex
	sessID string
}

// NewPersistence loads lastSessionId from path (if present) using viper.
// A missing or unreadable file is not an error: the session simply
// starts with no prior id.
func NewPersistence(path string, log logging.Logger) *Persistence {
	if log == nil {
		log = logging.NoOp{}
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	p := &Persistence{v: v, path: path, log: log}
	if err := v.ReadInConfig(); err != nil {
		log.Debug("session: no existing session file at %s (%v)", path, err)
		return p
	}
	p.sessID = v.GetString("lastSessionId")
	return p
}

// LastSessionID returns the session id loaded at startup, providing it to
// the first gateway call of a new process (§4.13).
func (p *Persistence) LastSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessID
}

// Update persists a new, non-empty session id if it differs from the
// currently held one. Failures are logged as warnings and never propagate
// (best-effort auto-save, §4.13).
func (p *Persistence) Update(sessionID string) {
	if sessionID == "" {
		return
	}
	p.mu.Lock()
	if sessionID == p.sessID {
		p.mu.Unlock()
		return
	}
	p.sessID = sessionID
	p.mu.Unlock()

	p.v.Set("lastSessionId", sessionID)
	if err := p.v.WriteConfigAs(p.path); err != nil {
		p.log.Warn("session: failed to persist session id: %v", err)
	}
}

// Reset clears both the in-memory and persisted session id (§4.13).
func (p *Persistence) Reset() {
	p.mu.Lock()
	p.sessID = ""
	p.mu.Unlock()

	p.v.Set("lastSessionId", "")
	if err := p.v.WriteConfigAs(p.path); err != nil {
		p.log.Warn("session: failed to persist session reset: %v", err)
	}
}
