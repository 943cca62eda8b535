package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kestrelvoice/voiceloop/internal/conversation"
	"github.com/kestrelvoice/voiceloop/internal/errs"
	"github.com/kestrelvoice/voiceloop/internal/gateway"
	"github.com/kestrelvoice/voiceloop/internal/logging"
	"github.com/kestrelvoice/voiceloop/internal/metrics"
	"github.com/kestrelvoice/voiceloop/internal/speech"
)

// DefaultBargeInCooldownMs is the documented default debounce window for
// accepting a new barge-in (§4.12.1).
const DefaultBargeInCooldownMs = 200

// Speaker is the narrow playback collaborator the Session Manager drives
// (implemented by internal/playback.Pipeline).
type Speaker interface {
	Speak(text string)
	Stop()
}

// Config parameterizes the Session Manager.
type Config struct {
	BargeInEnabled    bool
	BargeInCooldownMs int

	// WakeWord, when non-empty, gates the session in
	// conversation.WaitingForWakeword until a transcript contains it
	// (case-insensitive). Empty skips the gate entirely.
	WakeWord string
}

// matchWakeWord reports whether transcript contains wakeWord
// case-insensitively and, if so, returns the transcript with the matched
// phrase removed (mirroring the teacher's removeWakeWord).
func matchWakeWord(transcript, wakeWord string) (bool, string) {
	idx := strings.Index(strings.ToLower(transcript), strings.ToLower(wakeWord))
	if idx < 0 {
		return false, transcript
	}
	rest := transcript[:idx] + transcript[idx+len(wakeWord):]
	return true, strings.TrimSpace(rest)
}

// Callbacks is the Session Manager's narrow event sink (§9) — everything
// outside the engine (CLI, display surface) subscribes through these
// rather than reaching into collaborators directly.
type Callbacks struct {
	OnStateChange  func(from, to conversation.State, reason string)
	OnTextFallback func(text string)
	OnError        func(error)
}

// Manager implements the per-turn algorithm of §4.12 and the barge-in
// path of §4.12.1. It holds the Conversation State, Speech Pipeline, TTS
// Playback Pipeline, Gateway, and Session Persistence instances; the
// Connection Monitor is created and run by the caller (cmd/voiceloop).
type Manager struct {
	conv    *conversation.Machine
	speechP *speech.Pipeline
	tts     Speaker
	gw      gateway.Gateway
	persist *Persistence
	metrics *metrics.Registry
	log     logging.Logger
	cb      Callbacks

	cfg Config

	mu            sync.Mutex
	turnInFlight  bool
	lastBargeInAt time.Time
}

// New wires the owned collaborators together. gw and persist are
// required; reg may be nil, in which case no latencies are recorded.
// speechP and tts are injected so tests can substitute
// fakes for the cgo/audio-backed implementations.
func New(conv *conversation.Machine, speechP *speech.Pipeline, tts Speaker, gw gateway.Gateway, persist *Persistence, reg *metrics.Registry, cfg Config, log logging.Logger, cb Callbacks) *Manager {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Manager{
		conv:    conv,
		speechP: speechP,
		tts:     tts,
		gw:      gw,
		persist: persist,
		metrics: reg,
		cfg:     cfg,
		log:     log,
		cb:      cb,
	}
}

// reportError is the §7 error-taxonomy boundary: every error that reaches
// a Session Manager callback is first classified into a Record carrying a
// user-facing message and remediation suggestions, logged in full (never
// silent), and only then handed to cb.OnError.
func (m *Manager) reportError(sentinel, cause error) *errs.Record {
	rec := errs.Wrap(sentinel, cause)
	verb := "recoverable"
	if !rec.Kind.Recoverable() {
		verb = "unrecoverable"
	}
	m.log.Error("session: %s (%s) — %s", rec.Message, verb, strings.Join(rec.Suggestions, "; "))
	return rec
}

func (m *Manager) transition(to conversation.State, reason string) {
	from := m.conv.State()
	if err := m.conv.Transition(to, reason); err != nil {
		m.log.Error("session: %v", err)
		return
	}
	if m.cb.OnStateChange != nil {
		m.cb.OnStateChange(from, to, reason)
	}
}

// OnSpeechStarted handles speech_started (§4.12 point 1): during
// `speaking` this is the barge-in trigger.
func (m *Manager) OnSpeechStarted() {
	if m.conv.State() == conversation.Speaking {
		m.handleBargeIn()
		return
	}
}

func (m *Manager) handleBargeIn() {
	if !m.cfg.BargeInEnabled {
		return
	}

	now := time.Now()
	m.mu.Lock()
	cooldown := time.Duration(m.cfg.BargeInCooldownMs) * time.Millisecond
	if cooldown <= 0 {
		cooldown = DefaultBargeInCooldownMs * time.Millisecond
	}
	if now.Sub(m.lastBargeInAt) < cooldown {
		m.mu.Unlock()
		return
	}
	m.lastBargeInAt = now
	m.mu.Unlock()

	detectedAt := now
	m.tts.Stop()
	m.speechP.SetBargeInMode(false)
	m.transition(conversation.Listening, "barge-in")

	stopLatencyMs := time.Since(detectedAt).Milliseconds()
	if m.metrics != nil {
		m.metrics.RecordBargeInStop(stopLatencyMs)
	}
}

// OnTranscript handles transcript (§4.12 point 2): it guards against
// concurrent turn processing and, per the Open Question decision (§13),
// drops (does not queue) a transcript that arrives while a turn is
// already in flight.
func (m *Manager) OnTranscript(ctx context.Context, text string, audioDurationMs, sttDurationMs int) {
	if m.conv.State() == conversation.WaitingForWakeword {
		matched, rest := matchWakeWord(text, m.cfg.WakeWord)
		if !matched {
			m.log.Debug("session: no wake word in transcript, ignoring")
			return
		}
		m.transition(conversation.Listening, "wake word detected")
		if rest == "" {
			return
		}
		text = rest
	}

	if m.conv.State() != conversation.Listening {
		return
	}

	m.mu.Lock()
	if m.turnInFlight {
		m.mu.Unlock()
		m.log.Debug("session: dropping transcript, turn already in flight")
		return
	}
	m.turnInFlight = true
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordSTT(int64(sttDurationMs))
	}

	m.conv.SetTranscript(text)
	m.transition(conversation.Processing, "speech end")

	go m.runTurn(ctx, text)
}

func (m *Manager) runTurn(ctx context.Context, text string) {
	defer func() {
		m.mu.Lock()
		m.turnInFlight = false
		m.mu.Unlock()
	}()

	sessionID := m.persist.LastSessionID()
	reply, err := m.gw.Send(ctx, sessionID, text)
	if err != nil {
		rec := m.reportError(errs.ErrGatewayUnreachable, err)
		m.conv.SetError(rec)
		if m.cb.OnError != nil {
			m.cb.OnError(rec)
		}
		m.transition(conversation.Listening, "gateway error")
		return
	}

	m.conv.SetError(nil)
	if reply.SessionID != "" {
		go m.persist.Update(reply.SessionID)
	}

	m.conv.SetResponse(reply.Text)
	m.transition(conversation.Speaking, "reply")
	m.speechP.SetBargeInMode(true)

	m.tts.Speak(reply.Text)
}

// OnSpeakingComplete handles TTS success (§4.12 point 5).
func (m *Manager) OnSpeakingComplete() {
	m.speechP.SetBargeInMode(false)
	m.transition(conversation.Listening, "playback complete")
}

// OnSpeakingFailed handles TTS failure (§4.12 point 6): it never
// synthesizes alternate text locally, instead surfacing the already
// generated response text via the text-fallback signal.
func (m *Manager) OnSpeakingFailed(err error) {
	m.speechP.SetBargeInMode(false)
	rec := m.reportError(errs.ErrTTSPlaybackFailed, err)
	m.conv.SetError(rec)
	if m.cb.OnError != nil {
		m.cb.OnError(rec)
	}
	if m.cb.OnTextFallback != nil {
		m.cb.OnTextFallback(m.conv.Fields().LastResponse)
	}
	m.transition(conversation.Listening, "tts failure")
}

// OnEmptyTranscript handles a filtered STT result (§7): non-fatal, stays
// in listening, never transitions into processing.
func (m *Manager) OnEmptyTranscript(reason string) {
	m.log.Debug("session: empty transcript (%s)", reason)
}

// OnGatewayConnected/OnGatewayDisconnected wire the Connection Monitor's
// events into the tracked Conversation State field.
func (m *Manager) OnGatewayConnected()    { m.conv.SetGatewayConnected(true) }
func (m *Manager) OnGatewayDisconnected() { m.conv.SetGatewayConnected(false) }

// Start begins a session: into listening directly, or into
// waiting-for-wakeword first when a wake word is configured.
func (m *Manager) Start() {
	if m.cfg.WakeWord != "" {
		m.transition(conversation.WaitingForWakeword, "session start")
		return
	}
	m.transition(conversation.Listening, "session start")
}

// Stop transitions back to idle, ending the session.
func (m *Manager) Stop() {
	m.transition(conversation.Idle, "session end")
}
