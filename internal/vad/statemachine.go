package vad

import "github.com/kestrelvoice/voiceloop/internal/ring"

// Config parameterizes the VAD State Machine (§4.3) and barge-in fast
// path (§4.4).
type Config struct {
	Threshold                float32 // normal-mode speech probability threshold
	BargeInThreshold         float32 // elevated threshold while bargeInMode is active
	SilenceDurationMs        int     // silence duration required to end an utterance
	MinSpeechMs              int     // minimum speech duration to emit speech_ended
	FrameDurationMs          int     // duration represented by one frame
	SampleRate               int     // samples per second, for sizing the utterance buffer
	BargeInConsecutiveFrames int     // consecutive in-mode speech frames to confirm barge-in (§4.4)
}

// DefaultConfig mirrors spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:                0.5,
		BargeInThreshold:         0.7,
		SilenceDurationMs:        1200,
		MinSpeechMs:              500,
		FrameDurationMs:          30,
		SampleRate:               16000,
		BargeInConsecutiveFrames: 3,
	}
}

// Callbacks is the narrow event sink every owned component exposes (design
// note §9): no emitter back-references, just a set of optional callbacks
// the owner (ultimately the Session Manager) wires up.
type Callbacks struct {
	OnSpeechStarted func()
	OnSpeechEnded   func(audio []int16, durationMs int)
}

func (c Callbacks) speechStarted() {
	if c.OnSpeechStarted != nil {
		c.OnSpeechStarted()
	}
}

func (c Callbacks) speechEnded(audio []int16, durationMs int) {
	if c.OnSpeechEnded != nil {
		c.OnSpeechEnded(audio, durationMs)
	}
}

// utteranceBufferSeconds sizes the utterance buffer for at least 30s of
// speech per §3's Utterance Buffer definition.
const utteranceBufferSeconds = 30

// StateMachine converts per-frame probabilities into speech-start /
// speech-end events, buffering utterance audio between them (§4.3).
type StateMachine struct {
	cfg Config
	cb  Callbacks

	inSpeech        bool
	silenceFrames   int
	speechFrames    int
	lastProbability float32
	bargeInMode     bool

	utterance *ring.Buffer
}

// New creates a VAD State Machine with the given config and event sink.
func New(cfg Config, cb Callbacks) *StateMachine {
	capacity := cfg.SampleRate * utteranceBufferSeconds
	if capacity <= 0 {
		capacity = 16000 * utteranceBufferSeconds
	}
	return &StateMachine{
		cfg:       cfg,
		cb:        cb,
		utterance: ring.New(capacity),
	}
}

// SetBargeInMode toggles barge-in mode; entering raises the effective
// threshold, leaving resets it. The VAD Processor (§4.4) is responsible
// for invoking this only while TTS is actively playing.
func (m *StateMachine) SetBargeInMode(active bool) {
	m.bargeInMode = active
}

// InSpeech reports whether the state machine currently considers itself
// mid-utterance.
func (m *StateMachine) InSpeech() bool { return m.inSpeech }

// LastProbability returns the most recently observed probability.
func (m *StateMachine) LastProbability() float32 { return m.lastProbability }

func (m *StateMachine) effectiveThreshold() float32 {
	if m.bargeInMode {
		return m.cfg.BargeInThreshold
	}
	return m.cfg.Threshold
}

// Process feeds one (probability, frame) pair into the state machine,
// per the algorithm in §4.3.
func (m *StateMachine) Process(probability float32, frame []int16) {
	m.lastProbability = probability
	tau := m.effectiveThreshold()

	if probability > tau {
		m.silenceFrames = 0
		m.speechFrames++
		if !m.inSpeech {
			m.inSpeech = true
			m.utterance.Clear()
			m.cb.speechStarted()
		}
		m.utterance.Write(frame)
		return
	}

	if m.inSpeech {
		m.silenceFrames++
		m.utterance.Write(frame)

		silenceFramesNeeded := m.cfg.SilenceDurationMs / m.cfg.FrameDurationMs
		if m.silenceFrames >= silenceFramesNeeded {
			m.endUtterance()
		}
	}
}

// ForceEnd behaves as the silence-timeout branch without requiring
// silence frames to have accumulated (§4.3).
func (m *StateMachine) ForceEnd() {
	if m.inSpeech {
		m.endUtterance()
	}
}

func (m *StateMachine) endUtterance() {
	minSpeechFrames := m.cfg.MinSpeechMs / m.cfg.FrameDurationMs
	if m.speechFrames >= minSpeechFrames {
		audio := m.utterance.Read(m.utterance.Available())
		durationMs := m.speechFrames * m.cfg.FrameDurationMs
		m.resetState()
		m.cb.speechEnded(audio, durationMs)
		return
	}
	m.resetState()
}

func (m *StateMachine) resetState() {
	m.inSpeech = false
	m.silenceFrames = 0
	m.speechFrames = 0
	m.utterance.Clear()
}
