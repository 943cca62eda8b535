// Package conversation implements the Conversation State Machine (spec
// §4.11): a strict transition table over the five conversation states,
// generalizing the state-tracking half of the teacher's main loop
// (cmd/assistant/main.go) into its own owned component per design note §9.
package conversation

import (
	"fmt"

	"github.com/kestrelvoice/voiceloop/internal/errs"
)

// State is one of the five conversation states (§3).
type State string

const (
	Idle               State = "idle"
	WaitingForWakeword State = "waiting_for_wakeword"
	Listening          State = "listening"
	Processing         State = "processing"
	Speaking           State = "speaking"
)

// transitions is the allowed-transition table from §3. "any -> idle" is
// handled separately since it applies regardless of current state.
var transitions = map[State]map[State]bool{
	Idle:               {Listening: true, WaitingForWakeword: true},
	WaitingForWakeword: {Listening: true, Idle: true},
	Listening:          {Processing: true, WaitingForWakeword: true, Idle: true},
	Processing:         {Speaking: true, Listening: true, Idle: true},
	Speaking:           {Listening: true, WaitingForWakeword: true, Idle: true},
}

// Fields tracked alongside the current state (§3).
type Fields struct {
	LastTranscript   string
	LastResponse     string
	Error            error
	GatewayConnected bool
	SessionID        string
}

// Callbacks is the state machine's narrow event sink (§9).
type Callbacks struct {
	OnStateChange func(from, to State, reason string)
}

// Machine holds Conversation State and enforces §3's transition table.
type Machine struct {
	state  State
	fields Fields
	cb     Callbacks
}

// New constructs a Machine starting in idle.
func New(cb Callbacks) *Machine {
	return &Machine{state: Idle, cb: cb}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Fields returns a copy of the tracked fields.
func (m *Machine) Fields() Fields { return m.fields }

// SetGatewayConnected updates the tracked connectivity flag without
// affecting state (driven by the Connection Monitor, §4.9).
func (m *Machine) SetGatewayConnected(connected bool) { m.fields.GatewayConnected = connected }

// Transition moves from the current state to `to` for `reason`, emitting
// stateChange unless it is a self-transition (§4.11). Transitions to idle
// always succeed and clear transient fields while preserving
// gatewayConnected; all other transitions must appear in the table.
func (m *Machine) Transition(to State, reason string) error {
	from := m.state
	if from == to {
		return nil
	}

	if to != Idle {
		allowed, ok := transitions[from]
		if !ok || !allowed[to] {
			return fmt.Errorf("conversation: invalid transition %s -> %s: %w", from, to, errs.ErrInvalidTransition)
		}
	}

	m.state = to
	if to == Idle {
		gatewayConnected := m.fields.GatewayConnected
		m.fields = Fields{GatewayConnected: gatewayConnected}
	}

	if m.cb.OnStateChange != nil {
		m.cb.OnStateChange(from, to, reason)
	}
	return nil
}

// SetTranscript records the last transcript (called by the Session
// Manager on transcript receipt).
func (m *Machine) SetTranscript(text string) { m.fields.LastTranscript = text }

// SetResponse records the last gateway response text.
func (m *Machine) SetResponse(text string) { m.fields.LastResponse = text }

// SetError records a non-fatal error for display.
func (m *Machine) SetError(err error) { m.fields.Error = err }

// SetSessionID records the session id captured from a gateway reply.
func (m *Machine) SetSessionID(id string) { m.fields.SessionID = id }
