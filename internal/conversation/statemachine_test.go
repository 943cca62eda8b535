package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelvoice/voiceloop/internal/errs"
)

func TestValidTransitionSequence(t *testing.T) {
	var events []string
	m := New(Callbacks{OnStateChange: func(from, to State, reason string) {
		events = append(events, string(from)+"->"+string(to))
	}})

	require.NoError(t, m.Transition(Listening, "session start"))
	require.NoError(t, m.Transition(Processing, "speech end"))
	require.NoError(t, m.Transition(Speaking, "reply"))
	require.NoError(t, m.Transition(Listening, "playback complete"))

	assert.Equal(t, []string{
		"idle->listening",
		"listening->processing",
		"processing->speaking",
		"speaking->listening",
	}, events)
}

func TestSelfTransitionIsNoopAndEmitsNoEvent(t *testing.T) {
	var events int
	m := New(Callbacks{OnStateChange: func(State, State, string) { events++ }})
	require.NoError(t, m.Transition(Listening, "start"))
	events = 0
	require.NoError(t, m.Transition(Listening, "start again"))
	assert.Equal(t, 0, events)
}

func TestInvalidTransitionFails(t *testing.T) {
	m := New(Callbacks{})
	err := m.Transition(Speaking, "illegal")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Equal(t, Idle, m.State())
}

func TestAnyStateCanTransitionToIdle(t *testing.T) {
	m := New(Callbacks{})
	require.NoError(t, m.Transition(Listening, "start"))
	require.NoError(t, m.Transition(Processing, "speech end"))
	require.NoError(t, m.Transition(Idle, "fatal error"))
	assert.Equal(t, Idle, m.State())
}

func TestTransitionToIdleClearsTransientFieldsButKeepsGatewayConnected(t *testing.T) {
	m := New(Callbacks{})
	m.SetGatewayConnected(true)
	m.SetTranscript("hello")
	m.SetResponse("hi there")
	m.SetSessionID("abc123")

	require.NoError(t, m.Transition(Listening, "start"))
	require.NoError(t, m.Transition(Idle, "session end"))

	fields := m.Fields()
	assert.Empty(t, fields.LastTranscript)
	assert.Empty(t, fields.LastResponse)
	assert.Empty(t, fields.SessionID)
	assert.True(t, fields.GatewayConnected)
}
