package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel plays back a fixed sequence of probabilities, one per
// ProcessFrame call, ignoring the actual frame contents. This lets the
// state machine and processor tests drive exact scenarios from §8
// without depending on a real neural model.
type scriptedModel struct {
	probs  []float32
	idx    int
	resets int
}

func (s *scriptedModel) Infer(frame []int16) (float32, error) {
	if s.idx >= len(s.probs) {
		return 0, nil
	}
	p := s.probs[s.idx]
	s.idx++
	return p, nil
}

func (s *scriptedModel) ResetState() { s.resets++ }
func (s *scriptedModel) Close()      {}

func makeFrame(n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = 1
	}
	return f
}

// Scenario 1: short utterance discarded.
func TestShortUtteranceDiscarded(t *testing.T) {
	cfg := Config{
		Threshold:         0.5,
		BargeInThreshold:  0.7,
		SilenceDurationMs: 90,
		MinSpeechMs:       60,
		FrameDurationMs:   30,
		SampleRate:        16000,
	}

	var started, ended int
	sm := New(cfg, Callbacks{
		OnSpeechStarted: func() { started++ },
		OnSpeechEnded:   func(audio []int16, durationMs int) { ended++ },
	})

	probs := []float32{0.8, 0.2, 0.2, 0.2, 0.2}
	for _, p := range probs {
		sm.Process(p, makeFrame(FrameSamples))
	}

	assert.Equal(t, 1, started)
	assert.Equal(t, 0, ended)
	assert.False(t, sm.InSpeech())
}

// Scenario 2: utterance accepted.
func TestUtteranceAccepted(t *testing.T) {
	cfg := Config{
		Threshold:         0.5,
		BargeInThreshold:  0.7,
		SilenceDurationMs: 90,
		MinSpeechMs:       60,
		FrameDurationMs:   30,
		SampleRate:        16000,
	}

	var gotAudio []int16
	var gotDuration int
	var started int
	sm := New(cfg, Callbacks{
		OnSpeechStarted: func() { started++ },
		OnSpeechEnded: func(audio []int16, durationMs int) {
			gotAudio = audio
			gotDuration = durationMs
		},
	})

	probs := []float32{0.8, 0.8, 0.8, 0.2, 0.2, 0.2}
	for _, p := range probs {
		sm.Process(p, makeFrame(FrameSamples))
	}

	require.Equal(t, 1, started)
	assert.Equal(t, 90, gotDuration)
	assert.Len(t, gotAudio, 6*FrameSamples)
}

func TestSilenceShorterThanThresholdNeverEnds(t *testing.T) {
	cfg := Config{
		Threshold:         0.5,
		SilenceDurationMs: 1200,
		MinSpeechMs:       60,
		FrameDurationMs:   30,
		SampleRate:        16000,
	}
	ended := false
	sm := New(cfg, Callbacks{OnSpeechEnded: func([]int16, int) { ended = true }})

	sm.Process(0.9, makeFrame(FrameSamples))
	for i := 0; i < 10; i++ { // 300ms of silence, well under 1200ms
		sm.Process(0.1, makeFrame(FrameSamples))
	}
	assert.False(t, ended)
	assert.True(t, sm.InSpeech())
}

func TestForceEndBypassesSilenceRequirement(t *testing.T) {
	cfg := Config{
		Threshold:         0.5,
		SilenceDurationMs: 1200,
		MinSpeechMs:       30,
		FrameDurationMs:   30,
		SampleRate:        16000,
	}
	ended := false
	sm := New(cfg, Callbacks{OnSpeechEnded: func([]int16, int) { ended = true }})
	sm.Process(0.9, makeFrame(FrameSamples))
	sm.ForceEnd()
	assert.True(t, ended)
}

// Scenario 6: barge-in ordering via consecutive in-mode frames.
func TestProcessorBargeInFiresOnceAfterConsecutiveFrames(t *testing.T) {
	model := &scriptedModel{probs: []float32{0.9, 0.9, 0.9, 0.9, 0.9}}
	cfg := DefaultConfig()
	cfg.BargeInConsecutiveFrames = 3

	var bargeIns int
	p := NewProcessor(model, cfg, ProcessorCallbacks{
		OnBargeIn: func() { bargeIns++ },
	})
	p.SetBargeInMode(true)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.ProcessFrame(makeFrame(FrameSamples)))
	}

	// 5 consecutive qualifying frames with a reset-every-3 counter fires once
	// at frame 3 and accumulates 2 more toward a second (not reached) trigger.
	assert.Equal(t, 1, bargeIns)
}

func TestProcessorBargeInSubThresholdResetsCounter(t *testing.T) {
	model := &scriptedModel{probs: []float32{0.9, 0.9, 0.1, 0.9, 0.9, 0.9}}
	cfg := DefaultConfig()
	cfg.BargeInConsecutiveFrames = 3

	var bargeIns int
	p := NewProcessor(model, cfg, ProcessorCallbacks{OnBargeIn: func() { bargeIns++ }})
	p.SetBargeInMode(true)

	for i := 0; i < 6; i++ {
		require.NoError(t, p.ProcessFrame(makeFrame(FrameSamples)))
	}
	assert.Equal(t, 1, bargeIns)
}

func TestProcessorResetsModelOnUtteranceEnd(t *testing.T) {
	model := &scriptedModel{probs: []float32{0.9, 0.9, 0.1, 0.1, 0.1, 0.1, 0.1}}
	cfg := Config{
		Threshold:         0.5,
		BargeInThreshold:  0.7,
		SilenceDurationMs: 150,
		MinSpeechMs:       30,
		FrameDurationMs:   30,
		SampleRate:        16000,
	}
	p := NewProcessor(model, cfg, ProcessorCallbacks{})
	for i := 0; i < 7; i++ {
		require.NoError(t, p.ProcessFrame(makeFrame(FrameSamples)))
	}
	assert.Equal(t, 1, model.resets)
}

func TestLeavingBargeInModeClearsCounter(t *testing.T) {
	model := &scriptedModel{probs: []float32{0.9, 0.9}}
	p := NewProcessor(model, DefaultConfig(), ProcessorCallbacks{})
	p.SetBargeInMode(true)
	require.NoError(t, p.ProcessFrame(makeFrame(FrameSamples)))
	p.SetBargeInMode(false)
	assert.Equal(t, 0, p.consecutive)
}
