package speech

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelvoice/voiceloop/internal/vad"
)

type scriptedModel struct {
	probs []float32
	idx   int
}

func (s *scriptedModel) Infer(frame []int16) (float32, error) {
	if s.idx >= len(s.probs) {
		return 0, nil
	}
	p := s.probs[s.idx]
	s.idx++
	return p, nil
}
func (s *scriptedModel) ResetState() {}
func (s *scriptedModel) Close()      {}

type fakeEngine struct {
	text string
	err  error
}

func (f *fakeEngine) Transcribe(ctx context.Context, samples []int16) (string, error) {
	return f.text, f.err
}
func (f *fakeEngine) Close() {}

func makeFrame(n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = 1
	}
	return f
}

func runUtterance(t *testing.T, engine *fakeEngine) (*Pipeline, []string, []string, []error) {
	t.Helper()
	var transcripts []string
	var emptyReasons []string
	var errs []error

	cfg := vad.Config{
		Threshold:         0.5,
		BargeInThreshold:  0.7,
		SilenceDurationMs: 90,
		MinSpeechMs:       60,
		FrameDurationMs:   30,
		SampleRate:        16000,
	}
	model := &scriptedModel{probs: []float32{0.8, 0.8, 0.8, 0.2, 0.2, 0.2}}
	p := New(model, cfg, engine, Callbacks{
		OnTranscript: func(text string, audioDurationMs, sttDurationMs int) {
			transcripts = append(transcripts, text)
		},
		OnEmptyTranscript: func(reason string) { emptyReasons = append(emptyReasons, reason) },
		OnError:           func(err error) { errs = append(errs, err) },
	})

	for i := 0; i < 6; i++ {
		require.NoError(t, p.ProcessFrame(makeFrame(vad.FrameSamples)))
	}
	return p, transcripts, emptyReasons, errs
}

func TestValidTranscriptSurfaces(t *testing.T) {
	_, transcripts, emptyReasons, errs := runUtterance(t, &fakeEngine{text: "hello there"})
	assert.Equal(t, []string{"hello there"}, transcripts)
	assert.Empty(t, emptyReasons)
	assert.Empty(t, errs)
}

func TestWhitespaceOnlyTreatedAsEmpty(t *testing.T) {
	_, transcripts, emptyReasons, _ := runUtterance(t, &fakeEngine{text: "   "})
	assert.Empty(t, transcripts)
	assert.Equal(t, []string{"empty"}, emptyReasons)
}

func TestShortTextTreatedAsEmpty(t *testing.T) {
	_, transcripts, emptyReasons, _ := runUtterance(t, &fakeEngine{text: "a"})
	assert.Empty(t, transcripts)
	assert.Equal(t, []string{"too_short"}, emptyReasons)
}

func TestArtefactMarkerTreatedAsEmpty(t *testing.T) {
	_, transcripts, emptyReasons, _ := runUtterance(t, &fakeEngine{text: "[BLANK_AUDIO]"})
	assert.Empty(t, transcripts)
	assert.Equal(t, []string{"artefact"}, emptyReasons)
}

func TestEngineErrorSurfacesAsError(t *testing.T) {
	_, transcripts, emptyReasons, errs := runUtterance(t, &fakeEngine{err: errors.New("boom")})
	assert.Empty(t, transcripts)
	assert.Empty(t, emptyReasons)
	require.Len(t, errs, 1)
}

func TestBargeInFastPathBypassesStateMachine(t *testing.T) {
	model := &scriptedModel{probs: []float32{0.9, 0.9, 0.9}}
	var bargeIns int
	p := New(model, vad.DefaultConfig(), &fakeEngine{text: "ignored"}, Callbacks{
		OnBargeIn: func() { bargeIns++ },
	})
	p.SetBargeInMode(true)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.ProcessFrame(makeFrame(vad.FrameSamples)))
	}
	assert.Equal(t, 1, bargeIns)
	assert.True(t, p.InBargeInMode())
}
