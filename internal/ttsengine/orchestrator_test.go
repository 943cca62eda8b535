package ttsengine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	failOn map[string]bool
}

func (f *fakeEngine) Synthesize(text string) ([]int16, error) {
	if f.failOn != nil && f.failOn[text] {
		return nil, fmt.Errorf("synthesis failed: %s", text)
	}
	return []int16{1, 2, 3}, nil
}
func (f *fakeEngine) SampleRate() int { return 24000 }
func (f *fakeEngine) Close()          {}

type fakeSink struct {
	written [][]int16
	ended   bool
	cleared bool
}

func (s *fakeSink) Write(samples []int16) error {
	s.written = append(s.written, samples)
	return nil
}
func (s *fakeSink) End()   { s.ended = true }
func (s *fakeSink) Clear() { s.cleared = true }

func TestSpeakEmitsLifecycleEvents(t *testing.T) {
	var started, complete int
	var sentenceStarted, sentenceComplete []int
	o := NewOrchestrator(&fakeEngine{}, OrchestratorConfig{MinChunkChars: 8}, Callbacks{
		OnSynthesisStarted:  func() { started++ },
		OnSynthesisComplete: func() { complete++ },
		OnSentenceStarted:   func(i int, text string) { sentenceStarted = append(sentenceStarted, i) },
		OnSentenceComplete:  func(i int, text string) { sentenceComplete = append(sentenceComplete, i) },
	})

	sink := &fakeSink{}
	o.Speak("First sentence. Second sentence.", sink)

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, complete)
	assert.Equal(t, []int{0, 1}, sentenceStarted)
	assert.Equal(t, []int{0, 1}, sentenceComplete)
	require.Len(t, sink.written, 2)
	assert.True(t, sink.ended)
}

func TestSpeakEmptyTextEndsImmediately(t *testing.T) {
	o := NewOrchestrator(&fakeEngine{}, OrchestratorConfig{}, Callbacks{})
	sink := &fakeSink{}
	o.Speak("", sink)
	assert.True(t, sink.ended)
	assert.Empty(t, sink.written)
}

func TestSpeakContinuesPastSentenceSynthesisError(t *testing.T) {
	var errs []error
	o := NewOrchestrator(&fakeEngine{failOn: map[string]bool{"First sentence.": true}}, OrchestratorConfig{MinChunkChars: 8}, Callbacks{
		OnError: func(err error) { errs = append(errs, err) },
	})
	sink := &fakeSink{}
	o.Speak("First sentence. Second sentence.", sink)
	require.Len(t, errs, 1)
	require.Len(t, sink.written, 1)
	assert.True(t, sink.ended)
}

func TestSpeakReportsFirstChunkLatencyOnce(t *testing.T) {
	var latencies []time.Duration
	o := NewOrchestrator(&fakeEngine{}, OrchestratorConfig{MinChunkChars: 8}, Callbacks{
		OnFirstChunkLatency: func(elapsed time.Duration) { latencies = append(latencies, elapsed) },
	})
	sink := &fakeSink{}
	o.Speak("First sentence. Second sentence.", sink)
	require.Len(t, latencies, 1)
	assert.GreaterOrEqual(t, latencies[0], time.Duration(0))
}

func TestStopClearsSink(t *testing.T) {
	o := NewOrchestrator(&fakeEngine{}, OrchestratorConfig{}, Callbacks{})
	sink := &fakeSink{}
	o.Stop(sink)
	assert.True(t, sink.cleared)
}
