// Package playback implements the TTS Playback Pipeline (spec §4.8): it
// owns the Streaming TTS Orchestrator and a speaker output handle, paces
// frame delivery against the jitter buffer, and derives its externally
// visible "speaking" signal from the buffer's drained event rather than
// from synthesis completion.
package playback

import (
	"fmt"
	"time"

	"github.com/kestrelvoice/voiceloop/internal/jitter"
	"github.com/kestrelvoice/voiceloop/internal/ttsengine"
)

// Speaker is the narrow output device dependency (implemented by
// internal/audioio.MalgoSpeaker in production, a fake in tests).
type Speaker interface {
	Open() error
	Write(samples []int16) error
	Close() error
}

// Callbacks is the pipeline's narrow event sink (§9).
type Callbacks struct {
	OnSpeakingStarted  func()
	OnSpeakingComplete func()
	OnSpeakingStopped  func()
	OnError            func(error)
	OnUnderrun         func(requested, available int)
	OnTextFallback     func(text string)
}

// pacingFactor paces frame delivery at 0.8x frameDurationMs, per §4.8.
const pacingFactor = 0.8

// Pipeline wires a Streaming TTS Orchestrator, a jitter buffer, and a
// speaker into the paced playback loop described in §4.8.
type Pipeline struct {
	orchestrator *ttsengine.Orchestrator
	speaker      Speaker
	cb           Callbacks

	buf           *jitter.Buffer
	frameDuration time.Duration
	done          chan struct{}
	stopped       bool
}

// New constructs a playback pipeline. jitterCfg parameterizes the internal
// jitter buffer; its OnUnderrun/OnDrained events are wired into cb.
func New(orchestrator *ttsengine.Orchestrator, speaker Speaker, jitterCfg jitter.Config, cb Callbacks) *Pipeline {
	p := &Pipeline{
		orchestrator:  orchestrator,
		speaker:       speaker,
		cb:            cb,
		frameDuration: time.Duration(jitterCfg.FrameDurationMs) * time.Millisecond,
	}

	p.buf = jitter.New(jitterCfg, jitter.Callbacks{
		OnReady: p.onReady,
		OnUnderrun: func(requested, available int) {
			if cb.OnUnderrun != nil {
				cb.OnUnderrun(requested, available)
			}
		},
		OnDrained: p.onDrained,
	})
	return p
}

// Speak synthesizes text through the orchestrator into the internal
// jitter buffer, on the caller's goroutine; pair with a concurrent call
// draining via the pacing loop started from onReady.
func (p *Pipeline) Speak(text string) {
	p.stopped = false
	p.orchestrator.Speak(text, p.buf)
}

func (p *Pipeline) onReady() {
	if err := p.speaker.Open(); err != nil {
		if p.cb.OnError != nil {
			p.cb.OnError(err)
		}
		if p.cb.OnTextFallback != nil {
			p.cb.OnTextFallback("")
		}
		return
	}

	if p.cb.OnSpeakingStarted != nil {
		p.cb.OnSpeakingStarted()
	}

	p.done = make(chan struct{})
	go p.pacingLoop()
}

func (p *Pipeline) pacingLoop() {
	interval := time.Duration(float64(p.frameDuration) * pacingFactor)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if !p.buf.PlaybackActive() {
				return
			}
			frame := p.buf.Read()
			if err := p.speaker.Write(frame); err != nil {
				if p.cb.OnError != nil {
					p.cb.OnError(err)
				}
				if p.cb.OnTextFallback != nil {
					p.cb.OnTextFallback("")
				}
				p.teardown()
				return
			}
		}
	}
}

// Stop cancels in-flight synthesis, clears the jitter buffer, tears down
// the speaker, and emits speaking_stopped (§4.8).
func (p *Pipeline) Stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.orchestrator.Stop(p.buf)
	p.teardown()
	if p.cb.OnSpeakingStopped != nil {
		p.cb.OnSpeakingStopped()
	}
}

func (p *Pipeline) teardown() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	if err := p.speaker.Close(); err != nil {
		if p.cb.OnError != nil {
			p.cb.OnError(fmt.Errorf("playback: speaker close failed: %w", err))
		}
	}
}

func (p *Pipeline) onDrained() {
	p.teardown()
	if p.cb.OnSpeakingComplete != nil {
		p.cb.OnSpeakingComplete()
	}
}
