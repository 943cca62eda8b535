// Package speech implements the Speech Pipeline (spec §4.5): it wires mic
// frames through the VAD Processor and, on each completed utterance, hands
// the buffered audio to an STT engine, filtering garbage output before it
// ever reaches the Session Manager as a transcript.
package speech

import (
	"context"
	"strings"
	"time"

	"github.com/kestrelvoice/voiceloop/internal/sttengine"
	"github.com/kestrelvoice/voiceloop/internal/vad"
)

// artefactMarkers are known Whisper hallucination/silence markers (§157:
// "may return empty/artefact strings which the Speech Pipeline filters").
var artefactMarkers = []string{
	"[blank_audio]",
	"(blank)",
	"[silence]",
	"[inaudible]",
	"[music]",
	"(music)",
	"...",
	"[no speech]",
	"thank you for watching",
	"thanks for watching",
}

// minTranscriptLen is the minimum accepted rune length for a transcript;
// anything shorter is treated as empty_transcript per §4.5.
const minTranscriptLen = 2

// Callbacks is the pipeline's narrow event sink (§9).
type Callbacks struct {
	OnSpeechStarted   func()
	OnBargeIn         func()
	OnTranscript      func(text string, audioDurationMs, sttDurationMs int)
	OnEmptyTranscript func(reason string)
	OnError           func(error)
}

// Pipeline couples a VAD Processor with an STT engine.
type Pipeline struct {
	processor *vad.Processor
	engine    sttengine.Engine
	cb        Callbacks
}

// New wires the given model and STT engine behind a VAD Processor.
func New(model vad.Model, vadCfg vad.Config, engine sttengine.Engine, cb Callbacks) *Pipeline {
	p := &Pipeline{engine: engine, cb: cb}
	p.processor = vad.NewProcessor(model, vadCfg, vad.ProcessorCallbacks{
		OnSpeechStarted: cb.OnSpeechStarted,
		OnBargeIn:       cb.OnBargeIn,
		OnSpeechEnded:   p.handleSpeechEnded,
	})
	return p
}

// SetBargeInMode forwards to the underlying VAD Processor.
func (p *Pipeline) SetBargeInMode(active bool) { p.processor.SetBargeInMode(active) }

// InBargeInMode forwards to the underlying VAD Processor.
func (p *Pipeline) InBargeInMode() bool { return p.processor.InBargeInMode() }

// ProcessFrame feeds one mic frame through VAD.
func (p *Pipeline) ProcessFrame(frame []int16) error {
	return p.processor.ProcessFrame(frame)
}

// ForceEndUtterance flushes any in-progress utterance (used on shutdown).
func (p *Pipeline) ForceEndUtterance() { p.processor.ForceEndUtterance() }

// Reset clears VAD and model state.
func (p *Pipeline) Reset() { p.processor.Reset() }

func (p *Pipeline) handleSpeechEnded(audio []int16, audioDurationMs int) {
	start := time.Now()
	text, err := p.engine.Transcribe(context.Background(), audio)
	sttDurationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		if p.cb.OnError != nil {
			p.cb.OnError(err)
		}
		return
	}

	if reason, isGarbage := classify(text); isGarbage {
		if p.cb.OnEmptyTranscript != nil {
			p.cb.OnEmptyTranscript(reason)
		}
		return
	}

	if p.cb.OnTranscript != nil {
		p.cb.OnTranscript(text, audioDurationMs, sttDurationMs)
	}
}

// classify reports whether text should be treated as empty_transcript and,
// if so, why (§4.5: known artefact markers, whitespace-only, or length < 2).
func classify(text string) (reason string, garbage bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "empty", true
	}
	if len([]rune(trimmed)) < minTranscriptLen {
		return "too_short", true
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range artefactMarkers {
		if lower == marker || strings.Contains(lower, marker) {
			return "artefact", true
		}
	}
	return "", false
}
