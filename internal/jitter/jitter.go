// Package jitter implements the watermark-gated Jitter Buffer (spec §4.6):
// a ring buffer for TTS PCM that pads underruns with silence and applies
// boundary crossfade between chunks, generalizing the teacher's
// playbackRing (internal/audio/playback.go) into an event-driven,
// allocation-free-on-read buffer shared between the Streaming TTS
// Orchestrator (writer) and the TTS Playback Pipeline's pacing loop
// (reader).
package jitter

import (
	"fmt"
	"math"

	"github.com/kestrelvoice/voiceloop/internal/ring"
)

// Config parameterizes the buffer per spec §4.6.
type Config struct {
	BufferSizeMs     int
	LowWatermarkMs   int
	FrameDurationMs  int
	SampleRate       int
	CrossfadeMs      int
	CrossfadeEnabled bool
}

// DefaultConfig mirrors the documented defaults in spec §6.
func DefaultConfig() Config {
	return Config{
		BufferSizeMs:     500,
		LowWatermarkMs:   100,
		FrameDurationMs:  20,
		SampleRate:       22050,
		CrossfadeMs:      5,
		CrossfadeEnabled: true,
	}
}

// Callbacks is the buffer's narrow event sink (§9).
type Callbacks struct {
	OnReady    func()
	OnUnderrun func(requested, available int)
	OnDrained  func()
	OnCleared  func()
}

// Buffer is the Jitter Buffer described in §4.6/§3.
type Buffer struct {
	cfg Config
	cb  Callbacks

	ring *ring.Buffer

	playbackActive bool
	endOfStream    bool
	readyFired     bool
	drainedFired   bool

	underruns       int
	totalWritten    int
	totalRead       int
	chunksProcessed int

	crossfadeSamples int
	crossfadeTail    []int16
	haveTail         bool

	frameSamples     int
	lowWatermarkSamp int
}

// New constructs a Jitter Buffer sized for cfg.BufferSizeMs of audio at
// cfg.SampleRate.
func New(cfg Config, cb Callbacks) *Buffer {
	capacity := cfg.SampleRate * cfg.BufferSizeMs / 1000
	if capacity <= 0 {
		capacity = 1
	}
	frameSamples := cfg.SampleRate * cfg.FrameDurationMs / 1000
	if frameSamples <= 0 {
		frameSamples = 1
	}
	lowWatermark := cfg.SampleRate * cfg.LowWatermarkMs / 1000
	crossfadeSamples := cfg.SampleRate * cfg.CrossfadeMs / 1000

	return &Buffer{
		cfg:              cfg,
		cb:               cb,
		ring:             ring.New(capacity),
		frameSamples:     frameSamples,
		lowWatermarkSamp: lowWatermark,
		crossfadeSamples: crossfadeSamples,
	}
}

// FrameSamples returns the fixed number of samples every Read() call
// returns.
func (b *Buffer) FrameSamples() int { return b.frameSamples }

// PlaybackActive reports whether playback has been unblocked by the low
// watermark and not yet drained or cleared.
func (b *Buffer) PlaybackActive() bool { return b.playbackActive }

// Write appends samples, applying boundary crossfade against the
// previous chunk's tail when configured, and fires `ready` exactly once
// per stream when the low watermark is first met (§4.6).
func (b *Buffer) Write(samples []int16) error {
	if b.endOfStream {
		return fmt.Errorf("jitter buffer: write after end of stream")
	}
	if len(samples) == 0 {
		return nil
	}

	out := samples
	if b.cfg.CrossfadeEnabled && b.haveTail && b.crossfadeSamples > 0 && len(samples) >= b.crossfadeSamples {
		out = make([]int16, len(samples))
		copy(out, samples)
		for i := 0; i < b.crossfadeSamples; i++ {
			t := float64(i) / float64(b.crossfadeSamples)
			v := float64(b.crossfadeTail[i])*(1-t) + float64(samples[i])*t
			out[i] = clampInt16(math.Round(v))
		}
	}

	b.ring.Write(out)
	b.totalWritten += len(out)
	b.chunksProcessed++

	if b.cfg.CrossfadeEnabled && b.crossfadeSamples > 0 && len(out) >= b.crossfadeSamples {
		tail := make([]int16, b.crossfadeSamples)
		copy(tail, out[len(out)-b.crossfadeSamples:])
		b.crossfadeTail = tail
		b.haveTail = true
	}

	if !b.playbackActive && !b.readyFired && b.ring.Available() >= b.lowWatermarkSamp {
		b.playbackActive = true
		b.readyFired = true
		if b.cb.OnReady != nil {
			b.cb.OnReady()
		}
	}

	return nil
}

// Read returns exactly FrameSamples() samples, zero-padding and emitting
// `underrun` when fewer are available. It fires `drained` exactly once
// when end-of-stream has been signalled and the buffer empties (§4.6).
func (b *Buffer) Read() []int16 {
	return b.readN(b.frameSamples, true)
}

// ReadAvailable returns up to max samples without padding; it may still
// trigger `drained` under the same rule as Read.
func (b *Buffer) ReadAvailable(max int) []int16 {
	return b.readN(max, false)
}

func (b *Buffer) readN(requested int, pad bool) []int16 {
	available := b.ring.Available()
	toRead := requested
	if toRead > available {
		toRead = available
	}

	samples := b.ring.Read(toRead)
	b.totalRead += len(samples)

	if pad && len(samples) < requested {
		padded := make([]int16, requested)
		copy(padded, samples)
		b.underruns++
		if b.cb.OnUnderrun != nil {
			b.cb.OnUnderrun(requested, available)
		}
		samples = padded
	}

	b.maybeFireDrained()
	return samples
}

func (b *Buffer) maybeFireDrained() {
	if b.endOfStream && !b.drainedFired && b.ring.Available() == 0 {
		b.drainedFired = true
		b.playbackActive = false
		if b.cb.OnDrained != nil {
			b.cb.OnDrained()
		}
	}
}

// End disables further writes. If the buffer is already empty, `drained`
// fires immediately.
func (b *Buffer) End() {
	b.endOfStream = true
	b.maybeFireDrained()
}

// Clear empties the buffer and resets it for a fresh stream (used on
// barge-in). Playback and end-of-stream flags are cleared and `cleared`
// fires.
func (b *Buffer) Clear() {
	b.ring.Clear()
	b.playbackActive = false
	b.endOfStream = false
	b.readyFired = false
	b.drainedFired = false
	b.haveTail = false
	b.crossfadeTail = nil
	if b.cb.OnCleared != nil {
		b.cb.OnCleared()
	}
}

// Stats exposes the buffer's bookkeeping counters for diagnostics/tests.
type Stats struct {
	Underruns       int
	TotalWritten    int
	TotalRead       int
	ChunksProcessed int
}

func (b *Buffer) Stats() Stats {
	return Stats{
		Underruns:       b.underruns,
		TotalWritten:    b.totalWritten,
		TotalRead:       b.totalRead,
		ChunksProcessed: b.chunksProcessed,
	}
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
