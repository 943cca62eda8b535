// Package sttengine adapts the sherpa-onnx offline Whisper recognizer
// (teacher's internal/stt/recognizer.go) into the narrow Engine interface
// consumed by the Speech Pipeline (spec §4.5/§157).
package sttengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelvoice/voiceloop/internal/sherpa"
)

// Engine transcribes mono 16kHz PCM into UTF-8 text.
type Engine interface {
	Transcribe(ctx context.Context, samples []int16) (string, error)
	Close()
}

// Config mirrors the Whisper model paths and decoding knobs the teacher
// exposes in internal/config.
type Config struct {
	Encoder    string
	Decoder    string
	Tokens     string
	Language   string // "auto" triggers Whisper auto-detection
	Provider   string
	NumThreads int
	SampleRate int
	Timeout    time.Duration
	Verbose    bool
}

// DefaultTimeout matches spec §157's documented default.
const DefaultTimeout = 30 * time.Second

// Whisper wraps a sherpa-onnx OfflineRecognizer configured for Whisper.
type Whisper struct {
	recognizer *sherpa.OfflineRecognizer
	sampleRate int
	timeout    time.Duration
}

// New constructs a Whisper-backed Engine.
func New(cfg Config) (*Whisper, error) {
	rc := &sherpa.OfflineRecognizerConfig{}
	rc.ModelConfig.Whisper.Encoder = cfg.Encoder
	rc.ModelConfig.Whisper.Decoder = cfg.Decoder

	language := cfg.Language
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	rc.ModelConfig.Whisper.Language = language
	rc.ModelConfig.Whisper.Task = "transcribe"
	rc.ModelConfig.Whisper.TailPaddings = -1
	rc.ModelConfig.Tokens = cfg.Tokens
	rc.ModelConfig.NumThreads = cfg.NumThreads
	rc.ModelConfig.Provider = cfg.Provider
	rc.DecodingMethod = "greedy_search"
	if cfg.Verbose {
		rc.ModelConfig.Debug = 1
	}

	recognizer := sherpa.NewOfflineRecognizer(rc)
	if recognizer == nil {
		return nil, fmt.Errorf("sttengine: failed to create offline recognizer")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Whisper{recognizer: recognizer, sampleRate: cfg.SampleRate, timeout: timeout}, nil
}

// Transcribe decodes samples synchronously, but bounds the call against
// ctx/timeout via a result channel since sherpa-onnx's Decode call is not
// itself cancellable.
func (w *Whisper) Transcribe(ctx context.Context, samples []int16) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		floats := int16ToFloat32(samples)
		stream := sherpa.NewOfflineStream(w.recognizer)
		if stream == nil {
			done <- result{err: fmt.Errorf("sttengine: failed to create offline stream")}
			return
		}
		defer sherpa.DeleteOfflineStream(stream)

		stream.AcceptWaveform(w.sampleRate, floats)
		w.recognizer.Decode(stream)
		done <- result{text: strings.TrimSpace(stream.GetResult().Text)}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("sttengine: transcription timed out: %w", ctx.Err())
	case r := <-done:
		return r.text, r.err
	}
}

// Close releases the underlying recognizer.
func (w *Whisper) Close() {
	if w.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(w.recognizer)
	}
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
