package ttsengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kestrelvoice/voiceloop/internal/sherpa"
)

// Engine synthesizes one chunk of text into PCM16 samples at a fixed
// sample rate.
type Engine interface {
	Synthesize(text string) ([]int16, error)
	SampleRate() int
	Close()
}

// Config mirrors the Kokoro model paths and voice knobs the teacher
// exposes in internal/config/voices.go.
type Config struct {
	Model      string
	Voices     string
	Tokens     string
	DataDir    string
	Lexicon    string
	Language   string
	SpeakerID  int
	Speed      float32
	Provider   string
	NumThreads int
	Verbose    bool
}

// kokoroSampleRate is Kokoro's fixed output sample rate.
const kokoroSampleRate = 24000

// Kokoro wraps a sherpa-onnx OfflineTts configured for the Kokoro model.
type Kokoro struct {
	tts       *sherpa.OfflineTts
	speakerID int
	speed     float32
	mu        sync.Mutex
}

// New constructs a Kokoro-backed Engine.
func New(cfg Config) (*Kokoro, error) {
	tc := &sherpa.OfflineTtsConfig{}
	tc.Model.Kokoro.Model = cfg.Model
	tc.Model.Kokoro.Voices = cfg.Voices
	tc.Model.Kokoro.Tokens = cfg.Tokens
	tc.Model.Kokoro.DataDir = cfg.DataDir
	tc.Model.Kokoro.Lexicon = cfg.Lexicon
	tc.Model.Kokoro.Lang = cfg.Language

	speed := cfg.Speed
	if speed <= 0 {
		speed = 1.0
	}
	tc.Model.Kokoro.LengthScale = 1.0 / speed
	tc.Model.NumThreads = cfg.NumThreads
	if tc.Model.NumThreads <= 0 {
		tc.Model.NumThreads = 2
	}
	tc.Model.Provider = cfg.Provider
	tc.MaxNumSentences = 1
	if cfg.Verbose {
		tc.Model.Debug = 1
	}

	tts := sherpa.NewOfflineTts(tc)
	if tts == nil {
		return nil, fmt.Errorf("ttsengine: failed to create offline tts")
	}

	return &Kokoro{tts: tts, speakerID: cfg.SpeakerID, speed: speed}, nil
}

// Synthesize generates PCM16 audio for one chunk of text.
func (k *Kokoro) Synthesize(text string) ([]int16, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("ttsengine: empty text")
	}

	k.mu.Lock()
	audio := k.tts.Generate(text, k.speakerID, k.speed)
	k.mu.Unlock()

	if audio == nil || len(audio.Samples) == 0 {
		return nil, fmt.Errorf("ttsengine: generation failed")
	}
	return float32ToInt16(audio.Samples), nil
}

// SampleRate returns Kokoro's fixed output sample rate.
func (k *Kokoro) SampleRate() int { return kokoroSampleRate }

// Close releases the underlying TTS engine.
func (k *Kokoro) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tts != nil {
		sherpa.DeleteOfflineTts(k.tts)
		k.tts = nil
	}
}

func float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}
