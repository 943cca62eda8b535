// Package vad implements the Neural VAD Adapter (spec §4.2), the VAD
// State Machine (§4.3), and the VAD Processor with its barge-in fast path
// (§4.4). The neural model itself is external (§1 non-goals); this
// package wraps it through the narrow Model interface below.
package vad

import (
	"fmt"
	"math"
	"sync"

	"github.com/kestrelvoice/voiceloop/internal/errs"
	"github.com/kestrelvoice/voiceloop/internal/sherpa"
)

// FrameSamples is the fixed input size the neural model accepts: 480
// samples at 16 kHz (30 ms), per spec §4.2/§6.
const FrameSamples = 480

// Model produces a speech probability in [0,1] for one fixed-size frame,
// holding opaque recurrent state across calls within an utterance.
// ResetState must be called at every utterance end and on session reset
// (§4.2).
type Model interface {
	Infer(frame []int16) (float32, error)
	ResetState()
	Close()
}

// SileroAdapter wraps the Silero VAD ONNX model loaded through sherpa-onnx
// (the same binding the teacher uses for its high-level VAD), adapted to
// expose a per-frame probability instead of sherpa's own segment-buffering
// VAD. The underlying sherpa detector is the model's authoritative
// speech/silence decision; since the high-level Go binding does not
// surface Silero's raw softmax output, the continuous-valued probability
// is derived from that decision blended with frame RMS energy so callers
// still get a graded signal to threshold against (see DESIGN.md).
type SileroAdapter struct {
	mu        sync.Mutex
	detector  *sherpa.VoiceActivityDetector
	modelPath string
}

// SileroConfig configures the adapter's construction.
type SileroConfig struct {
	ModelPath  string
	SampleRate int
	NumThreads int
	Debug      bool
}

// NewSileroAdapter loads the Silero VAD model once; it must be constructed
// a single time and reused across the process's lifetime (expensive to
// reload).
func NewSileroAdapter(cfg SileroConfig) (*SileroAdapter, error) {
	vadConfig := &sherpa.VadModelConfig{}
	vadConfig.SileroVad.Model = cfg.ModelPath
	vadConfig.SileroVad.Threshold = 0.5 // raw-model gate; state machine applies the real threshold
	vadConfig.SileroVad.MinSilenceDuration = 0.1
	vadConfig.SileroVad.MinSpeechDuration = 0.1
	vadConfig.SileroVad.MaxSpeechDuration = 30.0
	vadConfig.SileroVad.WindowSize = FrameSamples
	vadConfig.SampleRate = cfg.SampleRate
	vadConfig.NumThreads = cfg.NumThreads
	if cfg.Debug {
		vadConfig.Debug = 1
	}

	// bufferSizeInSeconds of 1 keeps sherpa's own segment buffer minimal;
	// the VAD State Machine in this package owns utterance buffering.
	detector := sherpa.NewVoiceActivityDetector(vadConfig, 1.0)
	if detector == nil {
		return nil, fmt.Errorf("%w: failed to load silero vad model %q", errs.ErrVADModelLoadFailed, cfg.ModelPath)
	}

	return &SileroAdapter{detector: detector, modelPath: cfg.ModelPath}, nil
}

// Infer runs one frame of inference and returns a speech probability.
func (a *SileroAdapter) Infer(frame []int16) (float32, error) {
	if len(frame) != FrameSamples {
		return 0, fmt.Errorf("%w: expected %d samples, got %d", errs.ErrVADProcessFailed, FrameSamples, len(frame))
	}

	floats := int16ToFloat32(frame)

	a.mu.Lock()
	a.detector.AcceptWaveform(floats)
	speaking := a.detector.IsSpeech()
	for !a.detector.IsEmpty() {
		a.detector.Pop()
	}
	a.mu.Unlock()

	energy := rmsEnergy(floats)
	return combineProbability(speaking, energy), nil
}

// ResetState clears the model's recurrent context.
func (a *SileroAdapter) ResetState() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector.Clear()
}

// Close releases the underlying model.
func (a *SileroAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detector != nil {
		sherpa.DeleteVoiceActivityDetector(a.detector)
		a.detector = nil
	}
}

func int16ToFloat32(frame []int16) []float32 {
	out := make([]float32, len(frame))
	for i, s := range frame {
		out[i] = float32(s) / 32768.0
	}
	return out
}

func rmsEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// combineProbability derives a graded [0,1] value from the model's binary
// speech decision and the frame's RMS energy: a confirmed "speech" frame
// is mapped to the top half of the range (scaled up by energy), silence to
// the bottom half (scaled down by energy), so thresholds in (0, 1) still
// behave sensibly against the model's authoritative decision.
func combineProbability(speaking bool, energy float64) float32 {
	scaled := energy * 8 // empirical gain so typical speech energy saturates near 1
	if scaled > 1 {
		scaled = 1
	}
	if speaking {
		return float32(0.5 + 0.5*scaled)
	}
	return float32(0.5 * scaled)
}

var _ Model = (*SileroAdapter)(nil)
