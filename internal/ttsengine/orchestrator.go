package ttsengine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sink is the destination the orchestrator streams synthesized PCM into
// (implemented by internal/jitter.Buffer).
type Sink interface {
	Write(samples []int16) error
	End()
	Clear()
}

// Callbacks is the orchestrator's narrow event sink (§9).
type Callbacks struct {
	OnSynthesisStarted  func()
	OnSentenceStarted   func(index int, text string)
	OnSentenceComplete  func(index int, text string)
	OnSynthesisComplete func()
	OnError             func(error)

	// OnFirstChunkLatency fires once per Speak call, with the elapsed time
	// between the Speak call and the first PCM chunk being enqueued into
	// the sink — the TTS-first-audio gauge of §4.14.
	OnFirstChunkLatency func(elapsed time.Duration)
}

// OrchestratorConfig controls chunking.
type OrchestratorConfig struct {
	MinChunkChars int
}

// Orchestrator implements the Streaming TTS Orchestrator (spec §4.7): it
// splits text into sentence chunks, synthesizes each in turn, and streams
// the resulting PCM into a jitter buffer sink.
type Orchestrator struct {
	engine Engine
	cfg    OrchestratorConfig
	cb     Callbacks

	mu       sync.Mutex
	stopFlag atomic.Bool
	speaking atomic.Bool
}

// NewOrchestrator wires an Engine, its chunking config, and event
// Callbacks into an Orchestrator.
func NewOrchestrator(engine Engine, cfg OrchestratorConfig, cb Callbacks) *Orchestrator {
	return &Orchestrator{engine: engine, cfg: cfg, cb: cb}
}

// Speaking reports whether a speak() call is currently in flight. Per §4.7
// this only tracks synthesis activity; the caller (TTS Playback Pipeline)
// is responsible for deriving the "speaking" signal from the jitter
// buffer's drained event instead.
func (o *Orchestrator) Speaking() bool { return o.speaking.Load() }

// Speak synthesizes text sentence-by-sentence into sink, honoring
// cooperative cancellation via Stop. Synchronous: callers run it on their
// own goroutine.
func (o *Orchestrator) Speak(text string, sink Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopFlag.Store(false)
	o.speaking.Store(true)
	defer o.speaking.Store(false)

	start := time.Now()
	firstChunkReported := false
	chunks := SplitIntoChunks(text, o.cfg.MinChunkChars)
	if len(chunks) == 0 {
		sink.End()
		return
	}

	if o.cb.OnSynthesisStarted != nil {
		o.cb.OnSynthesisStarted()
	}

	for i, chunk := range chunks {
		if o.stopFlag.Load() {
			return
		}

		if o.cb.OnSentenceStarted != nil {
			o.cb.OnSentenceStarted(i, chunk)
		}

		samples, err := o.engine.Synthesize(chunk)
		if err != nil {
			if o.cb.OnError != nil {
				o.cb.OnError(err)
			}
			continue
		}
		if o.stopFlag.Load() {
			return
		}

		if err := sink.Write(samples); err != nil {
			if o.cb.OnError != nil {
				o.cb.OnError(err)
			}
			return
		}
		if !firstChunkReported {
			firstChunkReported = true
			if o.cb.OnFirstChunkLatency != nil {
				o.cb.OnFirstChunkLatency(time.Since(start))
			}
		}

		if o.cb.OnSentenceComplete != nil {
			o.cb.OnSentenceComplete(i, chunk)
		}
	}

	if o.stopFlag.Load() {
		return
	}

	sink.End()
	if o.cb.OnSynthesisComplete != nil {
		o.cb.OnSynthesisComplete()
	}
}

// Stop cooperatively cancels the in-flight Speak call: the next
// cancellation checkpoint returns without writing further chunks. Stop
// also calls sink.Clear() to drop any buffered audio and reset the sink
// for a fresh stream.
func (o *Orchestrator) Stop(sink Sink) {
	o.stopFlag.Store(true)
	sink.Clear()
}
