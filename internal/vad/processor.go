package vad

// ProcessorCallbacks is the Processor's event sink (§9: narrow sink, no
// back-references). OnBargeIn fires only while in barge-in mode.
type ProcessorCallbacks struct {
	OnSpeechStarted func()
	OnSpeechEnded   func(audio []int16, durationMs int)
	OnBargeIn       func()
}

// Processor composes the Neural VAD Adapter (Model) and the VAD State
// Machine, adding the barge-in fast path described in §4.4.
type Processor struct {
	model Model
	sm    *StateMachine
	cfg   Config
	cb    ProcessorCallbacks

	bargeInMode bool
	consecutive int
}

// NewProcessor wires a Model and Config into a Processor, internally
// owning a StateMachine (tree-shaped ownership per §9).
func NewProcessor(model Model, cfg Config, cb ProcessorCallbacks) *Processor {
	p := &Processor{model: model, cfg: cfg, cb: cb}
	p.sm = New(cfg, Callbacks{
		OnSpeechStarted: cb.OnSpeechStarted,
		OnSpeechEnded:   cb.OnSpeechEnded,
	})
	return p
}

// SetBargeInMode enters or leaves barge-in mode. Leaving clears the
// consecutive-frame counter (§4.4). The caller (Speech Pipeline / Session
// Manager) is responsible for only activating this while TTS is actively
// playing.
func (p *Processor) SetBargeInMode(active bool) {
	p.bargeInMode = active
	p.consecutive = 0
	p.sm.SetBargeInMode(active)
}

// InBargeInMode reports the current mode.
func (p *Processor) InBargeInMode() bool { return p.bargeInMode }

// ProcessFrame runs one frame through the adapter and, depending on mode,
// either the barge-in fast path or the full state machine.
func (p *Processor) ProcessFrame(frame []int16) error {
	probability, err := p.model.Infer(frame)
	if err != nil {
		return err
	}

	if p.bargeInMode {
		if probability > p.cfg.BargeInThreshold {
			p.consecutive++
			if p.consecutive >= p.cfg.BargeInConsecutiveFrames {
				p.consecutive = 0
				if p.cb.OnBargeIn != nil {
					p.cb.OnBargeIn()
				}
			}
		} else {
			p.consecutive = 0
		}
		return nil
	}

	wasInSpeech := p.sm.InSpeech()
	p.sm.Process(probability, frame)
	if wasInSpeech && !p.sm.InSpeech() {
		// §4.2: reset the model's recurrent context at every utterance end,
		// whether the utterance was emitted or discarded as too short.
		p.model.ResetState()
	}
	return nil
}

// ForceEndUtterance forwards to the underlying state machine (used on
// session shutdown/reset to flush a trailing in-progress utterance) and
// resets the model's recurrent context if an utterance was in progress.
func (p *Processor) ForceEndUtterance() {
	if p.sm.InSpeech() {
		p.sm.ForceEnd()
		p.model.ResetState()
	}
}

// Reset clears both the state machine and the model's recurrent state,
// for use on session reset (§4.2).
func (p *Processor) Reset() {
	p.sm.resetState()
	p.model.ResetState()
	p.consecutive = 0
}
