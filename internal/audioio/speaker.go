// Package audioio adapts the teacher's malgo-backed capture/playback code
// (internal/audio/capture.go, playback.go) into the narrow Capturer/Speaker
// interfaces consumed by the Speech Pipeline and TTS Playback Pipeline.
package audioio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Speaker is the narrow output device interface the TTS Playback Pipeline
// depends on (§4.8).
type Speaker interface {
	Open() error
	Write(samples []int16) error
	Close() error
}

// MalgoSpeaker streams PCM16 frames to the system's default output device
// via a persistent malgo device, generalizing the teacher's Player
// (internal/audio/playback.go) to push one already-paced frame at a time
// instead of draining a lock-free ring from a callback.
type MalgoSpeaker struct {
	sampleRate uint32

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	pending chan []int16

	// leftover holds samples dequeued from pending but not yet written to
	// a device callback, since a queued chunk's length rarely matches the
	// device's requested frameCount exactly. Only touched from the device
	// callback, which malgo never calls concurrently with itself.
	leftover []int16
}

// NewMalgoSpeaker constructs a speaker for the given sample rate. The
// device is not opened until Open is called.
func NewMalgoSpeaker(sampleRate int) *MalgoSpeaker {
	return &MalgoSpeaker{sampleRate: uint32(sampleRate)}
}

// Open initializes the malgo context and output device.
func (s *MalgoSpeaker) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return fmt.Errorf("audioio: malgo context init failed: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = s.sampleRate
	deviceConfig.Alsa.NoMMap = 1

	s.pending = make(chan []int16, 32)

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			s.fillFrame(out, frameCount)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("audioio: malgo device init failed: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("audioio: malgo device start failed: %w", err)
	}

	s.ctx = ctx
	s.device = device
	return nil
}

func (s *MalgoSpeaker) fillFrame(out []byte, frameCount uint32) {
	need := int(frameCount)
	filled := 0
	for filled < need {
		if len(s.leftover) == 0 {
			select {
			case samples, ok := <-s.pending:
				if !ok {
					for filled < need {
						out[filled*2] = 0
						out[filled*2+1] = 0
						filled++
					}
					return
				}
				s.leftover = samples
			default:
				for filled < need {
					out[filled*2] = 0
					out[filled*2+1] = 0
					filled++
				}
				return
			}
		}

		n := len(s.leftover)
		if remaining := need - filled; n > remaining {
			n = remaining
		}
		for i := 0; i < n; i++ {
			v := s.leftover[i]
			out[filled*2] = byte(v)
			out[filled*2+1] = byte(v >> 8)
			filled++
		}
		s.leftover = s.leftover[n:]
	}
}

// Write enqueues one frame of samples for the device callback to drain.
// It blocks briefly if the internal queue is full (bounded backpressure).
func (s *MalgoSpeaker) Write(samples []int16) error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return fmt.Errorf("audioio: speaker not open")
	}
	pending <- samples
	return nil
}

// Close tears down the device and context.
func (s *MalgoSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	if s.pending != nil {
		close(s.pending)
		s.pending = nil
	}
	return nil
}
