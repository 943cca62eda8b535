package audioio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Capturer is the narrow mic input interface the Speech Pipeline's host
// loop depends on.
type Capturer interface {
	Start(onFrame func(samples []int16)) error
	Stop() error
}

// MalgoCapturer streams fixed-size int16 frames from the system's default
// input device, generalizing the teacher's Capturer
// (internal/audio/capture.go) from a float32 push-ring to a direct
// per-frame callback matching the VAD Processor's FrameSamples contract.
type MalgoCapturer struct {
	sampleRate   uint32
	nativeRate   uint32
	frameSamples int

	mu        sync.Mutex
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	buf       []int16
	antialias *AntiAliasResampler
}

// NewMalgoCapturer constructs a capturer that delivers frames of
// frameSamples int16 values at sampleRate.
func NewMalgoCapturer(sampleRate, frameSamples int) *MalgoCapturer {
	return &MalgoCapturer{sampleRate: uint32(sampleRate), nativeRate: uint32(sampleRate), frameSamples: frameSamples}
}

// NewMalgoCapturerAt constructs a capturer that opens the device at
// nativeRate (for hardware, such as many Bluetooth headsets, that only
// offers 48kHz) and anti-alias downsamples to sampleRate before framing,
// using the same filter design the teacher reserved for STT input.
func NewMalgoCapturerAt(nativeRate, sampleRate, frameSamples int) *MalgoCapturer {
	c := &MalgoCapturer{sampleRate: uint32(sampleRate), nativeRate: uint32(nativeRate), frameSamples: frameSamples}
	if nativeRate > sampleRate {
		c.antialias = NewAntiAliasResampler(nativeRate, sampleRate)
	}
	return c
}

// Start opens the input device and invokes onFrame once per complete
// frame of audio.
func (c *MalgoCapturer) Start(onFrame func(samples []int16)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return fmt.Errorf("audioio: malgo context init failed: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = c.nativeRate
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			c.accept(in, onFrame)
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

	c.ctx = ctx
	c.device = device
	return nil
}

func (c *MalgoCapturer) accept(in []byte, onFrame func([]int16)) {
	n := len(in) / 2
	raw := make([]int16, n)
	for i := 0; i < n; i++ {
		raw[i] = int16(uint16(in[i*2]) | uint16(in[i*2+1])<<8)
	}
	if c.antialias != nil {
		raw = c.antialias.Resample(raw)
	}
	c.buf = append(c.buf, raw...)
	for len(c.buf) >= c.frameSamples {
		frame := make([]int16, c.frameSamples)
		copy(frame, c.buf[:c.frameSamples])
		c.buf = c.buf[c.frameSamples:]
		onFrame(frame)
	}
}

// Stop tears down the device and context.
func (c *MalgoCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}
