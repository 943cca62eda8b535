package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// Scenario 3: jitter underrun pads silence.
func TestUnderrunPadsSilence(t *testing.T) {
	cfg := Config{
		BufferSizeMs:     1000,
		LowWatermarkMs:   0,
		FrameDurationMs:  20,
		SampleRate:       1000, // frameSamples = 20
		CrossfadeEnabled: false,
	}

	var gotUnderrun bool
	var reqN, availN int
	b := New(cfg, Callbacks{OnUnderrun: func(requested, available int) {
		gotUnderrun = true
		reqN, availN = requested, available
	}})

	in := make([]int16, 10)
	for i := range in {
		in[i] = int16(i + 1)
	}
	require.NoError(t, b.Write(in))

	out := b.Read()
	require.Len(t, out, 20)
	expected := append(append([]int16{}, in...), seq(10, 0)...)
	assert.Equal(t, expected, out)
	assert.True(t, gotUnderrun)
	assert.Equal(t, 20, reqN)
	assert.Equal(t, 10, availN)
}

// Scenario 4: crossfade boundary.
func TestCrossfadeBoundary(t *testing.T) {
	cfg := Config{
		BufferSizeMs:     10000,
		LowWatermarkMs:   0,
		FrameDurationMs:  40,
		SampleRate:       1000, // crossfadeSamples = 10 with CrossfadeMs=10
		CrossfadeMs:      10,
		CrossfadeEnabled: true,
	}
	b := New(cfg, Callbacks{})

	chunkA := seq(20, 10000)
	chunkB := seq(20, 0)
	require.NoError(t, b.Write(chunkA))
	require.NoError(t, b.Write(chunkB))

	out := b.ReadAvailable(40)
	require.Len(t, out, 40)

	// first 20 samples are chunk A untouched (no previous tail yet)
	for i := 0; i < 20; i++ {
		assert.Equal(t, int16(10000), out[i])
	}

	// boundary: samples 20..29 decrease monotonically from ~10000 to ~1000
	boundary := out[20:30]
	for i := 1; i < len(boundary); i++ {
		assert.LessOrEqual(t, int(boundary[i]), int(boundary[i-1]))
	}
	assert.InDelta(t, 10000, boundary[0], 1)
	assert.InDelta(t, 1000, boundary[len(boundary)-1], 1)

	// samples 30..39 are pure chunk B (zero)
	for i := 30; i < 40; i++ {
		assert.Equal(t, int16(0), out[i])
	}
}

func TestShortChunkSkipsCrossfade(t *testing.T) {
	cfg := Config{
		BufferSizeMs:     1000,
		FrameDurationMs:  20,
		SampleRate:       1000,
		CrossfadeMs:      10,
		CrossfadeEnabled: true,
	}
	b := New(cfg, Callbacks{})
	require.NoError(t, b.Write(seq(20, 5000)))
	// second chunk shorter than crossfadeSamples (10) -> no crossfade applied
	require.NoError(t, b.Write(seq(5, 0)))
	out := b.ReadAvailable(25)
	for i := 0; i < 20; i++ {
		assert.Equal(t, int16(5000), out[i])
	}
	for i := 20; i < 25; i++ {
		assert.Equal(t, int16(0), out[i])
	}
}

func TestReadyFiresExactlyOncePerStream(t *testing.T) {
	cfg := Config{BufferSizeMs: 1000, LowWatermarkMs: 10, FrameDurationMs: 20, SampleRate: 1000}
	readyCount := 0
	b := New(cfg, Callbacks{OnReady: func() { readyCount++ }})
	b.Write(seq(15, 1))
	b.Write(seq(15, 1))
	assert.Equal(t, 1, readyCount)
}

func TestDrainedFiresExactlyOnceAfterEnd(t *testing.T) {
	cfg := Config{BufferSizeMs: 1000, LowWatermarkMs: 0, FrameDurationMs: 10, SampleRate: 1000}
	drainedCount := 0
	b := New(cfg, Callbacks{OnDrained: func() { drainedCount++ }})
	b.Write(seq(10, 1))
	b.Read() // drains the only chunk, but endOfStream not yet set
	assert.Equal(t, 0, drainedCount)
	b.End()
	assert.Equal(t, 1, drainedCount)
	b.Read() // subsequent reads should not double-fire
	assert.Equal(t, 1, drainedCount)
}

func TestWriteAfterEndRejected(t *testing.T) {
	cfg := Config{BufferSizeMs: 1000, FrameDurationMs: 10, SampleRate: 1000}
	b := New(cfg, Callbacks{})
	b.End()
	err := b.Write(seq(5, 1))
	assert.Error(t, err)
}

func TestClearEmitsClearedAndResetsState(t *testing.T) {
	cfg := Config{BufferSizeMs: 1000, LowWatermarkMs: 0, FrameDurationMs: 10, SampleRate: 1000}
	cleared := false
	b := New(cfg, Callbacks{OnCleared: func() { cleared = true }})
	b.Write(seq(10, 1))
	b.End()
	b.Clear()
	assert.True(t, cleared)
	assert.False(t, b.PlaybackActive())
	// a fresh stream should be able to write again
	assert.NoError(t, b.Write(seq(5, 1)))
}

func TestReadAlwaysReturnsExactFrameSize(t *testing.T) {
	cfg := Config{BufferSizeMs: 1000, FrameDurationMs: 17, SampleRate: 1000}
	b := New(cfg, Callbacks{})
	for i := 0; i < 5; i++ {
		out := b.Read()
		assert.Len(t, out, b.FrameSamples())
	}
}
