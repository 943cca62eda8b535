package audioio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}

func TestFillFrameCarriesLeftoverAcrossCalls(t *testing.T) {
	s := &MalgoSpeaker{pending: make(chan []int16, 4)}
	s.pending <- []int16{1, 2, 3, 4, 5}

	out := make([]byte, 3*2)
	s.fillFrame(out, 3)
	assert.Equal(t, []int16{1, 2, 3}, bytesToInt16(out))

	out2 := make([]byte, 3*2)
	s.fillFrame(out2, 3)
	// The remaining 2 samples from the first chunk, then silence since
	// nothing else is queued.
	assert.Equal(t, []int16{4, 5, 0}, bytesToInt16(out2))
}

func TestFillFrameFillsSilenceWhenQueueEmpty(t *testing.T) {
	s := &MalgoSpeaker{pending: make(chan []int16, 4)}
	out := make([]byte, 4*2)
	s.fillFrame(out, 4)
	assert.Equal(t, []int16{0, 0, 0, 0}, bytesToInt16(out))
}

func TestFillFrameSpansMultipleQueuedChunks(t *testing.T) {
	s := &MalgoSpeaker{pending: make(chan []int16, 4)}
	s.pending <- []int16{1, 2}
	s.pending <- []int16{3, 4}

	out := make([]byte, 4*2)
	s.fillFrame(out, 4)
	assert.Equal(t, []int16{1, 2, 3, 4}, bytesToInt16(out))
}
