package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samples(n int, start int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = start + int16(i)
	}
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(16)
	in := samples(10, 1)
	n := b.Write(in)
	require.Equal(t, 10, n)

	out := b.Read(10)
	assert.Equal(t, in, out)
	assert.Equal(t, 0, b.Available())
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New(8)
	b.Write(samples(8, 1)) // 1..8
	b.Write(samples(4, 100))

	assert.Equal(t, 8, b.Available())
	out := b.Read(8)
	// oldest 4 of the original batch dropped, tail of new batch kept
	assert.Equal(t, []int16{5, 6, 7, 8, 100, 101, 102, 103}, out)
}

func TestWriteLargerThanCapacityKeepsTail(t *testing.T) {
	b := New(4)
	in := samples(10, 0) // 0..9
	b.Write(in)
	assert.Equal(t, 4, b.Available())
	out := b.Read(4)
	assert.Equal(t, []int16{6, 7, 8, 9}, out)
}

func TestPartialRead(t *testing.T) {
	b := New(16)
	b.Write(samples(3, 1))
	out := b.Read(10)
	assert.Len(t, out, 3)
}

func TestPeekDoesNotMutate(t *testing.T) {
	b := New(16)
	b.Write(samples(5, 1))
	p1 := b.Peek(5)
	p2 := b.Peek(5)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 5, b.Available())
}

func TestSkip(t *testing.T) {
	b := New(16)
	b.Write(samples(5, 1))
	skipped := b.Skip(2)
	assert.Equal(t, 2, skipped)
	out := b.Read(3)
	assert.Equal(t, []int16{3, 4, 5}, out)
}

func TestClear(t *testing.T) {
	b := New(16)
	b.Write(samples(5, 1))
	b.Clear()
	assert.Equal(t, 0, b.Available())
	assert.Equal(t, 16, b.AvailableForWrite())
}

func TestInvariantAvailableNeverExceedsCapacity(t *testing.T) {
	b := New(10)
	for i := 0; i < 50; i++ {
		b.Write(samples(7, int16(i)))
		assert.LessOrEqual(t, b.Available(), b.Capacity())
		assert.GreaterOrEqual(t, b.Available(), 0)
	}
}

func TestFillPercentage(t *testing.T) {
	b := New(10)
	b.Write(samples(5, 0))
	assert.InDelta(t, 50.0, b.FillPercentage(), 0.001)
}
