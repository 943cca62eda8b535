package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotComputesBasicStats(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry(), Callbacks{})
	for _, v := range []int64{100, 200, 300, 400, 500} {
		reg.RecordSTT(v)
	}
	snap := reg.Snapshot(TypeSTT)
	assert.Equal(t, 5, snap.Count)
	assert.Equal(t, int64(100), snap.Min)
	assert.Equal(t, int64(500), snap.Max)
	assert.Equal(t, 300.0, snap.Avg)
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := newRing(3)
	r.add(1)
	r.add(2)
	r.add(3)
	r.add(4) // evicts 1
	assert.Equal(t, []int64{2, 3, 4}, r.values())
}

func TestThresholdExceededFiresOverTarget(t *testing.T) {
	var fired []SampleType
	reg := NewRegistry(prometheus.NewRegistry(), Callbacks{
		OnThresholdExceeded: func(t SampleType, actual, target int64) { fired = append(fired, t) },
	})
	reg.RecordSTT(2500)        // over the 2000ms target
	reg.RecordBargeInStop(100) // under the 200ms target
	require.Len(t, fired, 1)
	assert.Equal(t, TypeSTT, fired[0])
}
