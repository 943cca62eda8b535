// Package metrics implements the Latency Metrics gauges and Performance
// Monitor of spec §4.14, plus Prometheus export wiring per the domain
// stack (SPEC_FULL.md §11), grounded on client_golang the way
// lookatitude-beluga-ai and mbaxamb33-yuzu.agent.webrtc.toy wire metrics
// into their pipelines.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SampleType names one of the three tracked latency gauges (§4.14).
type SampleType string

const (
	TypeSTT           SampleType = "stt"
	TypeTTSFirstAudio SampleType = "tts_first_audio"
	TypeBargeInStop   SampleType = "barge_in_stop"
)

// targetMs holds the FR-2/FR-4/FR-6 latency targets per sample type.
var targetMs = map[SampleType]int64{
	TypeSTT:           2000,
	TypeTTSFirstAudio: 500,
	TypeBargeInStop:   200,
}

// DefaultCapacity is the bounded ring size per gauge (§4.14).
const DefaultCapacity = 1000

// Snapshot reports the p50/p95/min/max/avg/count view of one gauge.
type Snapshot struct {
	P50   int64
	P95   int64
	Min   int64
	Max   int64
	Avg   float64
	Count int
}

// ring is a fixed-capacity oldest-out sample store, the same
// overflow-drop-oldest shape as internal/ring.Buffer but over int64
// latency samples rather than PCM.
type ring struct {
	samples  []int64
	capacity int
	next     int
	filled   bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ring{samples: make([]int64, capacity), capacity: capacity}
}

func (r *ring) add(v int64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.filled = true
	}
}

func (r *ring) values() []int64 {
	if !r.filled {
		out := make([]int64, r.next)
		copy(out, r.samples[:r.next])
		return out
	}
	out := make([]int64, r.capacity)
	copy(out, r.samples[r.next:])
	copy(out[r.capacity-r.next:], r.samples[:r.next])
	return out
}

func snapshotOf(values []int64) Snapshot {
	if len(values) == 0 {
		return Snapshot{}
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}

	return Snapshot{
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   float64(sum) / float64(len(sorted)),
		Count: len(sorted),
	}
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Callbacks is the Registry's narrow event sink (§9).
type Callbacks struct {
	OnThresholdExceeded func(sampleType SampleType, actual, target int64)
}

// promVec groups the Prometheus collectors exported for one gauge.
type promVec struct {
	histogram prometheus.Histogram
}

// Registry holds the three bounded latency sample stores of §4.14 and
// exports them to Prometheus.
type Registry struct {
	cb Callbacks

	mu    sync.Mutex
	rings map[SampleType]*ring
	proms map[SampleType]*promVec
}

// NewRegistry constructs a Registry with DefaultCapacity rings for each
// sample type, registering a Prometheus histogram per gauge.
func NewRegistry(registerer prometheus.Registerer, cb Callbacks) *Registry {
	r := &Registry{
		cb:    cb,
		rings: make(map[SampleType]*ring),
		proms: make(map[SampleType]*promVec),
	}
	for _, t := range []SampleType{TypeSTT, TypeTTSFirstAudio, TypeBargeInStop} {
		r.rings[t] = newRing(DefaultCapacity)
		h := prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voiceloop",
			Subsystem: "latency",
			Name:      string(t) + "_ms",
			Help:      "Latency distribution in milliseconds for " + string(t),
			Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
		})
		r.proms[t] = &promVec{histogram: h}
		if registerer != nil {
			registerer.MustRegister(h)
		}
	}
	return r
}

func (r *Registry) record(t SampleType, ms int64) {
	r.mu.Lock()
	r.rings[t].add(ms)
	prom := r.proms[t]
	r.mu.Unlock()

	if prom != nil {
		prom.histogram.Observe(float64(ms))
	}

	if target, ok := targetMs[t]; ok && ms > target {
		if r.cb.OnThresholdExceeded != nil {
			r.cb.OnThresholdExceeded(t, ms, target)
		}
	}
}

// RecordSTT records a speech-end -> transcript-ready latency sample.
func (r *Registry) RecordSTT(ms int64) { r.record(TypeSTT, ms) }

// RecordTTSFirstAudio records a synthesize-call -> first-PCM-enqueued
// latency sample.
func (r *Registry) RecordTTSFirstAudio(ms int64) { r.record(TypeTTSFirstAudio, ms) }

// RecordBargeInStop records a barge-in-detected -> speaker-silent
// latency sample.
func (r *Registry) RecordBargeInStop(ms int64) { r.record(TypeBargeInStop, ms) }

// Snapshot returns the current p50/p95/min/max/avg/count view for t.
func (r *Registry) Snapshot(t SampleType) Snapshot {
	r.mu.Lock()
	values := r.rings[t].values()
	r.mu.Unlock()
	return snapshotOf(values)
}
