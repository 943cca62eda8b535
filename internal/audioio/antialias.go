package audioio

import "math"

// AntiAliasResampler downsamples int16 PCM through a windowed-sinc FIR
// filter, adapted from the teacher's PolyphaseResampler
// (internal/audio/polyphase.go) for the int16 pipeline used here. Plain
// linear interpolation (Resampler) is fine for upsampling TTS output, but
// downsampling a mic capture that only offers 48kHz needs the low-pass
// filter or speech energy above the target Nyquist frequency aliases back
// into the band the VAD and STT models expect.
type AntiAliasResampler struct {
	ratio     float64
	filterLen int
	filter    []float32
	history   []float32
}

// NewAntiAliasResampler builds a 64-tap Hamming-windowed sinc low-pass
// filter cut at the target Nyquist frequency, for fromRate -> toRate
// where toRate < fromRate.
func NewAntiAliasResampler(fromRate, toRate int) *AntiAliasResampler {
	ratio := float64(toRate) / float64(fromRate)
	filterLen := 64
	cutoff := ratio * 0.5

	filter := make([]float32, filterLen)
	for i := 0; i < filterLen; i++ {
		n := float64(i) - float64(filterLen-1)/2.0
		if n == 0 {
			filter[i] = float32(2.0 * cutoff)
		} else {
			sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
			window := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(filterLen-1))
			filter[i] = float32(sinc * window)
		}
	}
	var sum float32
	for _, f := range filter {
		sum += f
	}
	for i := range filter {
		filter[i] /= sum
	}

	return &AntiAliasResampler{
		ratio:     ratio,
		filterLen: filterLen,
		filter:    filter,
		history:   make([]float32, filterLen),
	}
}

// Resample filters and decimates input, carrying filter history across
// calls for continuity at chunk boundaries.
func (r *AntiAliasResampler) Resample(input []int16) []int16 {
	if len(input) == 0 {
		return nil
	}

	combined := make([]float32, len(r.history)+len(input))
	copy(combined, r.history)
	for i, s := range input {
		combined[len(r.history)+i] = float32(s)
	}

	outputLen := int(float64(len(input)) * r.ratio)
	output := make([]int16, outputLen)
	for i := 0; i < outputLen; i++ {
		srcIdx := int(float64(i)/r.ratio) + len(r.history)
		var sample float32
		for j := 0; j < r.filterLen; j++ {
			idx := srcIdx - r.filterLen/2 + j
			if idx >= 0 && idx < len(combined) {
				sample += combined[idx] * r.filter[j]
			}
		}
		output[i] = int16(sample)
	}

	if len(input) >= r.filterLen {
		copy(r.history, float32sOf(input[len(input)-r.filterLen:]))
	} else {
		shift := r.filterLen - len(input)
		copy(r.history, r.history[len(input):])
		copy(r.history[shift:], float32sOf(input))
	}

	return output
}

func float32sOf(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
