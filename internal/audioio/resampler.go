package audioio

// Resampler performs linear-interpolation resampling of int16 PCM,
// adapted from the teacher's float32 Resampler (internal/audio/resampler.go)
// for the int16 frames used throughout this pipeline.
type Resampler struct {
	ratio      float64
	lastSample int16
}

// NewResampler builds a resampler converting fromRate to toRate.
func NewResampler(fromRate, toRate int) *Resampler {
	return &Resampler{ratio: float64(toRate) / float64(fromRate)}
}

// Resample converts input to the target rate via linear interpolation,
// carrying the trailing sample across calls for continuity.
func (r *Resampler) Resample(input []int16) []int16 {
	if r.ratio == 1.0 || len(input) == 0 {
		return input
	}

	outputLen := int(float64(len(input)) * r.ratio)
	output := make([]int16, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		sample1 := r.lastSample
		if srcIdx < len(input) {
			sample1 = input[srcIdx]
		}
		sample2 := sample1
		if srcIdx+1 < len(input) {
			sample2 = input[srcIdx+1]
		} else if srcIdx < len(input) {
			sample2 = input[len(input)-1]
		}

		output[i] = int16(float64(sample1) + (float64(sample2)-float64(sample1))*frac)
	}

	if len(input) > 0 {
		r.lastSample = input[len(input)-1]
	}
	return output
}
