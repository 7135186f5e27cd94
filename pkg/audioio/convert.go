package audioio

// Resample converts audio from one sample rate to another using linear interpolation.
// Speech recognisers want 16 kHz while capture runs at the playback rate,
// and linear interpolation is adequate for voice.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / ratio)
	if n == 0 {
		return []int16{}
	}

	out := make([]int16, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(a + frac*(b-a))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

// ToMono converts a chunk to mono PCM16 at rate, the format speech APIs accept.
func ToMono(chunk AudioChunk, rate int) []int16 {
	return Resample(Downmix(chunk.Samples, chunk.Channels), chunk.SampleRate, rate)
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	c := AudioChunk{Samples: samples}
	return c.Bytes()
}
