package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a raw PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Decoder converts raw little-endian int16 PCM into the normalized mono
// float32 sample stream the pipeline consumes. It logs a warning on the first
// format conversion and tolerates byte counts that split a sample across
// reads by buffering the leftover byte.
//
// Create one per stream; not designed for shared use across goroutines.
type Decoder struct {
	// Source is the format of the incoming PCM bytes.
	Source Format

	// TargetRate is the sample rate of the decoded output.
	TargetRate int

	warnedMismatch sync.Once
	leftover       []byte
}

// Decode appends pcm to any buffered leftover bytes and returns the decoded
// mono float32 samples at the target rate. The returned slice may be empty
// when pcm is too short to complete a sample.
func (d *Decoder) Decode(pcm []byte) []float32 {
	if len(d.leftover) > 0 {
		pcm = append(d.leftover, pcm...)
		d.leftover = nil
	}
	sampleBytes := 2 * d.channels()
	if rem := len(pcm) % sampleBytes; rem != 0 {
		d.leftover = append([]byte(nil), pcm[len(pcm)-rem:]...)
		pcm = pcm[:len(pcm)-rem]
	}
	if len(pcm) == 0 {
		return nil
	}

	samples := PCM16ToFloat32(pcm)
	if d.channels() == 2 {
		samples = StereoToMono(samples)
	}
	if d.Source.SampleRate != d.TargetRate {
		d.warnedMismatch.Do(func() {
			slog.Warn("audio format mismatch: resampling",
				"from", formatString(d.Source.SampleRate, d.Source.Channels),
				"to", formatString(d.TargetRate, 1),
			)
		})
		samples = ResampleMono(samples, d.Source.SampleRate, d.TargetRate)
	}
	return samples
}

func (d *Decoder) channels() int {
	if d.Source.Channels == 2 {
		return 2
	}
	return 1
}

// PCM16ToFloat32 converts little-endian int16 PCM bytes to normalized float32
// samples in [-1, 1). The input length must be even; a trailing odd byte is
// ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToPCM16 converts normalized float32 samples to little-endian int16
// PCM bytes, clamping values outside [-1, 1).
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(v * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// StereoToMono averages L+R per interleaved stereo frame.
func StereoToMono(samples []float32) []float32 {
	frames := len(samples) / 2
	out := make([]float32, frames)
	for i := range frames {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}

// ResampleMono resamples mono float32 samples from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate, the input is returned
// unchanged.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
