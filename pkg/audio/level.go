package audio

import (
	"errors"
	"math"
)

// ErrAlreadyCapturing is returned by CaptureSource.Start when capture is
// already running on the source.
var ErrAlreadyCapturing = errors.New("audio: capture already running")

// RMS returns the root-mean-square amplitude of the samples. Returns 0 for an
// empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// MeanAbs returns the mean absolute amplitude of the samples. Returns 0 for an
// empty slice.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}
