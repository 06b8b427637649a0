package audio

import "time"

// Frame represents a single fixed-size block of audio samples flowing through
// the pipeline. Frames are the atomic unit of audio transport — captured from
// the input device, classified by the speech detector, and accumulated into
// utterances.
//
// A Frame is immutable once delivered: neither the capture layer nor any
// downstream consumer may modify Samples after the frame has been handed off.
type Frame struct {
	// Samples holds normalised float32 PCM samples in [-1.0, 1.0].
	// The length is fixed per capture session (the configured chunk size).
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for speech-to-text input).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame's audio.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Clone returns a deep copy of the frame. Use this when a consumer needs to
// retain sample data beyond the lifetime of the capture callback.
func (f Frame) Clone() Frame {
	cp := make([]float32, len(f.Samples))
	copy(cp, f.Samples)
	return Frame{Samples: cp, SampleRate: f.SampleRate, Timestamp: f.Timestamp}
}
