// Package energy implements a vad.Engine backed by a root-mean-square
// amplitude heuristic.
//
// The energy detector has no model to load and no recurrent state, which
// makes it the zero-dependency fallback when a neural detector is
// unavailable. It is markedly less accurate than model-based VAD in noisy
// environments; prefer it only as a degradation path or for quiet-room use.
package energy

import (
	"fmt"

	"github.com/vaani-ai/vaani/pkg/audio"
	"github.com/vaani-ai/vaani/pkg/provider/vad"
)

// DefaultThreshold is the RMS amplitude above which a frame is classified as
// speech when no explicit threshold is configured.
const DefaultThreshold = 0.01

// Engine implements vad.Engine using an RMS amplitude threshold.
type Engine struct {
	// Threshold overrides DefaultThreshold when > 0. Note this is an
	// amplitude, not a probability: the Config.Threshold probability field is
	// ignored by this engine.
	Threshold float64
}

// NewDetector implements vad.Engine.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	th := e.Threshold
	if th <= 0 {
		th = DefaultThreshold
	}
	return &detector{threshold: th, chunkFrames: cfg.ChunkFrames}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

type detector struct {
	threshold   float64
	chunkFrames int
}

// IsSpeech classifies the frame as speech when its RMS amplitude exceeds the
// configured threshold.
func (d *detector) IsSpeech(frame []float32) (bool, error) {
	if d.chunkFrames > 0 && len(frame) != d.chunkFrames {
		return false, fmt.Errorf("energy: frame has %d samples, want %d", len(frame), d.chunkFrames)
	}
	return audio.RMS(frame) > d.threshold, nil
}

// Reset is a no-op; the energy detector keeps no state across frames.
func (d *detector) Reset() {}

// Close is a no-op and always returns nil.
func (d *detector) Close() error { return nil }

// Ensure detector implements vad.Detector at compile time.
var _ vad.Detector = (*detector)(nil)
