// Package segment converts a live frame stream into discrete utterances.
//
// Two strategies are provided:
//
//   - [Segmenter] — an event-driven state machine gating on a per-frame speech
//     detector, with hysteresis so brief pauses do not truncate an utterance.
//   - [Window] — a time-driven fallback that batches fixed-duration windows
//     and gates on mean energy, for use when no detector is configured.
//
// Both run entirely on the capture goroutine and never block: utterance
// emission hands the buffer to a callback and returns immediately. All state
// is owned by the capture goroutine; no external component may mutate it.
package segment

import (
	"context"
	"log/slog"

	"github.com/vaani-ai/vaani/internal/observe"
	"github.com/vaani-ai/vaani/pkg/audio"
	"github.com/vaani-ai/vaani/pkg/provider/vad"
)

// energyFallbackThreshold is the RMS amplitude used to classify a frame when
// the detector fails mid-stream.
const energyFallbackThreshold = 0.01

// Classifier wraps a vad.Detector with a degradation path so that detector
// failures never reach the segmenter: a frame is always classified, one way
// or another.
//
// On a detector error or panic the frame is classified by the RMS energy
// heuristic instead, the failure is logged, and the stream continues. The
// Classifier is stateless from the segmenter's point of view; any recurrent
// state belongs to the underlying detector.
type Classifier struct {
	det     vad.Detector
	metrics *observe.Metrics

	// warned limits failure logging to once per classifier at warn level;
	// subsequent failures log at debug.
	warned bool
}

// NewClassifier wraps det. The detector must not be nil — when no detector is
// available at all, use [Window] instead of a Segmenter.
func NewClassifier(det vad.Detector, metrics *observe.Metrics) *Classifier {
	return &Classifier{det: det, metrics: metrics}
}

// IsSpeech classifies one frame, degrading to the energy heuristic if the
// detector fails. Runs on the capture goroutine; must stay within the
// per-frame time budget.
func (c *Classifier) IsSpeech(frame []float32) (speech bool) {
	defer func() {
		if r := recover(); r != nil {
			c.recordFailure("detector panic", r)
			speech = audio.RMS(frame) > energyFallbackThreshold
		}
	}()

	ok, err := c.det.IsSpeech(frame)
	if err != nil {
		c.recordFailure("detector error", err)
		return audio.RMS(frame) > energyFallbackThreshold
	}
	return ok
}

// Reset clears the underlying detector's recurrent state.
func (c *Classifier) Reset() {
	c.det.Reset()
}

func (c *Classifier) recordFailure(msg string, cause any) {
	if c.metrics != nil {
		c.metrics.ClassifierFailures.Add(context.Background(), 1)
	}
	if !c.warned {
		c.warned = true
		slog.Warn("speech classifier degraded to energy heuristic", "reason", msg, "cause", cause)
		return
	}
	slog.Debug("speech classifier failure", "reason", msg, "cause", cause)
}
