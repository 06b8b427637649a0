package segment

import (
	"context"
	"log/slog"

	"github.com/vaani-ai/vaani/internal/observe"
	"github.com/vaani-ai/vaani/pkg/audio"
)

// WindowConfig holds the construction parameters for a [Window].
type WindowConfig struct {
	// SampleRate in Hz; together with WindowSeconds it sets the window size.
	SampleRate int

	// WindowSeconds is the fixed window duration.
	WindowSeconds float64

	// SilenceEnergyThreshold is the mean absolute amplitude below which a
	// completed window is discarded as silence.
	SilenceEnergyThreshold float64

	// Emit receives completed windows that passed the energy gate. Required.
	Emit EmitFunc

	// Metrics records segmentation counters. Optional.
	Metrics *observe.Metrics
}

// Window is the time-driven fallback segmentation strategy, used when no
// speech detector is configured. Frames accumulate into a fixed-duration
// window; on completion the whole window is either dispatched as one
// utterance (mean absolute amplitude above the silence threshold) or
// discarded silently. It trades segmentation precision for simplicity:
// utterance boundaries fall wherever the window edges happen to land.
//
// Like [Segmenter], a Window is owned by the capture goroutine and is not
// safe for concurrent use.
type Window struct {
	windowSamples int
	threshold     float64
	emit          EmitFunc
	metrics       *observe.Metrics

	buf []float32
}

// NewWindow creates an empty Window.
func NewWindow(cfg WindowConfig) *Window {
	return &Window{
		windowSamples: int(cfg.WindowSeconds * float64(cfg.SampleRate)),
		threshold:     cfg.SilenceEnergyThreshold,
		emit:          cfg.Emit,
		metrics:       cfg.Metrics,
	}
}

// ProcessFrame appends the frame to the current window and evaluates the
// window once it reaches its configured duration.
func (w *Window) ProcessFrame(frame audio.Frame) {
	w.buf = append(w.buf, frame.Samples...)
	if len(w.buf) < w.windowSamples {
		return
	}

	window := w.buf
	w.buf = nil

	level := audio.MeanAbs(window)
	if level <= w.threshold {
		slog.Debug("discarding silent window", "level", level, "threshold", w.threshold)
		return
	}

	slog.Info("audio detected in window", "level", level, "samples", len(window))
	if w.metrics != nil {
		w.metrics.RecordUtterance(context.Background(), "window")
	}
	w.emit(window)
}

// BufferedSamples returns the number of samples in the open window.
func (w *Window) BufferedSamples() int { return len(w.buf) }
