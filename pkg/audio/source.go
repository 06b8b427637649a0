// Package audio defines the types and interfaces for audio capture
// connectivity within Vaani.
//
// The primary abstraction is [CaptureSource]: a device or stream that invokes
// a caller-supplied callback at a fixed cadence with fixed-size frames. The
// interface is intentionally narrow so that the stream engine stays decoupled
// from device details (PortAudio, ALSA, a network feed, or a test double).
//
// This package lives under pkg/ because external code (alternative capture
// backends) is expected to implement [CaptureSource].
package audio

import (
	"context"
	"time"
)

// Status carries per-frame delivery metadata from the capture layer.
type Status struct {
	// Overflow indicates the capture device's internal buffer overran because
	// the consumer fell behind. A frame delivered with Overflow set contains
	// unreliable data and must be dropped, never processed as audio.
	Overflow bool
}

// FrameFunc is the callback invoked by a [CaptureSource] for every captured
// frame. It runs on the source's dedicated capture goroutine and must never
// block: classification and buffering have to complete well within one frame
// interval or the device will overflow and drop frames.
type FrameFunc func(frame Frame, status Status)

// CaptureSource is the entry point for a live audio input.
//
// Implementations own a dedicated capture goroutine that invokes the
// registered [FrameFunc] at the device's native cadence. Implementations must
// be safe for concurrent use of Start and Stop.
type CaptureSource interface {
	// Start begins capture and delivers frames to fn until Stop is called or
	// ctx is cancelled. It returns an error if the device cannot be opened;
	// once capture is running, per-frame problems are reported through the
	// Status argument instead.
	//
	// Calling Start while capture is already running returns an error.
	Start(ctx context.Context, fn FrameFunc) error

	// Stop halts capture and joins the capture goroutine. It is safe to call
	// Stop more than once; subsequent calls are no-ops and return nil.
	Stop() error
}

// SampleProvider supplies raw sample blocks for a [TickerSource]. Implementations
// return exactly n samples per call (zero-padding a short final read is the
// provider's responsibility).
type SampleProvider func(n int) ([]float32, error)

// TickerSource is a CaptureSource that pulls fixed-size sample blocks from a
// SampleProvider at the real-time cadence implied by the sample rate and chunk
// size. It exists for demos and tests where no physical device is available:
// point it at a WAV reader or a synthetic tone generator and it behaves like
// a microphone.
type TickerSource struct {
	sampleRate  int
	chunkFrames int
	provider    SampleProvider

	done chan struct{}
	stop func()
}

// NewTickerSource creates a TickerSource delivering chunkFrames samples per
// frame at sampleRate Hz.
func NewTickerSource(sampleRate, chunkFrames int, provider SampleProvider) *TickerSource {
	return &TickerSource{
		sampleRate:  sampleRate,
		chunkFrames: chunkFrames,
		provider:    provider,
	}
}

// Start implements [CaptureSource]. Frames are delivered from a dedicated
// goroutine at the cadence of one chunk duration per tick. A provider error
// ends capture silently; a slow consumer is reported as an overflow frame.
func (t *TickerSource) Start(ctx context.Context, fn FrameFunc) error {
	if t.done != nil {
		select {
		case <-t.done:
		default:
			return ErrAlreadyCapturing
		}
	}
	interval := time.Duration(t.chunkFrames) * time.Second / time.Duration(t.sampleRate)
	ctx, cancel := context.WithCancel(ctx)
	t.stop = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var elapsed time.Duration
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				samples, err := t.provider(t.chunkFrames)
				if err != nil {
					return
				}
				fn(Frame{
					Samples:    samples,
					SampleRate: t.sampleRate,
					Timestamp:  elapsed,
				}, Status{})
				elapsed += interval
			}
		}
	}()
	return nil
}

// Stop implements [CaptureSource].
func (t *TickerSource) Stop() error {
	if t.stop != nil {
		t.stop()
		<-t.done
	}
	return nil
}

// Ensure TickerSource implements CaptureSource at compile time.
var _ CaptureSource = (*TickerSource)(nil)
