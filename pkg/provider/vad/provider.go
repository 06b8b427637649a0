// Package vad defines the Engine interface for per-frame speech detection
// backends.
//
// A VAD engine wraps a frame-level speech/silence classifier (e.g., Silero
// VAD, WebRTC VAD, or a plain energy heuristic) and surfaces it as a stateful
// per-stream detector. Each detector maintains its own internal state
// (recurrent model state, smoothing history) so that multiple concurrent
// audio streams can be classified independently.
//
// Detection is synchronous by design: IsSpeech returns immediately, making it
// suitable for the capture callback path where the per-frame time budget is
// one frame interval (~32 ms at 16 kHz / 512-sample frames).
//
// Implementations of Engine must be safe for concurrent use. A single
// Detector should not be shared across goroutines unless the implementation
// explicitly documents thread safety.
package vad

// Config holds the parameters for a detector. All thresholds are expressed in
// the model's native probability scale.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to IsSpeech. Common values: 8000, 16000.
	SampleRate int

	// ChunkFrames is the number of samples per frame. Most models operate on
	// fixed frame sizes; IsSpeech may return an error if the supplied frame
	// does not match.
	ChunkFrames int

	// Threshold is the speech probability above which a frame is classified
	// as speech. Range: [0.0, 1.0]. Higher values reduce false positives at
	// the cost of clipped speech onsets. Typical: 0.6 for streaming use.
	Threshold float64
}

// Detector classifies individual audio frames as speech or silence for a
// single stream. It is an interface so that test code can supply mock
// implementations without a live model.
type Detector interface {
	// IsSpeech classifies one frame. The frame must be normalised float32 PCM
	// at the SampleRate and ChunkFrames configured when the detector was
	// created. Returns an error on a wrong frame size or an internal model
	// failure; callers are expected to degrade gracefully rather than stop
	// the stream.
	//
	// IsSpeech is called synchronously on the capture path; it must not block.
	IsSpeech(frame []float32) (bool, error)

	// Reset clears accumulated detection state (model memory, smoothing
	// history) without closing the detector. Use this when the audio stream
	// is interrupted or restarted.
	Reset()

	// Close releases resources associated with the detector. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for detectors. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewDetector simultaneously to create independent detectors.
type Engine interface {
	// NewDetector creates a detector with the given configuration, ready to
	// classify frames immediately.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, threshold out of range) or resources cannot be allocated.
	NewDetector(cfg Config) (Detector, error)
}
