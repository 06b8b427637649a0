// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber converts one complete utterance — a bounded buffer of audio
// samples — into text in a single blocking call. This single-shot shape
// matches how the dispatch layer uses it: each finished utterance is handed
// to a worker goroutine which calls Transcribe exactly once and relays the
// outcome.
//
// Transcribe may be slow (hundreds of milliseconds to seconds for local
// Whisper inference); it must therefore never be invoked from the audio
// capture goroutine. No internal timeout is imposed — if a deadline is
// needed, the caller supplies it via ctx.
//
// Implementations must be safe for concurrent use: multiple utterances may be
// in flight simultaneously.
package stt

import (
	"context"
	"time"
)

// Result is a successful transcription outcome.
type Result struct {
	// Text is the transcribed speech content. May be empty when the engine
	// recognised no words in the utterance.
	Text string

	// Latency is the wall-clock duration of the transcription call.
	Latency time.Duration
}

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts an utterance of normalised float32 PCM samples at
	// the given sample rate into text. Blocks until transcription completes
	// or ctx is cancelled.
	//
	// A non-nil error indicates the engine failed or returned an unusable
	// result; the returned Result is meaningless in that case.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)
}
