// Package mock provides a test double for the stt package interfaces.
//
// Use Transcriber to script transcription results and inspect the utterances
// that were submitted:
//
//	tr := &mock.Transcriber{Result: stt.Result{Text: "hello", Latency: 80 * time.Millisecond}}
//	res, _ := tr.Transcribe(ctx, samples, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/vaani-ai/vaani/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the utterance passed to Transcribe.
	Samples []float32

	// SampleRate is the sample rate passed to Transcribe.
	SampleRate int
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every successful Transcribe call.
	Result stt.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// PanicOnCall, if true, makes Transcribe panic. Used to exercise the
	// dispatcher's recovery path.
	PanicOnCall bool

	// Block, if non-nil, makes Transcribe wait until the channel is closed
	// before returning. Used to simulate slow transcription engines.
	Block chan struct{}

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, TranscribeErr.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	t.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Samples: cp, SampleRate: sampleRate})
	block := t.Block
	t.mu.Unlock()

	if t.PanicOnCall {
		panic("mock transcriber: scripted panic")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.TranscribeErr != nil {
		return stt.Result{}, t.TranscribeErr
	}
	return t.Result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}

// ResetCalls clears all recorded call history. Thread-safe.
func (t *Transcriber) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
