// Package mock provides test doubles for the audio package interfaces.
//
// Use Source to drive frames into a consumer under test without a real
// capture device:
//
//	src := &mock.Source{}
//	_ = src.Start(ctx, fn)
//	src.Emit(audio.Frame{Samples: samples, SampleRate: 16000}, audio.Status{})
package mock

import (
	"context"
	"sync"

	"github.com/vaani-ai/vaani/pkg/audio"
)

// Source is a mock implementation of audio.CaptureSource. Tests register a
// consumer via Start and then push frames synchronously with Emit.
type Source struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StartCallCount is the number of times Start was called.
	StartCallCount int

	// StopCallCount is the number of times Stop was called.
	StopCallCount int

	fn audio.FrameFunc
}

// Start records the call and registers fn as the frame consumer.
func (s *Source) Start(_ context.Context, fn audio.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCallCount++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.fn = fn
	return nil
}

// Stop records the call and unregisters the consumer.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCallCount++
	if s.StopErr != nil {
		return s.StopErr
	}
	s.fn = nil
	return nil
}

// Emit delivers a frame to the registered consumer on the caller's goroutine.
// It is a no-op if capture has not been started (or was stopped).
func (s *Source) Emit(frame audio.Frame, status audio.Status) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(frame, status)
	}
}

// Started reports whether a consumer is currently registered. Thread-safe.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// Ensure Source implements audio.CaptureSource at compile time.
var _ audio.CaptureSource = (*Source)(nil)
