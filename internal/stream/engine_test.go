package stream_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vaani-ai/vaani/internal/config"
	"github.com/vaani-ai/vaani/internal/stream"
	"github.com/vaani-ai/vaani/pkg/audio"
	audiomock "github.com/vaani-ai/vaani/pkg/audio/mock"
	"github.com/vaani-ai/vaani/pkg/provider/stt"
	sttmock "github.com/vaani-ai/vaani/pkg/provider/stt/mock"
	vadmock "github.com/vaani-ai/vaani/pkg/provider/vad/mock"
)

const (
	chunkFrames = 512
	sampleRate  = 16000
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

// recorder collects engine events safely across goroutines.
type recorder struct {
	mu       sync.Mutex
	started  int
	stopped  int
	chunks   int
	results  []string
	failures []error
}

func (r *recorder) handlers() stream.Handlers {
	return stream.Handlers{
		Started: func() { r.mu.Lock(); r.started++; r.mu.Unlock() },
		Stopped: func() { r.mu.Lock(); r.stopped++; r.mu.Unlock() },
		Chunk:   func(audio.Frame) { r.mu.Lock(); r.chunks++; r.mu.Unlock() },
		Result: func(text string, _ time.Duration) {
			r.mu.Lock()
			r.results = append(r.results, text)
			r.mu.Unlock()
		},
		Failure: func(err error) {
			r.mu.Lock()
			r.failures = append(r.failures, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) counts() (started, stopped, chunks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.stopped, r.chunks
}

func (r *recorder) resultTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

// frame builds a constant-amplitude frame.
func frame(amplitude float32) audio.Frame {
	samples := make([]float32, chunkFrames)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{Samples: samples, SampleRate: sampleRate}
}

func TestEngine_StartStopLifecycle(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	rec := &recorder{}
	eng, err := stream.New(testConfig(), stream.Deps{
		Source:   src,
		Handlers: rec.handlers(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if eng.State() != stream.StateStopped {
		t.Errorf("initial state: got %v, want stopped", eng.State())
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if eng.State() != stream.StateRunning {
		t.Errorf("state after Start: got %v, want running", eng.State())
	}
	if !src.Started() {
		t.Error("capture source should be subscribed after Start")
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if eng.State() != stream.StateStopped {
		t.Errorf("state after Stop: got %v, want stopped", eng.State())
	}
	if src.Started() {
		t.Error("capture source should be unsubscribed after Stop")
	}

	started, stopped, _ := rec.counts()
	if started != 1 || stopped != 1 {
		t.Errorf("events: got %d started / %d stopped, want 1 / 1", started, stopped)
	}
}

func TestEngine_StartWhileRunningIsNoOp(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	eng, err := stream.New(testConfig(), stream.Deps{Source: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	if src.StartCallCount != 1 {
		t.Errorf("source Start calls: got %d, want 1", src.StartCallCount)
	}
}

func TestEngine_StopWhileStoppedIsNoOp(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	eng, err := stream.New(testConfig(), stream.Deps{Source: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop while stopped should be a no-op, got %v", err)
	}
	if src.StopCallCount != 0 {
		t.Errorf("source Stop calls: got %d, want 0", src.StopCallCount)
	}
}

func TestEngine_CaptureStartFailureSurfacedOnce(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{StartErr: errors.New("device busy")}
	eng, err := stream.New(testConfig(), stream.Deps{Source: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := eng.Start(context.Background()); err == nil {
		t.Fatal("Start should surface the capture source error")
	}
	if eng.State() != stream.StateStopped {
		t.Errorf("state after failed Start: got %v, want stopped", eng.State())
	}

	// The engine must be startable again once the fault clears.
	src.StartErr = nil
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start after fault cleared: %v", err)
	}
}

func TestEngine_MissingSourceRejected(t *testing.T) {
	t.Parallel()

	if _, err := stream.New(testConfig(), stream.Deps{}); err == nil {
		t.Fatal("New without a capture source should fail")
	}
}

func TestEngine_OverflowFramesDropped(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	rec := &recorder{}
	eng, err := stream.New(testConfig(), stream.Deps{
		Source:   src,
		Handlers: rec.handlers(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	src.Emit(frame(0.1), audio.Status{Overflow: true})
	src.Emit(frame(0.1), audio.Status{})

	_, _, chunks := rec.counts()
	if chunks != 1 {
		t.Errorf("chunk events: got %d, want 1 (overflow frame dropped)", chunks)
	}
}

func TestEngine_VADPipelineProducesResult(t *testing.T) {
	t.Parallel()

	// 25 speech frames then 13 silence frames close one utterance, which the
	// transcriber turns into a surfaced result.
	var results []bool
	for i := 0; i < 25; i++ {
		results = append(results, true)
	}
	for i := 0; i < 13; i++ {
		results = append(results, false)
	}
	det := &vadmock.Detector{Results: results}
	tr := &sttmock.Transcriber{Result: stt.Result{Text: "hello world", Latency: 10 * time.Millisecond}}
	src := &audiomock.Source{}
	rec := &recorder{}

	eng, err := stream.New(testConfig(), stream.Deps{
		Source:      src,
		Detector:    det,
		Transcriber: tr,
		Handlers:    rec.handlers(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 38; i++ {
		src.Emit(frame(0.1), audio.Status{})
	}
	eng.Drain()

	got := rec.resultTexts()
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("results: got %v, want [hello world]", got)
	}
	if tr.CallCount() != 1 {
		t.Errorf("transcriber calls: got %d, want 1", tr.CallCount())
	}
	if want := (25 + 13) * chunkFrames; len(tr.TranscribeCalls[0].Samples) != want {
		t.Errorf("utterance samples: got %d, want %d", len(tr.TranscribeCalls[0].Samples), want)
	}
}

func TestEngine_WindowFallbackWithoutDetector(t *testing.T) {
	t.Parallel()

	tr := &sttmock.Transcriber{Result: stt.Result{Text: "window speech"}}
	src := &audiomock.Source{}
	rec := &recorder{}

	eng, err := stream.New(testConfig(), stream.Deps{
		Source:      src,
		Transcriber: tr,
		Handlers:    rec.handlers(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A full 3-second window of loud audio.
	framesPerWindow := 3*sampleRate/chunkFrames + 1
	for i := 0; i < framesPerWindow; i++ {
		src.Emit(frame(0.05), audio.Status{})
	}
	eng.Drain()

	got := rec.resultTexts()
	if len(got) != 1 || got[0] != "window speech" {
		t.Errorf("results: got %v, want [window speech]", got)
	}
}

func TestEngine_TranscriptionFailureSurfacedAsEvent(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{Default: true, Results: nil}
	// Scripted: speech for the whole utterance, then silence to close it.
	var results []bool
	for i := 0; i < 25; i++ {
		results = append(results, true)
	}
	for i := 0; i < 13; i++ {
		results = append(results, false)
	}
	det.Results = results

	tr := &sttmock.Transcriber{TranscribeErr: errors.New("engine unavailable")}
	src := &audiomock.Source{}
	rec := &recorder{}

	eng, err := stream.New(testConfig(), stream.Deps{
		Source:      src,
		Detector:    det,
		Transcriber: tr,
		Handlers:    rec.handlers(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 38; i++ {
		src.Emit(frame(0.1), audio.Status{})
	}
	eng.Drain()

	rec.mu.Lock()
	failures := len(rec.failures)
	resultCount := len(rec.results)
	rec.mu.Unlock()
	if failures != 1 {
		t.Errorf("failure events: got %d, want 1", failures)
	}
	if resultCount != 0 {
		t.Errorf("result events after failure: got %d, want 0", resultCount)
	}
}

func TestEngine_FramesAfterStopIgnored(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{Default: true}
	tr := &sttmock.Transcriber{Result: stt.Result{Text: "hello world"}}
	src := &audiomock.Source{}
	rec := &recorder{}

	eng, err := stream.New(testConfig(), stream.Deps{
		Source:      src,
		Detector:    det,
		Transcriber: tr,
		Handlers:    rec.handlers(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Hold a reference to the frame callback by emitting through the mock
	// before Stop clears it, then verify post-Stop frames change nothing.
	src.Emit(frame(0.1), audio.Status{})
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	src.Emit(frame(0.1), audio.Status{})

	_, _, chunks := rec.counts()
	if chunks != 1 {
		t.Errorf("chunk events: got %d, want 1 (post-stop frame ignored)", chunks)
	}
}

func TestEngine_RestartResetsSegmentationState(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{Default: true}
	src := &audiomock.Source{}

	eng, err := stream.New(testConfig(), stream.Deps{
		Source:   src,
		Detector: det,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Leave an utterance half-open.
	for i := 0; i < 10; i++ {
		src.Emit(frame(0.1), audio.Status{})
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if det.ResetCallCount < 2 {
		t.Errorf("detector Reset calls: got %d, want at least 2 (one per session)", det.ResetCallCount)
	}
}
