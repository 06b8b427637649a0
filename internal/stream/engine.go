// Package stream provides the orchestrator that owns the live capture
// session: it wires the capture source into the active segmentation strategy,
// hands completed utterances to the transcription dispatcher, and exposes the
// lifecycle and event surface callers interact with.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vaani-ai/vaani/internal/config"
	"github.com/vaani-ai/vaani/internal/dispatch"
	"github.com/vaani-ai/vaani/internal/observe"
	"github.com/vaani-ai/vaani/internal/segment"
	"github.com/vaani-ai/vaani/pkg/audio"
	"github.com/vaani-ai/vaani/pkg/provider/stt"
	"github.com/vaani-ai/vaani/pkg/provider/vad"
)

// joinTimeout bounds how long Stop waits for the capture source to join.
const joinTimeout = 2 * time.Second

// LifecycleState enumerates the engine's lifecycle states.
type LifecycleState int

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the human-readable name of the lifecycle state.
func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Handlers is the event surface exposed to callers. All callbacks are
// optional; nil fields are skipped. Processing, Result, and Failure are
// invoked from transcription worker goroutines and may arrive after Stop —
// implementations must tolerate late events and marshal to a single-consumer
// context themselves if they need one. Chunk is invoked on the capture
// goroutine and must not block.
type Handlers struct {
	// Started fires once when the engine reaches Running.
	Started func()

	// Chunk fires for every accepted (non-overflow) frame, passing the raw
	// frame through to observers.
	Chunk func(frame audio.Frame)

	// Processing fires when a transcription worker picks up an utterance.
	Processing func()

	// Result fires on each surfaced transcription.
	Result func(text string, latency time.Duration)

	// Failure fires when a transcription attempt fails.
	Failure func(err error)

	// Stopped fires once when the engine reaches Stopped after a Stop call.
	Stopped func()
}

// Strategy converts the frame stream into utterances. Implemented by
// [segment.Segmenter] and [segment.Window].
type Strategy interface {
	ProcessFrame(frame audio.Frame)
}

// Deps bundles the injected collaborators for an [Engine]. Model-backed
// dependencies (detector, transcriber) are constructed and owned by the
// caller — loaded once at startup and reused across sessions — rather than
// hidden inside the engine.
type Deps struct {
	// Source delivers capture frames. Required.
	Source audio.CaptureSource

	// Detector is the per-frame speech detector. When nil, the engine uses
	// the time-driven fallback windowing strategy instead of the segmenter.
	Detector vad.Detector

	// Transcriber converts utterances to text. When nil, utterances are
	// segmented but dropped with a warning.
	Transcriber stt.Transcriber

	// Handlers is the caller's event surface.
	Handlers Handlers

	// Metrics records engine instrumentation. Optional.
	Metrics *observe.Metrics
}

// Engine owns one capture session at a time.
//
// Lifecycle: Stopped → Starting → Running → Stopping → Stopped. Start and
// Stop are idempotent: redundant calls log a warning and return nil, never an
// error. All exported methods are safe for concurrent use. Segmentation state
// is owned exclusively by the capture goroutine.
type Engine struct {
	cfg  *config.Config
	deps Deps

	mu         sync.Mutex
	state      LifecycleState
	strategy   Strategy
	dispatcher *dispatch.Dispatcher
	warnedDrop bool
}

// New creates an Engine in the Stopped state. cfg must already be validated.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("stream: capture source is required")
	}
	return &Engine{cfg: cfg, deps: deps}, nil
}

// Start subscribes to the capture source and begins feeding frames into the
// active segmentation strategy. Calling Start while the engine is already
// running is a no-op with a warning. A capture source that cannot be opened
// is fatal and surfaced once as the returned error; the engine returns to
// Stopped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		state := e.state
		e.mu.Unlock()
		slog.Warn("start ignored: engine is not stopped", "state", state)
		return nil
	}
	e.state = StateStarting
	e.buildSessionLocked()
	e.mu.Unlock()

	if err := e.deps.Source.Start(ctx, e.onFrame); err != nil {
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		return fmt.Errorf("stream: start capture: %w", err)
	}

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	slog.Info("stream engine started",
		"sample_rate", e.cfg.Audio.SampleRate,
		"chunk_frames", e.cfg.Audio.ChunkFrames,
		"mode", e.mode(),
	)
	if e.deps.Handlers.Started != nil {
		e.deps.Handlers.Started()
	}
	return nil
}

// Stop unsubscribes from the capture source, joins the capture goroutine with
// a bounded timeout, and transitions to Stopped. Calling Stop while already
// stopped is a no-op with a warning. In-flight transcription workers are not
// cancelled; they complete or fail independently and their late events must
// be tolerated by handlers.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		slog.Warn("stop ignored: engine is not running", "state", state)
		return nil
	}
	e.state = StateStopping
	e.mu.Unlock()

	joined := make(chan error, 1)
	go func() { joined <- e.deps.Source.Stop() }()
	select {
	case err := <-joined:
		if err != nil {
			slog.Warn("capture source stop error", "error", err)
		}
	case <-time.After(joinTimeout):
		slog.Warn("capture source did not join within timeout", "timeout", joinTimeout)
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	slog.Info("stream engine stopped")
	if e.deps.Handlers.Stopped != nil {
		e.deps.Handlers.Stopped()
	}
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() LifecycleState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Drain blocks until all in-flight transcription workers from the current or
// previous session have finished. Stop does not drain; call this from the
// final process shutdown path when a clean exit is wanted.
func (e *Engine) Drain() {
	e.mu.Lock()
	d := e.dispatcher
	e.mu.Unlock()
	if d != nil {
		d.Wait()
	}
}

// mode names the active segmentation strategy for logs.
func (e *Engine) mode() string {
	if e.deps.Detector != nil {
		return "vad"
	}
	return "window"
}

// buildSessionLocked constructs the per-session segmentation strategy and
// dispatcher. Caller must hold e.mu. The strategy is rebuilt on every Start
// so that a new session begins with clean counters and buffers.
func (e *Engine) buildSessionLocked() {
	e.dispatcher = nil
	if e.deps.Transcriber != nil {
		e.dispatcher = dispatch.New(dispatch.Config{
			Transcriber:         e.deps.Transcriber,
			SampleRate:          e.cfg.Audio.SampleRate,
			MinResultTextLength: e.cfg.STT.MinResultTextLength,
			Metrics:             e.deps.Metrics,
			Events: dispatch.Events{
				Processing: e.deps.Handlers.Processing,
				Result:     e.deps.Handlers.Result,
				Failure:    e.deps.Handlers.Failure,
			},
		})
	}

	if e.deps.Detector != nil {
		e.deps.Detector.Reset()
		e.strategy = segment.NewSegmenter(segment.SegmenterConfig{
			Classifier:       segment.NewClassifier(e.deps.Detector, e.deps.Metrics),
			MinSpeechFrames:  e.cfg.VAD.MinSpeechFrames,
			MaxSilenceFrames: e.cfg.VAD.MaxSilenceFrames,
			Emit:             e.dispatchUtterance,
			Metrics:          e.deps.Metrics,
		})
		return
	}
	e.strategy = segment.NewWindow(segment.WindowConfig{
		SampleRate:             e.cfg.Audio.SampleRate,
		WindowSeconds:          e.cfg.Fallback.WindowSeconds,
		SilenceEnergyThreshold: e.cfg.Fallback.SilenceEnergyThreshold,
		Emit:                   e.dispatchUtterance,
		Metrics:                e.deps.Metrics,
	})
}

// dispatchUtterance hands a completed utterance to the dispatcher, or drops
// it when no transcriber is configured.
func (e *Engine) dispatchUtterance(utterance []float32) {
	if e.dispatcher == nil {
		if !e.warnedDrop {
			e.warnedDrop = true
			slog.Warn("no transcriber configured; dropping utterance")
		}
		return
	}
	e.dispatcher.Dispatch(utterance)
}

// onFrame is the capture callback. It runs on the capture goroutine and must
// never block; everything it calls is O(1) per frame apart from the
// synchronous detector inference, which must fit the per-frame time budget.
func (e *Engine) onFrame(frame audio.Frame, status audio.Status) {
	if status.Overflow {
		slog.Warn("capture buffer overflow, skipping frame")
		if e.deps.Metrics != nil {
			e.deps.Metrics.OverflowDrops.Add(context.Background(), 1)
		}
		return
	}

	e.mu.Lock()
	running := e.state == StateRunning || e.state == StateStarting
	strategy := e.strategy
	e.mu.Unlock()
	if !running || strategy == nil {
		return
	}

	if e.deps.Metrics != nil {
		e.deps.Metrics.FramesProcessed.Add(context.Background(), 1)
	}

	strategy.ProcessFrame(frame)

	if e.deps.Handlers.Chunk != nil {
		e.deps.Handlers.Chunk(frame)
	}
}
