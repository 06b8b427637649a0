// Package dispatch offloads completed utterances to asynchronous
// transcription and relays outcomes via callback events.
//
// Dispatch is fire-and-forget per utterance: each one gets its own worker
// goroutine, with no shared queue and no concurrency cap. Under sustained
// rapid speech resource usage grows unboundedly — a known, explicit
// limitation of the design, visible on the ActiveTranscriptions gauge.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vaani-ai/vaani/internal/observe"
	"github.com/vaani-ai/vaani/pkg/provider/stt"
)

// Events is the callback surface for transcription outcomes. Callbacks are
// invoked from worker goroutines; implementations must be safe to call from
// any goroutine and are responsible for marshaling to a single-consumer
// context if they need one. Nil fields are skipped.
type Events struct {
	// Processing fires when a worker picks up an utterance, before the
	// transcription call.
	Processing func()

	// Result fires on a successful transcription whose trimmed text is at
	// least the configured minimum length.
	Result func(text string, latency time.Duration)

	// Failure fires when the transcription engine returns an error or
	// panics. Fired at most once per utterance.
	Failure func(err error)
}

// Config holds the construction parameters for a [Dispatcher].
type Config struct {
	// Transcriber converts utterances to text. Required.
	Transcriber stt.Transcriber

	// SampleRate of the utterance samples, passed through to the transcriber.
	SampleRate int

	// MinResultTextLength is the minimum trimmed transcript length (in
	// runes) for a result to be surfaced; shorter results are discarded as
	// noise.
	MinResultTextLength int

	// Events receives transcription outcomes.
	Events Events

	// Metrics records dispatch instrumentation. Optional.
	Metrics *observe.Metrics
}

// Dispatcher hands finished utterances to the transcription engine without
// ever blocking the caller. Errors and panics from the engine are contained
// in the worker and surfaced only as Failure events.
//
// Dispatch is safe for concurrent use, although in practice it is called
// from the single capture goroutine.
type Dispatcher struct {
	tr         stt.Transcriber
	sampleRate int
	minTextLen int
	events     Events
	metrics    *observe.Metrics

	// wg tracks worker goroutines so tests and shutdown paths can
	// synchronise with in-flight transcriptions. Stop deliberately does not
	// wait on it; see Wait.
	wg sync.WaitGroup
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		tr:         cfg.Transcriber,
		sampleRate: cfg.SampleRate,
		minTextLen: cfg.MinResultTextLength,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
	}
}

// Dispatch starts a worker goroutine for the utterance and returns
// immediately. Ownership of the sample slice transfers to the worker.
func (d *Dispatcher) Dispatch(utterance []float32) {
	d.wg.Add(1)
	go d.run(utterance)
}

// Wait blocks until all in-flight workers have finished. The stream engine
// does not call this on stop — in-flight transcriptions complete or fail
// independently and their late events must be tolerated — but tests and
// final process shutdown use it to drain cleanly.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(utterance []float32) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("transcription worker panicked", "panic", r)
			if d.metrics != nil {
				d.metrics.TranscriptionFailures.Add(context.Background(), 1)
			}
			d.fireFailure(fmt.Errorf("dispatch: transcription panicked: %v", r))
		}
	}()

	ctx := context.Background()
	if d.metrics != nil {
		d.metrics.ActiveTranscriptions.Add(ctx, 1)
		defer d.metrics.ActiveTranscriptions.Add(ctx, -1)
	}

	if d.events.Processing != nil {
		d.events.Processing()
	}

	dur := time.Duration(len(utterance)) * time.Second / time.Duration(d.sampleRate)
	slog.Info("processing utterance", "duration", dur, "samples", len(utterance))

	// No internal deadline: timeout behaviour, if any, belongs to the
	// transcription engine.
	res, err := d.tr.Transcribe(ctx, utterance, d.sampleRate)
	if err != nil {
		slog.Warn("transcription failed", "error", err)
		if d.metrics != nil {
			d.metrics.RecordTranscription(ctx, res.Latency, true)
		}
		d.fireFailure(err)
		return
	}
	if d.metrics != nil {
		d.metrics.RecordTranscription(ctx, res.Latency, false)
	}

	text := strings.TrimSpace(res.Text)
	if utf8.RuneCountInString(text) < d.minTextLen {
		slog.Debug("ignoring very short transcription", "text", text)
		if d.metrics != nil {
			d.metrics.EmptyResults.Add(ctx, 1)
		}
		return
	}

	slog.Info("transcription complete", "text", text, "latency", res.Latency)
	if d.events.Result != nil {
		d.events.Result(text, res.Latency)
	}
}

func (d *Dispatcher) fireFailure(err error) {
	if d.events.Failure != nil {
		d.events.Failure(err)
	}
}
