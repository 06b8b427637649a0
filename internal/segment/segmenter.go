package segment

import (
	"context"
	"log/slog"
	"time"

	"github.com/vaani-ai/vaani/internal/observe"
	"github.com/vaani-ai/vaani/pkg/audio"
)

// State enumerates the segmenter's two states.
type State int

const (
	// StateIdle means no speech region is open; silence frames are discarded.
	StateIdle State = iota

	// StateSpeaking means an utterance buffer is accumulating.
	StateSpeaking
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// EmitFunc receives a completed utterance. Ownership of the sample slice
// transfers to the callee; the segmenter never touches it again.
type EmitFunc func(utterance []float32)

// SegmenterConfig holds the construction parameters for a [Segmenter].
type SegmenterConfig struct {
	// Classifier is the per-frame speech predicate. Required.
	Classifier *Classifier

	// MinSpeechFrames is the minimum number of speech frames an utterance
	// must contain to be emitted; shorter regions are discarded as noise
	// bursts.
	MinSpeechFrames int

	// MaxSilenceFrames is the contiguous silence run that closes an open
	// speech region.
	MaxSilenceFrames int

	// Emit receives completed utterances. Required.
	Emit EmitFunc

	// Metrics records segmentation counters. Optional.
	Metrics *observe.Metrics
}

// Segmenter is the event-driven speech segmentation state machine.
//
// It consumes frames strictly in arrival order, in O(1) per frame, with no
// blocking I/O. An utterance opens on the first speech frame and closes once
// MaxSilenceFrames contiguous silence frames accumulate; the trailing silence
// frames that confirmed closure are part of the emitted utterance, not
// trimmed. A region that closes with fewer than MinSpeechFrames speech frames
// is a noise burst and is dropped without emission.
//
// Segmenter is not safe for concurrent use: all methods must be called from
// the single capture goroutine that owns it.
type Segmenter struct {
	classifier       *Classifier
	minSpeechFrames  int
	maxSilenceFrames int
	emit             EmitFunc
	metrics          *observe.Metrics

	state         State
	buf           []float32
	speechFrames  int
	silenceFrames int
	frameDur      time.Duration
}

// NewSegmenter creates a Segmenter in the Idle state.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{
		classifier:       cfg.Classifier,
		minSpeechFrames:  cfg.MinSpeechFrames,
		maxSilenceFrames: cfg.MaxSilenceFrames,
		emit:             cfg.Emit,
		metrics:          cfg.Metrics,
	}
}

// ProcessFrame advances the state machine by one frame.
func (s *Segmenter) ProcessFrame(frame audio.Frame) {
	s.frameDur = frame.Duration()

	if s.classifier.IsSpeech(frame.Samples) {
		if s.state == StateIdle {
			slog.Info("speech started")
			s.state = StateSpeaking
			s.speechFrames = 0
		}
		s.buf = append(s.buf, frame.Samples...)
		s.speechFrames++
		s.silenceFrames = 0
		return
	}

	if s.state == StateIdle {
		// Silence while idle: frame discarded, nothing buffered.
		return
	}

	// Silence inside an open region is buffered regardless; it may turn out
	// to be a mid-utterance pause, and if it closes the region it belongs to
	// the utterance as the confirmation tail.
	s.buf = append(s.buf, frame.Samples...)
	s.silenceFrames++

	if s.silenceFrames < s.maxSilenceFrames {
		return
	}

	if s.speechFrames < s.minSpeechFrames {
		slog.Debug("discarding noise burst",
			"speech_frames", s.speechFrames,
			"min_speech_frames", s.minSpeechFrames,
		)
		if s.metrics != nil {
			s.metrics.NoiseBursts.Add(context.Background(), 1)
		}
		s.reset()
		return
	}

	utterance := s.buf
	totalFrames := 0
	if n := len(frame.Samples); n > 0 {
		totalFrames = len(s.buf) / n
	}
	slog.Info("speech ended",
		"frames", totalFrames,
		"duration", time.Duration(totalFrames)*s.frameDur,
	)
	if s.metrics != nil {
		s.metrics.RecordUtterance(context.Background(), "vad")
	}
	s.reset()
	s.emit(utterance)
}

// State returns the current machine state.
func (s *Segmenter) State() State { return s.state }

// BufferedFrames reports whether any samples are currently buffered.
func (s *Segmenter) BufferedFrames() int { return len(s.buf) }

// reset returns the segmenter to Idle with an empty buffer and zero counters.
func (s *Segmenter) reset() {
	s.state = StateIdle
	s.buf = nil
	s.speechFrames = 0
	s.silenceFrames = 0
}
