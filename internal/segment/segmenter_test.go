package segment_test

import (
	"errors"
	"testing"

	"github.com/vaani-ai/vaani/internal/segment"
	"github.com/vaani-ai/vaani/pkg/audio"
	vadmock "github.com/vaani-ai/vaani/pkg/provider/vad/mock"
)

const (
	chunkFrames      = 512
	sampleRate       = 16000
	minSpeechFrames  = 22
	maxSilenceFrames = 13
)

// makeFrame builds a frame where every sample has the given amplitude.
func makeFrame(amplitude float32) audio.Frame {
	samples := make([]float32, chunkFrames)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{Samples: samples, SampleRate: sampleRate}
}

// newSegmenter builds a segmenter around a scripted detector and collects
// emitted utterances.
func newSegmenter(det *vadmock.Detector, emitted *[][]float32) *segment.Segmenter {
	return segment.NewSegmenter(segment.SegmenterConfig{
		Classifier:       segment.NewClassifier(det, nil),
		MinSpeechFrames:  minSpeechFrames,
		MaxSilenceFrames: maxSilenceFrames,
		Emit: func(u []float32) {
			*emitted = append(*emitted, u)
		},
	})
}

// script returns n copies of v.
func script(v bool, n int) []bool {
	r := make([]bool, n)
	for i := range r {
		r[i] = v
	}
	return r
}

func TestSegmenter_EmitsUtteranceWithTrailingSilence(t *testing.T) {
	t.Parallel()

	// 25 speech frames then 14 silence frames: one utterance of 39 frames
	// (the 13-frame silence tail that closed the region is included, plus
	// one silence frame arrives after emission and is discarded while idle).
	results := append(script(true, 25), script(false, 14)...)
	det := &vadmock.Detector{Results: results}
	var emitted [][]float32
	seg := newSegmenter(det, &emitted)

	for i := 0; i < 39; i++ {
		seg.ProcessFrame(makeFrame(0.1))
	}

	if len(emitted) != 1 {
		t.Fatalf("got %d utterances, want 1", len(emitted))
	}
	wantSamples := (25 + 13) * chunkFrames
	if len(emitted[0]) != wantSamples {
		t.Errorf("utterance has %d samples, want %d (38 frames)", len(emitted[0]), wantSamples)
	}
	if seg.State() != segment.StateIdle {
		t.Errorf("state after emission: got %v, want idle", seg.State())
	}
	if seg.BufferedFrames() != 0 {
		t.Errorf("buffer after emission: got %d samples, want 0", seg.BufferedFrames())
	}
}

func TestSegmenter_DiscardsNoiseBurst(t *testing.T) {
	t.Parallel()

	// 5 speech frames (below minimum) then 14 silence frames: no utterance.
	results := append(script(true, 5), script(false, 14)...)
	det := &vadmock.Detector{Results: results}
	var emitted [][]float32
	seg := newSegmenter(det, &emitted)

	for i := 0; i < 19; i++ {
		seg.ProcessFrame(makeFrame(0.1))
	}

	if len(emitted) != 0 {
		t.Fatalf("got %d utterances, want 0", len(emitted))
	}
	if seg.State() != segment.StateIdle {
		t.Errorf("state after discard: got %v, want idle", seg.State())
	}
	if seg.BufferedFrames() != 0 {
		t.Errorf("buffer after discard: got %d samples, want 0", seg.BufferedFrames())
	}
}

func TestSegmenter_SilenceWhileIdleNotBuffered(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{Default: false}
	var emitted [][]float32
	seg := newSegmenter(det, &emitted)

	for i := 0; i < 50; i++ {
		seg.ProcessFrame(makeFrame(0))
	}

	if len(emitted) != 0 {
		t.Errorf("got %d utterances, want 0", len(emitted))
	}
	if seg.BufferedFrames() != 0 {
		t.Errorf("buffered %d samples while idle, want 0", seg.BufferedFrames())
	}
}

func TestSegmenter_BriefPauseDoesNotCloseUtterance(t *testing.T) {
	t.Parallel()

	// Speech, a pause shorter than maxSilenceFrames, more speech, then
	// closing silence: one utterance containing everything.
	results := script(true, 15)
	results = append(results, script(false, 5)...)
	results = append(results, script(true, 15)...)
	results = append(results, script(false, 13)...)
	det := &vadmock.Detector{Results: results}
	var emitted [][]float32
	seg := newSegmenter(det, &emitted)

	for i := 0; i < len(results); i++ {
		seg.ProcessFrame(makeFrame(0.1))
	}

	if len(emitted) != 1 {
		t.Fatalf("got %d utterances, want 1", len(emitted))
	}
	wantSamples := (15 + 5 + 15 + 13) * chunkFrames
	if len(emitted[0]) != wantSamples {
		t.Errorf("utterance has %d samples, want %d", len(emitted[0]), wantSamples)
	}
}

func TestSegmenter_NeverEmitsBelowMinSpeech(t *testing.T) {
	t.Parallel()

	// Alternating short bursts must never produce an emission whose speech
	// content was below the minimum.
	var results []bool
	for burst := 0; burst < 10; burst++ {
		results = append(results, script(true, minSpeechFrames-1)...)
		results = append(results, script(false, maxSilenceFrames+1)...)
	}
	det := &vadmock.Detector{Results: results}
	var emitted [][]float32
	seg := newSegmenter(det, &emitted)

	for range results {
		seg.ProcessFrame(makeFrame(0.1))
	}

	if len(emitted) != 0 {
		t.Errorf("got %d utterances from sub-minimum bursts, want 0", len(emitted))
	}
}

func TestSegmenter_ConsecutiveUtterances(t *testing.T) {
	t.Parallel()

	var results []bool
	for u := 0; u < 3; u++ {
		results = append(results, script(true, 30)...)
		results = append(results, script(false, 13)...)
	}
	det := &vadmock.Detector{Results: results}
	var emitted [][]float32
	seg := newSegmenter(det, &emitted)

	for range results {
		seg.ProcessFrame(makeFrame(0.1))
	}

	if len(emitted) != 3 {
		t.Fatalf("got %d utterances, want 3", len(emitted))
	}
	for i, u := range emitted {
		if want := 43 * chunkFrames; len(u) != want {
			t.Errorf("utterance %d: got %d samples, want %d", i, len(u), want)
		}
	}
}

func TestClassifier_DetectorErrorDegradesToEnergy(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{IsSpeechErr: errors.New("model exploded")}
	c := segment.NewClassifier(det, nil)

	// Loud frame: energy heuristic says speech.
	if !c.IsSpeech(makeFrame(0.5).Samples) {
		t.Error("loud frame with failing detector should classify as speech via energy fallback")
	}
	// Quiet frame: energy heuristic says silence.
	if c.IsSpeech(makeFrame(0.001).Samples) {
		t.Error("quiet frame with failing detector should classify as silence")
	}
}

func TestClassifier_DetectorPanicRecovered(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{PanicOnCall: true}
	c := segment.NewClassifier(det, nil)

	if !c.IsSpeech(makeFrame(0.5).Samples) {
		t.Error("loud frame with panicking detector should classify as speech via energy fallback")
	}
	if c.IsSpeech(makeFrame(0.0001).Samples) {
		t.Error("quiet frame with panicking detector should classify as silence")
	}
}

func TestSegmenter_StreamContinuesAfterClassifierFailure(t *testing.T) {
	t.Parallel()

	// The detector fails on every call; loud frames still form an utterance
	// through the energy fallback.
	det := &vadmock.Detector{IsSpeechErr: errors.New("broken")}
	var emitted [][]float32
	seg := newSegmenter(det, &emitted)

	for i := 0; i < 25; i++ {
		seg.ProcessFrame(makeFrame(0.5)) // loud: fallback says speech
	}
	for i := 0; i < 13; i++ {
		seg.ProcessFrame(makeFrame(0.0001)) // quiet: fallback says silence
	}

	if len(emitted) != 1 {
		t.Fatalf("got %d utterances, want 1", len(emitted))
	}
}
