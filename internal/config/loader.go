package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad": {"energy", "silero"},
	"stt": {"whisper-native"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkFrames <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_frames %d must be positive", cfg.Audio.ChunkFrames))
	}

	validateProviderName("vad", cfg.VAD.Name)
	validateProviderName("stt", cfg.STT.Name)

	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.2f is out of range [0, 1]", cfg.VAD.Threshold))
	}
	if cfg.VAD.MinSpeechFrames < 1 {
		errs = append(errs, fmt.Errorf("vad.min_speech_frames %d must be at least 1", cfg.VAD.MinSpeechFrames))
	}
	if cfg.VAD.MaxSilenceFrames < 1 {
		errs = append(errs, fmt.Errorf("vad.max_silence_frames %d must be at least 1", cfg.VAD.MaxSilenceFrames))
	}

	if cfg.Fallback.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("fallback.window_seconds %.2f must be positive", cfg.Fallback.WindowSeconds))
	}
	if cfg.Fallback.SilenceEnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("fallback.silence_energy_threshold %.4f must not be negative", cfg.Fallback.SilenceEnergyThreshold))
	}

	if cfg.STT.MinResultTextLength < 0 {
		errs = append(errs, fmt.Errorf("stt.min_result_text_length %d must not be negative", cfg.STT.MinResultTextLength))
	}
	if cfg.STT.Name == "" {
		slog.Warn("stt.name is empty; utterances will be segmented but never transcribed")
	}
	if cfg.VAD.Name == "" {
		slog.Info("vad.name is empty; using time-driven fallback windowing instead of speech segmentation")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning when name is set but not among the
// known provider names for kind. Unknown names are not an error — external
// registrations are allowed.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		slog.Warn("unrecognised provider name", "kind", kind, "name", name)
	}
}
