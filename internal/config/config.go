// Package config provides the configuration schema, loader, and provider
// registry for the Vaani streaming ASR engine.
package config

// LogLevel controls log verbosity for the Vaani engine.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values for the audio and segmentation settings. The frame counts
// assume ~32 ms frames (512 samples at 16 kHz): 13 silence frames ≈ 0.4 s,
// 22 speech frames ≈ 0.7 s.
const (
	DefaultSampleRate         = 16000
	DefaultChunkFrames16k     = 512
	DefaultChunkFramesOther   = 256
	DefaultStreamingThreshold = 0.6
	DefaultOneShotThreshold   = 0.5
	DefaultMinSpeechFrames    = 22
	DefaultMaxSilenceFrames   = 13
	DefaultWindowSeconds      = 3.0
	DefaultSilenceEnergy      = 0.01
	DefaultMinResultTextLen   = 2
)

// Config is the root configuration structure for Vaani.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Fallback      FallbackConfig      `yaml:"fallback"`
	STT           STTConfig           `yaml:"stt"`
	TranscriptLog TranscriptLogConfig `yaml:"transcript_log"`
}

// ServerConfig holds network and logging settings for the observability
// endpoints (/metrics, /healthz, /readyz, /ws).
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	// Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the capture format.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkFrames is the number of samples per capture frame.
	// Default: 512 at 16 kHz, 256 at other rates.
	ChunkFrames int `yaml:"chunk_frames"`
}

// VADConfig selects and tunes the per-frame speech detector. When Name is
// empty, segmentation falls back to the time-driven windowed buffer.
type VADConfig struct {
	// Name selects the registered detector implementation (e.g., "energy").
	Name string `yaml:"name"`

	// Threshold is the speech probability threshold. Default: 0.6.
	Threshold float64 `yaml:"threshold"`

	// MinSpeechFrames is the minimum number of speech frames an utterance
	// must contain to be dispatched; shorter regions are discarded as noise
	// bursts. Default: 22.
	MinSpeechFrames int `yaml:"min_speech_frames"`

	// MaxSilenceFrames is the contiguous silence run that closes an
	// utterance. Default: 13.
	MaxSilenceFrames int `yaml:"max_silence_frames"`
}

// FallbackConfig tunes the windowed buffer used when no detector is
// configured.
type FallbackConfig struct {
	// WindowSeconds is the fixed window duration. Default: 3.0.
	WindowSeconds float64 `yaml:"window_seconds"`

	// SilenceEnergyThreshold is the mean absolute amplitude below which a
	// completed window is discarded as silence. Default: 0.01.
	SilenceEnergyThreshold float64 `yaml:"silence_energy_threshold"`
}

// STTConfig selects and tunes the transcription backend.
type STTConfig struct {
	// Name selects the registered transcriber implementation
	// (e.g., "whisper-native").
	Name string `yaml:"name"`

	// ModelPath is the path to the model file for local backends.
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 language code for recognition (e.g., "en").
	Language string `yaml:"language"`

	// MinResultTextLength is the minimum trimmed transcript length for a
	// result to be surfaced; shorter results are discarded as noise.
	// Default: 2.
	MinResultTextLength int `yaml:"min_result_text_length"`
}

// TranscriptLogConfig configures optional transcript persistence.
type TranscriptLogConfig struct {
	// PostgresDSN is the connection string for the transcript log database.
	// Empty disables persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
// Called by [LoadFromReader] after decoding; exported so tests and embedders
// can build configs programmatically.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.ChunkFrames == 0 {
		if cfg.Audio.SampleRate == DefaultSampleRate {
			cfg.Audio.ChunkFrames = DefaultChunkFrames16k
		} else {
			cfg.Audio.ChunkFrames = DefaultChunkFramesOther
		}
	}
	if cfg.VAD.Threshold == 0 {
		cfg.VAD.Threshold = DefaultStreamingThreshold
	}
	if cfg.VAD.MinSpeechFrames == 0 {
		cfg.VAD.MinSpeechFrames = DefaultMinSpeechFrames
	}
	if cfg.VAD.MaxSilenceFrames == 0 {
		cfg.VAD.MaxSilenceFrames = DefaultMaxSilenceFrames
	}
	if cfg.Fallback.WindowSeconds == 0 {
		cfg.Fallback.WindowSeconds = DefaultWindowSeconds
	}
	if cfg.Fallback.SilenceEnergyThreshold == 0 {
		cfg.Fallback.SilenceEnergyThreshold = DefaultSilenceEnergy
	}
	if cfg.STT.MinResultTextLength == 0 {
		cfg.STT.MinResultTextLength = DefaultMinResultTextLen
	}
}
