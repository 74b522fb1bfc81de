// Package config provides the configuration schema, loader, and provider
// registry for the Vetscribe recording client.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fzalvarez/vetscribe/pkg/types"
)

// Duration is a time.Duration that unmarshals from YAML strings like "45s"
// or "1500ms". Bare integers are read as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats the duration like time.Duration does.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}
		*d = Duration(v)
		return nil
	}
	var i int64
	if err := n.Decode(&i); err != nil {
		return fmt.Errorf("config: invalid duration value on line %d", n.Line)
	}
	*d = Duration(i)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// LogLevel controls log verbosity.
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

// Config is the root configuration structure for Vetscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	RateGate  RateGateConfig  `yaml:"rategate"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
}

// ServerConfig holds network and logging settings for the local HTTP
// surface (health and metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address for health and metrics endpoints
	// (e.g., "127.0.0.1:9090"). Empty disables the HTTP surface.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Defaults to info.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which implementation to use for each remote
// concern. The Name fields select factories registered in the [Registry].
type ProvidersConfig struct {
	// Recognition is the streaming speech-to-text backend.
	Recognition ProviderEntry `yaml:"recognition"`

	// RecognitionFallbacks are tried in order when the primary recognition
	// backend refuses the stream dial.
	RecognitionFallbacks []ProviderEntry `yaml:"recognition_fallbacks"`

	// Analysis is the language model backend that produces reports.
	Analysis ProviderEntry `yaml:"analysis"`

	// AnalysisFallbacks are tried in order when the primary analysis
	// backend is failing. Throttle rejections never fail over.
	AnalysisFallbacks []ProviderEntry `yaml:"analysis_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "deepgram", "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "nova-2", "gpt-4o").
	Model string `yaml:"model"`

	// Language is the transcription language hint for recognition
	// providers. Ignored by analysis providers.
	Language string `yaml:"language"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// StoreConfig holds crash-recovery persistence settings.
type StoreConfig struct {
	// Path is the SQLite file holding the session slot.
	// Defaults to "vetscribe.db".
	Path string `yaml:"path"`
}

// SessionConfig tunes the visit lifecycle.
type SessionConfig struct {
	// FlipGap is the silence threshold that flips the attributed speaker.
	// Zero keeps the built-in default.
	FlipGap Duration `yaml:"flip_gap"`

	// InitialSpeaker is the party attributed to the first utterance,
	// "vet" or "owner". Defaults to vet.
	InitialSpeaker types.Speaker `yaml:"initial_speaker"`

	// PulseInterval is the cadence of live-assessment calls while
	// recording. Zero keeps the default; negative disables the pulse.
	PulseInterval Duration `yaml:"pulse_interval"`

	// ProcessingTimeout bounds post-stop analysis. Zero keeps the default.
	ProcessingTimeout Duration `yaml:"processing_timeout"`

	// SampleRate is the capture sample rate in Hz. Zero keeps the
	// recognition provider's default.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count. Zero keeps the provider's
	// default.
	Channels int `yaml:"channels"`
}

// LexiconConfig points at the clinical terminology list used to correct
// recognised speech.
type LexiconConfig struct {
	// Path is a YAML file of canonical terms. Empty disables correction.
	Path string `yaml:"path"`

	// PhoneticThreshold is the minimum similarity for a phonetically
	// matched term. Zero keeps the default.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum similarity for a non-phonetic match.
	// Zero keeps the default.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// RateGateConfig tunes the pacing of analysis calls.
type RateGateConfig struct {
	// MinInterval is the minimum spacing between analysis calls, measured
	// from the completion of the previous one. Zero keeps the default.
	MinInterval Duration `yaml:"min_interval"`

	// Cooldown is the pause applied after an endpoint throttle rejection
	// that carries no retry hint. Zero keeps the default.
	Cooldown Duration `yaml:"cooldown"`
}
