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
	"recognition": {"deepgram"},
	"analysis":    {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
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

	validateProviderName("recognition", cfg.Providers.Recognition.Name)
	validateProviderName("analysis", cfg.Providers.Analysis.Name)
	for i, entry := range cfg.Providers.RecognitionFallbacks {
		validateProviderName("recognition", entry.Name)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.recognition_fallbacks[%d] has no name", i))
		}
	}
	for i, entry := range cfg.Providers.AnalysisFallbacks {
		validateProviderName("analysis", entry.Name)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.analysis_fallbacks[%d] has no name", i))
		}
	}

	if cfg.Providers.Recognition.Name == "" {
		slog.Warn("providers.recognition is not configured; live transcription will be unavailable")
	}
	if cfg.Providers.Analysis.Name == "" {
		slog.Warn("providers.analysis is not configured; report generation will be unavailable")
	}

	if cfg.Session.InitialSpeaker != "" && !cfg.Session.InitialSpeaker.IsValid() {
		errs = append(errs, fmt.Errorf("session.initial_speaker %q is invalid; valid values: vet, owner", cfg.Session.InitialSpeaker))
	}
	if cfg.Session.FlipGap < 0 {
		errs = append(errs, fmt.Errorf("session.flip_gap must not be negative, got %s", cfg.Session.FlipGap))
	}
	if cfg.Session.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate must not be negative, got %d", cfg.Session.SampleRate))
	}
	if cfg.Session.Channels < 0 || cfg.Session.Channels > 2 {
		errs = append(errs, fmt.Errorf("session.channels %d is out of range [0, 2]", cfg.Session.Channels))
	}

	if cfg.RateGate.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("rategate.min_interval must not be negative, got %s", cfg.RateGate.MinInterval))
	}
	if cfg.RateGate.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("rategate.cooldown must not be negative, got %s", cfg.RateGate.Cooldown))
	}

	for name, v := range map[string]float64{
		"lexicon.phonetic_threshold": cfg.Lexicon.PhoneticThreshold,
		"lexicon.fuzzy_threshold":    cfg.Lexicon.FuzzyThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %v is out of range [0, 1]", name, v))
		}
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured log level to its slog equivalent.
// Unset or invalid levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
