package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// knownLanguages lists recognition language tags known to work with common
// speech-recognition engines. Used by [Validate] to warn about likely typos;
// other tags may still be valid.
var knownLanguages = []string{
	"en-US", "en-GB", "en-AU", "de-DE", "fr-FR", "es-ES", "it-IT",
	"pt-BR", "nl-NL", "pl-PL", "ja-JP", "ko-KR", "zh-CN",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Backend
	if cfg.Backend.BaseURL == "" {
		slog.Warn("backend.base_url is empty; gesture analysis and scene description will be unavailable")
	} else if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q is not an absolute URL", cfg.Backend.BaseURL))
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %v must not be negative", cfg.Backend.Timeout.Std()))
	}

	// Capture
	if cfg.Capture.Interval < 0 {
		errs = append(errs, fmt.Errorf("capture.interval %v must not be negative", cfg.Capture.Interval.Std()))
	}
	if cfg.Capture.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("capture.max_frames %d must not be negative", cfg.Capture.MaxFrames))
	}
	if cfg.Capture.Window < 0 {
		errs = append(errs, fmt.Errorf("capture.window %v must not be negative", cfg.Capture.Window.Std()))
	}
	if cfg.Capture.Window > 0 && cfg.Capture.Interval > 0 && cfg.Capture.Window < cfg.Capture.Interval {
		slog.Warn("capture.window is shorter than capture.interval; most sessions will deliver an empty buffer",
			"window", cfg.Capture.Window.Std(),
			"interval", cfg.Capture.Interval.Std(),
		)
	}

	// Voice
	if lang := cfg.Voice.Language; lang != "" && !slices.Contains(knownLanguages, lang) {
		slog.Warn("unknown recognition language tag — may be a typo or an engine-specific tag",
			"language", lang,
			"known", knownLanguages,
		)
	}

	// Speech
	if r := cfg.Speech.Rate; r != 0 && (r < 0.1 || r > 10) {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.1, 10]", r))
	}
	if p := cfg.Speech.Pitch; p < 0 || p > 2 {
		errs = append(errs, fmt.Errorf("speech.pitch %.2f is out of range [0, 2]", p))
	}
	if v := cfg.Speech.Volume; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("speech.volume %.2f is out of range [0, 1]", v))
	}

	return errors.Join(errs...)
}
