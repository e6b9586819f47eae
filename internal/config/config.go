// Package config provides the configuration schema and loader for the
// NeuroBridge assistant.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the assistant.
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

// Duration wraps time.Duration so YAML configs can use values like "100ms"
// or "2s".
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"100ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure for NeuroBridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Capture CaptureConfig `yaml:"capture"`
	Voice   VoiceConfig   `yaml:"voice"`
	Speech  SpeechConfig  `yaml:"speech"`
}

// ServerConfig holds network and logging settings for the bridge server.
type ServerConfig struct {
	// ListenAddr is the TCP address the bridge server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the TCP address for the Prometheus /metrics endpoint.
	// Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// BackendConfig points at the gesture/vision analysis backend.
type BackendConfig struct {
	// BaseURL is the backend root (e.g., "http://localhost:8000"). When
	// empty, gesture analysis and scene description are unavailable.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each backend request. Zero means the client default.
	Timeout Duration `yaml:"timeout"`
}

// CaptureConfig tunes the frame buffer recorder. Zero values fall back to
// the recorder's built-in defaults.
type CaptureConfig struct {
	// Interval is the time between frame capture attempts.
	Interval Duration `yaml:"interval"`

	// MaxFrames is the frame count at which a recording session delivers.
	MaxFrames int `yaml:"max_frames"`

	// Window is the safety deadline for a recording session.
	Window Duration `yaml:"window"`
}

// VoiceConfig tunes the voice command controller.
type VoiceConfig struct {
	// Greeting is spoken when a listening session starts. Empty means the
	// built-in default greeting.
	Greeting string `yaml:"greeting"`

	// Language is the recognition language tag passed to the engine
	// (e.g., "en-US").
	Language string `yaml:"language"`
}

// SpeechConfig holds synthesis voice parameters, forwarded to the
// speech-synthesis engine.
type SpeechConfig struct {
	// Rate adjusts speaking rate in the range [0.1, 10]. 0 means default.
	Rate float64 `yaml:"rate"`

	// Pitch adjusts pitch in the range [0, 2]. 0 means default.
	Pitch float64 `yaml:"pitch"`

	// Volume sets output volume in the range [0, 1]. 0 means default.
	Volume float64 `yaml:"volume"`
}
