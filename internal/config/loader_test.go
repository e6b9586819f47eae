package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/neurobridge/neurobridge/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  metrics_addr: ":9090"
  log_level: debug
backend:
  base_url: "http://localhost:8000"
  timeout: 45s
capture:
  interval: 100ms
  max_frames: 10
  window: 2s
voice:
  greeting: "Hi, I'm listening."
  language: en-US
speech:
  rate: 1.0
  pitch: 1.0
  volume: 0.8
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Backend.Timeout.Std() != 45*time.Second {
		t.Errorf("backend.timeout = %v, want 45s", cfg.Backend.Timeout.Std())
	}
	if cfg.Capture.Interval.Std() != 100*time.Millisecond {
		t.Errorf("capture.interval = %v, want 100ms", cfg.Capture.Interval.Std())
	}
	if cfg.Capture.MaxFrames != 10 {
		t.Errorf("capture.max_frames = %d, want 10", cfg.Capture.MaxFrames)
	}
	if cfg.Voice.Greeting != "Hi, I'm listening." {
		t.Errorf("voice.greeting = %q", cfg.Voice.Greeting)
	}
	if cfg.Speech.Volume != 0.8 {
		t.Errorf("speech.volume = %v, want 0.8", cfg.Speech.Volume)
	}
}

func TestLoadFromReader_UnknownFieldsAreRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  lisen_addr_typo: ":9090"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	t.Parallel()
	yaml := `
capture:
  interval: fast
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unparseable duration, got nil")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("error should mention duration, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_RelativeBackendURL(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "localhost:8000/api"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for non-absolute backend URL, got nil")
	}
	if !strings.Contains(err.Error(), "base_url") {
		t.Errorf("error should mention base_url, got: %v", err)
	}
}

func TestValidate_PartialTLS(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/certs/server.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS config missing key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_SpeechRanges(t *testing.T) {
	t.Parallel()
	yaml := `
speech:
  rate: 42
  pitch: 3
  volume: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors for out-of-range speech values, got nil")
	}
	for _, field := range []string{"speech.rate", "speech.pitch", "speech.volume"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should mention %s, got: %v", field, err)
		}
	}
}

func TestValidate_NegativeCaptureValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Capture.MaxFrames = -1
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative max_frames, got nil")
	}
	if !strings.Contains(err.Error(), "max_frames") {
		t.Errorf("error should mention max_frames, got: %v", err)
	}
}

func TestValidate_EmptyConfigIsValid(t *testing.T) {
	t.Parallel()
	// A zero config runs with defaults everywhere; it only warns.
	if err := config.Validate(&config.Config{}); err != nil {
		t.Errorf("Validate(zero config) = %v, want nil", err)
	}
}

func TestValidate_UnknownLanguageIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	yaml := `
voice:
  language: tlh-KL
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Errorf("unknown language must not fail validation, got: %v", err)
	}
}
