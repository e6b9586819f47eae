package config_test

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neurobridge/neurobridge/internal/config"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = false, want true", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "DEBUG", "warning"} {
		if l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = true, want false", l)
		}
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()
	var d config.Duration
	if err := yaml.Unmarshal([]byte(`1m30s`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("duration = %v, want 1m30s", d.Std())
	}

	if err := yaml.Unmarshal([]byte(`90`), &d); err == nil {
		t.Error("bare numbers must not parse as durations")
	}
}
