package configutil

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type sineSettings struct {
	FrequencyHz float64       `mapstructure:"frequency_hz"`
	ChunkMS     int           `mapstructure:"chunk_ms"`
	Realtime    *bool         `mapstructure:"realtime"`
	Lead        time.Duration `mapstructure:"lead"`
}

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	var out sineSettings
	err := DecodeSettings(map[string]any{
		"Frequency-Hz": "440",
		"chunkMS":      20,
		"realtime":     "false",
		"lead":         "150ms",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.FrequencyHz != 440 || out.ChunkMS != 20 || out.Lead != 150*time.Millisecond {
		t.Fatalf("unexpected decode %+v", out)
	}
	if BoolValue(out.Realtime, true) {
		t.Fatalf("expected realtime=false after weak decode")
	}
}

func TestDecodeSettingsEmptyKeepsZeroValue(t *testing.T) {
	out := sineSettings{ChunkMS: 7}
	if err := DecodeSettings(nil, &out); err != nil || out.ChunkMS != 7 {
		t.Fatalf("err=%v out=%+v", err, out)
	}
}

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	err := ValidateSettings(map[string]any{"chunk_ms": 40, "colour": "red", "frequency": 220}, Schema{
		Required: []string{"frequency_hz", "voice"},
		Optional: []string{"chunk_ms"},
	})
	var serr *SettingsError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SettingsError, got %T %v", err, err)
	}
	if strings.Join(serr.Missing, ",") != "frequency_hz,voice" {
		t.Fatalf("missing %v", serr.Missing)
	}
	if strings.Join(serr.Unknown, ",") != "colour,frequency" {
		t.Fatalf("unknown %v", serr.Unknown)
	}
	msg := err.Error()
	if !strings.Contains(msg, "frequency (did you mean frequency_hz?)") {
		t.Fatalf("expected hint in %q", msg)
	}
	if strings.Contains(msg, "colour (did you mean") {
		t.Fatalf("unrelated key should get no hint: %q", msg)
	}
}

func TestValidateSettingsRequiredBlank(t *testing.T) {
	err := ValidateSettings(map[string]any{"Voice": "  "}, Schema{Required: []string{"voice"}})
	if err == nil || !strings.Contains(err.Error(), "missing: voice") {
		t.Fatalf("blank required value should be missing, got %v", err)
	}
	if err := ValidateSettings(map[string]any{"anything": 1}, Schema{AllowUnknown: true}); err != nil {
		t.Fatalf("allow unknown: %v", err)
	}
}

func TestMilliseconds(t *testing.T) {
	if Milliseconds(0, time.Second) != time.Second {
		t.Fatalf("expected fallback")
	}
	if Milliseconds(250, time.Second) != 250*time.Millisecond {
		t.Fatalf("expected 250ms")
	}
}
