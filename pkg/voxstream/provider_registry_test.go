package voxstream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harunnryd/voxstream/pkg/errorsx"
	"github.com/harunnryd/voxstream/pkg/phrase"
	"github.com/harunnryd/voxstream/pkg/providers/mock"
)

func builtinRegistry() *ProviderRegistry {
	reg := NewProviderRegistry()
	RegisterBuiltinSources(reg)
	return reg
}

func TestProviderRegistryBuiltins(t *testing.T) {
	reg := builtinRegistry()
	if got := strings.Join(reg.Sources(), ","); got != "mock,sine" {
		t.Fatalf("sources: %s", got)
	}
	cfg := DefaultConfig()
	cfg.Source.Settings = map[string]any{"frequency_hz": "440", "realtime": false, "sample_rate": 16000}
	factory, err := reg.BuildSourceFactory(" SINE ", cfg)
	if err != nil {
		t.Fatalf("build sine: %v", err)
	}
	src := factory("s1")
	if src.Name() != "sine" {
		t.Fatalf("name: %s", src.Name())
	}
	if src.Format().SampleRate != 16000 {
		t.Fatalf("sample rate: %d", src.Format().SampleRate)
	}
}

func TestProviderRegistryUnknown(t *testing.T) {
	if _, err := builtinRegistry().BuildSourceFactory("vibevoice", DefaultConfig()); err == nil {
		t.Fatal("expected unregistered provider error")
	}
}

func TestProviderRegistryRejectsUnknownSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.Settings = map[string]any{"frequency": 440}
	_, err := builtinRegistry().BuildSourceFactory("sine", cfg)
	if err == nil || !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown: frequency") {
		t.Fatalf("error should name the key: %v", err)
	}
}

func TestMockProviderFailureSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.Provider = "mock"
	cfg.Source.Settings = map[string]any{"chunks_per_phrase": 2, "fail_phrase": 0, "fail_at_begin": true}
	factory, err := builtinRegistry().BuildSourceFactory("mock", cfg)
	if err != nil {
		t.Fatalf("build mock: %v", err)
	}
	a, b := factory("a"), factory("b")
	if a == b {
		t.Fatal("mock sources must not be shared across sessions")
	}
	_, err = a.BeginPhrase(context.Background(), phrase.Phrase{Position: 0, Text: "x"})
	if !errors.Is(err, mock.ErrInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
}
