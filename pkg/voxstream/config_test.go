package voxstream

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/voxstream/pkg/errorsx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "environment: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Server.StreamPath != "/stream" {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.Server.WebSocket.WriteTimeout != 10*time.Second {
		t.Fatalf("write timeout: %v", cfg.Server.WebSocket.WriteTimeout)
	}
	if cfg.Source.Provider != "sine" {
		t.Fatalf("provider: %q", cfg.Source.Provider)
	}
	if cfg.Observability.Telemetry.Environment != "test" {
		t.Fatalf("telemetry environment not inherited: %q", cfg.Observability.Telemetry.Environment)
	}
	policy := cfg.SessionPolicy()
	if policy.Defaults.Voice != "en-Carter_man" || policy.Defaults.CFGScale != 1.5 || policy.Defaults.InferenceSteps != 5 {
		t.Fatalf("defaults: %+v", policy.Defaults)
	}
	if policy.RequestTimeout != 0 {
		t.Fatalf("request timeout: %v", policy.RequestTimeout)
	}
	if cfg.DrainTimeout() != 10*time.Second {
		t.Fatalf("drain timeout: %v", cfg.DrainTimeout())
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("VOX_ADDR", "127.0.0.1:9999")
	t.Setenv("VOX_BUS", "nats://bus:4222")
	t.Setenv("VOX_FREQ", "440")
	cfg, err := LoadConfig(writeConfig(t, `
server:
  addr: ${VOX_ADDR}
  websocket:
    write_timeout: 3s
session:
  request_timeout_ms: 1500
source:
  provider: sine
  settings:
    frequency_hz: ${VOX_FREQ}
voices: [en-Carter_man, en-Emma_woman]
observability:
  bus:
    url: ${VOX_BUS}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr: %q", cfg.Server.Addr)
	}
	if cfg.Observability.Bus.URL != "nats://bus:4222" {
		t.Fatalf("bus url: %q", cfg.Observability.Bus.URL)
	}
	if got := cfg.Source.Settings["frequency_hz"]; got != "440" {
		t.Fatalf("settings not expanded: %#v", got)
	}
	if cfg.Server.WebSocket.WriteTimeout != 3*time.Second {
		t.Fatalf("write timeout: %v", cfg.Server.WebSocket.WriteTimeout)
	}
	if cfg.SessionPolicy().RequestTimeout != 1500*time.Millisecond {
		t.Fatalf("request timeout: %v", cfg.SessionPolicy().RequestTimeout)
	}
	catalog := cfg.VoiceCatalog()
	if len(catalog) != 2 || catalog[0] != "en-Carter_man" || catalog[1] != "en-Emma_woman" {
		t.Fatalf("catalog: %v", catalog)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"stream path": "server:\n  stream_path: stream\n",
		"log level":   "log_level: loud\n",
		"log format":  "log_format: xml\n",
		"sample rate": "observability:\n  chunk_sample_rate: 2\n",
		"provider":    "source:\n  provider: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
				t.Fatalf("expected config_invalid reason, got %v", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestDefaultVoiceFallsBackToCatalog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Defaults.Voice = ""
	cfg.Voices = []string{"de-Anna_woman", "en-Frank_man"}
	if got := cfg.DefaultVoice(); got != "de-Anna_woman" {
		t.Fatalf("default voice: %q", got)
	}
	if got := cfg.SessionPolicy().Defaults.Voice; got != "de-Anna_woman" {
		t.Fatalf("policy voice: %q", got)
	}
}
