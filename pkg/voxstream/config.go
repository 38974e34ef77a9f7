package voxstream

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/voxstream/pkg/errorsx"
	"github.com/harunnryd/voxstream/pkg/logging"
	"github.com/harunnryd/voxstream/pkg/metrics"
	"github.com/harunnryd/voxstream/pkg/observers"
	"github.com/harunnryd/voxstream/pkg/phrase"
	"github.com/harunnryd/voxstream/pkg/session"
	"github.com/harunnryd/voxstream/pkg/transports/websocket"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Session       SessionConfig       `mapstructure:"session"`
	Source        SourceConfig        `mapstructure:"source"`
	Voices        []string            `mapstructure:"voices"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type ServerConfig struct {
	Addr           string           `mapstructure:"addr"`
	StreamPath     string           `mapstructure:"stream_path"`
	AllowAnyOrigin bool             `mapstructure:"allow_any_origin"`
	AllowedOrigins []string         `mapstructure:"allowed_origins"`
	DrainTimeoutMS int              `mapstructure:"drain_timeout_ms"`
	WebSocket      websocket.Config `mapstructure:"websocket"`
}

type SessionConfig struct {
	RequestTimeoutMS int            `mapstructure:"request_timeout_ms"`
	LogPhraseChars   int            `mapstructure:"log_phrase_chars"`
	Defaults         DefaultsConfig `mapstructure:"defaults"`
}

type DefaultsConfig struct {
	Voice          string  `mapstructure:"voice"`
	CFGScale       float64 `mapstructure:"cfg_scale"`
	InferenceSteps int     `mapstructure:"inference_steps"`
}

type SourceConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`

	// ChunkSampleRate thins chunk_out events before they reach the logging
	// and export observers; 1 keeps every chunk.
	ChunkSampleRate float64 `mapstructure:"chunk_sample_rate"`
	ObserverBuffer  int     `mapstructure:"observer_buffer"`

	// EventsLog receives every metrics event as one JSON line: a file
	// path, "stdout" or "stderr". Empty disables it.
	EventsLog string                  `mapstructure:"events_log"`
	Telemetry metrics.TelemetryConfig `mapstructure:"telemetry"`
	Bus       observers.BusConfig     `mapstructure:"bus"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.stream_path", "/stream")
	v.SetDefault("server.allow_any_origin", false)
	v.SetDefault("server.drain_timeout_ms", 10000)
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.ping_interval", 20*time.Second)
	v.SetDefault("server.websocket.close_grace", time.Second)
	v.SetDefault("server.websocket.read_limit", 64*1024)
	v.SetDefault("server.websocket.recv_buffer", 16)
	v.SetDefault("session.request_timeout_ms", 0)
	v.SetDefault("session.log_phrase_chars", 80)
	v.SetDefault("session.defaults.voice", "en-Carter_man")
	v.SetDefault("session.defaults.cfg_scale", 1.5)
	v.SetDefault("session.defaults.inference_steps", 5)
	v.SetDefault("source.provider", "sine")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.events_log", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.chunk_sample_rate", 1.0)
	v.SetDefault("observability.observer_buffer", 2048)
	v.SetDefault("observability.telemetry.service_name", "voxstream")
	v.SetDefault("observability.telemetry.tracing", "none")
	v.SetDefault("observability.bus.subject_prefix", "voxstream.session")
	v.SetDefault("observability.bus.embedded_port", 4222)
	v.SetDefault("observability.bus.connect_retries", 3)
	v.SetDefault("privacy.redact_pii", true)
}

// LoadConfig reads a YAML (or any viper-supported) file, applies defaults,
// expands ${ENV} references in every string and validates the result.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

// DefaultConfig is the configuration LoadConfig yields for an empty file.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)
	if cfg.Observability.Telemetry.Environment == "" {
		cfg.Observability.Telemetry.Environment = cfg.Environment
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errorsx.New(errorsx.ReasonConfigInvalid, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(c.Source.Provider) == "" {
		return invalid("source.provider is required")
	}
	if !strings.HasPrefix(c.Server.StreamPath, "/") {
		return invalid("server.stream_path must start with /: %q", c.Server.StreamPath)
	}
	if c.Server.DrainTimeoutMS < 0 {
		return invalid("server.drain_timeout_ms must not be negative")
	}
	if c.Session.RequestTimeoutMS < 0 {
		return invalid("session.request_timeout_ms must not be negative")
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return invalid("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return invalid("log_format %q is not text or json", c.LogFormat)
	}
	if r := c.Observability.ChunkSampleRate; r < 0 || r > 1 {
		return invalid("observability.chunk_sample_rate must be within [0,1], got %v", r)
	}
	if c.DefaultVoice() == "" && len(c.Voices) == 0 {
		return invalid("session.defaults.voice or voices is required")
	}
	return nil
}

// DefaultVoice is the voice used when a client names none.
func (c Config) DefaultVoice() string {
	if v := strings.TrimSpace(c.Session.Defaults.Voice); v != "" {
		return v
	}
	if len(c.Voices) > 0 {
		return c.Voices[0]
	}
	return ""
}

// VoiceCatalog lists the configured voices with the default voice first.
func (c Config) VoiceCatalog() []string {
	def := c.DefaultVoice()
	out := make([]string, 0, len(c.Voices)+1)
	if def != "" {
		out = append(out, def)
	}
	for _, v := range c.Voices {
		v = strings.TrimSpace(v)
		if v == "" || v == def {
			continue
		}
		out = append(out, v)
	}
	return out
}

// SessionPolicy translates the session section into the per-session policy.
func (c Config) SessionPolicy() session.Config {
	return session.Config{
		Defaults: phrase.Params{
			Voice:          c.DefaultVoice(),
			CFGScale:       c.Session.Defaults.CFGScale,
			InferenceSteps: c.Session.Defaults.InferenceSteps,
		},
		RequestTimeout: time.Duration(c.Session.RequestTimeoutMS) * time.Millisecond,
		LogPhraseChars: c.Session.LogPhraseChars,
	}
}

func (c Config) DrainTimeout() time.Duration {
	return time.Duration(c.Server.DrainTimeoutMS) * time.Millisecond
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Source.Settings = expandSettings(cfg.Source.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
