package voxstream

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/voxstream/pkg/adapters/source"
	"github.com/harunnryd/voxstream/pkg/configutil"
	"github.com/harunnryd/voxstream/pkg/errorsx"
	"github.com/harunnryd/voxstream/pkg/providers/mock"
	"github.com/harunnryd/voxstream/pkg/providers/sine"
)

// SourceFactory builds a chunk source for one session.
type SourceFactory func(sessionID string) source.ChunkSource

// SourceFactoryBuilder validates a configuration once at startup and
// returns the per-session factory.
type SourceFactoryBuilder func(cfg Config) (SourceFactory, error)

type ProviderRegistry struct {
	sources map[string]SourceFactoryBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{sources: make(map[string]SourceFactoryBuilder)}
}

func (r *ProviderRegistry) RegisterSource(name string, builder SourceFactoryBuilder) {
	r.sources[strings.ToLower(strings.TrimSpace(name))] = builder
}

func (r *ProviderRegistry) BuildSourceFactory(provider string, cfg Config) (SourceFactory, error) {
	fn := r.sources[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("source provider not registered: %s", provider)
	}
	return fn(cfg)
}

// Sources lists the registered provider names in order.
func (r *ProviderRegistry) Sources() []string {
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type sineSettings struct {
	SampleRate  int     `mapstructure:"sample_rate"`
	FrequencyHz float64 `mapstructure:"frequency_hz"`
	ChunkMS     int     `mapstructure:"chunk_ms"`
	PhraseMS    int     `mapstructure:"phrase_ms"`
	PerCharMS   int     `mapstructure:"per_char_ms"`
	Amplitude   float64 `mapstructure:"amplitude"`
	Realtime    *bool   `mapstructure:"realtime"`
	LeadMS      int     `mapstructure:"lead_ms"`
}

type mockSettings struct {
	SampleRate      int   `mapstructure:"sample_rate"`
	ChunksPerPhrase int   `mapstructure:"chunks_per_phrase"`
	ChunkBytes      int   `mapstructure:"chunk_bytes"`
	DelayMS         int   `mapstructure:"delay_ms"`
	FailPhrase      *int  `mapstructure:"fail_phrase"`
	FailAfterChunks int   `mapstructure:"fail_after_chunks"`
	FailAtBegin     *bool `mapstructure:"fail_at_begin"`
}

// RegisterBuiltinSources installs the sine and mock providers.
func RegisterBuiltinSources(reg *ProviderRegistry) {
	reg.RegisterSource("sine", func(cfg Config) (SourceFactory, error) {
		if err := validateSettings("source.settings", cfg.Source.Settings, configutil.Schema{
			Optional: []string{"sample_rate", "frequency_hz", "chunk_ms", "phrase_ms", "per_char_ms", "amplitude", "realtime", "lead_ms"},
		}); err != nil {
			return nil, err
		}
		var settings sineSettings
		if err := configutil.DecodeSettings(cfg.Source.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.Amplitude < 0 || settings.Amplitude > 1 {
			return nil, errorsx.New(errorsx.ReasonConfigInvalid, "source.settings.amplitude must be within (0,1]")
		}
		sineCfg := sine.Config{
			SampleRate:     settings.SampleRate,
			FrequencyHz:    settings.FrequencyHz,
			Chunk:          configutil.Milliseconds(settings.ChunkMS, 0),
			PhraseDuration: configutil.Milliseconds(settings.PhraseMS, 0),
			PerChar:        configutil.Milliseconds(settings.PerCharMS, 0),
			Amplitude:      settings.Amplitude,
			Realtime:       configutil.BoolValue(settings.Realtime, true),
			Lead:           configutil.Milliseconds(settings.LeadMS, 0),
		}
		// Sine holds no per-session state; one instance serves every session.
		src := sine.New(sineCfg)
		return func(string) source.ChunkSource { return src }, nil
	})

	reg.RegisterSource("mock", func(cfg Config) (SourceFactory, error) {
		if err := validateSettings("source.settings", cfg.Source.Settings, configutil.Schema{
			Optional: []string{"sample_rate", "chunks_per_phrase", "chunk_bytes", "delay_ms", "fail_phrase", "fail_after_chunks", "fail_at_begin"},
		}); err != nil {
			return nil, err
		}
		var settings mockSettings
		if err := configutil.DecodeSettings(cfg.Source.Settings, &settings); err != nil {
			return nil, err
		}
		mockCfg := mock.SourceConfig{
			SampleRate:      settings.SampleRate,
			ChunksPerPhrase: settings.ChunksPerPhrase,
			ChunkBytes:      settings.ChunkBytes,
			Delay:           time.Duration(settings.DelayMS) * time.Millisecond,
		}
		if settings.FailPhrase != nil {
			mockCfg.Fail = &mock.Failure{
				Phrase:      *settings.FailPhrase,
				AfterChunks: settings.FailAfterChunks,
				AtBegin:     configutil.BoolValue(settings.FailAtBegin, false),
			}
		}
		return func(string) source.ChunkSource { return mock.NewSource(mockCfg) }, nil
	})
}

func validateSettings(path string, settings map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonConfigInvalid, "%s", path)
	}
	return nil
}
