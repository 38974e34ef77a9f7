// Package sine is the reference chunk source: a deterministic fixed-frequency
// tone in PCM16LE mono. It exists to exercise stream timing and framing and
// has no relation to speech.
package sine

import (
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/harunnryd/voxstream/pkg/adapters/source"
	"github.com/harunnryd/voxstream/pkg/frames"
	"github.com/harunnryd/voxstream/pkg/pacing"
	"github.com/harunnryd/voxstream/pkg/phrase"
)

type Config struct {
	SampleRate  int
	FrequencyHz float64
	// Chunk is the audio length of one emitted chunk.
	Chunk time.Duration
	// PhraseDuration is the tone length per phrase. With PerChar set it is
	// the floor of a text-proportional length.
	PhraseDuration time.Duration
	PerChar        time.Duration
	// Amplitude scales the tone, 0 < a <= 1.
	Amplitude float64
	// Realtime paces chunks to playback speed. Disabled, chunks are
	// produced as fast as the session consumes them.
	Realtime bool
	// Lead lets production run ahead of playback by up to this much audio.
	Lead  time.Duration
	Clock pacing.Clock
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.FrequencyHz <= 0 {
		c.FrequencyHz = 220
	}
	if c.Chunk <= 0 {
		c.Chunk = 40 * time.Millisecond
	}
	if c.PhraseDuration <= 0 {
		c.PhraseDuration = 30 * time.Second
	}
	if c.Amplitude <= 0 || c.Amplitude > 1 {
		c.Amplitude = 1
	}
	if c.Clock == nil {
		c.Clock = pacing.RealClock()
	}
	return c
}

type Source struct {
	cfg Config
}

func New(cfg Config) *Source {
	return &Source{cfg: cfg.withDefaults()}
}

func (s *Source) Name() string { return "sine" }

func (s *Source) Format() source.Format { return source.PCM16Mono(s.cfg.SampleRate) }

// PhraseDuration is the tone length produced for p.
func (s *Source) PhraseDuration(p phrase.Phrase) time.Duration {
	d := s.cfg.PhraseDuration
	if s.cfg.PerChar > 0 {
		if byText := time.Duration(utf8.RuneCountInString(p.Text)) * s.cfg.PerChar; byText > d {
			d = byText
		}
	}
	return d
}

// ChunkSamples is the sample count of a full chunk.
func (s *Source) ChunkSamples() int {
	n := int(int64(s.cfg.SampleRate) * int64(s.cfg.Chunk) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Source) BeginPhrase(ctx context.Context, p phrase.Phrase) (source.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := int(math.Round(float64(s.cfg.SampleRate) * s.PhraseDuration(p).Seconds()))
	st := &stream{
		rate:         s.cfg.SampleRate,
		amplitude:    s.cfg.Amplitude,
		phaseInc:     2 * math.Pi * s.cfg.FrequencyHz / float64(s.cfg.SampleRate),
		chunkSamples: s.ChunkSamples(),
		total:        total,
		position:     strconv.Itoa(p.Position),
	}
	if s.cfg.Realtime {
		st.pacer = pacing.NewPacer(s.cfg.Clock, s.cfg.Lead)
	}
	return st, nil
}

type stream struct {
	rate         int
	amplitude    float64
	phase        float64
	phaseInc     float64
	chunkSamples int
	total        int
	generated    int
	seq          int64
	position     string
	pacer        *pacing.Pacer
	closed       atomic.Bool
}

func (st *stream) Next(ctx context.Context) (frames.AudioFrame, error) {
	if st.closed.Load() || st.generated >= st.total {
		return frames.AudioFrame{}, source.ErrEndOfPhrase
	}
	n := st.chunkSamples
	if rest := st.total - st.generated; rest < n {
		n = rest
	}
	buf := frames.AcquireAudioBuf(n * pacing.BytesPerSample)
	for i := 0; i < n; i++ {
		v := st.amplitude * math.Sin(st.phase)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(toPCM16(v)))
		st.phase += st.phaseInc
	}
	st.generated += n

	if st.pacer != nil {
		if err := st.pacer.Wait(ctx, pacing.Duration(len(buf), st.rate)); err != nil {
			frames.ReleaseAudioBuf(buf)
			return frames.AudioFrame{}, err
		}
	}
	st.seq++
	meta := map[string]string{
		frames.MetaSource:      "sine",
		frames.MetaPhraseIndex: st.position,
	}
	return frames.NewPooledAudioFrame("", st.seq, buf, st.rate, 1, meta), nil
}

func (st *stream) Close() error {
	st.closed.Store(true)
	return nil
}

func toPCM16(v float64) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

var _ source.ChunkSource = (*Source)(nil)
