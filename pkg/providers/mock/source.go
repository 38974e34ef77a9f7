package mock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/harunnryd/voxstream/pkg/adapters/source"
	"github.com/harunnryd/voxstream/pkg/frames"
	"github.com/harunnryd/voxstream/pkg/phrase"
)

// ErrInjected is returned when a configured failure point is reached.
var ErrInjected = errors.New("mock source: injected failure")

// Failure injects an error into the phrase at position Phrase, either from
// BeginPhrase (AtBegin) or after AfterChunks chunks were produced.
type Failure struct {
	Phrase      int
	AfterChunks int
	AtBegin     bool
	Err         error
}

type SourceConfig struct {
	SampleRate      int
	ChunksPerPhrase int
	ChunkBytes      int
	// Delay is slept before every chunk; zero streams without pacing.
	Delay time.Duration
	Fail  *Failure
}

// Source emits deterministic chunks whose bytes encode the phrase position
// and chunk sequence, so tests can attribute every binary frame.
type Source struct {
	cfg SourceConfig

	mu    sync.Mutex
	begun []phrase.Phrase
}

func NewSource(cfg SourceConfig) *Source {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.ChunksPerPhrase == 0 {
		cfg.ChunksPerPhrase = 3
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = 320
	}
	if cfg.Fail != nil && cfg.Fail.Err == nil {
		f := *cfg.Fail
		f.Err = ErrInjected
		cfg.Fail = &f
	}
	return &Source{cfg: cfg}
}

func (s *Source) Name() string { return "mock_source" }

func (s *Source) Format() source.Format { return source.PCM16Mono(s.cfg.SampleRate) }

func (s *Source) BeginPhrase(ctx context.Context, p phrase.Phrase) (source.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.begun = append(s.begun, p)
	s.mu.Unlock()
	st := &stream{cfg: s.cfg, phrase: p, failAt: -1}
	if f := s.cfg.Fail; f != nil && f.Phrase == p.Position {
		if f.AtBegin {
			return nil, f.Err
		}
		st.failAt = f.AfterChunks
	}
	return st, nil
}

// Begun returns the phrases BeginPhrase was called with, in order.
func (s *Source) Begun() []phrase.Phrase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]phrase.Phrase(nil), s.begun...)
}

type stream struct {
	cfg    SourceConfig
	phrase phrase.Phrase
	sent   int
	failAt int
	closed bool
}

func (st *stream) Next(ctx context.Context) (frames.AudioFrame, error) {
	if st.closed || st.sent >= st.cfg.ChunksPerPhrase {
		return frames.AudioFrame{}, source.ErrEndOfPhrase
	}
	if st.failAt >= 0 && st.sent >= st.failAt {
		return frames.AudioFrame{}, source.Failure(st.cfg.Fail.Err)
	}
	if st.cfg.Delay > 0 {
		t := time.NewTimer(st.cfg.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return frames.AudioFrame{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return frames.AudioFrame{}, err
	}
	data := ChunkPayload(st.phrase.Position, st.sent, st.cfg.ChunkBytes)
	st.sent++
	meta := map[string]string{
		frames.MetaSource:      "mock",
		frames.MetaPhraseIndex: strconv.Itoa(st.phrase.Position),
	}
	return frames.NewAudioFrame("", int64(st.sent), data, st.cfg.SampleRate, 1, meta), nil
}

func (st *stream) Close() error {
	st.closed = true
	return nil
}

// ChunkPayload is the content of chunk seq of the phrase at position: the
// first two bytes carry position and seq, the rest is zero.
func ChunkPayload(position, seq, size int) []byte {
	if size < 2 {
		size = 2
	}
	b := make([]byte, size)
	b[0] = byte(position)
	b[1] = byte(seq)
	return b
}

var _ source.ChunkSource = (*Source)(nil)
