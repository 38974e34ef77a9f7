package source

import (
	"context"
	"errors"
	"time"

	"github.com/harunnryd/voxstream/pkg/errorsx"
	"github.com/harunnryd/voxstream/pkg/frames"
	"github.com/harunnryd/voxstream/pkg/pacing"
	"github.com/harunnryd/voxstream/pkg/phrase"
)

// ErrEndOfPhrase is returned by Stream.Next once the phrase has no more
// chunks. It is a signal, not a failure.
var ErrEndOfPhrase = errors.New("source: end of phrase")

// ChunkSource turns one phrase into a paced, finite sequence of audio chunks.
type ChunkSource interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Format describes the audio every stream of this source produces.
	Format() Format
	// BeginPhrase starts production for p. The returned stream is lazy and
	// cannot be restarted.
	BeginPhrase(ctx context.Context, p phrase.Phrase) (Stream, error)
}

// Stream yields the chunks of a single phrase.
type Stream interface {
	// Next blocks until the next chunk is due and returns it, or returns
	// ErrEndOfPhrase when the phrase is finished. Errors wrapped with
	// Failure are unrecoverable for the session. A canceled ctx aborts the
	// wait and returns ctx.Err().
	Next(ctx context.Context) (frames.AudioFrame, error)
	// Close releases the stream. It is safe to call more than once.
	Close() error
}

// Format is the sample layout a source emits.
type Format struct {
	Encoding   string
	SampleRate int
	Channels   int
}

// PCM16Mono is the wire format of the reference source.
func PCM16Mono(rate int) Format {
	return Format{Encoding: "pcm_s16le", SampleRate: rate, Channels: 1}
}

// ChunkDuration is the playback length of a PCM16 chunk in this format.
func (f Format) ChunkDuration(n int) time.Duration {
	if f.Channels > 1 {
		n /= f.Channels
	}
	return pacing.Duration(n, f.SampleRate)
}

// Failure marks err as a mid-phrase production failure.
func Failure(err error) error {
	return errorsx.Wrap(err, errorsx.ReasonSourceFailure)
}

// IsEndOfPhrase reports whether err is the end-of-phrase signal.
func IsEndOfPhrase(err error) bool {
	return errors.Is(err, ErrEndOfPhrase)
}
