package frames

import (
	"strconv"
	"sync"
	"time"
)

// Kind identifies which of the two wire frame kinds a Frame travels as.
type Kind string

const (
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// header holds what audio and text frames share.
type header struct {
	pts  int64
	meta map[string]string
}

func newHeader(sessionID string, pts int64, meta map[string]string) header {
	h := header{pts: pts, meta: make(map[string]string, len(meta)+1)}
	for k, v := range meta {
		h.meta[k] = v
	}
	if sessionID != "" {
		h.meta[MetaSessionID] = sessionID
	}
	return h
}

func (h header) PTS() int64 { return h.pts }

// Meta returns a copy; callers may mutate it freely.
func (h header) Meta() map[string]string {
	out := make(map[string]string, len(h.meta))
	for k, v := range h.meta {
		out[k] = v
	}
	return out
}

// PhraseIndex reports the phrase position recorded in meta, or -1.
func (h header) PhraseIndex() int {
	n, err := strconv.Atoi(h.meta[MetaPhraseIndex])
	if err != nil {
		return -1
	}
	return n
}

// AudioFrame carries one chunk of 16-bit PCM. On the wire it is always a
// binary message.
type AudioFrame struct {
	header
	data   []byte
	rate   int
	ch     int
	pooled bool
}

func NewAudioFrame(sessionID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{header: newHeader(sessionID, pts, meta), data: data, rate: rate, ch: ch}
}

// NewPooledAudioFrame wraps a buffer obtained from AcquireAudioBuf without
// copying. Ownership of buf passes to the frame.
func NewPooledAudioFrame(sessionID string, pts int64, buf []byte, rate, ch int, meta map[string]string) AudioFrame {
	f := NewAudioFrame(sessionID, pts, buf, rate, ch, meta)
	f.pooled = true
	return f
}

// CopyAudioFrame is NewPooledAudioFrame over a pooled copy of data.
func CopyAudioFrame(sessionID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	buf := AcquireAudioBuf(len(data))
	copy(buf, data)
	return NewPooledAudioFrame(sessionID, pts, buf, rate, ch, meta)
}

func (a AudioFrame) Kind() Kind         { return KindAudio }
func (a AudioFrame) Data() []byte       { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte { return a.data }
func (a AudioFrame) Rate() int          { return a.rate }
func (a AudioFrame) Channels() int      { return a.ch }
func (a AudioFrame) Len() int           { return len(a.data) }

// Duration is the playback time of the payload. Zero when the format is
// unknown.
func (a AudioFrame) Duration() time.Duration {
	if a.rate <= 0 || a.ch <= 0 {
		return 0
	}
	samples := len(a.data) / (2 * a.ch)
	return time.Duration(samples) * time.Second / time.Duration(a.rate)
}

// ReleaseAudioFrame returns a pooled payload to the pool. It reports false
// for anything that was not pooled.
func ReleaseAudioFrame(f Frame) bool {
	var af AudioFrame
	switch v := f.(type) {
	case AudioFrame:
		af = v
	case *AudioFrame:
		af = *v
	default:
		return false
	}
	if !af.pooled {
		return false
	}
	ReleaseAudioBuf(af.data)
	return true
}

// TextFrame carries a UTF-8 control message. Outbound text frames hold an
// encoded event; inbound ones hold whatever the peer sent.
type TextFrame struct {
	header
	text string
}

func NewTextFrame(sessionID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{header: newHeader(sessionID, pts, meta), text: text}
}

func (t TextFrame) Kind() Kind    { return KindText }
func (t TextFrame) Text() string  { return t.text }
func (t TextFrame) Bytes() []byte { return []byte(t.text) }

const pooledBufCap = 4096

var audioBufPool = sync.Pool{
	New: func() any { return make([]byte, 0, pooledBufCap) },
}

// AcquireAudioBuf returns a buffer of len size. Buffers larger than the pool
// capacity are allocated directly.
func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		audioBufPool.Put(b[:0])
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	if cap(b) == 0 {
		return
	}
	audioBufPool.Put(b[:0])
}
